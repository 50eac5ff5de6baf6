package game_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/victornm/quizarena/internal/domain"
	"github.com/victornm/quizarena/internal/errors"
	"github.com/victornm/quizarena/internal/event"
	"github.com/victornm/quizarena/internal/game"
	"github.com/victornm/quizarena/internal/score"
)

type deps struct {
	lobby     *fakeLobby
	questions *fakeQuestions
	sessions  *fakeSessions
	results   *fakeResults
	users     *fakeUsers
	bc        *recorder
	clock     *fakeClock
}

type options func(c *game.Config)

func withModifiers(m game.ModifierSource) options {
	return func(c *game.Config) {
		c.Modifiers = m
	}
}

func withQuestionBreak(d time.Duration) options {
	return func(c *game.Config) {
		c.QuestionBreak = d
	}
}

func makeCoordinator(t *testing.T, opts ...options) (*game.Coordinator, *deps) {
	t.Helper()

	d := &deps{
		lobby: &fakeLobby{lobbies: map[string]*domain.Lobby{
			"ABC123": makeLobby("ABC123", "p1", "p2"),
		}},
		questions: &fakeQuestions{sets: map[int64][]domain.Question{
			1: {
				{QuestionID: "q1", QuestionSetID: 1, QuestionText: "Q1?", Options: []string{"A", "B"}, CorrectAnswer: "A"},
				{QuestionID: "q2", QuestionSetID: 1, QuestionText: "Q2?", Options: []string{"A", "B"}, CorrectAnswer: "B"},
			},
		}},
		sessions: &fakeSessions{id: "session-1"},
		results:  &fakeResults{levelUps: map[string]*domain.LevelUp{}},
		users:    &fakeUsers{users: map[string]string{}},
		bc:       &recorder{},
		clock:    &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
	}

	c := game.Config{
		Registry:      game.NewRegistry(),
		EventBus:      event.NewBus(),
		Lobby:         d.lobby,
		Questions:     d.questions,
		Sessions:      d.sessions,
		Results:       d.results,
		Users:         d.users,
		Broadcaster:   d.bc,
		NewTickerFunc: d.clock.NewTicker,
		NowFunc:       d.clock.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}

	return game.NewCoordinator(c), d
}

func makeLobby(code, host string, others ...string) *domain.Lobby {
	lb := &domain.Lobby{
		Code:   code,
		HostID: host,
		Status: domain.LobbyStatusWaiting,
	}

	for _, id := range append([]string{host}, others...) {
		lb.Players = append(lb.Players, domain.LobbyPlayer{
			ID:          id,
			Username:    "user-" + id,
			Character:   "owl",
			IsHost:      id == host,
			IsConnected: true,
		})
	}

	return lb
}

type fakeLobby struct {
	mu          sync.Mutex
	lobbies     map[string]*domain.Lobby
	info        *domain.QuestionSetInfo
	statuses    []domain.LobbyStatus
	connections []string
}

func (f *fakeLobby) GetLobbyByCode(_ context.Context, code string) (*domain.Lobby, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	lb, ok := f.lobbies[code]
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "lobby %s not found", code)
	}
	cp := *lb
	cp.Players = append([]domain.LobbyPlayer(nil), lb.Players...)
	return &cp, nil
}

func (f *fakeLobby) GetLobbyQuestionSetInfo(_ context.Context, _ string) (*domain.QuestionSetInfo, error) {
	return f.info, nil
}

func (f *fakeLobby) ValidateQuestionSetSelection(_ context.Context, ids []int64) ([]int64, error) {
	return ids, nil
}

func (f *fakeLobby) UpdatePlayerConnection(_ context.Context, _ string, playerID string, connected bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if connected {
		f.connections = append(f.connections, playerID+":on")
	} else {
		f.connections = append(f.connections, playerID+":off")
	}
	return nil
}

func (f *fakeLobby) UpdateLobbyStatus(_ context.Context, _ string, status domain.LobbyStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeLobby) Statuses() []domain.LobbyStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]domain.LobbyStatus(nil), f.statuses...)
}

type fakeQuestions struct {
	mu        sync.Mutex
	sets      map[int64][]domain.Question
	err       error
	requested [][]int64

	// When set, each call signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeQuestions) GetRandomQuestions(_ context.Context, ids []int64, count int) ([]domain.Question, error) {
	if f.release != nil {
		f.entered <- struct{}{}
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requested = append(f.requested, ids)
	if f.err != nil {
		return nil, f.err
	}

	var qs []domain.Question
	for _, id := range ids {
		qs = append(qs, f.sets[id]...)
	}
	if len(qs) > count {
		qs = qs[:count]
	}
	return qs, nil
}

type fakeSessions struct {
	mu        sync.Mutex
	id        string
	createErr error
	ended     []string
	ctxErrs   []error
}

func (f *fakeSessions) CreateGameSession(_ context.Context, _ string, _ []int64, _ int) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.id, nil
}

func (f *fakeSessions) EndGameSession(ctx context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ended = append(f.ended, id)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return nil
}

func (f *fakeSessions) CtxErrs() []error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]error(nil), f.ctxErrs...)
}

func (f *fakeSessions) Ended() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.ended...)
}

type fakeResults struct {
	mu       sync.Mutex
	saved    []domain.PlayerResult
	levelUps map[string]*domain.LevelUp
	err      error
	ctxErrs  []error
}

func (f *fakeResults) SavePlayerResult(ctx context.Context, r domain.PlayerResult) (*score.SavePlayerResultResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	f.saved = append(f.saved, r)
	return &score.SavePlayerResultResponse{LevelUp: f.levelUps[r.UserID]}, nil
}

func (f *fakeResults) CtxErrs() []error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]error(nil), f.ctxErrs...)
}

func (f *fakeResults) Saved() map[string]domain.PlayerResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := make(map[string]domain.PlayerResult, len(f.saved))
	for _, r := range f.saved {
		m[r.PlayerID] = r
	}
	return m
}

type fakeUsers struct {
	users map[string]string
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	id, ok := f.users[username]
	if !ok {
		return nil, nil
	}
	return &domain.User{UserID: id, Username: username}, nil
}

type fakeModifiers struct {
	mods *score.Modifiers
}

func (f fakeModifiers) GetModifiersAndContext(_ context.Context, _ domain.GamePlayer, _, _ int) (*score.Modifiers, *score.Context, error) {
	return f.mods, nil, nil
}

// recorder keeps every broadcast room event in order. Like a redis publish,
// a broadcast on a cancelled context fails and is not recorded.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Broadcast(ctx context.Context, _ string, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]event.Event(nil), r.events...)
}

func (r *recorder) Names() []string {
	var names []string
	for _, e := range r.Events() {
		names = append(names, e.Name())
	}
	return names
}

func (r *recorder) Count(name string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Name() == name {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func (c *fakeClock) NewTicker(d time.Duration) game.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTicker{d: d, c: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) Tickers() []*fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*fakeTicker(nil), c.tickers...)
}

func (c *fakeClock) Last() *fakeTicker {
	ts := c.Tickers()
	if len(ts) == 0 {
		return nil
	}
	return ts[len(ts)-1]
}

type fakeTicker struct {
	d       time.Duration
	c       chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() { t.stopped.Store(true) }

// Tick delivers one tick, reporting false when nobody listens anymore.
func (t *fakeTicker) Tick() bool {
	select {
	case t.c <- time.Now():
		return true
	case <-time.After(time.Second):
		return false
	}
}
