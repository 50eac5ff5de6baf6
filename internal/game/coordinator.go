package game

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/quizarena/internal/domain"
	"github.com/victornm/quizarena/internal/errors"
	"github.com/victornm/quizarena/internal/event"
	"github.com/victornm/quizarena/internal/score"
)

const (
	defaultQuestionSeconds = score.DefaultTimeLimit
	defaultQuestionCount   = 10
	defaultQuestionSetID   = 1
	maxConcurrent          = 16
)

var (
	ErrLobbyNotFound         = errors.Newf(errors.CodeNotFound, "lobby not found")
	ErrNotHost               = errors.Newf(errors.CodePermissionDenied, "only the host can start the game")
	ErrGameAlreadyInProgress = errors.Newf(errors.CodeAlreadyExists, "game already in progress")
	ErrGameNotActive         = errors.Newf(errors.CodeFailedPrecondition, "game not active")
	ErrPlayerNotFound        = errors.Newf(errors.CodeNotFound, "player not found")
	ErrAlreadyAnswered       = errors.Newf(errors.CodeAlreadyExists, "player already answered the current question")
	ErrNoActiveQuestion      = errors.Newf(errors.CodeFailedPrecondition, "no active question")
)

type Config struct {
	Registry    *Registry
	EventBus    *event.Bus
	Lobby       LobbyService
	Questions   QuestionService
	Sessions    SessionRepository
	Results     ResultSaver
	Users       UserFinder
	Modifiers   ModifierSource
	Broadcaster Broadcaster
	Metrics     Metrics

	// QuestionSeconds is both the per-question countdown and the time the score
	// bonus is computed against. Defaults to 60.
	QuestionSeconds int
	// QuestionCount is used when the lobby does not pick one. Defaults to 10.
	QuestionCount int
	// DefaultQuestionSetID is played when the host picked no question set. Defaults to 1.
	DefaultQuestionSetID int64
	// QuestionBreak is the pause between the end of a question and the next one.
	QuestionBreak time.Duration

	NewTickerFunc func(d time.Duration) Ticker
	NowFunc       func() time.Time
}

// Coordinator drives the game of every lobby: start, question loop, scoring and end.
// Operations on the same lobby are serialized, different lobbies run independently.
type Coordinator struct {
	registry *Registry
	eb       *event.Bus
	lobby    LobbyService
	question QuestionService
	sessions SessionRepository
	results  ResultSaver
	users    UserFinder
	mods     ModifierSource
	bc       Broadcaster
	metrics  Metrics
	scoring  *score.Engine

	questionSeconds int
	questionCount   int
	defaultSetID    int64
	questionBreak   time.Duration

	newTicker func(d time.Duration) Ticker
	now       func() time.Time
}

func NewCoordinator(c Config) *Coordinator {
	co := &Coordinator{
		registry:        c.Registry,
		eb:              c.EventBus,
		lobby:           c.Lobby,
		question:        c.Questions,
		sessions:        c.Sessions,
		results:         c.Results,
		users:           c.Users,
		mods:            c.Modifiers,
		bc:              c.Broadcaster,
		metrics:         c.Metrics,
		questionSeconds: c.QuestionSeconds,
		questionCount:   c.QuestionCount,
		defaultSetID:    c.DefaultQuestionSetID,
		questionBreak:   c.QuestionBreak,
		newTicker:       c.NewTickerFunc,
		now:             c.NowFunc,
	}

	if co.registry == nil {
		co.registry = NewRegistry()
	}
	if co.metrics == nil {
		co.metrics = noopMetrics{}
	}
	if co.questionSeconds <= 0 {
		co.questionSeconds = defaultQuestionSeconds
	}
	if co.questionCount <= 0 {
		co.questionCount = defaultQuestionCount
	}
	if co.defaultSetID <= 0 {
		co.defaultSetID = defaultQuestionSetID
	}
	if co.newTicker == nil {
		co.newTicker = newStdTicker
	}
	if co.now == nil {
		co.now = time.Now
	}
	co.scoring = score.NewEngine(co.questionSeconds)

	return co
}

// StartGameSession creates the game of a lobby. Only the lobby host can start it.
func (c *Coordinator) StartGameSession(ctx context.Context, lobbyCode, requesterID string) (*domain.GameState, error) {
	lb, err := c.lobby.GetLobbyByCode(ctx, lobbyCode)
	if err != nil && errors.Convert(err).Code != errors.CodeNotFound {
		return nil, fmt.Errorf("get lobby %s: %w", lobbyCode, err)
	}
	if lb == nil {
		return nil, fmt.Errorf("start game: lobby=%s: %w", lobbyCode, ErrLobbyNotFound)
	}
	if lb.HostID != requesterID {
		return nil, fmt.Errorf("start game: lobby=%s requester=%s: %w", lobbyCode, requesterID, ErrNotHost)
	}

	// The reserved game has no state until it is ready, so every other call
	// treats it as not active while the questions and session are loaded.
	g := &game{}
	if !c.registry.reserve(lobbyCode, g) {
		return nil, fmt.Errorf("start game: lobby=%s: %w", lobbyCode, ErrGameAlreadyInProgress)
	}

	questions, setIDs := c.loadQuestions(ctx, lb)

	sessionID, err := c.sessions.CreateGameSession(ctx, lobbyCode, setIDs, len(questions))
	if err != nil {
		slog.ErrorContext(ctx, "game: create game session failed, continuing with a local id",
			"lobby", lobbyCode,
			"error", err,
		)
		sessionID = newSessionID()
	}

	players := make([]domain.GamePlayer, 0, len(lb.Players))
	for _, p := range lb.Players {
		players = append(players, domain.GamePlayer{
			ID:             p.ID,
			UserID:         p.UserID,
			Username:       p.Username,
			Character:      p.Character,
			CharacterLevel: p.CharacterLevel,
			IsHost:         p.IsHost || p.ID == lb.HostID,
			Multiplier:     score.DefaultBaseMultiplier,
			MaxMultiplier:  score.DefaultBaseMultiplier,
			IsConnected:    true,
		})
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = &domain.GameState{
		LobbyCode:            lobbyCode,
		GameSessionID:        sessionID,
		CurrentQuestionIndex: -1,
		TotalQuestions:       len(questions),
		Questions:            questions,
		TimeRemaining:        c.questionSeconds,
		IsActive:             true,
		Players:              players,
	}
	g.setIDs = setIDs
	g.startedAt = c.now()

	if err := c.lobby.UpdateLobbyStatus(ctx, lobbyCode, domain.LobbyStatusPlaying); err != nil {
		slog.ErrorContext(ctx, "game: update lobby status failed",
			"lobby", lobbyCode,
			"status", domain.LobbyStatusPlaying,
			"error", err,
		)
	}

	c.metrics.GameStarted()
	slog.InfoContext(ctx, "game: session started",
		"lobby", lobbyCode,
		"session_id", sessionID,
		"players", len(players),
		"questions", len(questions),
	)

	return g.state.Clone(), nil
}

// loadQuestions resolves the questions of a new game: the host's sets, then the
// default set, then a placeholder set so a game can always be played.
func (c *Coordinator) loadQuestions(ctx context.Context, lb *domain.Lobby) ([]domain.Question, []int64) {
	setIDs, count := lb.QuestionSetIDs, lb.QuestionCount

	info, err := c.lobby.GetLobbyQuestionSetInfo(ctx, lb.Code)
	if err != nil {
		slog.WarnContext(ctx, "game: get lobby question sets failed", "lobby", lb.Code, "error", err)
	} else if info != nil {
		if len(info.QuestionSetIDs) > 0 {
			setIDs = info.QuestionSetIDs
		}
		if info.QuestionCount > 0 {
			count = info.QuestionCount
		}
	}
	if count <= 0 {
		count = c.questionCount
	}

	if len(setIDs) > 0 {
		valid, err := c.lobby.ValidateQuestionSetSelection(ctx, setIDs)
		if err != nil {
			slog.WarnContext(ctx, "game: validate question sets failed", "lobby", lb.Code, "error", err)
		} else {
			setIDs = valid
		}
	}

	if len(setIDs) > 0 {
		if qs := c.randomQuestions(ctx, lb.Code, setIDs, count); len(qs) > 0 {
			return qs, setIDs
		}
	}

	defaults := []int64{c.defaultSetID}
	if qs := c.randomQuestions(ctx, lb.Code, defaults, count); len(qs) > 0 {
		return qs, defaults
	}

	slog.WarnContext(ctx, "game: question bank returned nothing, using placeholder questions", "lobby", lb.Code)
	return placeholderQuestions(count), nil
}

func (c *Coordinator) randomQuestions(ctx context.Context, lobbyCode string, setIDs []int64, count int) []domain.Question {
	qs, err := c.question.GetRandomQuestions(ctx, setIDs, count)
	if err != nil {
		slog.WarnContext(ctx, "game: get random questions failed",
			"lobby", lobbyCode,
			"question_sets", setIDs,
			"error", err,
		)
		return nil
	}

	return qs
}

// StartNextQuestion moves the game to its next question, or ends it when none is left.
func (c *Coordinator) StartNextQuestion(ctx context.Context, lobbyCode string) error {
	g, err := c.lock(lobbyCode)
	if err != nil {
		return fmt.Errorf("start next question: %w", err)
	}
	defer g.mu.Unlock()

	c.startNextQuestionLocked(ctx, g)
	return nil
}

func (c *Coordinator) startNextQuestionLocked(ctx context.Context, g *game) {
	ctx = context.WithoutCancel(ctx)
	s := g.state
	stopTimer(g)

	s.CurrentQuestionIndex++
	if s.CurrentQuestionIndex >= len(s.Questions) {
		c.endGameLocked(ctx, g)
		return
	}

	q := s.Questions[s.CurrentQuestionIndex]
	s.CurrentQuestion = &q
	for i := range s.Players {
		s.Players[i].HasAnsweredCurrentQuestion = false
		s.Players[i].CurrentAnswer = ""
		s.Players[i].AnswerTime = 0
	}
	s.TimeRemaining = c.questionSeconds
	s.QuestionStartTime = c.now()
	g.questionOpen = true

	c.broadcast(ctx, s.LobbyCode, domain.RoomQuestionStarted{
		Question:      q.Public(),
		QuestionIndex: s.CurrentQuestionIndex,
		Total:         s.TotalQuestions,
		TimeRemaining: s.TimeRemaining,
	})

	g.timer = c.every(ctx, g, time.Second, func(ctx context.Context) bool {
		return c.tickLocked(ctx, g)
	})
}

func (c *Coordinator) tickLocked(ctx context.Context, g *game) bool {
	s := g.state

	s.TimeRemaining = max(0, s.TimeRemaining-1)
	c.broadcast(ctx, s.LobbyCode, domain.RoomTimeUpdate{TimeRemaining: s.TimeRemaining})

	if s.TimeRemaining > 0 {
		return true
	}

	c.endQuestionLocked(ctx, g)
	return false
}

// SubmitAnswer scores the answer of a player to the current question. When every
// connected player has answered, the question ends right away.
func (c *Coordinator) SubmitAnswer(ctx context.Context, lobbyCode, playerID, answer string) (*score.Calculation, error) {
	g, err := c.lock(lobbyCode)
	if err != nil {
		return nil, fmt.Errorf("submit answer: %w", err)
	}
	defer g.mu.Unlock()

	s := g.state
	i := s.Player(playerID)
	if i < 0 {
		return nil, fmt.Errorf("submit answer: lobby=%s player=%s: %w", lobbyCode, playerID, ErrPlayerNotFound)
	}
	if !g.questionOpen || s.CurrentQuestion == nil {
		return nil, fmt.Errorf("submit answer: lobby=%s: %w", lobbyCode, ErrNoActiveQuestion)
	}

	p := &s.Players[i]
	if p.HasAnsweredCurrentQuestion {
		return nil, fmt.Errorf("submit answer: lobby=%s player=%s: %w", lobbyCode, playerID, ErrAlreadyAnswered)
	}

	elapsed := int(math.Floor(c.now().Sub(s.QuestionStartTime).Seconds()))
	correct := isCorrectAnswer(*s.CurrentQuestion, answer)
	mods, sctx := c.modifiers(ctx, *p, s.CurrentQuestionIndex, s.TotalQuestions)

	calc := c.scoring.CalculateScore(elapsed, p.Multiplier, correct, p.CurrentStreak, mods, sctx)
	commitAnswer(p, answer, calc)

	c.broadcast(ctx, lobbyCode, domain.RoomAnswerReceived{
		PlayerID:    playerID,
		HasAnswered: true,
		IsCorrect:   &correct,
	})
	c.metrics.AnswerScored(correct)
	if c.eb != nil {
		c.eb.Publish(ctx, domain.EventAnswerScored{
			LobbyCode:     lobbyCode,
			GameSessionID: s.GameSessionID,
			PlayerID:      playerID,
			Username:      p.Username,
			IsCorrect:     correct,
			PointsEarned:  calc.PointsEarned,
			TotalScore:    p.Score,
		})
	}

	if allAnswered(s) {
		c.endQuestionLocked(ctx, g)
	}

	return &calc, nil
}

func commitAnswer(p *domain.GamePlayer, answer string, calc score.Calculation) {
	p.Score += max(0, calc.PointsEarned)
	p.Multiplier = calc.NewMultiplier
	p.MaxMultiplier = max(p.MaxMultiplier, calc.NewMultiplier)
	p.CurrentStreak = calc.StreakCount
	p.AnsweredQuestions++

	if calc.IsCorrect {
		p.CorrectAnswers++
		p.ConsecutiveWrong = 0
		p.LastAnswerWrong = false
	} else {
		p.ConsecutiveWrong++
		p.LastAnswerWrong = true
	}
	if calc.UsedFreeWrongAnswer {
		p.FreeWrongAnswersUsed++
	}

	p.HasAnsweredCurrentQuestion = true
	p.CurrentAnswer = answer
	p.AnswerTime = calc.TimeElapsed
}

func (c *Coordinator) modifiers(ctx context.Context, p domain.GamePlayer, questionIndex, total int) (*score.Modifiers, *score.Context) {
	sctx := &score.Context{
		QuestionIndex:        questionIndex,
		TotalQuestions:       total,
		PreviousAnswerWrong:  p.LastAnswerWrong,
		ConsecutiveWrong:     p.ConsecutiveWrong,
		CorrectAnswers:       p.CorrectAnswers,
		AnsweredQuestions:    p.AnsweredQuestions,
		FreeWrongAnswersUsed: p.FreeWrongAnswersUsed,
	}
	if c.mods == nil {
		return nil, sctx
	}

	mods, custom, err := c.mods.GetModifiersAndContext(ctx, p, questionIndex, total)
	if err != nil {
		slog.WarnContext(ctx, "game: get gameplay modifiers failed, scoring without them",
			"player_id", p.ID,
			"error", err,
		)
		return nil, sctx
	}
	if custom != nil {
		sctx = custom
	}

	return mods, sctx
}

// EndCurrentQuestion closes the current question before its timer runs out.
func (c *Coordinator) EndCurrentQuestion(ctx context.Context, lobbyCode string) error {
	g, err := c.lock(lobbyCode)
	if err != nil {
		return fmt.Errorf("end question: %w", err)
	}
	defer g.mu.Unlock()

	if !g.questionOpen {
		return fmt.Errorf("end question: lobby=%s: %w", lobbyCode, ErrNoActiveQuestion)
	}

	c.endQuestionLocked(ctx, g)
	return nil
}

// endQuestionLocked publishes the results of the current question and moves on.
// Scores are only read here, they were committed when each answer came in.
func (c *Coordinator) endQuestionLocked(ctx context.Context, g *game) {
	if !g.questionOpen {
		return
	}
	g.questionOpen = false
	stopTimer(g)
	ctx = context.WithoutCancel(ctx)

	s := g.state
	results := make([]domain.QuestionPlayerResult, 0, len(s.Players))
	for _, p := range s.Players {
		results = append(results, domain.QuestionPlayerResult{
			PlayerID:    p.ID,
			Username:    p.Username,
			HasAnswered: p.HasAnsweredCurrentQuestion,
			Answer:      p.CurrentAnswer,
			IsCorrect:   p.HasAnsweredCurrentQuestion && isCorrectAnswer(*s.CurrentQuestion, p.CurrentAnswer),
			Score:       p.Score,
			Multiplier:  p.Multiplier,
			Streak:      p.CurrentStreak,
		})
	}

	c.broadcast(ctx, s.LobbyCode, domain.RoomQuestionEnded{
		QuestionIndex: s.CurrentQuestionIndex,
		CorrectAnswer: s.CurrentQuestion.CorrectAnswer,
		Results:       results,
		Standings:     Rank(s.Players),
	})

	if s.CurrentQuestionIndex+1 >= len(s.Questions) {
		c.endGameLocked(ctx, g)
		return
	}

	if c.questionBreak > 0 {
		g.timer = c.every(ctx, g, c.questionBreak, func(ctx context.Context) bool {
			c.startNextQuestionLocked(ctx, g)
			return false
		})
		return
	}

	c.startNextQuestionLocked(ctx, g)
}

// EndGameSession ends the game of a lobby, saves the results and removes it.
func (c *Coordinator) EndGameSession(ctx context.Context, lobbyCode string) error {
	g, err := c.lock(lobbyCode)
	if err != nil {
		return fmt.Errorf("end game: %w", err)
	}
	defer g.mu.Unlock()

	c.endGameLocked(ctx, g)
	return nil
}

// Shutdown ends every active game, saving its results.
func (c *Coordinator) Shutdown(ctx context.Context) {
	for code := range c.registry.all() {
		if err := c.EndGameSession(ctx, code); err != nil && !stderrors.Is(err, ErrGameNotActive) {
			slog.ErrorContext(ctx, "game: end game on shutdown failed", "lobby", code, "error", err)
		}
	}
}

// HandlePlayerDisconnect marks a player as gone. The game ends when nobody is left.
func (c *Coordinator) HandlePlayerDisconnect(ctx context.Context, lobbyCode, playerID string) error {
	return c.setConnected(ctx, lobbyCode, playerID, false)
}

// HandlePlayerReconnect marks a previously disconnected player as back.
func (c *Coordinator) HandlePlayerReconnect(ctx context.Context, lobbyCode, playerID string) error {
	return c.setConnected(ctx, lobbyCode, playerID, true)
}

func (c *Coordinator) setConnected(ctx context.Context, lobbyCode, playerID string, connected bool) error {
	g, err := c.lock(lobbyCode)
	if err != nil {
		return fmt.Errorf("player connection: %w", err)
	}
	defer g.mu.Unlock()

	s := g.state
	i := s.Player(playerID)
	if i < 0 {
		return fmt.Errorf("player connection: lobby=%s player=%s: %w", lobbyCode, playerID, ErrPlayerNotFound)
	}
	if s.Players[i].IsConnected == connected {
		return nil
	}
	s.Players[i].IsConnected = connected

	if err := c.lobby.UpdatePlayerConnection(ctx, lobbyCode, playerID, connected); err != nil {
		slog.ErrorContext(ctx, "game: update player connection failed",
			"lobby", lobbyCode,
			"player_id", playerID,
			"connected", connected,
			"error", err,
		)
	}

	if connected {
		return nil
	}

	c.broadcast(ctx, lobbyCode, domain.RoomPlayerDisconnected{PlayerID: playerID})

	if connectedPlayers(s) == 0 {
		slog.InfoContext(ctx, "game: every player left, ending game", "lobby", lobbyCode)
		c.endGameLocked(ctx, g)
		return nil
	}

	if g.questionOpen && allAnswered(s) {
		c.endQuestionLocked(ctx, g)
	}

	return nil
}

// GetGameState returns a copy of the game state of a lobby.
func (c *Coordinator) GetGameState(lobbyCode string) (*domain.GameState, bool) {
	g, err := c.lock(lobbyCode)
	if err != nil {
		return nil, false
	}
	defer g.mu.Unlock()

	return g.state.Clone(), true
}

func (c *Coordinator) IsGameActive(lobbyCode string) bool {
	_, ok := c.GetGameState(lobbyCode)
	return ok
}

// GetActiveGames returns copies of every active game state, keyed by lobby code.
// Changing the result never affects the coordinator.
func (c *Coordinator) GetActiveGames() map[string]*domain.GameState {
	games := c.registry.all()

	m := make(map[string]*domain.GameState, len(games))
	for code, g := range games {
		g.mu.Lock()
		if !g.ended && g.state != nil {
			m[code] = g.state.Clone()
		}
		g.mu.Unlock()
	}

	return m
}

// lock returns the locked game of a lobby. Callers must unlock it.
func (c *Coordinator) lock(lobbyCode string) (*game, error) {
	g, ok := c.registry.get(lobbyCode)
	if !ok {
		return nil, fmt.Errorf("lobby=%s: %w", lobbyCode, ErrGameNotActive)
	}

	g.mu.Lock()
	if g.ended || g.state == nil {
		g.mu.Unlock()
		return nil, fmt.Errorf("lobby=%s: %w", lobbyCode, ErrGameNotActive)
	}

	return g, nil
}

func (c *Coordinator) broadcast(ctx context.Context, lobbyCode string, e event.Event) {
	if c.bc == nil {
		return
	}

	// Room events go out even when the caller that triggered them is gone.
	ctx = context.WithoutCancel(ctx)
	if err := c.bc.Broadcast(ctx, lobbyCode, e); err != nil {
		slog.WarnContext(ctx, "game: broadcast failed",
			"lobby", lobbyCode,
			"event", e.Name(),
			"error", err,
		)
	}
}

func isCorrectAnswer(q domain.Question, answer string) bool {
	return strings.EqualFold(strings.TrimSpace(q.CorrectAnswer), strings.TrimSpace(answer))
}

func allAnswered(s *domain.GameState) bool {
	n := 0
	for _, p := range s.Players {
		if !p.IsConnected {
			continue
		}
		if !p.HasAnsweredCurrentQuestion {
			return false
		}
		n++
	}

	return n > 0
}

func connectedPlayers(s *domain.GameState) int {
	n := 0
	for _, p := range s.Players {
		if p.IsConnected {
			n++
		}
	}

	return n
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
