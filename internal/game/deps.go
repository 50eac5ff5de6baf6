package game

import (
	"context"
	"time"

	"github.com/victornm/quizarena/internal/domain"
	"github.com/victornm/quizarena/internal/event"
	"github.com/victornm/quizarena/internal/score"
)

// LobbyService is the lobby collaborator. GetLobbyByCode returns an error with
// errors.CodeNotFound (or a nil lobby) when the lobby does not exist.
type LobbyService interface {
	GetLobbyByCode(ctx context.Context, code string) (*domain.Lobby, error)
	GetLobbyQuestionSetInfo(ctx context.Context, code string) (*domain.QuestionSetInfo, error)
	ValidateQuestionSetSelection(ctx context.Context, ids []int64) ([]int64, error)
	UpdatePlayerConnection(ctx context.Context, code, playerID string, connected bool) error
	UpdateLobbyStatus(ctx context.Context, code string, status domain.LobbyStatus) error
}

type QuestionService interface {
	GetRandomQuestions(ctx context.Context, questionSetIDs []int64, count int) ([]domain.Question, error)
}

type SessionRepository interface {
	CreateGameSession(ctx context.Context, lobbyCode string, questionSetIDs []int64, totalQuestions int) (string, error)
	EndGameSession(ctx context.Context, gameSessionID string, endedAt time.Time) error
}

type ResultSaver interface {
	SavePlayerResult(ctx context.Context, r domain.PlayerResult) (*score.SavePlayerResultResponse, error)
}

type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
}

// ModifierSource supplies perk driven scoring modifiers for a player about to be scored.
// Either return value may be nil.
type ModifierSource interface {
	GetModifiersAndContext(ctx context.Context, p domain.GamePlayer, questionIndex, totalQuestions int) (*score.Modifiers, *score.Context, error)
}

// Broadcaster fans room events out to every client of a lobby.
type Broadcaster interface {
	Broadcast(ctx context.Context, lobbyCode string, e event.Event) error
}

type Metrics interface {
	GameStarted()
	GameEnded(d time.Duration)
	AnswerScored(correct bool)
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct {
	*time.Ticker
}

func (t stdTicker) C() <-chan time.Time { return t.Ticker.C }

func newStdTicker(d time.Duration) Ticker {
	return stdTicker{time.NewTicker(d)}
}

type noopMetrics struct{}

func (noopMetrics) GameStarted()            {}
func (noopMetrics) GameEnded(time.Duration) {}
func (noopMetrics) AnswerScored(bool)       {}
