package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizarena/internal/domain"
	"github.com/victornm/quizarena/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service keeps the durable record of played game sessions.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
	}
}

// CreateGameSession records a game that is starting and returns its ID.
func (s *Service) CreateGameSession(ctx context.Context, lobbyCode string, questionSetIDs []int64, totalQuestions int) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate game session ID: %w", err)
	}

	if err := s.insertSession(ctx, id, lobbyCode, questionSetIDs, totalQuestions); err != nil {
		return "", err
	}

	return id.String(), nil
}

func (s *Service) insertSession(ctx context.Context, id uuid.UUID, lobbyCode string, questionSetIDs []int64, totalQuestions int) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		insSessionStmt = `
INSERT INTO game_sessions (game_session_id, lobby_code, total_questions, started_at)
VALUES ($1, $2, $3, now());`
		insSetStmt = `INSERT INTO game_session_question_sets (game_session_id, question_set_id) VALUES ($1, $2);`
	)

	if _, err = tx.Exec(ctx, insSessionStmt, id, lobbyCode, totalQuestions); err != nil {
		return fmt.Errorf("insert game session: %w", err)
	}

	b := &pgx.Batch{}
	for _, setID := range questionSetIDs {
		b.Queue(insSetStmt, id, setID)
	}
	if err = tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("insert question sets: %w", err)
	}

	return tx.Commit(ctx)
}

// EndGameSession stamps the end time of a session. Ending twice keeps the first time.
func (s *Service) EndGameSession(ctx context.Context, gameSessionID string, endedAt time.Time) error {
	id, err := uuid.Parse(gameSessionID)
	if err != nil {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid game session ID: %s", gameSessionID),
			errors.WithCause(err))
	}

	const stmt = `
UPDATE game_sessions SET ended_at = COALESCE(ended_at, $2)
WHERE game_session_id = $1;`

	tag, err := s.db.Exec(ctx, stmt, id, endedAt)
	if err != nil {
		return fmt.Errorf("end game session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("game session not found: id=%s", gameSessionID))
	}

	return nil
}

// GetGameSession returns a recorded session.
func (s *Service) GetGameSession(ctx context.Context, gameSessionID string) (*domain.GameSession, error) {
	id, err := uuid.Parse(gameSessionID)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid game session ID: %s", gameSessionID),
			errors.WithCause(err))
	}

	const stmt = `
SELECT gs.lobby_code, gs.total_questions, gs.started_at, gs.ended_at,
	COALESCE(array_agg(qs.question_set_id ORDER BY qs.question_set_id) FILTER (WHERE qs.question_set_id IS NOT NULL), '{}')
FROM game_sessions gs
LEFT JOIN game_session_question_sets qs ON qs.game_session_id = gs.game_session_id
WHERE gs.game_session_id = $1
GROUP BY gs.game_session_id;`

	ss := &domain.GameSession{GameSessionID: gameSessionID}
	err = s.db.QueryRow(ctx, stmt, id).Scan(&ss.LobbyCode, &ss.TotalQuestions, &ss.StartedAt, &ss.EndedAt, &ss.QuestionSetIDs)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("game session not found: id=%s", gameSessionID))
	}
	if err != nil {
		return nil, fmt.Errorf("get game session: %w", err)
	}

	return ss, nil
}
