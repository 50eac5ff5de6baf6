package score

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizarena/internal/domain"
	"github.com/victornm/quizarena/internal/errors"
)

// ExperienceAwarder grants experience to a registered user.
type ExperienceAwarder interface {
	AwardExperience(ctx context.Context, userID string, points int) (*domain.LevelUp, error)
}

// DB is the subset of *pgxpool.Pool the service uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ DB = (*pgxpool.Pool)(nil)

type Config struct {
	DB         DB
	Experience ExperienceAwarder
}

type Service struct {
	db  DB
	exp ExperienceAwarder
}

func NewService(c Config) *Service {
	return &Service{
		db:  c.DB,
		exp: c.Experience,
	}
}

type SavePlayerResultResponse struct {
	// LevelUp is nil for guests or when the award failed.
	LevelUp *domain.LevelUp
	// AwardErr is the experience award failure, already logged.
	AwardErr error
}

// SavePlayerResult stores the result and, for registered users, awards the final score as experience.
// A failed award never fails the save.
func (s *Service) SavePlayerResult(ctx context.Context, r domain.PlayerResult) (*SavePlayerResultResponse, error) {
	if err := s.insertResult(ctx, r); err != nil {
		return nil, err
	}

	resp := &SavePlayerResultResponse{}
	if r.UserID == "" || s.exp == nil {
		return resp, nil
	}

	lu, err := s.exp.AwardExperience(ctx, r.UserID, r.FinalScore)
	if err != nil {
		slog.ErrorContext(ctx, "score: award experience failed",
			"user_id", r.UserID,
			"session_id", r.GameSessionID,
			"error", err,
		)
		resp.AwardErr = err
		return resp, nil
	}

	resp.LevelUp = lu
	return resp, nil
}

func (s *Service) insertResult(ctx context.Context, r domain.PlayerResult) error {
	const stmt = `
INSERT INTO player_results
	(game_session_id, player_id, user_id, username, character, final_score, correct_answers,
	 total_questions, accuracy, max_multiplier, rank, completed_at)
VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9, $10, $11, $12);`

	_, err := s.db.Exec(ctx, stmt,
		r.GameSessionID, r.PlayerID, r.UserID, r.Username, r.Character, r.FinalScore, r.CorrectAnswers,
		r.TotalQuestions, r.Accuracy, r.MaxMultiplier, r.Rank, r.CompletedAt,
	)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("result already saved: session=%s player=%s", r.GameSessionID, r.PlayerID),
			errors.WithCause(err))
	}

	if err != nil {
		return fmt.Errorf("insert player result: %w", err)
	}

	return nil
}

type ListResultsRequest struct {
	GameSessionID string
}

// ListResults returns the results of a finished session, best rank first.
func (s *Service) ListResults(ctx context.Context, req ListResultsRequest) ([]domain.PlayerResult, error) {
	const stmt = `
SELECT player_id, COALESCE(user_id::text, ''), username, character, final_score, correct_answers,
	total_questions, accuracy, max_multiplier, rank, completed_at
FROM player_results
WHERE game_session_id = $1
ORDER BY rank ASC;`

	rows, err := s.db.Query(ctx, stmt, req.GameSessionID)
	if err != nil {
		return nil, err
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PlayerResult, error) {
		var r domain.PlayerResult
		if err := row.Scan(&r.PlayerID, &r.UserID, &r.Username, &r.Character, &r.FinalScore, &r.CorrectAnswers,
			&r.TotalQuestions, &r.Accuracy, &r.MaxMultiplier, &r.Rank, &r.CompletedAt); err != nil {
			return domain.PlayerResult{}, err
		}
		r.GameSessionID = req.GameSessionID
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}
