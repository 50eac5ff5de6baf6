package character

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizarena/internal/domain"
	"github.com/victornm/quizarena/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service tracks the experience and level of registered users' characters.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
	}
}

// AwardExperience adds points to the user's character and reports whether it levelled up.
func (s *Service) AwardExperience(ctx context.Context, userID string, points int) (lu *domain.LevelUp, err error) {
	if points < 0 {
		return nil, errors.Newf(errors.CodeInvalidArgument, "negative experience: %d", points)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		selStmt = `SELECT experience, level FROM characters WHERE user_id = $1 FOR UPDATE;`
		updStmt = `UPDATE characters SET experience = $2, level = $3, update_time = now() WHERE user_id = $1;`
	)

	var xp, oldLevel int
	err = tx.QueryRow(ctx, selStmt, userID).Scan(&xp, &oldLevel)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("character not found: user=%s", userID))
	}
	if err != nil {
		return nil, fmt.Errorf("get character: %w", err)
	}

	xp += points
	newLevel := max(oldLevel, LevelForExperience(xp))
	if _, err = tx.Exec(ctx, updStmt, userID, xp, newLevel); err != nil {
		return nil, fmt.Errorf("update character: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	lu = &domain.LevelUp{
		LevelUp:  newLevel > oldLevel,
		OldLevel: oldLevel,
		NewLevel: newLevel,
	}
	if lu.LevelUp {
		slog.InfoContext(ctx, "character: level up",
			"user_id", userID,
			"old_level", oldLevel,
			"new_level", newLevel,
		)
	}

	return lu, nil
}

// GetCharacter returns the character of a registered user.
func (s *Service) GetCharacter(ctx context.Context, userID string) (*domain.Character, error) {
	const stmt = `SELECT user_id::text, character, level, experience FROM characters WHERE user_id = $1;`

	c := &domain.Character{}
	err := s.db.QueryRow(ctx, stmt, userID).Scan(&c.UserID, &c.Name, &c.Level, &c.Experience)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("character not found: user=%s", userID))
	}
	if err != nil {
		return nil, fmt.Errorf("get character: %w", err)
	}

	return c, nil
}
