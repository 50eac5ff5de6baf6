package user

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizarena/internal/domain"
)

type Config struct {
	DB *pgxpool.Pool
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
	}
}

// FindByUsername returns the registered account with that username, or nil for a guest name.
func (s *Service) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	const stmt = `SELECT user_id::text, username FROM users WHERE lower(username) = lower($1);`

	u := &domain.User{}
	err := s.db.QueryRow(ctx, stmt, username).Scan(&u.UserID, &u.Username)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	return u, nil
}
