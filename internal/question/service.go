package question

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizarena/internal/domain"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service is the question bank.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
	}
}

// GetRandomQuestions returns up to count questions drawn at random from the given sets.
func (s *Service) GetRandomQuestions(ctx context.Context, questionSetIDs []int64, count int) ([]domain.Question, error) {
	if len(questionSetIDs) == 0 || count <= 0 {
		return nil, nil
	}

	const stmt = `
SELECT q.question_id::text, q.question_set_id, q.question_text, q.options, q.correct_answer,
	COALESCE(q.category, ''), COALESCE(q.difficulty, '')
FROM questions q
JOIN question_sets qs ON qs.id = q.question_set_id
WHERE q.question_set_id = ANY($1) AND qs.is_active
ORDER BY random()
LIMIT $2;`

	rows, err := s.db.Query(ctx, stmt, questionSetIDs, count)
	if err != nil {
		return nil, fmt.Errorf("get random questions: %w", err)
	}

	qs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		err := row.Scan(&q.QuestionID, &q.QuestionSetID, &q.QuestionText, &q.Options, &q.CorrectAnswer, &q.Category, &q.Difficulty)
		return q, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan questions: %w", err)
	}

	return qs, nil
}
