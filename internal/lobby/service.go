package lobby

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizarena/internal/domain"
	"github.com/victornm/quizarena/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service reads lobbies and keeps their status and player connections up to date.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
	}
}

// GetLobbyByCode returns the lobby with its players in join order.
func (s *Service) GetLobbyByCode(ctx context.Context, code string) (*domain.Lobby, error) {
	const lobbyStmt = `
SELECT code, host_id, status, question_count, question_set_ids
FROM lobbies
WHERE code = $1;`

	lb := &domain.Lobby{}
	err := s.db.QueryRow(ctx, lobbyStmt, code).Scan(&lb.Code, &lb.HostID, &lb.Status, &lb.QuestionCount, &lb.QuestionSetIDs)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("lobby not found: code=%s", code))
	}
	if err != nil {
		return nil, fmt.Errorf("get lobby: %w", err)
	}

	const playersStmt = `
SELECT lp.player_id, COALESCE(lp.user_id::text, ''), lp.username, lp.character,
	COALESCE(c.level, 1), lp.player_id = l.host_id, lp.is_connected
FROM lobby_players lp
JOIN lobbies l ON l.code = lp.lobby_code
LEFT JOIN characters c ON c.user_id = lp.user_id
WHERE lp.lobby_code = $1
ORDER BY lp.joined_at ASC;`

	rows, err := s.db.Query(ctx, playersStmt, code)
	if err != nil {
		return nil, fmt.Errorf("list lobby players: %w", err)
	}

	lb.Players, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LobbyPlayer, error) {
		var p domain.LobbyPlayer
		err := row.Scan(&p.ID, &p.UserID, &p.Username, &p.Character, &p.CharacterLevel, &p.IsHost, &p.IsConnected)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan lobby players: %w", err)
	}

	return lb, nil
}

// GetLobbyQuestionSetInfo returns the question sets and count the host picked.
func (s *Service) GetLobbyQuestionSetInfo(ctx context.Context, code string) (*domain.QuestionSetInfo, error) {
	const stmt = `SELECT question_set_ids, question_count FROM lobbies WHERE code = $1;`

	info := &domain.QuestionSetInfo{LobbyCode: code}
	err := s.db.QueryRow(ctx, stmt, code).Scan(&info.QuestionSetIDs, &info.QuestionCount)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("lobby not found: code=%s", code))
	}
	if err != nil {
		return nil, fmt.Errorf("get lobby question sets: %w", err)
	}

	return info, nil
}

// ValidateQuestionSetSelection keeps the active sets among ids, in the given order.
func (s *Service) ValidateQuestionSetSelection(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const stmt = `SELECT id FROM question_sets WHERE id = ANY($1) AND is_active;`

	rows, err := s.db.Query(ctx, stmt, ids)
	if err != nil {
		return nil, fmt.Errorf("validate question sets: %w", err)
	}

	active, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan question sets: %w", err)
	}

	valid := make([]int64, 0, len(active))
	for _, id := range ids {
		if slices.Contains(active, id) && !slices.Contains(valid, id) {
			valid = append(valid, id)
		}
	}

	return valid, nil
}

func (s *Service) UpdatePlayerConnection(ctx context.Context, code, playerID string, connected bool) error {
	const stmt = `UPDATE lobby_players SET is_connected = $3 WHERE lobby_code = $1 AND player_id = $2;`

	tag, err := s.db.Exec(ctx, stmt, code, playerID, connected)
	if err != nil {
		return fmt.Errorf("update player connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("player not found: lobby=%s player=%s", code, playerID))
	}

	return nil
}

func (s *Service) UpdateLobbyStatus(ctx context.Context, code string, status domain.LobbyStatus) error {
	const stmt = `UPDATE lobbies SET status = $2, update_time = now() WHERE code = $1;`

	tag, err := s.db.Exec(ctx, stmt, code, status)
	if err != nil {
		return fmt.Errorf("update lobby status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("lobby not found: code=%s", code))
	}

	return nil
}
