package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizarena/internal/domain"
	"github.com/victornm/quizarena/internal/errors"
	"github.com/victornm/quizarena/internal/event"
)

const (
	defaultSessionTTL = 24 * time.Hour
	defaultLimit      = 10
	maxLimit          = 100
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	// SessionTTL is how long the final board of a game is kept. Defaults to 24h.
	SessionTTL time.Duration
}

// Service keeps the board of running and recent games and the all-time hall of fame.
// Session boards are keyed by player id, with usernames kept in a hash next to them.
type Service struct {
	redis      redis.UniversalClient
	prefix     string
	sessionTTL time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		redis:      c.Redis,
		prefix:     c.Prefix,
		sessionTTL: c.SessionTTL,
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = defaultSessionTTL
	}

	if c.EventBus != nil {
		c.EventBus.Subscribe(domain.EventNameAnswerScore, func(ctx context.Context, e event.Event) error {
			return s.RecordAnswer(ctx, e.(domain.EventAnswerScored))
		})
		c.EventBus.Subscribe(domain.EventNameGameEnded, func(ctx context.Context, e event.Event) error {
			return s.RecordGame(ctx, e.(domain.EventGameEnded))
		})
	}

	return s
}

// RecordAnswer raises the live board entry of a player to their running score.
// Answers can be handled out of order, so a lower score never replaces a higher one.
func (s *Service) RecordAnswer(ctx context.Context, e domain.EventAnswerScored) error {
	if e.GameSessionID == "" {
		return nil
	}

	key, names := s.getLeaderboardKey(e.GameSessionID), s.getPlayersKey(e.GameSessionID)
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAddGT(ctx, key, redis.Z{Score: float64(e.TotalScore), Member: e.PlayerID})
		p.HSet(ctx, names, e.PlayerID, e.Username)
		p.Expire(ctx, key, s.sessionTTL)
		p.Expire(ctx, names, s.sessionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record answer %s/%s: %w", e.GameSessionID, e.PlayerID, err)
	}

	return nil
}

// RecordGame stores the final board of a game and raises the hall of fame
// entries of registered players who beat their best score.
func (s *Service) RecordGame(ctx context.Context, e domain.EventGameEnded) error {
	if len(e.Results) == 0 {
		return nil
	}

	board := make([]redis.Z, 0, len(e.Results))
	usernames := make(map[string]any, len(e.Results))
	var best []redis.Z
	for _, r := range e.Results {
		board = append(board, redis.Z{Score: float64(r.FinalScore), Member: r.PlayerID})
		usernames[r.PlayerID] = r.Username
		if r.UserID != "" {
			best = append(best, redis.Z{Score: float64(r.FinalScore), Member: r.Username})
		}
	}

	key, names := s.getLeaderboardKey(e.GameSessionID), s.getPlayersKey(e.GameSessionID)
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, board...)
		p.HSet(ctx, names, usernames)
		p.Expire(ctx, key, s.sessionTTL)
		p.Expire(ctx, names, s.sessionTTL)
		if len(best) > 0 {
			p.ZAddGT(ctx, s.getHallOfFameKey(), best...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record game %s: %w", e.GameSessionID, err)
	}

	return nil
}

type GetLeaderboardRequest struct {
	GameSessionID string
}

// GetLeaderboard returns the board of a running or recent game.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.GameSessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: session=%s", req.GameSessionID))
	}

	ids := make([]string, len(res))
	for i, z := range res {
		ids[i] = z.Member.(string)
	}

	names, err := s.redis.HMGet(ctx, s.getPlayersKey(req.GameSessionID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard usernames: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for i, z := range res {
		username, _ := names[i].(string)
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: ids[i],
			Username: username,
			Score:    int(z.Score),
			Rank:     i + 1,
		})
	}

	return &domain.Leaderboard{
		GameSessionID: req.GameSessionID,
		Entries:       entries,
	}, nil
}

type GetHallOfFameRequest struct {
	// Limit defaults to 10, capped at 100.
	Limit int
}

// GetHallOfFame returns the best scores of all time, best first.
func (s *Service) GetHallOfFame(ctx context.Context, req GetHallOfFameRequest) ([]domain.HallOfFameEntry, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	res, err := s.redis.ZRevRangeWithScores(ctx, s.getHallOfFameKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("get hall of fame: %w", err)
	}

	entries := make([]domain.HallOfFameEntry, 0, len(res))
	for i, z := range res {
		entries = append(entries, domain.HallOfFameEntry{
			Username: z.Member.(string),
			Score:    int(z.Score),
			Rank:     i + 1,
		})
	}

	return entries, nil
}

func (s *Service) getLeaderboardKey(session string) string {
	return fmt.Sprintf("%s:session:%s:leaderboard", s.prefix, session)
}

func (s *Service) getPlayersKey(session string) string {
	return fmt.Sprintf("%s:session:%s:players", s.prefix, session)
}

func (s *Service) getHallOfFameKey() string {
	return fmt.Sprintf("%s:halloffame", s.prefix)
}
