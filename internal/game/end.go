package game

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizarena/internal/domain"
)

// endGameLocked terminates the game. The in-memory state is closed first so no
// other call can touch it, then the results are persisted and the room notified.
// Persistence failures are logged and never stop the game from ending, and the
// work is detached from ctx so a caller going away cannot cut it short.
func (c *Coordinator) endGameLocked(ctx context.Context, g *game) {
	if g.ended {
		return
	}
	g.ended = true
	g.questionOpen = false
	stopTimer(g)
	ctx = context.WithoutCancel(ctx)

	s := g.state
	s.IsActive = false
	endedAt := c.now()
	defer c.registry.remove(s.LobbyCode, g)

	if err := c.sessions.EndGameSession(ctx, s.GameSessionID, endedAt); err != nil {
		slog.ErrorContext(ctx, "game: end game session failed",
			"lobby", s.LobbyCode,
			"session_id", s.GameSessionID,
			"error", err,
		)
	}

	standings := Rank(s.Players)
	results, levelUps := c.saveResults(ctx, s, standings, endedAt)

	if err := c.lobby.UpdateLobbyStatus(ctx, s.LobbyCode, domain.LobbyStatusEnded); err != nil {
		slog.ErrorContext(ctx, "game: update lobby status failed",
			"lobby", s.LobbyCode,
			"status", domain.LobbyStatusEnded,
			"error", err,
		)
	}

	for _, lu := range levelUps {
		c.broadcast(ctx, s.LobbyCode, lu)
	}

	ended := domain.RoomGameEnded{FinalScores: standings}
	if len(standings) > 0 {
		w := standings[0]
		ended.Winner = &w
	}
	c.broadcast(ctx, s.LobbyCode, ended)

	if c.eb != nil {
		c.eb.Publish(ctx, domain.EventGameEnded{
			LobbyCode:     s.LobbyCode,
			GameSessionID: s.GameSessionID,
			Results:       results,
		})
	}

	c.metrics.GameEnded(endedAt.Sub(g.startedAt))
	slog.InfoContext(ctx, "game: session ended",
		"lobby", s.LobbyCode,
		"session_id", s.GameSessionID,
		"questions_played", s.CurrentQuestionIndex+1,
	)
}

// saveResults stores every player's result and collects the level ups of linked accounts.
func (c *Coordinator) saveResults(ctx context.Context, s *domain.GameState, standings []domain.LeaderboardEntry, endedAt time.Time) ([]domain.PlayerResult, []domain.RoomPlayerLevelUp) {
	ranks := make(map[string]int, len(standings))
	for _, e := range standings {
		ranks[e.PlayerID] = e.Rank
	}

	asked := min(len(s.Questions), s.CurrentQuestionIndex+1)
	results := make([]domain.PlayerResult, len(s.Players))
	for i, p := range s.Players {
		results[i] = domain.PlayerResult{
			GameSessionID:  s.GameSessionID,
			PlayerID:       p.ID,
			UserID:         p.UserID,
			Username:       p.Username,
			Character:      p.Character,
			FinalScore:     p.Score,
			CorrectAnswers: p.CorrectAnswers,
			TotalQuestions: asked,
			Accuracy:       accuracy(p.CorrectAnswers, asked),
			MaxMultiplier:  p.MaxMultiplier,
			Rank:           ranks[p.ID],
			CompletedAt:    endedAt,
		}
	}

	if c.results == nil {
		return results, nil
	}

	levelUps := make([]*domain.RoomPlayerLevelUp, len(results))

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)
	for i := range results {
		r := &results[i]
		eg.Go(func() error {
			if r.UserID == "" {
				r.UserID = c.linkedUserID(ctx, r.Username)
			}

			resp, err := c.results.SavePlayerResult(ctx, *r)
			if err != nil {
				slog.ErrorContext(ctx, "game: save player result failed",
					"session_id", r.GameSessionID,
					"player_id", r.PlayerID,
					"error", err,
				)
				return nil
			}

			if resp.LevelUp != nil && resp.LevelUp.LevelUp {
				levelUps[i] = &domain.RoomPlayerLevelUp{
					PlayerID: r.PlayerID,
					OldLevel: resp.LevelUp.OldLevel,
					NewLevel: resp.LevelUp.NewLevel,
				}
			}
			return nil
		})
	}
	_ = eg.Wait()

	var out []domain.RoomPlayerLevelUp
	for _, lu := range levelUps {
		if lu != nil {
			out = append(out, *lu)
		}
	}

	return results, out
}

func (c *Coordinator) linkedUserID(ctx context.Context, username string) string {
	if c.users == nil || username == "" {
		return ""
	}

	u, err := c.users.FindByUsername(ctx, username)
	if err != nil {
		slog.WarnContext(ctx, "game: find user by username failed", "username", username, "error", err)
		return ""
	}
	if u == nil {
		return ""
	}

	return u.UserID
}

// Rank orders players by score, then correct answers, keeping lobby order on ties.
func Rank(players []domain.GamePlayer) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID:       p.ID,
			Username:       p.Username,
			Character:      p.Character,
			Score:          p.Score,
			CorrectAnswers: p.CorrectAnswers,
		})
	}

	slices.SortStableFunc(entries, func(a, b domain.LeaderboardEntry) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return b.CorrectAnswers - a.CorrectAnswers
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}

	return entries
}

func accuracy(correct, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}

	return decimal.NewFromInt(int64(correct)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), 2)
}
