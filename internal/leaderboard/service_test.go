package leaderboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizarena/internal/domain"
	"github.com/victornm/quizarena/internal/errors"
	"github.com/victornm/quizarena/internal/event"
	"github.com/victornm/quizarena/internal/leaderboard"
)

func TestService_RecordGame(t *testing.T) {
	ctx := context.Background()
	s, rs := makeService(t)

	err := s.RecordGame(ctx, domain.EventGameEnded{
		GameSessionID: "s1",
		Results: []domain.PlayerResult{
			{PlayerID: "p1", Username: "alice", UserID: "u1", FinalScore: 120},
			{PlayerID: "p2", Username: "guest", FinalScore: 300},
			{PlayerID: "p3", Username: "bob", UserID: "u2", FinalScore: 80},
		},
	})
	require.NoError(t, err)

	board, err := s.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{GameSessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, &domain.Leaderboard{
		GameSessionID: "s1",
		Entries: []domain.LeaderboardEntry{
			{PlayerID: "p2", Username: "guest", Score: 300, Rank: 1},
			{PlayerID: "p1", Username: "alice", Score: 120, Rank: 2},
			{PlayerID: "p3", Username: "bob", Score: 80, Rank: 3},
		},
	}, board)
	assert.Equal(t, 24*time.Hour, rs.TTL("test:session:s1:leaderboard"))
	assert.Equal(t, 24*time.Hour, rs.TTL("test:session:s1:players"))

	hof, err := s.GetHallOfFame(ctx, leaderboard.GetHallOfFameRequest{})
	require.NoError(t, err)
	assert.Equal(t, []domain.HallOfFameEntry{
		{Username: "alice", Score: 120, Rank: 1},
		{Username: "bob", Score: 80, Rank: 2},
	}, hof, "guests should not enter the hall of fame")
}

func TestService_RecordGame_SameUsername(t *testing.T) {
	ctx := context.Background()
	s, _ := makeService(t)

	err := s.RecordGame(ctx, domain.EventGameEnded{
		GameSessionID: "s1",
		Results: []domain.PlayerResult{
			{PlayerID: "p1", Username: "guest", FinalScore: 90},
			{PlayerID: "p2", Username: "guest", FinalScore: 40},
		},
	})
	require.NoError(t, err)

	board, err := s.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{GameSessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, []domain.LeaderboardEntry{
		{PlayerID: "p1", Username: "guest", Score: 90, Rank: 1},
		{PlayerID: "p2", Username: "guest", Score: 40, Rank: 2},
	}, board.Entries, "players sharing a name should keep their own entries")
}

func TestService_RecordAnswer(t *testing.T) {
	tests := map[string]struct {
		answers []domain.EventAnswerScored
		want    []domain.LeaderboardEntry
	}{
		"running scores should rank players": {
			answers: []domain.EventAnswerScored{
				{GameSessionID: "s1", PlayerID: "p1", Username: "alice", TotalScore: 50},
				{GameSessionID: "s1", PlayerID: "p2", Username: "bob", TotalScore: 60},
				{GameSessionID: "s1", PlayerID: "p1", Username: "alice", TotalScore: 110},
			},
			want: []domain.LeaderboardEntry{
				{PlayerID: "p1", Username: "alice", Score: 110, Rank: 1},
				{PlayerID: "p2", Username: "bob", Score: 60, Rank: 2},
			},
		},

		"an older score handled late should not lower the entry": {
			answers: []domain.EventAnswerScored{
				{GameSessionID: "s1", PlayerID: "p1", Username: "alice", TotalScore: 110},
				{GameSessionID: "s1", PlayerID: "p1", Username: "alice", TotalScore: 50},
			},
			want: []domain.LeaderboardEntry{
				{PlayerID: "p1", Username: "alice", Score: 110, Rank: 1},
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, _ := makeService(t)

			for _, a := range tc.answers {
				require.NoError(t, s.RecordAnswer(ctx, a))
			}

			board, err := s.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{GameSessionID: "s1"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, board.Entries)
		})
	}
}

func TestService_HallOfFameKeepsBestScore(t *testing.T) {
	ctx := context.Background()
	s, _ := makeService(t)

	games := []domain.EventGameEnded{
		{GameSessionID: "s1", Results: []domain.PlayerResult{{PlayerID: "p1", Username: "alice", UserID: "u1", FinalScore: 200}}},
		{GameSessionID: "s2", Results: []domain.PlayerResult{{PlayerID: "p1", Username: "alice", UserID: "u1", FinalScore: 50}}},
		{GameSessionID: "s3", Results: []domain.PlayerResult{{PlayerID: "p2", Username: "bob", UserID: "u2", FinalScore: 150}}},
	}
	for _, g := range games {
		require.NoError(t, s.RecordGame(ctx, g))
	}

	hof, err := s.GetHallOfFame(ctx, leaderboard.GetHallOfFameRequest{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []domain.HallOfFameEntry{{Username: "alice", Score: 200, Rank: 1}}, hof)
}

func TestService_GetLeaderboard_NotFound(t *testing.T) {
	s, _ := makeService(t)

	_, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{GameSessionID: "missing"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)
}

func TestService_SubscribesToGameEvents(t *testing.T) {
	eb := event.NewBus()
	s, _ := makeService(t, withEventBus(eb))

	eb.Publish(context.Background(), domain.EventAnswerScored{
		GameSessionID: "s2", PlayerID: "p1", Username: "bob", TotalScore: 30,
	})
	eb.Publish(context.Background(), domain.EventGameEnded{
		GameSessionID: "s1",
		Results:       []domain.PlayerResult{{PlayerID: "p1", Username: "alice", UserID: "u1", FinalScore: 10}},
	})
	eb.Stop()

	live, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{GameSessionID: "s2"})
	require.NoError(t, err)
	assert.Equal(t, []domain.LeaderboardEntry{{PlayerID: "p1", Username: "bob", Score: 30, Rank: 1}}, live.Entries)

	board, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{GameSessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, 10, board.Entries[0].Score)
}

func makeService(t *testing.T, opts ...options) (*leaderboard.Service, *miniredis.Miniredis) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		Redis:  rc,
		Prefix: "test",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c), rs
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}
