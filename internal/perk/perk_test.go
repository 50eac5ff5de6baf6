package perk_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizarena/internal/domain"
	"github.com/victornm/quizarena/internal/perk"
	"github.com/victornm/quizarena/internal/score"
)

func makeEngine(t *testing.T) *perk.Engine {
	t.Helper()

	e, err := perk.NewEngine(perk.Config{Perks: map[string][]perk.Perk{
		"Owl": {
			{Name: "quick wit", Kind: perk.KindSpeedBonus, UnlockLevel: 1, Value: 10, Threshold: 5},
			{Name: "second chance", Kind: perk.KindFreeWrong, UnlockLevel: 3, Value: 1},
			{Name: "closer", Kind: perk.KindCloser, UnlockLevel: 5, Value: 20, Threshold: 2},
		},
		"fox": {
			{Name: "momentum", Kind: perk.KindMaxStreak, UnlockLevel: 2, Value: 6},
			{Name: "big momentum", Kind: perk.KindMaxStreak, UnlockLevel: 4, Value: 8},
		},
	}})
	require.NoError(t, err)

	return e
}

func TestEngine_GetModifiersAndContext(t *testing.T) {
	tests := map[string]struct {
		player domain.GamePlayer
		want   *score.Modifiers
	}{
		"level 1 owl should get the speed bonus only": {
			player: domain.GamePlayer{Character: "owl", CharacterLevel: 1},
			want:   &score.Modifiers{SpeedBonusPoints: 10, SpeedThresholdSeconds: 5},
		},

		"level 5 owl should get every owl perk": {
			player: domain.GamePlayer{Character: "OWL", CharacterLevel: 5},
			want: &score.Modifiers{
				SpeedBonusPoints:      10,
				SpeedThresholdSeconds: 5,
				FreeWrongAnswers:      1,
				CloserBonusPercentage: 20,
				LastQuestionsCount:    2,
			},
		},

		"stronger perk of the same kind should win": {
			player: domain.GamePlayer{Character: "fox", CharacterLevel: 4},
			want:   &score.Modifiers{MaxStreakMultiplier: 8},
		},

		"locked perks should give no modifiers": {
			player: domain.GamePlayer{Character: "fox", CharacterLevel: 1},
		},

		"unknown character should give no modifiers": {
			player: domain.GamePlayer{Character: "cat", CharacterLevel: 10},
		},
	}

	e := makeEngine(t)
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, _, err := e.GetModifiersAndContext(context.Background(), tt.player, 0, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m)
		})
	}
}

func TestEngine_Context(t *testing.T) {
	e := makeEngine(t)

	_, c, err := e.GetModifiersAndContext(context.Background(), domain.GamePlayer{
		Character:            "owl",
		CorrectAnswers:       3,
		AnsweredQuestions:    5,
		ConsecutiveWrong:     2,
		LastAnswerWrong:      true,
		FreeWrongAnswersUsed: 1,
	}, 5, 10)
	require.NoError(t, err)

	assert.Equal(t, &score.Context{
		QuestionIndex:        5,
		TotalQuestions:       10,
		PreviousAnswerWrong:  true,
		ConsecutiveWrong:     2,
		CorrectAnswers:       3,
		AnsweredQuestions:    5,
		FreeWrongAnswersUsed: 1,
	}, c)
}

func TestNewEngine_Invalid(t *testing.T) {
	tests := map[string]perk.Perk{
		"unknown kind":      {Name: "x", Kind: "teleport", Value: 1},
		"missing threshold": {Name: "x", Kind: perk.KindPhoenix, Value: 2},
		"zero value":        {Name: "x", Kind: perk.KindBounceBack},
	}

	for name, p := range tests {
		p := p
		t.Run(name, func(t *testing.T) {
			_, err := perk.NewEngine(perk.Config{Perks: map[string][]perk.Perk{"owl": {p}}})
			require.Error(t, err)
		})
	}
}

func TestEngine_ScoresWithPerks(t *testing.T) {
	e := makeEngine(t)
	m, c, err := e.GetModifiersAndContext(context.Background(), domain.GamePlayer{Character: "owl", CharacterLevel: 1}, 0, 10)
	require.NoError(t, err)

	got := score.NewEngine(60).CalculateScore(3, 1, true, 0, m, c)
	assert.Equal(t, 67, got.PointsEarned)
	assert.Equal(t, 10, got.BonusPoints)
}
