package perk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/victornm/quizarena/internal/domain"
	"github.com/victornm/quizarena/internal/score"
)

// Kind is the scoring rule a perk changes.
type Kind string

const (
	KindBaseMultiplier       Kind = "base_multiplier"
	KindMaxStreak            Kind = "max_streak"
	KindStreakGrowth         Kind = "streak_growth"
	KindBonusSeconds         Kind = "bonus_seconds"
	KindTimerSpeed           Kind = "timer_speed"
	KindSpeedBonusMultiplier Kind = "speed_bonus_multiplier"
	KindBaseScoreMultiplier  Kind = "base_score_multiplier"
	KindSpeedBonus           Kind = "speed_bonus"
	KindCloser               Kind = "closer"
	KindBounceBack           Kind = "bounce_back"
	KindPhoenix              Kind = "phoenix"
	KindComeback             Kind = "comeback"
	KindFreeWrong            Kind = "free_wrong"
	KindPartialCredit        Kind = "partial_credit"
)

// Perk is a modifier a character unlocks at a given level.
//
// Value is the main amount of the rule (points, multiplier, seconds, percent).
// Threshold is only read by the rules that need a second number:
// speed_bonus (seconds), closer (last questions), phoenix (consecutive misses)
// and comeback (accuracy as a fraction).
type Perk struct {
	Name        string  `mapstructure:"name"`
	Kind        Kind    `mapstructure:"kind"`
	UnlockLevel int     `mapstructure:"unlock_level"`
	Value       float64 `mapstructure:"value"`
	Threshold   float64 `mapstructure:"threshold"`
}

type Config struct {
	// Perks lists the perks of each character, keyed by character name.
	Perks map[string][]Perk `mapstructure:"perks"`
}

// Engine resolves the active perks of a player into scoring modifiers.
type Engine struct {
	perks map[string][]Perk
}

func NewEngine(c Config) (*Engine, error) {
	perks := make(map[string][]Perk, len(c.Perks))
	for character, ps := range c.Perks {
		for _, p := range ps {
			if err := p.validate(); err != nil {
				return nil, fmt.Errorf("perk: character=%s: %w", character, err)
			}
		}
		perks[strings.ToLower(character)] = append([]Perk(nil), ps...)
	}

	return &Engine{perks: perks}, nil
}

// Unlocked returns the perks of a character available at the given level.
func (e *Engine) Unlocked(character string, level int) []Perk {
	var out []Perk
	for _, p := range e.perks[strings.ToLower(character)] {
		if level >= p.UnlockLevel {
			out = append(out, p)
		}
	}
	return out
}

// GetModifiersAndContext returns the modifiers of the player's unlocked perks, nil when
// there are none, and the scoring context of the player's game so far.
func (e *Engine) GetModifiersAndContext(ctx context.Context, p domain.GamePlayer, questionIndex, totalQuestions int) (*score.Modifiers, *score.Context, error) {
	sctx := &score.Context{
		QuestionIndex:        questionIndex,
		TotalQuestions:       totalQuestions,
		PreviousAnswerWrong:  p.LastAnswerWrong,
		ConsecutiveWrong:     p.ConsecutiveWrong,
		CorrectAnswers:       p.CorrectAnswers,
		AnsweredQuestions:    p.AnsweredQuestions,
		FreeWrongAnswersUsed: p.FreeWrongAnswersUsed,
	}

	unlocked := e.Unlocked(p.Character, p.CharacterLevel)
	if len(unlocked) == 0 {
		return nil, sctx, nil
	}

	m := &score.Modifiers{}
	for _, pk := range unlocked {
		pk.apply(m)
	}

	slog.DebugContext(ctx, "perk: modifiers resolved",
		"player_id", p.ID,
		"character", p.Character,
		"level", p.CharacterLevel,
		"perks", len(unlocked),
	)

	return m, sctx, nil
}

func (p Perk) validate() error {
	switch p.Kind {
	case KindBaseMultiplier, KindMaxStreak, KindStreakGrowth, KindBonusSeconds, KindTimerSpeed,
		KindSpeedBonusMultiplier, KindBaseScoreMultiplier, KindBounceBack, KindFreeWrong, KindPartialCredit:
	case KindSpeedBonus, KindCloser, KindPhoenix, KindComeback:
		if p.Threshold <= 0 {
			return fmt.Errorf("perk %q: %s needs a positive threshold", p.Name, p.Kind)
		}
	default:
		return fmt.Errorf("perk %q: unknown kind %q", p.Name, p.Kind)
	}

	if p.Value <= 0 {
		return fmt.Errorf("perk %q: value must be positive", p.Name)
	}
	return nil
}

// apply writes the perk into m. When two perks touch the same rule the stronger one wins.
func (p Perk) apply(m *score.Modifiers) {
	v, n := p.Value, int(p.Value)
	switch p.Kind {
	case KindBaseMultiplier:
		m.BaseMultiplier = max(m.BaseMultiplier, n)
	case KindMaxStreak:
		m.MaxStreakMultiplier = max(m.MaxStreakMultiplier, n)
	case KindStreakGrowth:
		m.StreakGrowthRate = max(m.StreakGrowthRate, v)
	case KindBonusSeconds:
		m.BonusSeconds = max(m.BonusSeconds, v)
	case KindTimerSpeed:
		if m.TimerSpeedMultiplier == 0 {
			m.TimerSpeedMultiplier = v
		} else {
			m.TimerSpeedMultiplier = min(m.TimerSpeedMultiplier, v)
		}
	case KindSpeedBonusMultiplier:
		m.SpeedBonusMultiplier = max(m.SpeedBonusMultiplier, v)
	case KindBaseScoreMultiplier:
		m.BaseScoreMultiplier = max(m.BaseScoreMultiplier, v)
	case KindSpeedBonus:
		if n > m.SpeedBonusPoints {
			m.SpeedBonusPoints = n
			m.SpeedThresholdSeconds = int(p.Threshold)
		}
	case KindCloser:
		if v > m.CloserBonusPercentage {
			m.CloserBonusPercentage = v
			m.LastQuestionsCount = int(p.Threshold)
		}
	case KindBounceBack:
		m.BounceBackBonus = max(m.BounceBackBonus, n)
	case KindPhoenix:
		if v > m.PhoenixMultiplier {
			m.PhoenixMultiplier = v
			m.PhoenixThreshold = int(p.Threshold)
		}
	case KindComeback:
		if v > m.ComebackMultiplier {
			m.ComebackMultiplier = v
			m.ComebackThreshold = p.Threshold
		}
	case KindFreeWrong:
		m.FreeWrongAnswers += n
	case KindPartialCredit:
		m.PartialCreditRate = max(m.PartialCreditRate, v)
	}
}
