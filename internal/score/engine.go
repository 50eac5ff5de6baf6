package score

import (
	"math"
)

const (
	DefaultTimeLimit           = 60
	DefaultBaseMultiplier      = 1
	DefaultMaxStreakMultiplier = 5
	DefaultStreakGrowthRate    = 1.0
)

// Modifiers are perk driven adjustments to the scoring formula.
// A zero field means "not set" and falls back to the neutral default,
// so a zero Modifiers scores exactly like no modifiers at all.
type Modifiers struct {
	// BaseMultiplier is the multiplier a player falls back to after a wrong answer. Default 1.
	BaseMultiplier int
	// MaxStreakMultiplier caps the streak multiplier. Default 5.
	MaxStreakMultiplier int
	// StreakGrowthRate scales how fast the streak feeds the multiplier. Default 1.0.
	StreakGrowthRate float64

	// BonusSeconds are subtracted from the elapsed time before the time bonus is computed.
	BonusSeconds float64
	// TimerSpeedMultiplier scales the effective elapsed time. Default 1.
	TimerSpeedMultiplier float64

	SpeedBonusMultiplier float64
	BaseScoreMultiplier  float64

	// SpeedBonusPoints are awarded when the answer came within SpeedThresholdSeconds.
	SpeedBonusPoints      int
	SpeedThresholdSeconds int

	// CloserBonusPercentage is a percent of the points added on the last LastQuestionsCount questions.
	CloserBonusPercentage float64
	LastQuestionsCount    int

	// BounceBackBonus is added on the first correct answer after a wrong one.
	BounceBackBonus int

	PhoenixMultiplier float64
	PhoenixThreshold  int

	// ComebackMultiplier applies while the running accuracy (0..1) is below ComebackThreshold.
	ComebackMultiplier float64
	ComebackThreshold  float64

	// FreeWrongAnswers is the number of misses per game that keep streak and multiplier.
	FreeWrongAnswers int

	// PartialCreditRate awards a share of the time bonus on a wrong answer.
	PartialCreditRate float64
}

// Context is what the scoring needs to know about the player's game so far.
type Context struct {
	QuestionIndex        int
	TotalQuestions       int
	PreviousAnswerWrong  bool
	ConsecutiveWrong     int
	CorrectAnswers       int
	AnsweredQuestions    int
	FreeWrongAnswersUsed int
}

// Calculation is the result of scoring one answer.
type Calculation struct {
	TimeElapsed         int
	Multiplier          int
	IsCorrect           bool
	PointsEarned        int
	NewMultiplier       int
	StreakCount         int
	BonusPoints         int
	UsedFreeWrongAnswer bool
}

// Engine scores answers. It is stateless and safe for concurrent use.
type Engine struct {
	timeLimit int
}

// NewEngine returns an engine awarding up to timeLimit points per multiplier step.
// The time limit is the same value as the per-question countdown.
func NewEngine(timeLimit int) *Engine {
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}

	return &Engine{timeLimit: timeLimit}
}

func (e *Engine) TimeLimit() int {
	return e.timeLimit
}

// CalculateScore scores one answer. mods and ctx are optional.
func (e *Engine) CalculateScore(timeElapsed, currentMultiplier int, isCorrect bool, currentStreak int, mods *Modifiers, ctx *Context) Calculation {
	m := resolve(mods)
	c := Context{}
	if ctx != nil {
		c = *ctx
	}

	timeElapsed = max(0, timeElapsed)
	currentMultiplier = max(1, currentMultiplier)
	currentStreak = max(0, currentStreak)

	res := Calculation{
		TimeElapsed: timeElapsed,
		Multiplier:  currentMultiplier,
		IsCorrect:   isCorrect,
	}

	if !isCorrect {
		if m.FreeWrongAnswers > c.FreeWrongAnswersUsed {
			res.NewMultiplier = currentMultiplier
			res.StreakCount = currentStreak
			res.UsedFreeWrongAnswer = true
			return res
		}

		res.NewMultiplier = m.BaseMultiplier
		res.StreakCount = 0
		if m.PartialCreditRate > 0 {
			remaining := float64(max(0, e.timeLimit-timeElapsed))
			res.PointsEarned = int(math.Round(remaining * float64(currentMultiplier) * m.PartialCreditRate))
		}
		return res
	}

	effective := math.Max(0, float64(timeElapsed)-m.BonusSeconds) * m.TimerSpeedMultiplier
	timeBonus := math.Max(0, float64(e.timeLimit)-effective)

	points := math.Round(timeBonus * float64(currentMultiplier))
	points = math.Round(points * m.SpeedBonusMultiplier)
	points = math.Round(points * m.BaseScoreMultiplier)

	bonus := 0
	if m.SpeedBonusPoints > 0 && timeElapsed <= m.SpeedThresholdSeconds {
		bonus += m.SpeedBonusPoints
	}
	if m.CloserBonusPercentage > 0 && m.LastQuestionsCount > 0 && c.TotalQuestions > 0 &&
		c.QuestionIndex >= c.TotalQuestions-m.LastQuestionsCount {
		bonus += int(math.Round(points * m.CloserBonusPercentage / 100))
	}
	if m.BounceBackBonus > 0 && c.PreviousAnswerWrong {
		bonus += m.BounceBackBonus
	}
	if m.PhoenixMultiplier > 0 && m.PhoenixThreshold > 0 && c.ConsecutiveWrong >= m.PhoenixThreshold {
		points = math.Round(points * m.PhoenixMultiplier)
	}
	if m.ComebackMultiplier > 0 && c.AnsweredQuestions > 0 &&
		float64(c.CorrectAnswers)/float64(c.AnsweredQuestions) < m.ComebackThreshold {
		points = math.Round(points * m.ComebackMultiplier)
	}

	res.BonusPoints = bonus
	res.PointsEarned = int(points) + bonus
	res.StreakCount = currentStreak + 1
	res.NewMultiplier = streakMultiplier(res.StreakCount, m)

	return res
}

// CalculatePartialScore scores an answer worth partialScore (0..1) of full credit.
// Anything short of full credit breaks the streak but still counts as correct.
func (e *Engine) CalculatePartialScore(timeElapsed, currentMultiplier int, partialScore float64, currentStreak int, mods *Modifiers, ctx *Context) Calculation {
	partialScore = math.Min(1, math.Max(0, partialScore))

	res := e.CalculateScore(timeElapsed, currentMultiplier, true, currentStreak, mods, ctx)
	if partialScore >= 1 {
		return res
	}

	res.PointsEarned = int(math.Round(float64(res.PointsEarned) * partialScore))
	res.BonusPoints = int(math.Round(float64(res.BonusPoints) * partialScore))
	res.StreakCount = 0
	res.NewMultiplier = resolve(mods).BaseMultiplier

	return res
}

func streakMultiplier(streak int, m Modifiers) int {
	grown := math.Floor(float64(streak) * m.StreakGrowthRate)
	mult := int(math.Floor(grown/2)) + 1

	return min(m.MaxStreakMultiplier, max(m.BaseMultiplier, mult))
}

func resolve(mods *Modifiers) Modifiers {
	var m Modifiers
	if mods != nil {
		m = *mods
	}

	if m.BaseMultiplier <= 0 {
		m.BaseMultiplier = DefaultBaseMultiplier
	}
	if m.MaxStreakMultiplier <= 0 {
		m.MaxStreakMultiplier = DefaultMaxStreakMultiplier
	}
	if m.MaxStreakMultiplier < m.BaseMultiplier {
		m.MaxStreakMultiplier = m.BaseMultiplier
	}
	if m.StreakGrowthRate <= 0 {
		m.StreakGrowthRate = DefaultStreakGrowthRate
	}
	if m.TimerSpeedMultiplier <= 0 {
		m.TimerSpeedMultiplier = 1
	}
	if m.SpeedBonusMultiplier <= 0 {
		m.SpeedBonusMultiplier = 1
	}
	if m.BaseScoreMultiplier <= 0 {
		m.BaseScoreMultiplier = 1
	}

	return m
}
