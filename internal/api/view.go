package api

import (
	"slices"
	"strings"
	"time"

	"github.com/victornm/quizarena/internal/character"
	"github.com/victornm/quizarena/internal/domain"
	"github.com/victornm/quizarena/internal/score"
)

type (
	GameState struct {
		LobbyCode            string                 `json:"lobbyCode"`
		GameSessionID        string                 `json:"gameSessionId"`
		CurrentQuestionIndex int                    `json:"currentQuestionIndex"`
		TotalQuestions       int                    `json:"totalQuestions"`
		CurrentQuestion      *domain.PublicQuestion `json:"currentQuestion,omitempty"`
		TimeRemaining        int                    `json:"timeRemaining"`
		QuestionStartTime    *time.Time             `json:"questionStartTime,omitempty"`
		IsActive             bool                   `json:"isActive"`
		Players              []Player               `json:"players"`
	}

	Player struct {
		ID             string `json:"id"`
		Username       string `json:"username"`
		Character      string `json:"character"`
		IsHost         bool   `json:"isHost"`
		Score          int    `json:"score"`
		Multiplier     int    `json:"multiplier"`
		CorrectAnswers int    `json:"correctAnswers"`
		CurrentStreak  int    `json:"currentStreak"`
		HasAnswered    bool   `json:"hasAnswered"`
		IsConnected    bool   `json:"isConnected"`
	}

	ActiveGames struct {
		Games []GameSummary `json:"games"`
	}

	GameSummary struct {
		LobbyCode            string `json:"lobbyCode"`
		GameSessionID        string `json:"gameSessionId"`
		CurrentQuestionIndex int    `json:"currentQuestionIndex"`
		TotalQuestions       int    `json:"totalQuestions"`
		Players              int    `json:"players"`
		ConnectedPlayers     int    `json:"connectedPlayers"`
	}

	Calculation struct {
		TimeElapsed         int  `json:"timeElapsed"`
		Multiplier          int  `json:"multiplier"`
		IsCorrect           bool `json:"isCorrect"`
		PointsEarned        int  `json:"pointsEarned"`
		NewMultiplier       int  `json:"newMultiplier"`
		StreakCount         int  `json:"streakCount"`
		BonusPoints         int  `json:"bonusPoints"`
		UsedFreeWrongAnswer bool `json:"usedFreeWrongAnswer,omitempty"`
	}

	Results struct {
		GameSessionID  string         `json:"gameSessionId"`
		LobbyCode      string         `json:"lobbyCode,omitempty"`
		TotalQuestions int            `json:"totalQuestions,omitempty"`
		StartedAt      *time.Time     `json:"startedAt,omitempty"`
		EndedAt        *time.Time     `json:"endedAt,omitempty"`
		Results        []PlayerResult `json:"results"`
	}

	PlayerResult struct {
		PlayerID       string    `json:"playerId"`
		Username       string    `json:"username"`
		Character      string    `json:"character"`
		FinalScore     int       `json:"finalScore"`
		CorrectAnswers int       `json:"correctAnswers"`
		TotalQuestions int       `json:"totalQuestions"`
		Accuracy       string    `json:"accuracy"`
		MaxMultiplier  int       `json:"maxMultiplier"`
		Rank           int       `json:"rank"`
		CompletedAt    time.Time `json:"completedAt"`
	}

	Leaderboard struct {
		GameSessionID string                    `json:"gameSessionId"`
		Entries       []domain.LeaderboardEntry `json:"entries"`
	}

	HallOfFame struct {
		Entries []HallOfFameEntry `json:"entries"`
	}

	HallOfFameEntry struct {
		Username string `json:"username"`
		Score    int    `json:"score"`
		Rank     int    `json:"rank"`
	}

	Character struct {
		UserID             string `json:"userId"`
		Name               string `json:"character"`
		Level              int    `json:"level"`
		Experience         int    `json:"experience"`
		NextLevelExpNeeded int    `json:"nextLevelExperience"`
	}
)

// toGameStateView hides the answer key of the current question.
func toGameStateView(st *domain.GameState) GameState {
	v := GameState{
		LobbyCode:            st.LobbyCode,
		GameSessionID:        st.GameSessionID,
		CurrentQuestionIndex: st.CurrentQuestionIndex,
		TotalQuestions:       st.TotalQuestions,
		TimeRemaining:        st.TimeRemaining,
		IsActive:             st.IsActive,
		Players:              make([]Player, 0, len(st.Players)),
	}

	if st.CurrentQuestion != nil {
		q := st.CurrentQuestion.Public()
		v.CurrentQuestion = &q
		t := st.QuestionStartTime
		v.QuestionStartTime = &t
	}

	for _, p := range st.Players {
		v.Players = append(v.Players, Player{
			ID:             p.ID,
			Username:       p.Username,
			Character:      p.Character,
			IsHost:         p.IsHost,
			Score:          p.Score,
			Multiplier:     p.Multiplier,
			CorrectAnswers: p.CorrectAnswers,
			CurrentStreak:  p.CurrentStreak,
			HasAnswered:    p.HasAnsweredCurrentQuestion,
			IsConnected:    p.IsConnected,
		})
	}

	return v
}

func toGameSummary(st *domain.GameState) GameSummary {
	s := GameSummary{
		LobbyCode:            st.LobbyCode,
		GameSessionID:        st.GameSessionID,
		CurrentQuestionIndex: st.CurrentQuestionIndex,
		TotalQuestions:       st.TotalQuestions,
		Players:              len(st.Players),
	}
	for _, p := range st.Players {
		if p.IsConnected {
			s.ConnectedPlayers++
		}
	}
	return s
}

func sortSummaries(s []GameSummary) {
	slices.SortFunc(s, func(a, b GameSummary) int {
		return strings.Compare(a.LobbyCode, b.LobbyCode)
	})
}

func toCalculationView(c *score.Calculation) Calculation {
	return Calculation{
		TimeElapsed:         c.TimeElapsed,
		Multiplier:          c.Multiplier,
		IsCorrect:           c.IsCorrect,
		PointsEarned:        c.PointsEarned,
		NewMultiplier:       c.NewMultiplier,
		StreakCount:         c.StreakCount,
		BonusPoints:         c.BonusPoints,
		UsedFreeWrongAnswer: c.UsedFreeWrongAnswer,
	}
}

func toPlayerResult(r domain.PlayerResult) PlayerResult {
	return PlayerResult{
		PlayerID:       r.PlayerID,
		Username:       r.Username,
		Character:      r.Character,
		FinalScore:     r.FinalScore,
		CorrectAnswers: r.CorrectAnswers,
		TotalQuestions: r.TotalQuestions,
		Accuracy:       r.Accuracy.StringFixed(2),
		MaxMultiplier:  r.MaxMultiplier,
		Rank:           r.Rank,
		CompletedAt:    r.CompletedAt,
	}
}

func toCharacterView(c *domain.Character) Character {
	return Character{
		UserID:             c.UserID,
		Name:               c.Name,
		Level:              c.Level,
		Experience:         c.Experience,
		NextLevelExpNeeded: max(0, character.ExperienceForLevel(c.Level+1)-c.Experience),
	}
}
