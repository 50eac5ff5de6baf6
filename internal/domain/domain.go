package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LobbyStatus string

const (
	LobbyStatusWaiting LobbyStatus = "waiting"
	LobbyStatusPlaying LobbyStatus = "playing"
	LobbyStatusEnded   LobbyStatus = "ended"
)

// Lobby is a waiting room with a host and joined players, referenced by a short code.
type Lobby struct {
	Code           string
	HostID         string
	Status         LobbyStatus
	QuestionCount  int
	QuestionSetIDs []int64
	Players        []LobbyPlayer
}

type LobbyPlayer struct {
	ID             string
	UserID         string
	Username       string
	Character      string
	CharacterLevel int
	IsHost         bool
	IsConnected    bool
}

// QuestionSetInfo describes the question sets the host picked for a lobby.
type QuestionSetInfo struct {
	LobbyCode      string
	QuestionSetIDs []int64
	QuestionCount  int
}

type Question struct {
	QuestionID    string
	QuestionSetID int64
	QuestionText  string
	Options       []string
	CorrectAnswer string
	Category      string
	Difficulty    string
}

// PublicQuestion is a question as sent to players, without the answer key.
type PublicQuestion struct {
	QuestionID   string   `json:"id"`
	QuestionText string   `json:"question"`
	Options      []string `json:"options"`
	Category     string   `json:"category,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
}

func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		QuestionID:   q.QuestionID,
		QuestionText: q.QuestionText,
		Options:      append([]string(nil), q.Options...),
		Category:     q.Category,
		Difficulty:   q.Difficulty,
	}
}

// GameState is the authoritative in-memory record of one lobby's active game.
type GameState struct {
	LobbyCode            string
	GameSessionID        string
	CurrentQuestionIndex int
	TotalQuestions       int
	Questions            []Question
	CurrentQuestion      *Question
	TimeRemaining        int
	QuestionStartTime    time.Time
	IsActive             bool
	Players              []GamePlayer
}

// Clone returns a deep copy of the state.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}

	c := *s
	c.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = append([]string(nil), q.Options...)
		c.Questions[i] = q
	}
	if s.CurrentQuestion != nil {
		q := *s.CurrentQuestion
		q.Options = append([]string(nil), q.Options...)
		c.CurrentQuestion = &q
	}
	c.Players = append([]GamePlayer(nil), s.Players...)

	return &c
}

// Player returns the index of the player with the given id, or -1.
func (s *GameState) Player(id string) int {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return i
		}
	}

	return -1
}

type GamePlayer struct {
	ID             string
	UserID         string
	Username       string
	Character      string
	CharacterLevel int
	IsHost         bool

	Score          int
	Multiplier     int
	CorrectAnswers int
	CurrentStreak  int
	MaxMultiplier  int

	HasAnsweredCurrentQuestion bool
	CurrentAnswer              string
	AnswerTime                 int
	IsConnected                bool

	AnsweredQuestions    int
	ConsecutiveWrong     int
	LastAnswerWrong      bool
	FreeWrongAnswersUsed int
}

// PlayerResult is the persisted summary of one player's performance in a finished game session.
type PlayerResult struct {
	GameSessionID  string
	PlayerID       string
	UserID         string
	Username       string
	Character      string
	FinalScore     int
	CorrectAnswers int
	TotalQuestions int
	Accuracy       decimal.Decimal
	MaxMultiplier  int
	Rank           int
	CompletedAt    time.Time
}

// LevelUp is the outcome of an experience award.
type LevelUp struct {
	LevelUp  bool
	OldLevel int
	NewLevel int
}

// Leaderboard is a list of players and their scores, sorted by score in descending order.
type Leaderboard struct {
	GameSessionID string
	Entries       []LeaderboardEntry
}

type LeaderboardEntry struct {
	PlayerID       string `json:"playerId"`
	Username       string `json:"username"`
	Character      string `json:"character,omitempty"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
	Rank           int    `json:"rank"`
}

// HallOfFameEntry is the best final score of a registered player.
type HallOfFameEntry struct {
	Username string
	Score    int
	Rank     int
}

type User struct {
	UserID   string
	Username string
}

// GameSession is the durable record of a played game.
type GameSession struct {
	GameSessionID  string
	LobbyCode      string
	QuestionSetIDs []int64
	TotalQuestions int
	StartedAt      time.Time
	// EndedAt is nil while the game runs.
	EndedAt *time.Time
}

// Character is the progression of a registered user.
type Character struct {
	UserID     string
	Name       string
	Level      int
	Experience int
}
