package domain

// Domain events published on the in-process bus.
const (
	EventNameGameEnded   = "game.ended"
	EventNameAnswerScore = "answer.scored"
)

type EventGameEnded struct {
	LobbyCode     string
	GameSessionID string
	Results       []PlayerResult
}

func (EventGameEnded) Name() string { return EventNameGameEnded }

// EventAnswerScored carries the running score of a player after an answer.
type EventAnswerScored struct {
	LobbyCode     string
	GameSessionID string
	PlayerID      string
	Username      string
	IsCorrect     bool
	PointsEarned  int
	TotalScore    int
}

func (EventAnswerScored) Name() string { return EventNameAnswerScore }

// Room events broadcast to every client in a lobby.
const (
	RoomEventQuestionStarted = "question-started"
	RoomEventTimeUpdate      = "time-update"
	RoomEventAnswerReceived  = "answer-received"
	RoomEventQuestionEnded   = "question-ended"
	RoomEventGameEnded       = "game-ended"
	RoomEventPlayerLevelUp   = "player-level-up"
	RoomEventPlayerLeft      = "player-disconnected"
)

type RoomQuestionStarted struct {
	Question      PublicQuestion `json:"question"`
	QuestionIndex int            `json:"index"`
	Total         int            `json:"total"`
	TimeRemaining int            `json:"timeRemaining"`
}

func (RoomQuestionStarted) Name() string { return RoomEventQuestionStarted }

type RoomTimeUpdate struct {
	TimeRemaining int `json:"timeRemaining"`
}

func (RoomTimeUpdate) Name() string { return RoomEventTimeUpdate }

type RoomAnswerReceived struct {
	PlayerID    string `json:"playerId"`
	HasAnswered bool   `json:"hasAnswered"`
	IsCorrect   *bool  `json:"isCorrect,omitempty"`
}

func (RoomAnswerReceived) Name() string { return RoomEventAnswerReceived }

type RoomQuestionEnded struct {
	QuestionIndex int                    `json:"questionIndex"`
	CorrectAnswer string                 `json:"correctAnswer"`
	Results       []QuestionPlayerResult `json:"results"`
	Standings     []LeaderboardEntry     `json:"standings"`
}

func (RoomQuestionEnded) Name() string { return RoomEventQuestionEnded }

type QuestionPlayerResult struct {
	PlayerID    string `json:"playerId"`
	Username    string `json:"username"`
	HasAnswered bool   `json:"hasAnswered"`
	Answer      string `json:"answer,omitempty"`
	IsCorrect   bool   `json:"isCorrect"`
	Score       int    `json:"score"`
	Multiplier  int    `json:"multiplier"`
	Streak      int    `json:"streak"`
}

type RoomGameEnded struct {
	FinalScores []LeaderboardEntry `json:"finalScores"`
	Winner      *LeaderboardEntry  `json:"winner,omitempty"`
}

func (RoomGameEnded) Name() string { return RoomEventGameEnded }

type RoomPlayerLevelUp struct {
	PlayerID string `json:"playerId"`
	OldLevel int    `json:"oldLevel"`
	NewLevel int    `json:"newLevel"`
}

func (RoomPlayerLevelUp) Name() string { return RoomEventPlayerLevelUp }

type RoomPlayerDisconnected struct {
	PlayerID string `json:"playerId"`
}

func (RoomPlayerDisconnected) Name() string { return RoomEventPlayerLeft }
