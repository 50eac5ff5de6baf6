package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizarena/internal/domain"
	"github.com/victornm/quizarena/internal/errors"
	"github.com/victornm/quizarena/internal/leaderboard"
	"github.com/victornm/quizarena/internal/score"
)

// Game is the game coordinator as seen by the transport.
type Game interface {
	StartGameSession(ctx context.Context, lobbyCode, requesterID string) (*domain.GameState, error)
	StartNextQuestion(ctx context.Context, lobbyCode string) error
	SubmitAnswer(ctx context.Context, lobbyCode, playerID, answer string) (*score.Calculation, error)
	EndCurrentQuestion(ctx context.Context, lobbyCode string) error
	EndGameSession(ctx context.Context, lobbyCode string) error
	HandlePlayerDisconnect(ctx context.Context, lobbyCode, playerID string) error
	HandlePlayerReconnect(ctx context.Context, lobbyCode, playerID string) error
	GetGameState(lobbyCode string) (*domain.GameState, bool)
	IsGameActive(lobbyCode string) bool
	GetActiveGames() map[string]*domain.GameState
}

type Sessions interface {
	GetGameSession(ctx context.Context, gameSessionID string) (*domain.GameSession, error)
}

type ResultLister interface {
	ListResults(ctx context.Context, req score.ListResultsRequest) ([]domain.PlayerResult, error)
}

type LeaderboardReader interface {
	GetLeaderboard(ctx context.Context, req leaderboard.GetLeaderboardRequest) (*domain.Leaderboard, error)
	GetHallOfFame(ctx context.Context, req leaderboard.GetHallOfFameRequest) ([]domain.HallOfFameEntry, error)
}

type Characters interface {
	GetCharacter(ctx context.Context, userID string) (*domain.Character, error)
}

// Rooms subscribes to the broadcast channel of a lobby.
type Rooms interface {
	Subscribe(ctx context.Context, lobbyCode string) (*redis.PubSub, error)
}

type Config struct {
	HTTP        gin.IRouter
	Game        Game
	Sessions    Sessions
	Results     ResultLister
	Leaderboard LeaderboardReader
	Characters  Characters
	Rooms       Rooms
	// CheckOrigin decides which websocket origins are accepted. Defaults to same origin.
	CheckOrigin func(r *http.Request) bool
}

type API struct {
	game  Game
	ss    Sessions
	rs    ResultLister
	ls    LeaderboardReader
	cs    Characters
	rooms Rooms

	upgrader websocket.Upgrader
}

func New(c Config) *API {
	a := &API{
		game:  c.Game,
		ss:    c.Sessions,
		rs:    c.Results,
		ls:    c.Leaderboard,
		cs:    c.Characters,
		rooms: c.Rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     c.CheckOrigin,
		},
	}

	v1 := c.HTTP.Group("/api/v1")
	{
		lobby := v1.Group("/lobbies/:code")
		lobby.POST("/game", handle(a.StartGame))
		lobby.GET("/game", handle(a.GetGameState))
		lobby.DELETE("/game", handle(a.EndGame))
		lobby.POST("/game/questions/next", handle(a.NextQuestion))
		lobby.POST("/game/questions/current/end", handle(a.EndQuestion))
		lobby.POST("/game/answers", handle(a.SubmitAnswer))
		lobby.POST("/players/:player/disconnect", handle(a.Disconnect))
		lobby.POST("/players/:player/reconnect", handle(a.Reconnect))

		v1.GET("/games", handle(a.ListActiveGames))
		v1.GET("/sessions/:session/results", handle(a.ListResults))
		v1.GET("/sessions/:session/leaderboard", handle(a.GetLeaderboard))
		v1.GET("/hall-of-fame", handle(a.GetHallOfFame))
		v1.GET("/characters/:user", handle(a.GetCharacter))
	}

	c.HTTP.GET("/ws/lobbies/:code", a.ServeRoom)

	return a
}

type StartGameRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
}

// StartGame starts the game of a lobby and opens its first question.
func (a *API) StartGame(c *gin.Context) error {
	var req StartGameRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	code := c.Param("code")
	if _, err := a.game.StartGameSession(c.Request.Context(), code, req.PlayerID); err != nil {
		return err
	}
	if err := a.game.StartNextQuestion(c.Request.Context(), code); err != nil {
		return err
	}

	st, ok := a.game.GetGameState(code)
	if !ok {
		// Every player may already have left.
		c.Status(http.StatusNoContent)
		return nil
	}

	c.JSON(http.StatusCreated, toGameStateView(st))
	return nil
}

func (a *API) GetGameState(c *gin.Context) error {
	st, ok := a.game.GetGameState(c.Param("code"))
	if !ok {
		return errors.Newf(errors.CodeNotFound, "no active game: lobby=%s", c.Param("code"))
	}

	c.JSON(http.StatusOK, toGameStateView(st))
	return nil
}

func (a *API) EndGame(c *gin.Context) error {
	if err := a.game.EndGameSession(c.Request.Context(), c.Param("code")); err != nil {
		return err
	}

	c.Status(http.StatusNoContent)
	return nil
}

func (a *API) NextQuestion(c *gin.Context) error {
	if err := a.game.StartNextQuestion(c.Request.Context(), c.Param("code")); err != nil {
		return err
	}

	c.Status(http.StatusNoContent)
	return nil
}

func (a *API) EndQuestion(c *gin.Context) error {
	if err := a.game.EndCurrentQuestion(c.Request.Context(), c.Param("code")); err != nil {
		return err
	}

	c.Status(http.StatusNoContent)
	return nil
}

type SubmitAnswerRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
	Answer   string `json:"answer"`
}

func (a *API) SubmitAnswer(c *gin.Context) error {
	var req SubmitAnswerRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	calc, err := a.game.SubmitAnswer(c.Request.Context(), c.Param("code"), req.PlayerID, req.Answer)
	if err != nil {
		return err
	}

	c.JSON(http.StatusOK, toCalculationView(calc))
	return nil
}

func (a *API) Disconnect(c *gin.Context) error {
	if err := a.game.HandlePlayerDisconnect(c.Request.Context(), c.Param("code"), c.Param("player")); err != nil {
		return err
	}

	c.Status(http.StatusNoContent)
	return nil
}

func (a *API) Reconnect(c *gin.Context) error {
	if err := a.game.HandlePlayerReconnect(c.Request.Context(), c.Param("code"), c.Param("player")); err != nil {
		return err
	}

	c.Status(http.StatusNoContent)
	return nil
}

func (a *API) ListActiveGames(c *gin.Context) error {
	games := a.game.GetActiveGames()

	resp := ActiveGames{Games: make([]GameSummary, 0, len(games))}
	for _, st := range games {
		resp.Games = append(resp.Games, toGameSummary(st))
	}
	sortSummaries(resp.Games)

	c.JSON(http.StatusOK, resp)
	return nil
}

// ListResults returns the stored results of a session. Sessions whose record
// could not be written at start still list their results.
func (a *API) ListResults(c *gin.Context) error {
	id := c.Param("session")

	ss, err := a.ss.GetGameSession(c.Request.Context(), id)
	if err != nil && errors.Convert(err).Code != errors.CodeNotFound {
		return err
	}

	results, err := a.rs.ListResults(c.Request.Context(), score.ListResultsRequest{
		GameSessionID: id,
	})
	if err != nil {
		return err
	}
	if ss == nil && len(results) == 0 {
		return errors.Newf(errors.CodeNotFound, "no results: session=%s", id)
	}

	resp := Results{GameSessionID: id, Results: make([]PlayerResult, 0, len(results))}
	if ss != nil {
		resp.LobbyCode = ss.LobbyCode
		resp.TotalQuestions = ss.TotalQuestions
		resp.StartedAt = &ss.StartedAt
		resp.EndedAt = ss.EndedAt
	}
	for _, r := range results {
		resp.Results = append(resp.Results, toPlayerResult(r))
	}

	c.JSON(http.StatusOK, resp)
	return nil
}

func (a *API) GetLeaderboard(c *gin.Context) error {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		GameSessionID: c.Param("session"),
	})
	if err != nil {
		return err
	}

	c.JSON(http.StatusOK, Leaderboard{
		GameSessionID: l.GameSessionID,
		Entries:       l.Entries,
	})
	return nil
}

func (a *API) GetHallOfFame(c *gin.Context) error {
	var limit int
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return errors.Newf(errors.CodeInvalidArgument, "invalid limit: %q", s)
		}
		limit = n
	}

	entries, err := a.ls.GetHallOfFame(c.Request.Context(), leaderboard.GetHallOfFameRequest{Limit: limit})
	if err != nil {
		return err
	}

	resp := HallOfFame{Entries: make([]HallOfFameEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, HallOfFameEntry(e))
	}

	c.JSON(http.StatusOK, resp)
	return nil
}

func (a *API) GetCharacter(c *gin.Context) error {
	ch, err := a.cs.GetCharacter(c.Request.Context(), c.Param("user"))
	if err != nil {
		return err
	}

	c.JSON(http.StatusOK, toCharacterView(ch))
	return nil
}

// handle writes the error a handler returns as {"error": {"code", "message"}}
// with the matching HTTP status.
func handle(h func(c *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h(c)
		if err == nil {
			return
		}

		e := errors.Convert(err)
		if e.Code == errors.CodeInternal {
			slog.ErrorContext(c.Request.Context(), "api: request failed",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"error", err,
			)
		}

		c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
	}
}

func bind(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body: %v", err),
			errors.WithCause(err))
	}
	return nil
}
