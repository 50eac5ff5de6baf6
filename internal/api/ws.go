package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/victornm/quizarena/internal/errors"
	"github.com/victornm/quizarena/internal/game"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
	sendBuffer = 64
)

// Client messages.
const (
	ClientEventSubmitAnswer = "submit-answer"
	ClientEventAnswerResult = "answer-result"
	ClientEventError        = "error"
)

// Message is the envelope of every websocket frame, in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type submitAnswerData struct {
	Answer string `json:"answer"`
}

// ServeRoom upgrades the request to a websocket bound to one player of a lobby.
// The client receives every room event of the lobby and may submit answers.
// Closing the socket marks the player disconnected.
func (a *API) ServeRoom(c *gin.Context) {
	code, playerID := c.Param("code"), c.Query("playerId")
	if playerID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": errors.Newf(errors.CodeInvalidArgument, "playerId is required"),
		})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())

	sub, err := a.rooms.Subscribe(ctx, code)
	if err != nil {
		slog.ErrorContext(ctx, "api: subscribe room failed", "lobby", code, "error", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": errors.New(errors.CodeUnavailable, errors.WithCause(err)),
		})
		return
	}
	defer sub.Close()

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader already answered the client.
		slog.WarnContext(ctx, "api: websocket upgrade failed", "lobby", code, "error", err)
		return
	}

	slog.InfoContext(ctx, "api: player joined room", "lobby", code, "player_id", playerID)
	a.setConnected(ctx, code, playerID, true)
	defer a.setConnected(ctx, code, playerID, false)

	send := make(chan []byte, sendBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		writeLoop(ctx, conn, sub.Channel(), send)
	}()

	a.readLoop(ctx, conn, code, playerID, send)

	close(send)
	<-done
	_ = conn.Close()
	slog.InfoContext(ctx, "api: player left room", "lobby", code, "player_id", playerID)
}

func (a *API) setConnected(ctx context.Context, code, playerID string, connected bool) {
	if !a.game.IsGameActive(code) {
		return
	}

	var err error
	if connected {
		err = a.game.HandlePlayerReconnect(ctx, code, playerID)
	} else {
		err = a.game.HandlePlayerDisconnect(ctx, code, playerID)
	}
	if err != nil && !stderrors.Is(err, game.ErrGameNotActive) {
		slog.WarnContext(ctx, "api: update player connection failed",
			"lobby", code,
			"player_id", playerID,
			"connected", connected,
			"error", err,
		)
	}
}

func (a *API) readLoop(ctx context.Context, conn *websocket.Conn, code, playerID string, send chan<- []byte) {
	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.WarnContext(ctx, "api: read websocket failed", "lobby", code, "player_id", playerID, "error", err)
			}
			return
		}

		reply := a.handleMessage(ctx, code, playerID, msg)
		b, err := json.Marshal(reply)
		if err != nil {
			slog.ErrorContext(ctx, "api: marshal reply failed", "event", reply.Event, "error", err)
			continue
		}

		select {
		case send <- b:
		default:
			slog.WarnContext(ctx, "api: client too slow, reply dropped", "lobby", code, "player_id", playerID)
		}
	}
}

func (a *API) handleMessage(ctx context.Context, code, playerID string, msg Message) Message {
	switch msg.Event {
	case ClientEventSubmitAnswer:
		var d submitAnswerData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return errorMessage(errors.Newf(errors.CodeInvalidArgument, "invalid %s data: %v", msg.Event, err))
		}

		calc, err := a.game.SubmitAnswer(ctx, code, playerID, d.Answer)
		if err != nil {
			return errorMessage(err)
		}

		b, _ := json.Marshal(toCalculationView(calc))
		return Message{Event: ClientEventAnswerResult, Data: b}

	default:
		return errorMessage(errors.Newf(errors.CodeInvalidArgument, "unknown event %q", msg.Event))
	}
}

func errorMessage(err error) Message {
	b, _ := json.Marshal(errors.Convert(err))
	return Message{Event: ClientEventError, Data: b}
}
