package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizarena/internal/api"
	"github.com/victornm/quizarena/internal/broadcast"
	"github.com/victornm/quizarena/internal/domain"
)

func TestAPI_ServeRoom(t *testing.T) {
	ctx := context.Background()
	f := newFakeGame()
	pub, srv := makeRoomServer(t, f)

	conn := dial(t, srv, "/ws/lobbies/ABC123?playerId=p1")
	require.Eventually(t, func() bool {
		return slices.Contains(f.Calls(), "connected ABC123 p1 true")
	}, time.Second, 5*time.Millisecond, "joining should reconnect the player")

	// Room events reach the socket.
	require.NoError(t, pub.Broadcast(ctx, "ABC123", domain.RoomTimeUpdate{TimeRemaining: 5}))
	msg := read(t, conn)
	assert.Equal(t, domain.RoomEventTimeUpdate, msg.Event)
	assert.JSONEq(t, `{"timeRemaining":5}`, string(msg.Data))

	// Events of other lobbies do not.
	require.NoError(t, pub.Broadcast(ctx, "OTHER1", domain.RoomTimeUpdate{TimeRemaining: 1}))

	require.NoError(t, conn.WriteJSON(api.Message{Event: api.ClientEventSubmitAnswer, Data: json.RawMessage(`{"answer":"A"}`)}))
	msg = read(t, conn)
	assert.Equal(t, api.ClientEventAnswerResult, msg.Event)
	assert.JSONEq(t, `{"timeElapsed":10,"multiplier":1,"isCorrect":true,"pointsEarned":50,"newMultiplier":1,"streakCount":1,"bonusPoints":0}`, string(msg.Data))
	assert.Contains(t, f.Calls(), "answer ABC123 p1 A")

	require.NoError(t, conn.WriteJSON(api.Message{Event: "dance"}))
	msg = read(t, conn)
	assert.Equal(t, api.ClientEventError, msg.Event)
	assert.Contains(t, string(msg.Data), "unknown event")

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()
	require.Eventually(t, func() bool {
		return slices.Contains(f.Calls(), "connected ABC123 p1 false")
	}, time.Second, 5*time.Millisecond, "leaving should disconnect the player")
}

func TestAPI_ServeRoom_RequiresPlayer(t *testing.T) {
	_, srv := makeRoomServer(t, newFakeGame())

	resp, err := http.Get(srv.URL + "/ws/lobbies/ABC123")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func makeRoomServer(t *testing.T, g api.Game) (*broadcast.Publisher, *httptest.Server) {
	t.Helper()

	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{miniredis.RunT(t).Addr()},
	})
	t.Cleanup(func() { _ = rc.Close() })

	pub := broadcast.NewPublisher(broadcast.Config{Redis: rc, Prefix: "test"})

	e := gin.New()
	api.New(api.Config{
		HTTP:  e,
		Game:  g,
		Rooms: pub,
	})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return pub, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func read(t *testing.T, conn *websocket.Conn) api.Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg api.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}
