package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// writeLoop is the only writer of conn. It forwards room events and replies
// until send is closed.
func writeLoop(ctx context.Context, conn *websocket.Conn, room <-chan *redis.Message, send <-chan []byte) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	write := func(typ int, b []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(typ, b); err != nil {
			slog.DebugContext(ctx, "api: write websocket failed", "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case b, ok := <-send:
			if !ok {
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if !write(websocket.TextMessage, b) {
				abort(conn, send)
				return
			}

		case m, ok := <-room:
			if !ok {
				room = nil
				continue
			}
			if !write(websocket.TextMessage, []byte(m.Payload)) {
				abort(conn, send)
				return
			}

		case <-ping.C:
			if !write(websocket.PingMessage, nil) {
				abort(conn, send)
				return
			}
		}
	}
}

// abort closes a broken connection, which stops the reader, and discards
// replies until the reader closes send.
func abort(conn *websocket.Conn, send <-chan []byte) {
	_ = conn.Close()
	for range send {
	}
}
