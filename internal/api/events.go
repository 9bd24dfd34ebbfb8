package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/murmur/internal/voicequeue"
)

// eventWriteTimeout bounds a single status frame write.
const eventWriteTimeout = 5 * time.Second

// handleEvents upgrades to a websocket and streams a [voicequeue.Status] frame
// on connect and after every change. Client frames are ignored. The stream
// ends when the client disconnects or the queue shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		slog.Debug("api: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	updates, unsubscribe := s.queue.Subscribe()
	defer unsubscribe()

	// CloseRead discards client frames and cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if err := writeStatus(ctx, conn, s.queue.Status()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := writeStatus(ctx, conn, st); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("api: websocket write failed", "err", err)
				}
				return
			}
		}
	}
}

func writeStatus(ctx context.Context, conn *websocket.Conn, st voicequeue.Status) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, st)
}
