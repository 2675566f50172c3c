package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// writeTimeout bounds a single event write to one WebSocket client. A client
// that cannot keep up is disconnected rather than allowed to stall the feed.
const writeTimeout = 5 * time.Second

// handleEvents upgrades to a WebSocket and streams engine events until the
// client disconnects. Events missed while the subscriber buffer is full are
// dropped, matching the bus's best-effort delivery.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logRequestError(s.log, r, err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "event stream terminated")

	ch, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	// Reads are discarded; their only purpose is surfacing client closes.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "event bus closed")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.log.Debug("event stream write failed", "error", err)
				}
				return
			}
		}
	}
}
