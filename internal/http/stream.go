package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// origin policy is enforced by the CORS layer in front of the API
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamAuction sends the current projection, then every projection published after
// an accepted bid. Clients only listen; bids go through PlaceBid.
//
// The subscription is active before the initial projection is read, so a bid accepted
// in between shows up in one of the two. Frames never go back in version.
func (h *Handlers) StreamAuction(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := h.subscriber.Subscribe(ctx, id)
	if err != nil {
		writeError(w, r, h.logger, errors.Mark(err, domain.ErrBusy))
		return
	}

	initial, err := h.engine.GetAuction(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	first, _ := json.Marshal(initial)
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, first); err != nil {
		return
	}
	sent := initial.Version

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// read loop only notices the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-updates:
			if !ok {
				return
			}
			var v struct {
				Version int64 `json:"version"`
			}
			if err := json.Unmarshal(data, &v); err == nil {
				if v.Version <= sent {
					continue
				}
				sent = v.Version
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
