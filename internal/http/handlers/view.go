package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
)

type streamMessage struct {
	Type      string    `json:"type"`
	View      any       `json:"view,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// View returns the latest aggregated DeviceView, polling once if none exists yet.
func (a *API) View(w http.ResponseWriter, r *http.Request) {
	if view, ok := a.poller.Latest(); ok {
		writeJSON(w, http.StatusOK, view)
		return
	}
	view, err := a.poller.PollOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "view_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ViewStream pushes every published DeviceView over a websocket.
func (a *API) ViewStream(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()

	views, unsubscribe := a.poller.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					a.logger.Debug("view stream client closed", "remote_addr", r.RemoteAddr, "err", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case view, ok := <-views:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(streamMessage{Type: "view", View: view, Timestamp: time.Now().UTC()}); err != nil {
				a.logger.Debug("view stream write failed", "remote_addr", r.RemoteAddr, "err", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

// Refresh triggers immediate poll cycle asynchronously.
func (a *API) Refresh(w http.ResponseWriter, _ *http.Request) {
	a.poller.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}
