package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/obstacle-panel/backend/internal/commandapi"
	"github.com/obstacle-panel/backend/internal/model"
)

// Poller exposes aggregated views and on-demand refresh.
type Poller interface {
	TriggerRefresh()
	Latest() (model.DeviceView, bool)
	PollOnce(ctx context.Context) (model.DeviceView, error)
	Subscribe() (<-chan model.DeviceView, func())
}

// Dispatcher applies actuator commands optimistically.
type Dispatcher interface {
	ToggleLED(ctx context.Context, index int) (model.Ack, error)
	SetLED(ctx context.Context, index int, on bool) (model.Ack, error)
	SetFoco(ctx context.Context, on bool) (model.Ack, error)
	ResetCounter(ctx context.Context) (model.Ack, error)
	ToggleSensor(ctx context.Context) (model.LocalSnapshot, error)
	Busy() []string
}

// Snapshots reads and resets the local snapshot cache.
type Snapshots interface {
	Read(ctx context.Context) (model.LocalSnapshot, error)
	Reset(ctx context.Context) (model.LocalSnapshot, error)
}

// Exporter fires report export notifications.
type Exporter interface {
	Trigger(req commandapi.ExportRequest) error
}

// API groups HTTP handlers and dependencies.
type API struct {
	poller     Poller
	dispatcher Dispatcher
	snapshots  Snapshots
	exporter   Exporter
	logger     *slog.Logger
	staticDir  string
	upgrader   websocket.Upgrader
}

// New creates HTTP handlers with explicit dependencies.
func New(
	poller Poller,
	dispatcher Dispatcher,
	snapshots Snapshots,
	exporter Exporter,
	logger *slog.Logger,
	staticDir string,
) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		poller:     poller,
		dispatcher: dispatcher,
		snapshots:  snapshots,
		exporter:   exporter,
		logger:     logger,
		staticDir:  staticDir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Logger returns request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// Health reports service liveness and whether a view has been aggregated yet.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	_, polled := a.poller.Latest()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "polled": polled})
}

// Static serves frontend assets and SPA fallback.
func (a *API) Static(w http.ResponseWriter, r *http.Request) {
	if a.staticDir == "" {
		writeError(w, http.StatusNotFound, "frontend_missing", "Frontend dist not found")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		path = "index.html"
	}
	cleanPath := strings.TrimPrefix(filepath.Clean("/"+path), "/")
	fullPath := filepath.Join(a.staticDir, cleanPath)
	if info, err := os.Stat(fullPath); err == nil && !info.IsDir() {
		http.ServeFile(w, r, fullPath)
		return
	}
	index := filepath.Join(a.staticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		writeError(w, http.StatusNotFound, "frontend_missing", "Frontend dist not found")
		return
	}
	http.ServeFile(w, r, index)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
