package commandapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/obstacle-panel/backend/internal/model"
)

func TestSendPostsCommand(t *testing.T) {
	var got commandRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/commands" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	cmd := model.NewCommand(model.CommandLED, "LED2", model.ActionOn)
	client := NewClient(srv.URL+"/", "secret", time.Second)
	if err := client.Send(context.Background(), cmd); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if got.Type != "LED" || got.Subject != "LED2" || got.Action != "ON" || got.Origin != "WEB" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if got.ID != cmd.ID.String() {
		t.Fatalf("expected command id %s, got %s", cmd.ID, got.ID)
	}
}

func TestSendMapsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "", time.Second).Send(context.Background(), model.NewCommand(model.CommandLED, "LED1", model.ActionOff))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSendMapsOtherStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "", time.Second).Send(context.Background(), model.NewCommand(model.CommandLED, "LED1", model.ActionOff))
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.Status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", statusErr.Status)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatalf("generic failure must not look like an auth failure")
	}
}

func TestSendTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	started := time.Now()
	err := NewClient(srv.URL, "", 50*time.Millisecond).Send(context.Background(), model.NewCommand(model.CommandLED, "LED1", model.ActionOn))
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if time.Since(started) > 2*time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestExporterTriggersInBackground(t *testing.T) {
	queries := make(chan url.Values, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/export" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		queries <- r.URL.Query()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exporter := NewExporter(NewClient(srv.URL, "", time.Second), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := exporter.Trigger(ExportRequest{Format: "csv", Subject: "LED1"}); err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	select {
	case got := <-queries:
		if got.Get("format") != "CSV" || got.Get("detalle") != "LED1" {
			t.Fatalf("unexpected query %v", got)
		}
		if got.Has("from") {
			t.Fatalf("empty filters must be omitted, got %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("export notification never arrived")
	}
}

func TestExporterRejectsUnknownFormat(t *testing.T) {
	exporter := NewExporter(NewClient("http://127.0.0.1:0", "", time.Second), nil)
	if err := exporter.Trigger(ExportRequest{Format: "xlsx"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExporterFailureDoesNotBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exporter := NewExporter(NewClient(srv.URL, "", time.Second), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := exporter.Trigger(ExportRequest{Format: "PDF"}); err != nil {
		t.Fatalf("expected failures to stay in the background, got %v", err)
	}
}

func TestFormatTopic(t *testing.T) {
	if got := formatTopic("devices/{subject}/command", "LED3"); got != "devices/led3/command" {
		t.Fatalf("formatTopic() = %q", got)
	}
	if got := formatTopic("devices/commands", "LED3"); got != "devices/commands" {
		t.Fatalf("formatTopic() without placeholder = %q", got)
	}
}
