package commandapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Exporter notifies the remote backend that a report export was requested.
type Exporter struct {
	client *Client
	logger *slog.Logger
}

func NewExporter(client *Client, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{client: client, logger: logger}
}

// NormalizeFormat returns CSV or PDF, or ErrUnsupportedFormat.
func NormalizeFormat(format string) (string, error) {
	switch f := strings.ToUpper(strings.TrimSpace(format)); f {
	case "CSV", "PDF":
		return f, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// ExportRequest selects the report. From, To and Subject are optional filters
// forwarded as from, to and detalle.
type ExportRequest struct {
	Format  string
	From    string
	To      string
	Subject string
}

func (r ExportRequest) query() string {
	values := url.Values{"format": {r.Format}}
	if r.From != "" {
		values.Set("from", r.From)
	}
	if r.To != "" {
		values.Set("to", r.To)
	}
	if r.Subject != "" {
		values.Set("detalle", r.Subject)
	}
	return values.Encode()
}

// Trigger fires GET /export in the background. Only the format is validated
// synchronously; delivery failures are logged.
func (e *Exporter) Trigger(req ExportRequest) error {
	normalized, err := NormalizeFormat(req.Format)
	if err != nil {
		return err
	}
	req.Format = normalized
	go e.send(req)
	return nil
}

func (e *Exporter) send(req ExportRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*e.client.timeout)
	defer cancel()

	startedAt := time.Now()
	resp, err := e.client.do(ctx, http.MethodGet, "/export?"+req.query(), nil)
	if err != nil {
		e.logger.Warn("export notification failed", "format", req.Format, "err", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	e.logger.Info("export notification sent", "format", req.Format, "duration_ms", time.Since(startedAt).Milliseconds())
}
