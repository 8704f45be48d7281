package eventsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/obstacle-panel/backend/internal/model"
)

const (
	defaultTimeout = 5 * time.Second
	// defaultMaxBody caps the events response; a 200-event window is a few tens of KiB.
	defaultMaxBody = 4 << 20
)

// HTTPSource reads GET {base}/events?limit=N from the device backend.
type HTTPSource struct {
	baseURL string
	token   string
	http    *http.Client
	maxBody int64
	logger  *slog.Logger
}

func NewHTTPSource(baseURL, token string, timeout time.Duration, logger *slog.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		baseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: timeout},
		maxBody: defaultMaxBody,
		logger:  logger,
	}
}

type eventsEnvelope struct {
	Events []json.RawMessage `json:"events"`
}

func (s *HTTPSource) Fetch(ctx context.Context, limit int) ([]model.EventRecord, error) {
	endpoint := s.baseURL + "/events"
	if limit > 0 {
		endpoint += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("events fetch status %d: %s", resp.StatusCode, string(body))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	if int64(len(body)) > s.maxBody {
		return nil, fmt.Errorf("events response exceeds %d bytes", s.maxBody)
	}
	events, rejected, err := decodeEvents(body)
	if err != nil {
		return nil, err
	}
	if len(rejected) > 0 {
		s.logger.Warn("skipping malformed events", "skipped", len(rejected), "kept", len(events), "err", rejected[0])
	}
	return events, nil
}

// decodeEvents accepts a bare array or an {"events": [...]} envelope. Any
// other JSON shape is treated as an empty log. Records that fail to decode are
// left out and reported in rejected; only a broken container is an error.
func decodeEvents(body []byte) (events []model.EventRecord, rejected []error, err error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []model.EventRecord{}, nil, nil
	}
	var raws []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, nil, fmt.Errorf("decode events: %w", err)
		}
	case '{':
		var envelope eventsEnvelope
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, nil, fmt.Errorf("decode events: %w", err)
		}
		raws = envelope.Events
	default:
		return []model.EventRecord{}, nil, nil
	}

	events = make([]model.EventRecord, 0, len(raws))
	for i, raw := range raws {
		var ev model.EventRecord
		if err := json.Unmarshal(raw, &ev); err != nil {
			rejected = append(rejected, fmt.Errorf("event %d: %w", i, err))
			continue
		}
		events = append(events, ev)
	}
	return events, rejected, nil
}
