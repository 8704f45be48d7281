package eventsource

import (
	"context"
	"log/slog"

	"github.com/obstacle-panel/backend/internal/model"
)

// Source reads the newest entries of the device event log.
type Source interface {
	Fetch(ctx context.Context, limit int) ([]model.EventRecord, error)
}

type fallback struct {
	source    Source
	logger    *slog.Logger
	onFailure func(error)
}

type Option func(*fallback)

// WithFailureHook registers fn to be called for every swallowed failure.
func WithFailureHook(fn func(error)) Option {
	return func(f *fallback) {
		f.onFailure = fn
	}
}

// Fallback wraps source so that any failure yields an empty log instead of an
// error. The dashboard then renders the empty-log view until the next poll.
func Fallback(source Source, logger *slog.Logger, opts ...Option) Source {
	if logger == nil {
		logger = slog.Default()
	}
	f := &fallback{source: source, logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *fallback) Fetch(ctx context.Context, limit int) ([]model.EventRecord, error) {
	events, err := f.source.Fetch(ctx, limit)
	if err != nil {
		if ctx.Err() == nil {
			f.logger.Warn("event fetch failed, using empty log", "err", err)
		}
		if f.onFailure != nil {
			f.onFailure(err)
		}
		return []model.EventRecord{}, nil
	}
	if events == nil {
		events = []model.EventRecord{}
	}
	return events, nil
}
