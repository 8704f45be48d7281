package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/obstacle-panel/backend/internal/eventsource"
	"github.com/obstacle-panel/backend/internal/model"
)

const (
	defaultInterval = time.Second
	defaultWindow   = 200
)

// Aggregator reduces an event window to a DeviceView.
type Aggregator interface {
	Aggregate(events []model.EventRecord) model.DeviceView
}

// Recorder observes poll cycles and subscriber counts.
type Recorder interface {
	ObservePoll(duration time.Duration, view model.DeviceView)
	SetSubscribers(n int)
}

type Config struct {
	Interval time.Duration
	Window   int
	// FetchTimeout bounds a single fetch. Defaults to Interval.
	FetchTimeout time.Duration
}

// Poller fetches the newest event window on a fixed cadence and republishes
// the aggregated view to subscribers.
type Poller struct {
	source     eventsource.Source
	aggregator Aggregator
	cfg        Config
	refreshCh  chan struct{}
	recorder   Recorder
	logger     *slog.Logger

	mu     sync.RWMutex
	latest *model.DeviceView
	subs   map[int]chan model.DeviceView
	nextID int
}

func New(source eventsource.Source, agg Aggregator, cfg Config, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = cfg.Interval
	}
	return &Poller{
		source:     source,
		aggregator: agg,
		cfg:        cfg,
		refreshCh:  make(chan struct{}, 1),
		logger:     logger,
		subs:       make(map[int]chan model.DeviceView),
	}
}

// SetRecorder attaches metrics. Call before Run.
func (p *Poller) SetRecorder(r Recorder) {
	p.recorder = r
}

func (p *Poller) TriggerRefresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Run polls immediately and then every Interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if _, err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("poll failed", "err", err)
		}
		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.refreshCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// PollOnce fetches, aggregates and publishes one view. A result that arrives
// after ctx is cancelled is dropped.
func (p *Poller) PollOnce(ctx context.Context) (model.DeviceView, error) {
	startedAt := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	events, err := p.source.Fetch(fetchCtx, p.cfg.Window)
	cancel()
	if err != nil {
		return model.DeviceView{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.DeviceView{}, err
	}

	view := p.aggregator.Aggregate(events)
	p.publish(view)
	if p.recorder != nil {
		p.recorder.ObservePoll(time.Since(startedAt), view)
	}
	p.logger.Debug("poll completed", "events", view.EventCount, "obstacle_count", view.ObstacleCount)
	return view, nil
}

// Latest returns the most recently published view.
func (p *Poller) Latest() (model.DeviceView, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return model.DeviceView{}, false
	}
	return *p.latest, true
}

// Subscribe returns a channel that receives every published view and a func
// that ends the subscription. A subscriber that falls behind only sees the
// newest view.
func (p *Poller) Subscribe() (<-chan model.DeviceView, func()) {
	ch := make(chan model.DeviceView, 1)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	if p.latest != nil {
		ch <- *p.latest
	}
	p.reportSubscribersLocked()
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			close(ch)
			p.reportSubscribersLocked()
			p.mu.Unlock()
		})
	}
}

func (p *Poller) publish(view model.DeviceView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = &view
	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		ch <- view
	}
}

func (p *Poller) reportSubscribersLocked() {
	if p.recorder != nil {
		p.recorder.SetSubscribers(len(p.subs))
	}
}
