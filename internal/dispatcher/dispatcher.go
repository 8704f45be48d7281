package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/obstacle-panel/backend/internal/commandapi"
	"github.com/obstacle-panel/backend/internal/model"
)

const defaultTimeout = 5 * time.Second

// Sender submits a command to the remote command API.
type Sender interface {
	Send(ctx context.Context, cmd model.Command) error
}

// Cache is the subset of the snapshot cache the dispatcher mutates.
type Cache interface {
	Update(ctx context.Context, fn func(cur model.LocalSnapshot) (model.Partial, error)) (model.LocalSnapshot, model.LocalSnapshot, error)
}

// Mirror receives committed commands. Failures are logged only.
type Mirror interface {
	Publish(cmd model.Command) error
}

// Recorder observes dispatch outcomes.
type Recorder interface {
	ObserveDispatch(subject string, state model.DispatchState, duration time.Duration)
	SetBusy(n int)
}

type Option func(*Dispatcher)

func WithMirror(m Mirror) Option {
	return func(d *Dispatcher) { d.mirror = m }
}

func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithTimeout bounds each remote submission.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// Dispatcher applies commands optimistically to the snapshot cache, submits
// them, and commits or compensates depending on the outcome.
type Dispatcher struct {
	cache    Cache
	sender   Sender
	mirror   Mirror
	recorder Recorder
	ledCount int
	timeout  time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	busy map[string]struct{}

	mirrors sync.WaitGroup
}

func New(cache Cache, sender Sender, ledCount int, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if ledCount <= 0 {
		ledCount = model.DefaultLEDCount
	}
	d := &Dispatcher{
		cache:    cache,
		sender:   sender,
		ledCount: ledCount,
		timeout:  defaultTimeout,
		logger:   logger,
		busy:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// mutation describes the optimistic change for one command. revert is nil
// when a failure needs no compensating write.
type mutation struct {
	kind    model.CommandKind
	subject string
	apply   func(cur model.LocalSnapshot) (model.Partial, model.CommandAction)
	revert  func(prev, cur model.LocalSnapshot) model.Partial
}

// ToggleLED flips the LED at index.
func (d *Dispatcher) ToggleLED(ctx context.Context, index int) (model.Ack, error) {
	if err := d.checkIndex(index); err != nil {
		return model.Ack{}, err
	}
	return d.dispatch(ctx, d.ledMutation(index, func(cur bool) bool { return !cur }))
}

// SetLED drives the LED at index to on.
func (d *Dispatcher) SetLED(ctx context.Context, index int, on bool) (model.Ack, error) {
	if err := d.checkIndex(index); err != nil {
		return model.Ack{}, err
	}
	return d.dispatch(ctx, d.ledMutation(index, func(bool) bool { return on }))
}

// SetFoco drives the spotlight actuator.
func (d *Dispatcher) SetFoco(ctx context.Context, on bool) (model.Ack, error) {
	return d.dispatch(ctx, mutation{
		kind:    model.CommandMotor,
		subject: model.SubjectFoco,
		apply: func(model.LocalSnapshot) (model.Partial, model.CommandAction) {
			return model.Partial{Foco: &on}, model.ActionFor(on)
		},
		revert: func(prev, _ model.LocalSnapshot) model.Partial {
			restored := prev.Foco
			return model.Partial{Foco: &restored}
		},
	})
}

// ResetCounter zeroes the local counter and history, then asks the device to
// reset. A failed reset is not compensated; the next poll re-derives the count.
func (d *Dispatcher) ResetCounter(ctx context.Context) (model.Ack, error) {
	return d.dispatch(ctx, mutation{
		kind:    model.CommandSystem,
		subject: model.SubjectCounter,
		apply: func(model.LocalSnapshot) (model.Partial, model.CommandAction) {
			zero := 0
			empty := []model.HistoryPoint{}
			return model.Partial{ObstacleCount: &zero, History: &empty}, model.ActionReset
		},
	})
}

// ToggleSensor flips the simulated obstacle sensor locally. A newly blocked
// sensor counts one obstacle. Nothing is sent to the device.
func (d *Dispatcher) ToggleSensor(ctx context.Context) (model.LocalSnapshot, error) {
	if !d.acquire(model.SubjectSensor) {
		return model.LocalSnapshot{}, fmt.Errorf("%s: %w", model.SubjectSensor, ErrBusy)
	}
	defer d.release(model.SubjectSensor)

	_, next, err := d.cache.Update(ctx, func(cur model.LocalSnapshot) (model.Partial, error) {
		blocked := !cur.Sensor
		partial := model.Partial{Sensor: &blocked}
		if blocked {
			count := cur.ObstacleCount + 1
			partial.ObstacleCount = &count
		}
		return partial, nil
	})
	if err != nil {
		return model.LocalSnapshot{}, fmt.Errorf("toggle sensor: %w", err)
	}
	return next, nil
}

// Busy lists actuator subjects with a dispatch in flight, sorted.
func (d *Dispatcher) Busy() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.busy))
	for subject := range d.busy {
		out = append(out, subject)
	}
	slices.Sort(out)
	return out
}

func (d *Dispatcher) checkIndex(index int) error {
	if index < 0 || index >= d.ledCount {
		return &ActuatorError{Index: index, Count: d.ledCount}
	}
	return nil
}

func (d *Dispatcher) ledMutation(index int, target func(cur bool) bool) mutation {
	return mutation{
		kind:    model.CommandLED,
		subject: model.LEDSubject(index),
		apply: func(cur model.LocalSnapshot) (model.Partial, model.CommandAction) {
			leds := fitLEDs(cur.LEDs, d.ledCount)
			leds[index] = target(leds[index])
			return model.Partial{LEDs: &leds}, model.ActionFor(leds[index])
		},
		revert: func(prev, cur model.LocalSnapshot) model.Partial {
			leds := fitLEDs(cur.LEDs, d.ledCount)
			leds[index] = fitLEDs(prev.LEDs, d.ledCount)[index]
			return model.Partial{LEDs: &leds}
		},
	}
}

// fitLEDs copies leds padded or truncated to n entries.
func fitLEDs(leds []bool, n int) []bool {
	out := make([]bool, n)
	copy(out, leds)
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, m mutation) (model.Ack, error) {
	if !d.acquire(m.subject) {
		return model.Ack{Subject: m.subject, State: model.StateIdle}, fmt.Errorf("%s: %w", m.subject, ErrBusy)
	}
	defer d.release(m.subject)

	startedAt := time.Now()
	f := newFlight()
	prev, optimistic, err := d.cache.Update(ctx, func(cur model.LocalSnapshot) (model.Partial, error) {
		partial, action := m.apply(cur)
		f.cmd = model.NewCommand(m.kind, m.subject, action)
		return partial, nil
	})
	if err != nil {
		return model.Ack{Subject: m.subject, State: model.StateIdle}, fmt.Errorf("optimistic write %s: %w", m.subject, err)
	}
	f.advance(model.StateOptimistic)

	// The outcome must reach the cache even if the caller has gone away.
	bg := context.WithoutCancel(ctx)
	callCtx, cancel := context.WithTimeout(bg, d.timeout)
	sendErr := d.sender.Send(callCtx, f.cmd)
	cancel()

	ack := model.Ack{CommandID: f.cmd.ID, Subject: m.subject, Snapshot: optimistic}
	var result error
	switch {
	case sendErr == nil:
		f.advance(model.StateCommitted)
		d.mirrorAsync(f.cmd)
	case errors.Is(sendErr, commandapi.ErrUnauthorized):
		f.advance(model.StateAuthRequired)
		ack.Inconsistent = true
		result = &DispatchError{CommandID: f.cmd.ID, Subject: m.subject, State: f.state, Err: fmt.Errorf("%w: %w", ErrAuthRequired, sendErr)}
		d.logger.Warn("command rejected as unauthenticated, optimistic state kept", "subject", m.subject, "command_id", f.cmd.ID)
	default:
		f.advance(model.StateRolledBack)
		result = &DispatchError{CommandID: f.cmd.ID, Subject: m.subject, State: f.state, Err: sendErr}
		if m.revert == nil {
			ack.Inconsistent = true
			d.logger.Warn("command failed, local state left until next poll", "subject", m.subject, "command_id", f.cmd.ID, "err", sendErr)
			break
		}
		_, restored, err := d.cache.Update(bg, func(cur model.LocalSnapshot) (model.Partial, error) {
			return m.revert(prev, cur), nil
		})
		if err != nil {
			ack.Inconsistent = true
			d.logger.Error("rollback write failed", "subject", m.subject, "command_id", f.cmd.ID, "err", err)
			result = errors.Join(result, fmt.Errorf("rollback %s: %w", m.subject, err))
			break
		}
		ack.Snapshot = restored
		d.logger.Warn("command failed, rolled back", "subject", m.subject, "command_id", f.cmd.ID, "err", sendErr)
	}

	ack.State = f.state
	if d.recorder != nil {
		d.recorder.ObserveDispatch(m.subject, f.state, time.Since(startedAt))
	}
	return ack, result
}

// mirrorAsync publishes a committed command without holding the actuator
// busy or delaying the caller on a slow broker.
func (d *Dispatcher) mirrorAsync(cmd model.Command) {
	if d.mirror == nil {
		return
	}
	d.mirrors.Add(1)
	go func() {
		defer d.mirrors.Done()
		if err := d.mirror.Publish(cmd); err != nil {
			d.logger.Warn("command mirror failed", "subject", cmd.Subject, "command_id", cmd.ID, "err", err)
		}
	}()
}

// Wait blocks until pending mirror publishes have finished.
func (d *Dispatcher) Wait() {
	d.mirrors.Wait()
}

func (d *Dispatcher) acquire(subject string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.busy[subject]; ok {
		return false
	}
	d.busy[subject] = struct{}{}
	d.reportBusyLocked()
	return true
}

func (d *Dispatcher) release(subject string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.busy, subject)
	d.reportBusyLocked()
}

func (d *Dispatcher) reportBusyLocked() {
	if d.recorder != nil {
		d.recorder.SetBusy(len(d.busy))
	}
}
