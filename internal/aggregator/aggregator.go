package aggregator

import (
	"sort"
	"time"

	"github.com/obstacle-panel/backend/internal/model"
)

// DefaultLEDCount matches the four LED subjects the device reports.
const DefaultLEDCount = 4

type Aggregator struct {
	ledSubjects []string
	now         func() time.Time
}

func New(ledCount int) *Aggregator {
	if ledCount <= 0 {
		ledCount = DefaultLEDCount
	}
	subjects := make([]string, ledCount)
	for i := range subjects {
		subjects[i] = model.LEDSubject(i)
	}
	return &Aggregator{ledSubjects: subjects, now: time.Now}
}

// WithClock replaces the clock used for the synthetic point of an empty log.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	clone := *a
	clone.now = now
	return &clone
}

// Aggregate replays events in timestamp order (id breaks ties) and derives the
// device view. It keeps no state between calls and never fails.
func (a *Aggregator) Aggregate(events []model.EventRecord) model.DeviceView {
	ordered := sortEvents(events)

	view := model.DeviceView{
		LEDs:          make([]bool, len(a.ledSubjects)),
		Actuators:     make(map[string]bool, len(a.ledSubjects)),
		OriginTally:   make(map[model.Origin]int, len(model.Origins)),
		History:       make([]model.HistoryPoint, 0, len(ordered)),
		CounterSeries: []model.CounterPoint{},
		EventCount:    len(ordered),
	}
	for _, origin := range model.Origins {
		view.OriginTally[origin] = 0
	}

	latest := make(map[string]model.EventRecord)
	count := 0
	for _, ev := range ordered {
		latest[ev.Subject] = ev
		count = applyCounter(count, ev)
		view.History = append(view.History, model.HistoryPoint{Timestamp: ev.Timestamp, ObstacleCount: count})
		if ev.Origin != "" {
			view.OriginTally[ev.Origin]++
		}
		if ev.Type == model.EventCounterChanged {
			value, _ := parseCounterValue(ev.Value)
			view.CounterSeries = append(view.CounterSeries, model.CounterPoint{Timestamp: ev.Timestamp, Value: value})
		}
	}
	view.ObstacleCount = count

	for i, subject := range a.ledSubjects {
		ev, ok := latest[subject]
		on := ok && (ev.Type == model.EventLEDOn || isOnValue(ev.Value))
		view.LEDs[i] = on
		view.Actuators[subject] = on
		if on {
			view.LEDsOn++
		}
	}
	if ev, ok := latest[model.SubjectSensor]; ok {
		view.Sensor = ev.Type == model.EventSensorBlocked || isOnValue(ev.Value)
	}

	if len(ordered) == 0 {
		now := a.now().UTC()
		view.AsOf = now
		view.History = append(view.History, model.HistoryPoint{Timestamp: now})
		return view
	}
	view.AsOf = ordered[len(ordered)-1].Timestamp
	return view
}

// applyCounter evaluates the counter rules in fixed precedence: set, increment, reset.
func applyCounter(count int, ev model.EventRecord) int {
	switch {
	case ev.Type == model.EventCounterChanged && ev.Subject == model.SubjectCounter:
		if value, ok := parseCounterValue(ev.Value); ok {
			return value
		}
		return count
	case ev.Type == model.EventSensorBlocked && ev.Origin == model.OriginWeb:
		return count + 1
	case ev.Type == model.EventCounterReset:
		return 0
	default:
		return count
	}
}

func sortEvents(events []model.EventRecord) []model.EventRecord {
	ordered := make([]model.EventRecord, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})
	return ordered
}
