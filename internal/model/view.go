package model

import "time"

// HistoryPoint is one obstacle-count sample.
type HistoryPoint struct {
	Timestamp     time.Time `json:"ts"`
	ObstacleCount int       `json:"obstacleCount"`
}

// CounterPoint is one value reported by a CONTADOR_CAMBIO event.
type CounterPoint struct {
	Timestamp time.Time `json:"ts"`
	Value     int       `json:"value"`
}

// DeviceView is the state derived from the event log on every poll. AsOf is the
// timestamp of the newest replayed event.
type DeviceView struct {
	LEDs          []bool          `json:"leds"`
	Actuators     map[string]bool `json:"actuators"`
	Sensor        bool            `json:"sensor"`
	ObstacleCount int             `json:"obstacleCount"`
	OriginTally   map[Origin]int  `json:"originTally"`
	History       []HistoryPoint  `json:"history"`
	CounterSeries []CounterPoint  `json:"counterSeries"`
	EventCount    int             `json:"eventCount"`
	LEDsOn        int             `json:"ledsOn"`
	AsOf          time.Time       `json:"asOf"`
}
