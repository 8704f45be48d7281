package model

import (
	"slices"
	"time"
)

const (
	// SnapshotKey is the persisted cache key. Rotate it when the layout changes.
	SnapshotKey = "device_state_v1"
	// SnapshotHistoryLimit bounds LocalSnapshot.History.
	SnapshotHistoryLimit = 100
	// DefaultLEDCount is the number of LEDs in a fresh snapshot.
	DefaultLEDCount = 3
)

// LocalSnapshot is the last-known device state kept by this process for
// optimistic updates. It is a cache and may disagree with DeviceView.
type LocalSnapshot struct {
	LEDs          []bool         `json:"leds"`
	Foco          bool           `json:"foco"`
	Sensor        bool           `json:"sensor"`
	ObstacleCount int            `json:"obstacleCount"`
	History       []HistoryPoint `json:"history"`
	LastUpdate    time.Time      `json:"lastUpdate"`
}

// DefaultSnapshot returns the state used when nothing valid is persisted.
func DefaultSnapshot(ledCount int, now time.Time) LocalSnapshot {
	if ledCount <= 0 {
		ledCount = DefaultLEDCount
	}
	return LocalSnapshot{
		LEDs:       make([]bool, ledCount),
		History:    []HistoryPoint{},
		LastUpdate: now.UTC(),
	}
}

// Clone returns a copy that shares no slices with s.
func (s LocalSnapshot) Clone() LocalSnapshot {
	s.LEDs = slices.Clone(s.LEDs)
	s.History = slices.Clone(s.History)
	return s
}

// Partial is the merge input for the snapshot cache. Nil fields are absent.
type Partial struct {
	LEDs          *[]bool
	Foco          *bool
	Sensor        *bool
	ObstacleCount *int
	History       *[]HistoryPoint
}
