package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type EventType string

const (
	EventLEDOn          EventType = "LED_ON"
	EventLEDOff         EventType = "LED_OFF"
	EventSensorBlocked  EventType = "SENSOR_BLOQUEADO"
	EventSensorClear    EventType = "SENSOR_LIBRE"
	EventCounterChanged EventType = "CONTADOR_CAMBIO"
	EventCounterReset   EventType = "RESET_CONTADOR"
)

// Origin identifies the producer of an event.
type Origin string

const (
	OriginFirmware Origin = "CIRCUITO"
	OriginWeb      Origin = "WEB"
	OriginApp      Origin = "APP"
)

// Origins lists the closed origin vocabulary in display order.
var Origins = []Origin{OriginApp, OriginWeb, OriginFirmware}

const (
	SubjectSensor  = "SENSOR_IR"
	SubjectCounter = "CONTADOR"
)

// LEDSubject returns the log subject for the zero-based LED index.
func LEDSubject(index int) string {
	return "LED" + strconv.Itoa(index+1)
}

// EventRecord is one entry of the remote append-only device log.
type EventRecord struct {
	ID        int64     `json:"id"`
	Type      EventType `json:"type"`
	Subject   string    `json:"subject"`
	Origin    Origin    `json:"origin"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// wireEvent accepts both the canonical field names and the ones used by the
// device backend (id_evento, tipo_evento, detalle, origen, valor, fecha_hora).
type wireEvent struct {
	ID        json.RawMessage `json:"id"`
	IDEvento  json.RawMessage `json:"id_evento"`
	Type      string          `json:"type"`
	Tipo      string          `json:"tipo_evento"`
	Subject   string          `json:"subject"`
	Detalle   string          `json:"detalle"`
	Origin    string          `json:"origin"`
	Origen    string          `json:"origen"`
	Value     json.RawMessage `json:"value"`
	Valor     json.RawMessage `json:"valor"`
	Timestamp string          `json:"timestamp"`
	FechaHora string          `json:"fecha_hora"`
}

func (e *EventRecord) UnmarshalJSON(body []byte) error {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return err
	}
	id, err := rawInt(firstRaw(w.ID, w.IDEvento))
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	out := EventRecord{
		ID:      id,
		Type:    EventType(strings.TrimSpace(firstNonEmpty(w.Type, w.Tipo))),
		Subject: strings.TrimSpace(firstNonEmpty(w.Subject, w.Detalle)),
		Origin:  Origin(strings.TrimSpace(firstNonEmpty(w.Origin, w.Origen))),
		Value:   rawString(firstRaw(w.Value, w.Valor)),
	}
	if raw := firstNonEmpty(w.Timestamp, w.FechaHora); raw != "" {
		ts, err := ParseTimestamp(raw)
		if err != nil {
			return fmt.Errorf("event %d timestamp: %w", id, err)
		}
		out.Timestamp = ts
	}
	*e = out
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC3339 and naive ISO timestamps. Naive values are read as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", raw)
}

func firstNonEmpty(items ...string) string {
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			return item
		}
	}
	return ""
}

func firstRaw(items ...json.RawMessage) json.RawMessage {
	for _, item := range items {
		if len(item) > 0 && string(item) != "null" {
			return item
		}
	}
	return nil
}

func rawInt(raw json.RawMessage) (int64, error) {
	if raw == nil {
		return 0, nil
	}
	text := strings.Trim(string(raw), `"`)
	if text == "" {
		return 0, nil
	}
	return strconv.ParseInt(text, 10, 64)
}

// rawString keeps the payload loosely typed: strings are unquoted, numbers and
// booleans keep their literal text.
func rawString(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
