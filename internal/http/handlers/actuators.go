package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/obstacle-panel/backend/internal/commandapi"
	"github.com/obstacle-panel/backend/internal/dispatcher"
	"github.com/obstacle-panel/backend/internal/model"
)

type switchPayload struct {
	On *bool `json:"on"`
}

// ToggleLED flips one LED optimistically. The index is zero-based.
func (a *API) ToggleLED(w http.ResponseWriter, r *http.Request, rawIndex string) {
	index, ok := parseIndex(w, rawIndex)
	if !ok {
		return
	}
	ack, err := a.dispatcher.ToggleLED(r.Context(), index)
	a.writeDispatch(w, ack, err)
}

// SetLED drives one LED to the requested state.
func (a *API) SetLED(w http.ResponseWriter, r *http.Request, rawIndex string) {
	index, ok := parseIndex(w, rawIndex)
	if !ok {
		return
	}
	on, ok := decodeSwitch(w, r)
	if !ok {
		return
	}
	ack, err := a.dispatcher.SetLED(r.Context(), index, on)
	a.writeDispatch(w, ack, err)
}

// SetFoco drives the spotlight.
func (a *API) SetFoco(w http.ResponseWriter, r *http.Request) {
	on, ok := decodeSwitch(w, r)
	if !ok {
		return
	}
	ack, err := a.dispatcher.SetFoco(r.Context(), on)
	a.writeDispatch(w, ack, err)
}

// ResetCounter zeroes the obstacle counter.
func (a *API) ResetCounter(w http.ResponseWriter, r *http.Request) {
	ack, err := a.dispatcher.ResetCounter(r.Context())
	a.writeDispatch(w, ack, err)
}

// ToggleSensor flips the simulated sensor in the local snapshot.
func (a *API) ToggleSensor(w http.ResponseWriter, r *http.Request) {
	snap, err := a.dispatcher.ToggleSensor(r.Context())
	if errors.Is(err, dispatcher.ErrBusy) {
		writeError(w, http.StatusConflict, "busy", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "snapshot_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Busy lists actuators with a dispatch in flight.
func (a *API) Busy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.dispatcher.Busy()})
}

// Export asks the device backend to produce a report. Delivery happens in
// the background.
func (a *API) Export(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := commandapi.ExportRequest{
		Format:  query.Get("format"),
		From:    query.Get("from"),
		To:      query.Get("to"),
		Subject: query.Get("subject"),
	}
	if err := a.exporter.Trigger(req); err != nil {
		if errors.Is(err, commandapi.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, "invalid_format", "format must be CSV or PDF")
			return
		}
		writeError(w, http.StatusInternalServerError, "export_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "format": strings.ToUpper(strings.TrimSpace(req.Format))})
}

func (a *API) writeDispatch(w http.ResponseWriter, ack model.Ack, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, ack)
		return
	}

	var actuatorErr *dispatcher.ActuatorError
	var dispatchErr *dispatcher.DispatchError
	switch {
	case errors.As(err, &actuatorErr):
		writeError(w, http.StatusBadRequest, "invalid_actuator", err.Error())
	case errors.Is(err, dispatcher.ErrBusy):
		writeError(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, dispatcher.ErrAuthRequired):
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": map[string]any{"code": "auth_required", "message": "Authentication required; the shown state is unconfirmed"},
			"ack":   ack,
		})
	case errors.As(err, &dispatchErr):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": map[string]any{"code": "dispatch_failed", "message": err.Error()},
			"ack":   ack,
		})
	default:
		a.logger.Error("dispatch failed before submission", "subject", ack.Subject, "err", err)
		writeError(w, http.StatusInternalServerError, "snapshot_failed", err.Error())
	}
}

func parseIndex(w http.ResponseWriter, raw string) (int, bool) {
	index, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_actuator", "LED index must be an integer")
		return 0, false
	}
	return index, true
}

func decodeSwitch(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var payload switchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.On == nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", `Expected JSON body {"on": true|false}`)
		return false, false
	}
	return *payload.On, true
}
