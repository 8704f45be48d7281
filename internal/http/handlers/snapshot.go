package handlers

import "net/http"

// Snapshot returns the local optimistic snapshot.
func (a *API) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := a.snapshots.Read(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "snapshot_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ResetSnapshot restores the default snapshot.
func (a *API) ResetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := a.snapshots.Reset(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "snapshot_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
