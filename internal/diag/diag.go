// Package diag exposes a tiny read-only HTTP mux (/healthz, /status)
// alongside a role's framed TCP service, for operators and orchestrators
// that expect a plain HTTP probe rather than the wire protocol. It carries
// no write surface and never touches role-state beyond the StatusProvider
// it is given.
package diag

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StatusProvider reports the same fields the wire `status` response
// attaches to a role, rendered here as JSON for human/HTTP consumers.
type StatusProvider interface {
	CurrentSlot() uint64
	CurrentEpoch() uint64
	NextBlockID() uint64
	CheckpointIDs() []uint32
}

// NewMux builds the diagnostics handler. Mount it on its own listener
// (e.g. ":8081") separate from the role's framed TCP port.
func NewMux(sp StatusProvider) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := struct {
			Slot          uint64   `json:"slot"`
			Epoch         uint64   `json:"epoch"`
			NextBlockID   uint64   `json:"nextBlockId"`
			CheckpointIDs []uint32 `json:"checkpointIds"`
		}{
			Slot:          sp.CurrentSlot(),
			Epoch:         sp.CurrentEpoch(),
			NextBlockID:   sp.NextBlockID(),
			CheckpointIDs: sp.CheckpointIDs(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
	return r
}
