package handlers

import (
	"errors"
	"net/http"

	"mcnetwork/app/internal/checker"
	"mcnetwork/app/internal/database"
	"mcnetwork/app/internal/logging"
	"mcnetwork/app/internal/models"
)

// HandleServerStatus probes one registered server right now. The reading is
// not stored; an unreachable server gets the offline payload, not an error.
func HandleServerStatus(registry database.Registry, prober checker.Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "Server ID is required")
			return
		}

		srv, err := registry.ServerByID(r.Context(), id)
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Server not found")
			return
		}
		if err != nil {
			logging.Error().Err(err).Str("server_id", id).Msg("failed to look up server")
			writeError(w, http.StatusInternalServerError, "Failed to fetch server status")
			return
		}

		st, err := prober.Probe(r.Context(), srv.Host, srv.Port)
		if err != nil {
			logging.Debug().Err(err).Str("server_id", id).Msg("live probe failed")
			writeJSON(w, http.StatusOK, models.LiveStatus{})
			return
		}

		out := models.LiveStatus{
			Online:      true,
			PlayerCount: st.PlayerCount,
			MaxPlayers:  st.MaxPlayers,
			Version:     models.StringPtr(st.Version),
			Motd:        models.StringPtr(st.Motd),
			Latency:     st.Latency,
		}
		writeJSON(w, http.StatusOK, out)
	}
}
