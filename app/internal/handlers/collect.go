package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"mcnetwork/app/internal/collector"
	"mcnetwork/app/internal/logging"
)

// SecretVerifier checks the bearer token presented to the collection trigger
type SecretVerifier interface {
	VerifyCronSecret(secret string) bool
}

// HandleCollect triggers one collection run on demand (GET or POST, so plain
// cron pingers work). The run outlives a disconnecting caller.
func HandleCollect(runner collector.Runner, auth SecretVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			token = ""
		}
		if !auth.VerifyCronSecret(strings.TrimSpace(token)) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		res, err := runner.Run(context.WithoutCancel(r.Context()))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, res)
		case errors.Is(err, collector.ErrRunInProgress):
			writeError(w, http.StatusConflict, "Collection already in progress")
		default:
			logging.Error().Err(err).Msg("analytics collection failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Collection failed",
				"details": err.Error(),
			})
		}
	}
}
