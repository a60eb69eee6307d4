package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON sends data as JSON with the given status code. Headers and the
// status are written before the body; once the body starts, header changes
// are ignored by net/http.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// The status is already on the wire; logging is all that is left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}
