package httpapi

import (
	"encoding/json"
	"net/http"

	"relayd/internal/ollama"
	"relayd/internal/relay"
	"relayd/pkg/types"
)

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes the uniform {"error": msg} payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}

// syncErrorStatus maps failures of the synchronous model routes.
func syncErrorStatus(err error) int {
	if relay.IsInvalidRequest(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// chatErrorStatus maps failures to open a chat stream. Upstream trouble is reported
// as 503 so callers can tell it apart from their own mistakes.
func chatErrorStatus(err error) int {
	switch {
	case relay.IsInvalidRequest(err):
		return http.StatusBadRequest
	case ollama.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
