package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/matthewbaird/accountdesk/internal/desk"
	"github.com/matthewbaird/accountdesk/internal/logger"
	"github.com/matthewbaird/accountdesk/internal/wizard"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(log *logger.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("writeJSON encode error", "error", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(log *logger.Logger, w http.ResponseWriter, status int, code, message string) {
	writeJSON(log, w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// actorFrom extracts the calling actor from the X-Actor header.
func actorFrom(log *logger.Logger, w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		writeError(log, w, http.StatusUnauthorized, "MISSING_ACTOR", "X-Actor header is required")
		return "", false
	}
	return actor, true
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// statusFor maps a reply failure to an HTTP status.
func statusFor(f *desk.Failure) int {
	if f == nil {
		return http.StatusOK
	}
	switch f.Kind {
	case wizard.FailValidation, desk.FailBadRequest:
		return http.StatusBadRequest
	case wizard.FailNotFound:
		return http.StatusNotFound
	case wizard.FailState:
		return http.StatusConflict
	case wizard.FailRemote:
		return http.StatusBadGateway
	case desk.FailForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// writeReply writes a desk reply with the status its failure implies.
func writeReply(log *logger.Logger, w http.ResponseWriter, reply desk.Reply) {
	writeJSON(log, w, statusFor(reply.Failure), reply)
}
