package api

import (
	"encoding/json"
	"net/http"
)

// Response messages. The dispatcher messages are part of the public API
// and must not change.
const (
	msgQueryItemEmpty   = "Query item empty"
	msgInjectDetected   = "SQL inject data detected."
	msgQueryFailed      = "query execution failed"
	msgInternal         = "internal server error"
	msgNotFound         = "Not Found"
	msgMethodNotAllowed = "Method Not Allowed"
)

// messageBody is the error response shape.
type messageBody struct {
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeRawJSON writes an already encoded JSON body.
func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(body)
}

// writeMessage writes a {"message": ...} response.
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageBody{Message: message})
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeMessage(w, http.StatusUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeMessage(w, http.StatusInternalServerError, message)
}

// handleError is the shared failure path for handlers: it logs err with
// the request context and answers 500 {"message":"query execution failed"}.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)
	writeInternalError(w, msgQueryFailed)
}
