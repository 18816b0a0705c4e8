package panel

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFlowError maps a FlowError code to an HTTP status. Session
// mismatches render as 404 on purpose: one session must not learn that
// another session's workflow exists.
func writeFlowError(w http.ResponseWriter, err error) {
	var ferr *schema.FlowError
	if !errors.As(err, &ferr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch ferr.Code {
	case schema.ErrCodeValidation, schema.ErrCodeExtraction:
		status = http.StatusBadRequest
	case schema.ErrCodeNotFound, schema.ErrCodeSessionMismatch:
		status = http.StatusNotFound
	case schema.ErrCodeConflict, schema.ErrCodeStaleConfirmation, schema.ErrCodeInvalidTransition:
		status = http.StatusConflict
	case schema.ErrCodeExpired:
		status = http.StatusGone
	case schema.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]string{
		"error": ferr.Message,
		"code":  ferr.Code,
	})
}
