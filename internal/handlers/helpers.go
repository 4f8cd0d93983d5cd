package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/dreamforge/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps a tagged apperr.Error to its HTTP status per §7.
func writeError(w http.ResponseWriter, err error) {
	ae := apperr.As(err)
	status := http.StatusInternalServerError
	switch ae.Code {
	case apperr.CodeInvalidInput:
		status = http.StatusUnprocessableEntity
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeConflict:
		status = http.StatusConflict
	case apperr.CodeInfraUnavailable:
		status = http.StatusServiceUnavailable
	case apperr.CodeInternal:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]interface{}{
		"error_code":    ae.Code,
		"error_message": ae.Message,
	})
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
