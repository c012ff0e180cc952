package api

import (
	"errors"
	"net/http"

	"github.com/covalent-hq/conclave/internal/core"
)

// statusForCategory maps domain error categories to HTTP status codes.
var statusForCategory = map[core.ErrorCategory]int{
	core.ErrCatValidation: http.StatusUnprocessableEntity,
	core.ErrCatNotFound:   http.StatusNotFound,
	core.ErrCatConflict:   http.StatusConflict,
	core.ErrCatState:      http.StatusConflict,
	core.ErrCatStorage:    http.StatusInternalServerError,
	core.ErrCatInternal:   http.StatusInternalServerError,
}

// respondDomainError translates an error from the actor layer into an
// HTTP response, preserving the machine-readable code when available.
func respondDomainError(w http.ResponseWriter, err error) {
	var derr *core.DomainError
	if errors.As(err, &derr) {
		status, ok := statusForCategory[derr.Category]
		if !ok {
			status = http.StatusInternalServerError
		}
		respondJSON(w, status, map[string]interface{}{
			"error":     derr.Message,
			"code":      derr.Code,
			"category":  string(derr.Category),
			"retryable": derr.Retryable,
		})
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
