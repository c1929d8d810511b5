package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors classifying request failures. Handlers map domain
// outcomes onto these; RespondError is the only place that turns a
// class into an HTTP status code.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
)

// RespondError writes `{"error": message}` with the status code the
// taxonomy assigns to err. An empty message falls back to the generic
// message for that status. Unclassified errors are server faults.
func RespondError(w http.ResponseWriter, err error, message string) {
	status := statusFor(err)
	if message == "" {
		message = defaultMessage(status)
	}
	Error(w, status, message)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func defaultMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Requête invalide"
	case http.StatusUnauthorized:
		return "Session invalide ou expirée"
	case http.StatusForbidden:
		return "Permission refusée"
	case http.StatusNotFound:
		return "Ressource non trouvée"
	case http.StatusConflict:
		return "Conflit"
	default:
		return "Erreur serveur"
	}
}
