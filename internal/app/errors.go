package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"hearth/api/internal/session"
	"hearth/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func errNotFound(message string) *DomainError {
	return &DomainError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: message}
}

func errForbidden(message string) *DomainError {
	return &DomainError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: message}
}

func errInvalidOperation(message string) *DomainError {
	return &DomainError{Status: http.StatusUnprocessableEntity, Code: "INVALID_OPERATION", Message: message}
}

func errConflict(message string) *DomainError {
	return &DomainError{Status: http.StatusConflict, Code: "CONFLICT", Message: message}
}

func errUnauthorized(message string) *DomainError {
	return &DomainError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: message}
}

func errBadRequest(message string) *DomainError {
	return &DomainError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message}
}

// fromStoreErr translates store sentinels into the domain taxonomy.
// Missing rows become NotFound with the caller's message; serialization
// losers become Conflict so clients re-fetch and retry.
func fromStoreErr(err error, notFoundMessage string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errNotFound(notFoundMessage)
	case errors.Is(err, store.ErrConflict):
		return errConflict("concurrent modification, re-fetch and retry")
	case errors.Is(err, store.ErrInvalidParent):
		return errInvalidOperation("message cannot join its own thread")
	default:
		return err
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "not found", nil
	}
	if errors.Is(err, session.ErrNotFound) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired session", nil
	}
	if errors.Is(err, store.ErrConflict) {
		return http.StatusConflict, "CONFLICT", "concurrent modification, re-fetch and retry", nil
	}
	return http.StatusInternalServerError, "INTERNAL", "internal error", nil
}
