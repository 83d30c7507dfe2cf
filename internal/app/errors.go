package app

import (
	"fmt"
	"net/http"

	"checklist/api/internal/model"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the model error kind, so errors.Is(err, model.ErrNotFound)
// holds for a NOT_FOUND DomainError.
func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
		Err:     model.KindForCode(code),
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, model.CodeValidation, message, nil)
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, model.CodeNotFound, message, nil)
}

func storageError(message string) *DomainError {
	return domainError(http.StatusServiceUnavailable, model.CodeStorage, message, map[string]any{"retryable": true})
}

func consistencyError(message string) *DomainError {
	return domainError(http.StatusInternalServerError, model.CodeConsistency, message, nil)
}
