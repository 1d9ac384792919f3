package app

import (
	"fmt"
	"net/http"
)

// DomainError is a caller-caused failure the HTTP layer can map directly:
// Status becomes the response code, Code and Message the error envelope, and
// Details an optional field-level breakdown.
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

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// errNotFound is the scoping miss: records outside the caller's tenant read
// the same as records that do not exist.
func errNotFound() *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
