// Package model holds the checklist entities and the error kinds shared by
// the server and its clients.
package model

import "errors"

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Item struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Completed   bool   `json:"completed"`
	CategoryID  int64  `json:"categoryId"`
	Attribution string `json:"attribution,omitempty"`
}

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrStorage    = errors.New("storage failure")
	// ErrConsistency means a multi-step write may have been partially applied.
	ErrConsistency = errors.New("consistency failure")
	// ErrNetwork is only produced client side.
	ErrNetwork = errors.New("network failure")
)

// Wire codes carried in error bodies.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeNotFound    = "NOT_FOUND"
	CodeStorage     = "STORAGE_ERROR"
	CodeConsistency = "CONSISTENCY_ERROR"
)

// KindForCode maps a wire code back to its error kind. Unknown codes map to
// ErrNetwork since the client cannot tell them apart from a broken server.
func KindForCode(code string) error {
	switch code {
	case CodeValidation:
		return ErrValidation
	case CodeNotFound:
		return ErrNotFound
	case CodeStorage:
		return ErrStorage
	case CodeConsistency:
		return ErrConsistency
	}
	return ErrNetwork
}
