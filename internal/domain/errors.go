package domain

import (
	"errors"
	"fmt"
)

// Common domain errors for bounty evaluation operations.
var (
	// ErrInvalidConfiguration indicates a bounty or agent configuration is
	// invalid or incomplete. These are deployment mistakes, fatal at startup
	// and never retried.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrUnsupportedMode indicates a selection mode this agent does not
	// implement (community vote).
	ErrUnsupportedMode = errors.New("unsupported selection mode")

	// ErrNoSubmissions indicates a winner selection was requested for a
	// bounty with no recorded submissions.
	ErrNoSubmissions = errors.New("no submissions recorded")
)

// CriteriaError reports which bounty and which field failed criteria
// validation.
type CriteriaError struct {
	BountyID string
	Field    string
	Err      error
}

// Error implements the error interface for CriteriaError.
func (e *CriteriaError) Error() string {
	return fmt.Sprintf("criteria error: bounty=%s, field=%s, err=%v", e.BountyID, e.Field, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As inspection.
func (e *CriteriaError) Unwrap() error { return e.Err }
