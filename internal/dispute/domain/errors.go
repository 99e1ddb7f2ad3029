package domain

import "errors"

var (
	ErrInvalidReason   = errors.New("invalid_reason")
	ErrInvalidOutcome  = errors.New("invalid_outcome")
	ErrNotResolver     = errors.New("not_resolver")
	ErrAlreadyDisputed = errors.New("already_disputed")
	ErrDisputeNotFound = errors.New("dispute_not_found")
)
