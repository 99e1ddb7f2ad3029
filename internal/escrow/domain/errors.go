package domain

import "errors"

var (
	ErrEscrowNotFound  = errors.New("escrow_not_found")
	ErrEscrowLocked    = errors.New("escrow_locked")
	ErrAlreadyReleased = errors.New("already_released")
	ErrAlreadyRefunded = errors.New("already_refunded")
	// ErrEscrowExists means a second deposit reached the vault; the invoice state machine should prevent it.
	ErrEscrowExists = errors.New("escrow_exists")
)
