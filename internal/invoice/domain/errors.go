package domain

import (
	"errors"

	disputedomain "github.com/smallbiznis/freya/internal/dispute/domain"
)

var (
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrInvalidDueDate = errors.New("invalid_due_date")
	ErrInvalidParty   = errors.New("invalid_party")
	ErrInvalidID      = errors.New("invalid_invoice_id")

	ErrNotClient = errors.New("not_client")
	ErrNotIssuer = errors.New("not_issuer")

	ErrInvoiceNotFound            = errors.New("invoice_not_found")
	ErrAlreadySettled             = errors.New("already_settled")
	ErrInvoiceCompleted           = errors.New("invoice_completed")
	ErrInvoiceDisputed            = errors.New("invoice_disputed")
	ErrInvoiceCancelled           = errors.New("invoice_cancelled")
	ErrWrongAmount                = errors.New("wrong_amount")
	ErrPartialPaymentNotSupported = errors.New("partial_payment_not_supported")

	// ErrAlreadyDisputed is shared with the dispute resolver so callers can match either source.
	ErrAlreadyDisputed = disputedomain.ErrAlreadyDisputed
)
