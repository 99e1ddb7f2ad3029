package domain

import "errors"

var (
	ErrInvalidInvoice       = errors.New("invalid_invoice")
	ErrInvalidSourceType    = errors.New("invalid_source_type")
	ErrInvalidToken         = errors.New("invalid_token")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidEntryLines    = errors.New("invalid_entry_lines")
	ErrInvalidAccount       = errors.New("invalid_account")
	ErrInvalidLineDirection = errors.New("invalid_line_direction")
	ErrInvalidLineAmount    = errors.New("invalid_line_amount")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
	ErrDuplicateEntry       = errors.New("duplicate_entry")
)
