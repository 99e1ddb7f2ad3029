package domain

import "errors"

var (
	ErrNotOwner               = errors.New("not_owner")
	ErrInvalidRecipient       = errors.New("invalid_recipient")
	ErrInvalidSettlement      = errors.New("invalid_settlement")
	ErrRecipientNotConfigured = errors.New("fee_recipient_not_configured")
)
