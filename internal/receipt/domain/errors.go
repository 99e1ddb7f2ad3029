package domain

import "errors"

var (
	ErrReceiptNotFound = errors.New("receipt_not_found")
	// ErrReceiptExists means a second issuance was attempted for one invoice.
	ErrReceiptExists     = errors.New("receipt_exists")
	ErrInvoiceNotSettled = errors.New("invoice_not_settled")
)
