package domain

import (
	"context"
	"time"

	disputedomain "github.com/smallbiznis/freya/internal/dispute/domain"
	"github.com/smallbiznis/freya/pkg/address"
)

type CreateInvoiceRequest struct {
	Issuer       address.Address
	Client       address.Address
	TokenAddress address.Address
	Amount       int64
	DueDate      time.Time
	Description  string
	UseEscrow    bool
}

type PayInvoiceRequest struct {
	InvoiceID uint64
	Payer     address.Address
	Amount    int64
}

type DisputeInvoiceRequest struct {
	InvoiceID uint64
	Caller    address.Address
	Reason    string
}

type ReleaseEscrowRequest struct {
	InvoiceID uint64
	Caller    address.Address
}

type ResolveDisputeRequest struct {
	InvoiceID uint64
	Outcome   disputedomain.Outcome
	Resolver  address.Address
}

// Service is the invoice ledger. Every mutation runs in a single store transaction.
type Service interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	PayInvoice(ctx context.Context, req PayInvoiceRequest) (Invoice, error)
	DisputeInvoice(ctx context.Context, req DisputeInvoiceRequest) (Invoice, error)
	ReleaseEscrow(ctx context.Context, req ReleaseEscrowRequest) (Invoice, error)
	ResolveDispute(ctx context.Context, req ResolveDisputeRequest) (Invoice, error)

	GetInvoice(ctx context.Context, id uint64) (Invoice, error)
	GetUserInvoices(ctx context.Context, issuer address.Address) ([]uint64, error)
	GetClientInvoices(ctx context.Context, client address.Address) ([]uint64, error)
	NextInvoiceID(ctx context.Context) (uint64, error)
}
