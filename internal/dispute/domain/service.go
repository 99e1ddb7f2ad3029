package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/freya/pkg/address"
)

// Tx is the transactional store surface the resolver writes through.
type Tx interface {
	GetDispute(ctx context.Context, invoiceID uint64) (*Dispute, error)
	InsertDispute(ctx context.Context, dispute *Dispute) error
	UpdateDispute(ctx context.Context, dispute *Dispute) error
}

type Resolver interface {
	Raise(ctx context.Context, tx Tx, invoiceID uint64, raisedBy address.Address, reason string, now time.Time) (*Dispute, error)
	// Resolve requires the resolver role; it is never triggered by time.
	Resolve(ctx context.Context, tx Tx, invoiceID uint64, outcome Outcome, resolvedBy address.Address, now time.Time) (*Dispute, error)
	// Authorize checks the resolver role without touching any record.
	Authorize(ctx context.Context, resolvedBy address.Address) error
	Get(ctx context.Context, invoiceID uint64) (*Dispute, error)
}
