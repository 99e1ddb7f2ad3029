package domain

import (
	"context"
	"time"

	feedomain "github.com/smallbiznis/freya/internal/fee/domain"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/freya/internal/ledger/domain"
	"github.com/smallbiznis/freya/pkg/address"
)

// Tx is the transactional store surface the vault writes through.
type Tx interface {
	GetEscrowAccount(ctx context.Context, invoiceID uint64) (*Account, error)
	InsertEscrowAccount(ctx context.Context, account *Account) error
	UpdateEscrowAccount(ctx context.Context, account *Account) error
	ledgerdomain.EntryWriter
}

type Vault interface {
	Deposit(ctx context.Context, tx Tx, invoice invoicedomain.Invoice, payer address.Address, amount int64, now time.Time) (*Account, error)
	// Release moves custody to the issuer, routing the protocol fee.
	Release(ctx context.Context, tx Tx, invoice invoicedomain.Invoice, now time.Time) (*Account, feedomain.Split, error)
	// Refund moves custody back to the client.
	Refund(ctx context.Context, tx Tx, invoice invoicedomain.Invoice, now time.Time) (*Account, error)

	GetAccount(ctx context.Context, invoiceID uint64) (*Account, error)
	ListReleasable(ctx context.Context, now time.Time, limit int) ([]Account, error)
}
