// Package store defines the transactional persistence boundary of the ledger.
package store

import (
	"context"
	"errors"
	"time"

	auditdomain "github.com/smallbiznis/freya/internal/audit/domain"
	disputedomain "github.com/smallbiznis/freya/internal/dispute/domain"
	escrowdomain "github.com/smallbiznis/freya/internal/escrow/domain"
	"github.com/smallbiznis/freya/internal/events"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/freya/internal/ledger/domain"
	receiptdomain "github.com/smallbiznis/freya/internal/receipt/domain"
	"github.com/smallbiznis/freya/pkg/address"
)

// ErrDuplicate is returned when an insert collides with an existing key.
var ErrDuplicate = errors.New("store_duplicate")

// Reader exposes committed state. Lookups return (nil, nil) when nothing matches.
type Reader interface {
	GetInvoice(ctx context.Context, id uint64) (*invoicedomain.Invoice, error)
	ListInvoiceIDsByIssuer(ctx context.Context, issuer address.Address) ([]uint64, error)
	ListInvoiceIDsByClient(ctx context.Context, client address.Address) ([]uint64, error)
	NextInvoiceID(ctx context.Context) (uint64, error)

	GetEscrowAccount(ctx context.Context, invoiceID uint64) (*escrowdomain.Account, error)
	// ListReleasableEscrow returns held accounts due at now whose invoice is not disputed.
	ListReleasableEscrow(ctx context.Context, now time.Time, limit int) ([]escrowdomain.Account, error)

	GetDispute(ctx context.Context, invoiceID uint64) (*disputedomain.Dispute, error)

	GetReceipt(ctx context.Context, tokenID uint64) (*receiptdomain.Receipt, error)
	GetReceiptByInvoice(ctx context.Context, invoiceID uint64) (*receiptdomain.Receipt, error)
	ListReceiptIDsByOwner(ctx context.Context, owner address.Address) ([]uint64, error)

	AccountBalance(ctx context.Context, account ledgerdomain.LedgerAccount, token address.Address) (int64, error)
	ListAccountTokens(ctx context.Context, account ledgerdomain.LedgerAccount) ([]address.Address, error)
	ListLedgerEntries(ctx context.Context, invoiceID uint64) ([]ledgerdomain.LedgerEntry, error)

	// ListEvents returns up to limit committed events with Seq greater than
	// after, in commit order.
	ListEvents(ctx context.Context, after uint64, limit int) ([]events.Event, error)

	// GetSetting returns "" when key was never stored.
	GetSetting(ctx context.Context, key string) (string, error)

	ListAuditLogs(ctx context.Context, filter auditdomain.ListFilter) ([]auditdomain.AuditLog, error)
}

// Tx is a serializable unit of work. Writes become visible only on commit.
type Tx interface {
	Reader

	// LockInvoice reads an invoice and holds it for the rest of the transaction.
	LockInvoice(ctx context.Context, id uint64) (*invoicedomain.Invoice, error)
	AllocateInvoiceID(ctx context.Context) (uint64, error)
	InsertInvoice(ctx context.Context, invoice *invoicedomain.Invoice) error
	UpdateInvoice(ctx context.Context, invoice *invoicedomain.Invoice) error

	InsertEscrowAccount(ctx context.Context, account *escrowdomain.Account) error
	UpdateEscrowAccount(ctx context.Context, account *escrowdomain.Account) error

	InsertDispute(ctx context.Context, dispute *disputedomain.Dispute) error
	UpdateDispute(ctx context.Context, dispute *disputedomain.Dispute) error

	AllocateReceiptID(ctx context.Context) (uint64, error)
	InsertReceipt(ctx context.Context, receipt *receiptdomain.Receipt) error

	InsertLedgerEntry(ctx context.Context, entry *ledgerdomain.LedgerEntry) error
	// AppendEvent buffers event; its Seq is set when the transaction commits.
	AppendEvent(ctx context.Context, event *events.Event) error

	PutSetting(ctx context.Context, key string, value string, updatedAt time.Time) error
	InsertAuditLog(ctx context.Context, entry *auditdomain.AuditLog) error
}

// Store runs fn atomically: a returned error rolls back every write made through tx.
type Store interface {
	Reader
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

var (
	_ escrowdomain.Tx    = Tx(nil)
	_ disputedomain.Tx   = Tx(nil)
	_ receiptdomain.Tx   = Tx(nil)
	_ events.Appender    = Tx(nil)
	_ auditdomain.Writer = Tx(nil)

	_ ledgerdomain.EntryWriter   = Tx(nil)
	_ ledgerdomain.BalanceReader = Reader(nil)
)
