package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/freya/pkg/address"
)

// EntryWriter persists a journal entry inside the caller's transaction.
type EntryWriter interface {
	InsertLedgerEntry(ctx context.Context, entry *LedgerEntry) error
}

// BalanceReader sums posted lines for an account.
type BalanceReader interface {
	AccountBalance(ctx context.Context, account LedgerAccount, token address.Address) (int64, error)
}

type PostRequest struct {
	InvoiceID  uint64
	SourceType LedgerSourceType
	Token      address.Address
	OccurredAt time.Time
	Lines      []LedgerEntryLine
}

type Service interface {
	// Post validates and writes a balanced entry using w.
	Post(ctx context.Context, w EntryWriter, req PostRequest) (*LedgerEntry, error)
	Balance(ctx context.Context, r BalanceReader, account LedgerAccount, token address.Address) (int64, error)
}
