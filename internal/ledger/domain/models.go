package domain

import (
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freya/pkg/address"
)

// LedgerEntryDirection represents debit or credit postings.
type LedgerEntryDirection string

const (
	LedgerEntryDirectionDebit  LedgerEntryDirection = "debit"
	LedgerEntryDirectionCredit LedgerEntryDirection = "credit"
)

type LedgerSourceType string

const (
	// Direct payment: payer to issuer and fee recipient.
	SourceTypeSettlement LedgerSourceType = "settlement"

	// Escrow lifecycle.
	SourceTypeEscrowDeposit LedgerSourceType = "escrow_deposit"
	SourceTypeEscrowRelease LedgerSourceType = "escrow_release"
	SourceTypeEscrowRefund  LedgerSourceType = "escrow_refund"
)

// LedgerAccount names a balance holder: a party address or an escrow custody slot.
type LedgerAccount string

const (
	accountPrefixParty  = "party:"
	accountPrefixEscrow = "escrow:"
)

func PartyAccount(addr address.Address) LedgerAccount {
	return LedgerAccount(accountPrefixParty + addr.String())
}

func EscrowAccount(invoiceID uint64) LedgerAccount {
	return LedgerAccount(accountPrefixEscrow + strconv.FormatUint(invoiceID, 10))
}

func (a LedgerAccount) String() string { return string(a) }

// LedgerEntry captures the immutable header for a fund movement.
type LedgerEntry struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	InvoiceID  uint64            `gorm:"not null;uniqueIndex:ux_ledger_entries_source,priority:1" json:"invoice_id"`
	SourceType LedgerSourceType  `gorm:"type:varchar(32);not null;uniqueIndex:ux_ledger_entries_source,priority:2" json:"source_type"`
	Token      address.Address   `gorm:"type:varchar(128);not null" json:"token"`
	OccurredAt time.Time         `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
	Lines      []LedgerEntryLine `gorm:"-" json:"lines"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// LedgerEntryLine is a double-entry posting line.
type LedgerEntryLine struct {
	ID            snowflake.ID         `gorm:"primaryKey" json:"id"`
	LedgerEntryID snowflake.ID         `gorm:"not null;index" json:"ledger_entry_id"`
	Account       LedgerAccount        `gorm:"type:varchar(160);not null;index:ix_ledger_entry_lines_account,priority:1" json:"account"`
	Token         address.Address      `gorm:"type:varchar(128);not null;index:ix_ledger_entry_lines_account,priority:2" json:"token"`
	Direction     LedgerEntryDirection `gorm:"type:varchar(8);not null" json:"direction"`
	Amount        int64                `gorm:"not null" json:"amount"`
	CreatedAt     time.Time            `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (LedgerEntryLine) TableName() string { return "ledger_entry_lines" }

// SignedAmount is the line's effect on its account balance. Credits add.
func (l LedgerEntryLine) SignedAmount() int64 {
	if l.Direction == LedgerEntryDirectionCredit {
		return l.Amount
	}
	return -l.Amount
}

// ValidateBalanced checks debits equal credits across all lines.
func ValidateBalanced(lines []LedgerEntryLine) error {
	if len(lines) < 2 {
		return ErrInvalidEntryLines
	}
	var debit, credit int64
	for _, line := range lines {
		switch line.Direction {
		case LedgerEntryDirectionDebit:
			debit += line.Amount
		case LedgerEntryDirectionCredit:
			credit += line.Amount
		default:
			return ErrInvalidLineDirection
		}
	}
	if debit != credit {
		return ErrUnbalancedEntry
	}
	return nil
}
