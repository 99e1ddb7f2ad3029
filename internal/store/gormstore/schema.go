package gormstore

import (
	"context"
	"time"

	auditdomain "github.com/smallbiznis/freya/internal/audit/domain"
	disputedomain "github.com/smallbiznis/freya/internal/dispute/domain"
	escrowdomain "github.com/smallbiznis/freya/internal/escrow/domain"
	"github.com/smallbiznis/freya/internal/events"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/freya/internal/ledger/domain"
	receiptdomain "github.com/smallbiznis/freya/internal/receipt/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sequence is a named monotonic counter for invoice ids, receipt ids and event Seq.
type Sequence struct {
	Name  string `gorm:"primaryKey;type:varchar(32)"`
	Value uint64 `gorm:"not null;default:0"`
}

// TableName sets the database table name.
func (Sequence) TableName() string { return "ledger_sequences" }

// Setting is a runtime override written by admin operations.
type Setting struct {
	Name      string    `gorm:"primaryKey;type:varchar(64)"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Setting) TableName() string { return "ledger_settings" }

// Models lists every table owned by the store.
func Models() []any {
	return []any{
		&Sequence{},
		&Setting{},
		&invoicedomain.Invoice{},
		&escrowdomain.Account{},
		&disputedomain.Dispute{},
		&receiptdomain.Receipt{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.LedgerEntryLine{},
		&events.Event{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate creates the schema from the models. Postgres deployments use
// the versioned SQL migrations instead.
func AutoMigrate(ctx context.Context, conn *gorm.DB) error {
	if err := conn.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return err
	}
	return EnsureSequences(ctx, conn)
}

// EnsureSequences seeds the id counters at zero so the first id is 1.
func EnsureSequences(ctx context.Context, conn *gorm.DB) error {
	seeds := []Sequence{
		{Name: sequenceInvoice},
		{Name: sequenceReceipt},
		{Name: sequenceEvent},
	}
	return conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&seeds).Error
}
