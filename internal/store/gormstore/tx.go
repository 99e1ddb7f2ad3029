package gormstore

import (
	"context"
	"fmt"
	"time"

	auditdomain "github.com/smallbiznis/freya/internal/audit/domain"
	disputedomain "github.com/smallbiznis/freya/internal/dispute/domain"
	escrowdomain "github.com/smallbiznis/freya/internal/escrow/domain"
	"github.com/smallbiznis/freya/internal/events"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/freya/internal/ledger/domain"
	receiptdomain "github.com/smallbiznis/freya/internal/receipt/domain"
	"github.com/smallbiznis/freya/internal/store"
	"github.com/smallbiznis/freya/pkg/db"
	"gorm.io/gorm/clause"
)

type gormTx struct {
	reader
	rowLocks bool

	pending []*events.Event
}

var _ store.Tx = (*gormTx)(nil)

// LockInvoice uses SELECT ... FOR UPDATE where the dialect supports it.
// SQLite serializes writers at the database level instead.
func (t *gormTx) LockInvoice(ctx context.Context, id uint64) (*invoicedomain.Invoice, error) {
	return t.findInvoice(ctx, id, t.rowLocks)
}

func (t *gormTx) AllocateInvoiceID(ctx context.Context) (uint64, error) {
	return t.allocate(ctx, sequenceInvoice)
}

func (t *gormTx) AllocateReceiptID(ctx context.Context) (uint64, error) {
	return t.allocate(ctx, sequenceReceipt)
}

func (t *gormTx) allocate(ctx context.Context, name string) (uint64, error) {
	return t.allocateN(ctx, name, 1)
}

// allocateN reserves n values and returns the last one. The sequence row
// stays locked until the transaction ends.
func (t *gormTx) allocateN(ctx context.Context, name string, n uint64) (uint64, error) {
	result := t.db.WithContext(ctx).Exec(
		`UPDATE ledger_sequences SET value = value + ? WHERE name = ?`,
		n,
		name,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, fmt.Errorf("sequence %q is not seeded", name)
	}
	return t.sequenceValue(ctx, name)
}

func (t *gormTx) InsertInvoice(ctx context.Context, invoice *invoicedomain.Invoice) error {
	err := t.db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, issuer, client, token_address, amount, amount_paid, due_date,
			created_at, updated_at, description, status, use_escrow,
			escrow_release_time, disputed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.Issuer,
		invoice.Client,
		invoice.TokenAddress,
		invoice.Amount,
		invoice.AmountPaid,
		invoice.DueDate.UTC(),
		invoice.CreatedAt.UTC(),
		invoice.UpdatedAt.UTC(),
		invoice.Description,
		invoice.Status,
		invoice.UseEscrow,
		utcPtr(invoice.EscrowReleaseTime),
		invoice.Disputed,
	).Error
	return translate(err, "invoice %d", invoice.ID)
}

func (t *gormTx) UpdateInvoice(ctx context.Context, invoice *invoicedomain.Invoice) error {
	result := t.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET amount_paid = ?, status = ?, escrow_release_time = ?, disputed = ?, updated_at = ?
		 WHERE id = ?`,
		invoice.AmountPaid,
		invoice.Status,
		utcPtr(invoice.EscrowReleaseTime),
		invoice.Disputed,
		invoice.UpdatedAt.UTC(),
		invoice.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return invoicedomain.ErrInvoiceNotFound
	}
	return nil
}

func (t *gormTx) InsertEscrowAccount(ctx context.Context, account *escrowdomain.Account) error {
	err := t.db.WithContext(ctx).Exec(
		`INSERT INTO escrow_accounts (
			invoice_id, depositor, beneficiary, client, token, amount, balance,
			deposited_at, release_at, state, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.InvoiceID,
		account.Depositor,
		account.Beneficiary,
		account.Client,
		account.Token,
		account.Amount,
		account.Balance,
		account.DepositedAt.UTC(),
		account.ReleaseAt.UTC(),
		account.State,
		utcPtr(account.ResolvedAt),
	).Error
	return translate(err, "escrow %d", account.InvoiceID)
}

func (t *gormTx) UpdateEscrowAccount(ctx context.Context, account *escrowdomain.Account) error {
	result := t.db.WithContext(ctx).Exec(
		`UPDATE escrow_accounts
		 SET balance = ?, state = ?, resolved_at = ?
		 WHERE invoice_id = ?`,
		account.Balance,
		account.State,
		utcPtr(account.ResolvedAt),
		account.InvoiceID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return escrowdomain.ErrEscrowNotFound
	}
	return nil
}

func (t *gormTx) InsertDispute(ctx context.Context, dispute *disputedomain.Dispute) error {
	err := t.db.WithContext(ctx).Exec(
		`INSERT INTO disputes (
			invoice_id, reason, raised_by, raised_at, outcome, resolved_by, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dispute.InvoiceID,
		dispute.Reason,
		dispute.RaisedBy,
		dispute.RaisedAt.UTC(),
		dispute.Outcome,
		dispute.ResolvedBy,
		utcPtr(dispute.ResolvedAt),
	).Error
	return translate(err, "dispute %d", dispute.InvoiceID)
}

func (t *gormTx) UpdateDispute(ctx context.Context, dispute *disputedomain.Dispute) error {
	result := t.db.WithContext(ctx).Exec(
		`UPDATE disputes
		 SET outcome = ?, resolved_by = ?, resolved_at = ?
		 WHERE invoice_id = ?`,
		dispute.Outcome,
		dispute.ResolvedBy,
		utcPtr(dispute.ResolvedAt),
		dispute.InvoiceID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return disputedomain.ErrDisputeNotFound
	}
	return nil
}

func (t *gormTx) InsertReceipt(ctx context.Context, receipt *receiptdomain.Receipt) error {
	err := t.db.WithContext(ctx).Exec(
		`INSERT INTO receipts (
			token_id, invoice_id, issuer, owner, token, amount, paid_at, description
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		receipt.TokenID,
		receipt.InvoiceID,
		receipt.Issuer,
		receipt.Owner,
		receipt.Token,
		receipt.Amount,
		receipt.PaidAt.UTC(),
		receipt.Description,
	).Error
	return translate(err, "receipt for invoice %d", receipt.InvoiceID)
}

func (t *gormTx) InsertLedgerEntry(ctx context.Context, entry *ledgerdomain.LedgerEntry) error {
	err := t.db.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (id, invoice_id, source_type, token, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.InvoiceID,
		entry.SourceType,
		entry.Token,
		entry.OccurredAt.UTC(),
		entry.CreatedAt.UTC(),
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return fmt.Errorf("%w: %w", store.ErrDuplicate, ledgerdomain.ErrDuplicateEntry)
		}
		return err
	}

	for _, line := range entry.Lines {
		if err := t.db.WithContext(ctx).Exec(
			`INSERT INTO ledger_entry_lines (
				id, ledger_entry_id, account, token, direction, amount, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			entry.ID,
			line.Account,
			line.Token,
			line.Direction,
			line.Amount,
			line.CreatedAt.UTC(),
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (t *gormTx) AppendEvent(_ context.Context, event *events.Event) error {
	if event == nil {
		return events.ErrInvalidEvent
	}
	t.pending = append(t.pending, event)
	return nil
}

// flushEvents numbers and inserts the buffered events as the last statement
// of the transaction. Concurrent writers queue on the event sequence row
// until this one commits, so Seq order is commit order.
func (t *gormTx) flushEvents(ctx context.Context) error {
	if len(t.pending) == 0 {
		return nil
	}
	n := uint64(len(t.pending))
	last, err := t.allocateN(ctx, sequenceEvent, n)
	if err != nil {
		return err
	}
	first := last - n + 1
	for i, ev := range t.pending {
		ev.Seq = first + uint64(i)
		if err := t.db.WithContext(ctx).Create(ev).Error; err != nil {
			return translate(err, "event %s", ev.ID)
		}
	}
	t.pending = nil
	return nil
}

func (t *gormTx) PutSetting(ctx context.Context, key string, value string, updatedAt time.Time) error {
	return t.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&Setting{Name: key, Value: value, UpdatedAt: updatedAt.UTC()}).Error
}

func (t *gormTx) InsertAuditLog(ctx context.Context, entry *auditdomain.AuditLog) error {
	err := t.db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (
			id, actor_type, actor, action, target_type, target_id,
			metadata, request_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ActorType,
		entry.Actor,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		entry.Metadata,
		entry.RequestID,
		entry.CreatedAt.UTC(),
	).Error
	return translate(err, "audit log %s", entry.ID)
}

func translate(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if db.IsDuplicateKeyErr(err) {
		if name := db.ConstraintName(err); name != "" {
			format += " (" + name + ")"
		}
		return fmt.Errorf(format+": %w", append(args, store.ErrDuplicate)...)
	}
	return err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

