// Package gormstore persists the ledger through gorm using raw SQL.
package gormstore

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/freya/internal/audit/domain"
	disputedomain "github.com/smallbiznis/freya/internal/dispute/domain"
	escrowdomain "github.com/smallbiznis/freya/internal/escrow/domain"
	"github.com/smallbiznis/freya/internal/events"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/freya/internal/ledger/domain"
	receiptdomain "github.com/smallbiznis/freya/internal/receipt/domain"
	"github.com/smallbiznis/freya/internal/store"
	"github.com/smallbiznis/freya/pkg/address"
	"github.com/smallbiznis/freya/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sequenceInvoice = "invoice"
	sequenceReceipt = "receipt"
	sequenceEvent   = "event"
)

type Store struct {
	db  *gorm.DB
	log *zap.Logger
	reader
}

var _ store.Store = (*Store)(nil)

func New(conn *gorm.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		db:     conn,
		log:    log.Named("store.gorm"),
		reader: reader{db: conn},
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t := &gormTx{
			reader:   reader{db: tx},
			rowLocks: db.SupportsRowLocks(s.db),
		}
		if err := fn(ctx, t); err != nil {
			return err
		}
		return t.flushEvents(ctx)
	})
}

// reader implements store.Reader against either the pool or an open transaction.
type reader struct {
	db *gorm.DB
}

func (r reader) GetInvoice(ctx context.Context, id uint64) (*invoicedomain.Invoice, error) {
	return r.findInvoice(ctx, id, false)
}

func (r reader) findInvoice(ctx context.Context, id uint64, forUpdate bool) (*invoicedomain.Invoice, error) {
	query := `SELECT id, issuer, client, token_address, amount, amount_paid, due_date,
	                 created_at, updated_at, description, status, use_escrow,
	                 escrow_release_time, disputed
	          FROM invoices
	          WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var invoice invoicedomain.Invoice
	if err := r.db.WithContext(ctx).Raw(query, id).Scan(&invoice).Error; err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r reader) ListInvoiceIDsByIssuer(ctx context.Context, issuer address.Address) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Raw(
		`SELECT id FROM invoices WHERE issuer = ? ORDER BY id ASC`,
		issuer,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r reader) ListInvoiceIDsByClient(ctx context.Context, client address.Address) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Raw(
		`SELECT id FROM invoices WHERE client = ? ORDER BY id ASC`,
		client,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r reader) NextInvoiceID(ctx context.Context) (uint64, error) {
	value, err := r.sequenceValue(ctx, sequenceInvoice)
	if err != nil {
		return 0, err
	}
	return value + 1, nil
}

func (r reader) sequenceValue(ctx context.Context, name string) (uint64, error) {
	var value uint64
	err := r.db.WithContext(ctx).Raw(
		`SELECT value FROM ledger_sequences WHERE name = ?`,
		name,
	).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (r reader) GetEscrowAccount(ctx context.Context, invoiceID uint64) (*escrowdomain.Account, error) {
	var account escrowdomain.Account
	err := r.db.WithContext(ctx).Raw(
		`SELECT invoice_id, depositor, beneficiary, client, token, amount, balance,
		        deposited_at, release_at, state, resolved_at
		 FROM escrow_accounts
		 WHERE invoice_id = ?`,
		invoiceID,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.InvoiceID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r reader) ListReleasableEscrow(ctx context.Context, now time.Time, limit int) ([]escrowdomain.Account, error) {
	query := `SELECT e.invoice_id, e.depositor, e.beneficiary, e.client, e.token, e.amount,
	                 e.balance, e.deposited_at, e.release_at, e.state, e.resolved_at
	          FROM escrow_accounts e
	          JOIN invoices i ON i.id = e.invoice_id
	          WHERE e.state = ? AND e.release_at <= ? AND i.disputed = ?
	          ORDER BY e.release_at ASC, e.invoice_id ASC`
	args := []any{escrowdomain.StateHeld, now.UTC(), false}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var accounts []escrowdomain.Account
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r reader) GetDispute(ctx context.Context, invoiceID uint64) (*disputedomain.Dispute, error) {
	var dispute disputedomain.Dispute
	err := r.db.WithContext(ctx).Raw(
		`SELECT invoice_id, reason, raised_by, raised_at, outcome, resolved_by, resolved_at
		 FROM disputes
		 WHERE invoice_id = ?`,
		invoiceID,
	).Scan(&dispute).Error
	if err != nil {
		return nil, err
	}
	if dispute.InvoiceID == 0 {
		return nil, nil
	}
	return &dispute, nil
}

func (r reader) GetReceipt(ctx context.Context, tokenID uint64) (*receiptdomain.Receipt, error) {
	return r.findReceipt(ctx, "token_id", tokenID)
}

func (r reader) GetReceiptByInvoice(ctx context.Context, invoiceID uint64) (*receiptdomain.Receipt, error) {
	return r.findReceipt(ctx, "invoice_id", invoiceID)
}

func (r reader) findReceipt(ctx context.Context, column string, value uint64) (*receiptdomain.Receipt, error) {
	var receipt receiptdomain.Receipt
	err := r.db.WithContext(ctx).Raw(
		`SELECT token_id, invoice_id, issuer, owner, token, amount, paid_at, description
		 FROM receipts
		 WHERE `+column+` = ?`,
		value,
	).Scan(&receipt).Error
	if err != nil {
		return nil, err
	}
	if receipt.TokenID == 0 {
		return nil, nil
	}
	return &receipt, nil
}

func (r reader) ListReceiptIDsByOwner(ctx context.Context, owner address.Address) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Raw(
		`SELECT token_id FROM receipts WHERE owner = ? ORDER BY token_id ASC`,
		owner,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r reader) AccountBalance(ctx context.Context, account ledgerdomain.LedgerAccount, token address.Address) (int64, error) {
	var balance int64
	err := r.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(CASE WHEN direction = ? THEN amount ELSE -amount END), 0)
		 FROM ledger_entry_lines
		 WHERE account = ? AND token = ?`,
		ledgerdomain.LedgerEntryDirectionCredit,
		account,
		token,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r reader) ListAccountTokens(ctx context.Context, account ledgerdomain.LedgerAccount) ([]address.Address, error) {
	var tokens []address.Address
	err := r.db.WithContext(ctx).Raw(
		`SELECT token
		 FROM ledger_entry_lines
		 WHERE account = ?
		 GROUP BY token
		 ORDER BY MIN(id) ASC`,
		account,
	).Scan(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r reader) ListLedgerEntries(ctx context.Context, invoiceID uint64) ([]ledgerdomain.LedgerEntry, error) {
	var entries []ledgerdomain.LedgerEntry
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, source_type, token, occurred_at, created_at
		 FROM ledger_entries
		 WHERE invoice_id = ?
		 ORDER BY id ASC`,
		invoiceID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}

	entryIDs := make([]snowflake.ID, 0, len(entries))
	for _, entry := range entries {
		entryIDs = append(entryIDs, entry.ID)
	}

	var lines []ledgerdomain.LedgerEntryLine
	err = r.db.WithContext(ctx).Raw(
		`SELECT id, ledger_entry_id, account, token, direction, amount, created_at
		 FROM ledger_entry_lines
		 WHERE ledger_entry_id IN ?
		 ORDER BY id ASC`,
		entryIDs,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}

	byEntry := make(map[snowflake.ID][]ledgerdomain.LedgerEntryLine, len(entries))
	for _, line := range lines {
		byEntry[line.LedgerEntryID] = append(byEntry[line.LedgerEntryID], line)
	}
	for i := range entries {
		entries[i].Lines = byEntry[entries[i].ID]
	}
	return entries, nil
}

func (r reader) ListEvents(ctx context.Context, after uint64, limit int) ([]events.Event, error) {
	query := r.db.WithContext(ctx).
		Model(&events.Event{}).
		Where("seq > ?", after).
		Order("seq ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var out []events.Event
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r reader) GetSetting(ctx context.Context, key string) (string, error) {
	var values []string
	err := r.db.WithContext(ctx).Raw(
		`SELECT value FROM ledger_settings WHERE name = ?`,
		key,
	).Scan(&values).Error
	if err != nil || len(values) == 0 {
		return "", err
	}
	return values[0], nil
}

func (r reader) ListAuditLogs(ctx context.Context, filter auditdomain.ListFilter) ([]auditdomain.AuditLog, error) {
	stmt := r.db.WithContext(ctx).Model(&auditdomain.AuditLog{})
	if filter.Action != "" {
		stmt = stmt.Where("action = ?", filter.Action)
	}
	if filter.TargetType != "" {
		stmt = stmt.Where("target_type = ?", filter.TargetType)
	}
	if filter.TargetID != "" {
		stmt = stmt.Where("target_id = ?", filter.TargetID)
	}
	if filter.Before != 0 {
		stmt = stmt.Where("id < ?", filter.Before)
	}
	stmt = stmt.Order("id DESC")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var logs []auditdomain.AuditLog
	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
