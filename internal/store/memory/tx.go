package memory

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
	"github.com/smallbiznis/freya/pkg/address"
)

// tx buffers writes over the committed state. Reads see the buffer first.
type tx struct {
	s *Store

	invoices    map[uint64]invoicedomain.Invoice
	newInvoices []uint64
	invoiceSeq  uint64

	escrow   map[uint64]escrowdomain.Account
	disputes map[uint64]disputedomain.Dispute

	receipts         map[uint64]receiptdomain.Receipt
	receiptByInvoice map[uint64]uint64
	newReceipts      []uint64
	receiptSeq       uint64

	entries   []ledgerdomain.LedgerEntry
	entryKeys map[entryKey]struct{}

	events    []*events.Event
	settings  map[string]string
	auditLogs []auditdomain.AuditLog
}

var _ store.Tx = (*tx)(nil)

func newTx(s *Store, invoiceSeq, receiptSeq uint64) *tx {
	return &tx{
		s:                s,
		invoices:         make(map[uint64]invoicedomain.Invoice),
		invoiceSeq:       invoiceSeq,
		escrow:           make(map[uint64]escrowdomain.Account),
		disputes:         make(map[uint64]disputedomain.Dispute),
		receipts:         make(map[uint64]receiptdomain.Receipt),
		receiptByInvoice: make(map[uint64]uint64),
		receiptSeq:       receiptSeq,
		entryKeys:        make(map[entryKey]struct{}),
		settings:         make(map[string]string),
	}
}

func (t *tx) GetInvoice(ctx context.Context, id uint64) (*invoicedomain.Invoice, error) {
	if inv, ok := t.invoices[id]; ok {
		out := inv.Clone()
		return &out, nil
	}
	return t.s.GetInvoice(ctx, id)
}

// LockInvoice needs no row lock: the writer mutex already serializes transactions.
func (t *tx) LockInvoice(ctx context.Context, id uint64) (*invoicedomain.Invoice, error) {
	return t.GetInvoice(ctx, id)
}

func (t *tx) ListInvoiceIDsByIssuer(ctx context.Context, issuer address.Address) ([]uint64, error) {
	ids, err := t.s.ListInvoiceIDsByIssuer(ctx, issuer)
	if err != nil {
		return nil, err
	}
	for _, id := range t.newInvoices {
		if t.invoices[id].Issuer == issuer {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *tx) ListInvoiceIDsByClient(ctx context.Context, client address.Address) ([]uint64, error) {
	ids, err := t.s.ListInvoiceIDsByClient(ctx, client)
	if err != nil {
		return nil, err
	}
	for _, id := range t.newInvoices {
		if t.invoices[id].Client == client {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *tx) NextInvoiceID(context.Context) (uint64, error) {
	return t.invoiceSeq + 1, nil
}

func (t *tx) AllocateInvoiceID(context.Context) (uint64, error) {
	t.invoiceSeq++
	return t.invoiceSeq, nil
}

func (t *tx) InsertInvoice(ctx context.Context, invoice *invoicedomain.Invoice) error {
	existing, err := t.GetInvoice(ctx, invoice.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("invoice %d: %w", invoice.ID, store.ErrDuplicate)
	}
	t.invoices[invoice.ID] = invoice.Clone()
	t.newInvoices = append(t.newInvoices, invoice.ID)
	return nil
}

func (t *tx) UpdateInvoice(ctx context.Context, invoice *invoicedomain.Invoice) error {
	existing, err := t.GetInvoice(ctx, invoice.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return invoicedomain.ErrInvoiceNotFound
	}
	t.invoices[invoice.ID] = invoice.Clone()
	return nil
}

func (t *tx) GetEscrowAccount(ctx context.Context, invoiceID uint64) (*escrowdomain.Account, error) {
	if acct, ok := t.escrow[invoiceID]; ok {
		out := acct.Clone()
		return &out, nil
	}
	return t.s.GetEscrowAccount(ctx, invoiceID)
}

func (t *tx) ListReleasableEscrow(_ context.Context, now time.Time, limit int) ([]escrowdomain.Account, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	merged := make(map[uint64]escrowdomain.Account, len(t.s.st.escrow)+len(t.escrow))
	for id, acct := range t.s.st.escrow {
		merged[id] = acct
	}
	for id, acct := range t.escrow {
		merged[id] = acct
	}
	return releasable(merged, func(id uint64) (invoicedomain.Invoice, bool) {
		if inv, ok := t.invoices[id]; ok {
			return inv, true
		}
		inv, ok := t.s.st.invoices[id]
		return inv, ok
	}, now, limit), nil
}

func (t *tx) InsertEscrowAccount(ctx context.Context, account *escrowdomain.Account) error {
	existing, err := t.GetEscrowAccount(ctx, account.InvoiceID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("escrow %d: %w", account.InvoiceID, store.ErrDuplicate)
	}
	t.escrow[account.InvoiceID] = account.Clone()
	return nil
}

func (t *tx) UpdateEscrowAccount(ctx context.Context, account *escrowdomain.Account) error {
	existing, err := t.GetEscrowAccount(ctx, account.InvoiceID)
	if err != nil {
		return err
	}
	if existing == nil {
		return escrowdomain.ErrEscrowNotFound
	}
	t.escrow[account.InvoiceID] = account.Clone()
	return nil
}

func (t *tx) GetDispute(ctx context.Context, invoiceID uint64) (*disputedomain.Dispute, error) {
	if d, ok := t.disputes[invoiceID]; ok {
		out := d.Clone()
		return &out, nil
	}
	return t.s.GetDispute(ctx, invoiceID)
}

func (t *tx) InsertDispute(ctx context.Context, dispute *disputedomain.Dispute) error {
	existing, err := t.GetDispute(ctx, dispute.InvoiceID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("dispute %d: %w", dispute.InvoiceID, store.ErrDuplicate)
	}
	t.disputes[dispute.InvoiceID] = dispute.Clone()
	return nil
}

func (t *tx) UpdateDispute(ctx context.Context, dispute *disputedomain.Dispute) error {
	existing, err := t.GetDispute(ctx, dispute.InvoiceID)
	if err != nil {
		return err
	}
	if existing == nil {
		return disputedomain.ErrDisputeNotFound
	}
	t.disputes[dispute.InvoiceID] = dispute.Clone()
	return nil
}

func (t *tx) GetReceipt(ctx context.Context, tokenID uint64) (*receiptdomain.Receipt, error) {
	if r, ok := t.receipts[tokenID]; ok {
		return &r, nil
	}
	return t.s.GetReceipt(ctx, tokenID)
}

func (t *tx) GetReceiptByInvoice(ctx context.Context, invoiceID uint64) (*receiptdomain.Receipt, error) {
	if tokenID, ok := t.receiptByInvoice[invoiceID]; ok {
		r := t.receipts[tokenID]
		return &r, nil
	}
	return t.s.GetReceiptByInvoice(ctx, invoiceID)
}

func (t *tx) ListReceiptIDsByOwner(ctx context.Context, owner address.Address) ([]uint64, error) {
	ids, err := t.s.ListReceiptIDsByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	for _, id := range t.newReceipts {
		if t.receipts[id].Owner == owner {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *tx) AllocateReceiptID(context.Context) (uint64, error) {
	t.receiptSeq++
	return t.receiptSeq, nil
}

func (t *tx) InsertReceipt(ctx context.Context, receipt *receiptdomain.Receipt) error {
	byToken, err := t.GetReceipt(ctx, receipt.TokenID)
	if err != nil {
		return err
	}
	byInvoice, err := t.GetReceiptByInvoice(ctx, receipt.InvoiceID)
	if err != nil {
		return err
	}
	if byToken != nil || byInvoice != nil {
		return fmt.Errorf("receipt for invoice %d: %w", receipt.InvoiceID, store.ErrDuplicate)
	}
	t.receipts[receipt.TokenID] = *receipt
	t.receiptByInvoice[receipt.InvoiceID] = receipt.TokenID
	t.newReceipts = append(t.newReceipts, receipt.TokenID)
	return nil
}

func (t *tx) AccountBalance(ctx context.Context, account ledgerdomain.LedgerAccount, token address.Address) (int64, error) {
	balance, err := t.s.AccountBalance(ctx, account, token)
	if err != nil {
		return 0, err
	}
	for _, entry := range t.entries {
		for _, line := range entry.Lines {
			if line.Account == account && line.Token == token {
				balance += line.SignedAmount()
			}
		}
	}
	return balance, nil
}

func (t *tx) ListAccountTokens(ctx context.Context, account ledgerdomain.LedgerAccount) ([]address.Address, error) {
	tokens, err := t.s.ListAccountTokens(ctx, account)
	if err != nil {
		return nil, err
	}
	for _, entry := range t.entries {
		for _, line := range entry.Lines {
			if line.Account == account {
				tokens = appendUnique(tokens, line.Token)
			}
		}
	}
	return tokens, nil
}

func (t *tx) ListLedgerEntries(ctx context.Context, invoiceID uint64) ([]ledgerdomain.LedgerEntry, error) {
	entries, err := t.s.ListLedgerEntries(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	for _, entry := range t.entries {
		if entry.InvoiceID == invoiceID {
			entries = append(entries, cloneEntry(entry))
		}
	}
	return entries, nil
}

func (t *tx) InsertLedgerEntry(_ context.Context, entry *ledgerdomain.LedgerEntry) error {
	key := entryKey{invoiceID: entry.InvoiceID, sourceType: entry.SourceType}

	t.s.mu.RLock()
	_, committed := t.s.st.entryKeys[key]
	t.s.mu.RUnlock()

	if _, pending := t.entryKeys[key]; committed || pending {
		return fmt.Errorf("%w: %w", store.ErrDuplicate, ledgerdomain.ErrDuplicateEntry)
	}
	t.entryKeys[key] = struct{}{}
	t.entries = append(t.entries, cloneEntry(*entry))
	return nil
}

// ListEvents sees committed events only; buffered events have no Seq yet.
func (t *tx) ListEvents(ctx context.Context, after uint64, limit int) ([]events.Event, error) {
	return t.s.ListEvents(ctx, after, limit)
}

func (t *tx) AppendEvent(_ context.Context, event *events.Event) error {
	if event == nil {
		return events.ErrInvalidEvent
	}
	t.events = append(t.events, event)
	return nil
}

func (t *tx) GetSetting(ctx context.Context, key string) (string, error) {
	if value, ok := t.settings[key]; ok {
		return value, nil
	}
	return t.s.GetSetting(ctx, key)
}

func (t *tx) PutSetting(_ context.Context, key string, value string, _ time.Time) error {
	t.settings[key] = value
	return nil
}

func (t *tx) ListAuditLogs(ctx context.Context, filter auditdomain.ListFilter) ([]auditdomain.AuditLog, error) {
	committed, err := t.s.ListAuditLogs(ctx, auditdomain.ListFilter{
		Action:     filter.Action,
		TargetType: filter.TargetType,
		TargetID:   filter.TargetID,
		Before:     filter.Before,
	})
	if err != nil {
		return nil, err
	}
	return filterAuditLogs(append(committed, t.auditLogs...), filter), nil
}

func (t *tx) InsertAuditLog(_ context.Context, entry *auditdomain.AuditLog) error {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, existing := range t.s.st.auditLogs {
		if existing.ID == entry.ID {
			return fmt.Errorf("audit log %s: %w", entry.ID, store.ErrDuplicate)
		}
	}
	t.auditLogs = append(t.auditLogs, cloneAuditLog(*entry))
	return nil
}

func (t *tx) commit(st *state) {
	for id, inv := range t.invoices {
		st.invoices[id] = inv
	}
	for _, id := range t.newInvoices {
		inv := t.invoices[id]
		st.byIssuer[inv.Issuer] = append(st.byIssuer[inv.Issuer], id)
		st.byClient[inv.Client] = append(st.byClient[inv.Client], id)
	}
	st.invoiceSeq = t.invoiceSeq

	for id, acct := range t.escrow {
		st.escrow[id] = acct
	}
	for id, d := range t.disputes {
		st.disputes[id] = d
	}

	for _, id := range t.newReceipts {
		r := t.receipts[id]
		st.receipts[id] = r
		st.receiptByInvoice[r.InvoiceID] = id
		st.byOwner[r.Owner] = append(st.byOwner[r.Owner], id)
	}
	st.receiptSeq = t.receiptSeq

	for _, entry := range t.entries {
		st.entries = append(st.entries, entry)
		st.entryKeys[entryKey{invoiceID: entry.InvoiceID, sourceType: entry.SourceType}] = struct{}{}
		for _, line := range entry.Lines {
			key := balanceKey{account: line.Account, token: line.Token}
			st.balances[key] += line.SignedAmount()
			st.accountTokens[line.Account] = appendUnique(st.accountTokens[line.Account], line.Token)
		}
	}

	// Commits are serialized by Store.writer, so Seq follows commit order.
	for _, ev := range t.events {
		st.eventSeq++
		ev.Seq = st.eventSeq
		st.events = append(st.events, cloneEvent(*ev))
	}

	for key, value := range t.settings {
		st.settings[key] = value
	}
	st.auditLogs = append(st.auditLogs, t.auditLogs...)
}

func appendUnique(tokens []address.Address, token address.Address) []address.Address {
	for _, existing := range tokens {
		if existing == token {
			return tokens
		}
	}
	return append(tokens, token)
}
