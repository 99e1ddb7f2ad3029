// Package memory is a process-local Store. Transactions are serialized and
// buffered in an overlay that is applied to the committed state atomically.
package memory

import (
	"context"
	"sort"
	"sync"
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

type entryKey struct {
	invoiceID  uint64
	sourceType ledgerdomain.LedgerSourceType
}

type balanceKey struct {
	account ledgerdomain.LedgerAccount
	token   address.Address
}

type state struct {
	invoices   map[uint64]invoicedomain.Invoice
	byIssuer   map[address.Address][]uint64
	byClient   map[address.Address][]uint64
	invoiceSeq uint64

	escrow   map[uint64]escrowdomain.Account
	disputes map[uint64]disputedomain.Dispute

	receipts         map[uint64]receiptdomain.Receipt
	receiptByInvoice map[uint64]uint64
	byOwner          map[address.Address][]uint64
	receiptSeq       uint64

	entries       []ledgerdomain.LedgerEntry
	entryKeys     map[entryKey]struct{}
	balances      map[balanceKey]int64
	accountTokens map[ledgerdomain.LedgerAccount][]address.Address

	events   []events.Event
	eventSeq uint64

	settings  map[string]string
	auditLogs []auditdomain.AuditLog
}

type Store struct {
	// writer serializes transactions; mu guards st.
	writer sync.Mutex
	mu     sync.RWMutex
	st     *state
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: &state{
		invoices:         make(map[uint64]invoicedomain.Invoice),
		byIssuer:         make(map[address.Address][]uint64),
		byClient:         make(map[address.Address][]uint64),
		escrow:           make(map[uint64]escrowdomain.Account),
		disputes:         make(map[uint64]disputedomain.Dispute),
		receipts:         make(map[uint64]receiptdomain.Receipt),
		receiptByInvoice: make(map[uint64]uint64),
		byOwner:          make(map[address.Address][]uint64),
		entryKeys:        make(map[entryKey]struct{}),
		balances:         make(map[balanceKey]int64),
		accountTokens:    make(map[ledgerdomain.LedgerAccount][]address.Address),
		settings:         make(map[string]string),
	}}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writer.Lock()
	defer s.writer.Unlock()

	s.mu.RLock()
	t := newTx(s, s.st.invoiceSeq, s.st.receiptSeq)
	s.mu.RUnlock()

	if err := fn(ctx, t); err != nil {
		return err
	}

	s.mu.Lock()
	t.commit(s.st)
	s.mu.Unlock()
	return nil
}

func (s *Store) GetInvoice(_ context.Context, id uint64) (*invoicedomain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.st.invoices[id]
	if !ok {
		return nil, nil
	}
	out := inv.Clone()
	return &out, nil
}

func (s *Store) ListInvoiceIDsByIssuer(_ context.Context, issuer address.Address) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uint64{}, s.st.byIssuer[issuer]...), nil
}

func (s *Store) ListInvoiceIDsByClient(_ context.Context, client address.Address) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uint64{}, s.st.byClient[client]...), nil
}

func (s *Store) NextInvoiceID(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.invoiceSeq + 1, nil
}

func (s *Store) GetEscrowAccount(_ context.Context, invoiceID uint64) (*escrowdomain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.st.escrow[invoiceID]
	if !ok {
		return nil, nil
	}
	out := acct.Clone()
	return &out, nil
}

func (s *Store) ListReleasableEscrow(_ context.Context, now time.Time, limit int) ([]escrowdomain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return releasable(s.st.escrow, func(id uint64) (invoicedomain.Invoice, bool) {
		inv, ok := s.st.invoices[id]
		return inv, ok
	}, now, limit), nil
}

func (s *Store) GetDispute(_ context.Context, invoiceID uint64) (*disputedomain.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.st.disputes[invoiceID]
	if !ok {
		return nil, nil
	}
	out := d.Clone()
	return &out, nil
}

func (s *Store) GetReceipt(_ context.Context, tokenID uint64) (*receiptdomain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.st.receipts[tokenID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *Store) GetReceiptByInvoice(_ context.Context, invoiceID uint64) (*receiptdomain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokenID, ok := s.st.receiptByInvoice[invoiceID]
	if !ok {
		return nil, nil
	}
	r := s.st.receipts[tokenID]
	return &r, nil
}

func (s *Store) ListReceiptIDsByOwner(_ context.Context, owner address.Address) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uint64{}, s.st.byOwner[owner]...), nil
}

func (s *Store) AccountBalance(_ context.Context, account ledgerdomain.LedgerAccount, token address.Address) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.balances[balanceKey{account: account, token: token}], nil
}

func (s *Store) ListAccountTokens(_ context.Context, account ledgerdomain.LedgerAccount) ([]address.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]address.Address{}, s.st.accountTokens[account]...), nil
}

func (s *Store) ListLedgerEntries(_ context.Context, invoiceID uint64) ([]ledgerdomain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledgerdomain.LedgerEntry, 0)
	for _, entry := range s.st.entries {
		if entry.InvoiceID == invoiceID {
			out = append(out, cloneEntry(entry))
		}
	}
	return out, nil
}

func (s *Store) ListEvents(_ context.Context, after uint64, limit int) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return eventsAfter(s.st.events, after, limit), nil
}

func (s *Store) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.settings[key], nil
}

func (s *Store) ListAuditLogs(_ context.Context, filter auditdomain.ListFilter) ([]auditdomain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterAuditLogs(s.st.auditLogs, filter), nil
}

func releasable(accounts map[uint64]escrowdomain.Account, invoice func(uint64) (invoicedomain.Invoice, bool), now time.Time, limit int) []escrowdomain.Account {
	out := make([]escrowdomain.Account, 0)
	for id, acct := range accounts {
		if !acct.Held() || !acct.Matured(now) {
			continue
		}
		if inv, ok := invoice(id); ok && inv.Disputed {
			continue
		}
		out = append(out, acct.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReleaseAt.Equal(out[j].ReleaseAt) {
			return out[i].ReleaseAt.Before(out[j].ReleaseAt)
		}
		return out[i].InvoiceID < out[j].InvoiceID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// eventsAfter expects evs sorted by Seq.
func eventsAfter(evs []events.Event, after uint64, limit int) []events.Event {
	start := sort.Search(len(evs), func(i int) bool { return evs[i].Seq > after })
	end := len(evs)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]events.Event, 0, end-start)
	for _, ev := range evs[start:end] {
		out = append(out, cloneEvent(ev))
	}
	return out
}

func cloneEntry(entry ledgerdomain.LedgerEntry) ledgerdomain.LedgerEntry {
	out := entry
	out.Lines = append([]ledgerdomain.LedgerEntryLine{}, entry.Lines...)
	return out
}

func cloneEvent(ev events.Event) events.Event {
	out := ev
	if ev.Payload != nil {
		out.Payload = make(map[string]any, len(ev.Payload))
		for k, v := range ev.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

func filterAuditLogs(logs []auditdomain.AuditLog, filter auditdomain.ListFilter) []auditdomain.AuditLog {
	out := make([]auditdomain.AuditLog, 0)
	for _, entry := range logs {
		switch {
		case filter.Action != "" && entry.Action != filter.Action:
			continue
		case filter.TargetType != "" && entry.TargetType != filter.TargetType:
			continue
		case filter.TargetID != "" && entry.TargetID != filter.TargetID:
			continue
		case filter.Before != 0 && entry.ID >= filter.Before:
			continue
		}
		out = append(out, cloneAuditLog(entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func cloneAuditLog(entry auditdomain.AuditLog) auditdomain.AuditLog {
	out := entry
	if entry.Metadata != nil {
		out.Metadata = make(map[string]any, len(entry.Metadata))
		for k, v := range entry.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
