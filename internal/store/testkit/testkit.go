// Package testkit runs the same behavioral checks against every store backend.
package testkit

import (
	"context"
	"errors"
	"testing"
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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	Issuer = address.Address("0x00000000000000000000000000000000000000a1")
	Client = address.Address("0x00000000000000000000000000000000000000c1")
	Token  = address.Address("0x00000000000000000000000000000000000000e1")
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises s through the store.Store contract. newStore must return an
// empty store on every call.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("allocates invoice ids from one", func(t *testing.T) {
		testAllocateInvoiceIDs(t, newStore(t))
	})
	t.Run("rolls back on error", func(t *testing.T) {
		testRollback(t, newStore(t))
	})
	t.Run("rejects duplicate ledger entries", func(t *testing.T) {
		testDuplicateLedgerEntry(t, newStore(t))
	})
	t.Run("sums balances per account and token", func(t *testing.T) {
		testBalances(t, newStore(t))
	})
	t.Run("lists releasable escrow", func(t *testing.T) {
		testReleasableEscrow(t, newStore(t))
	})
	t.Run("indexes receipts by owner", func(t *testing.T) {
		testReceipts(t, newStore(t))
	})
	t.Run("pages events by commit sequence", func(t *testing.T) {
		testEvents(t, newStore(t))
	})
	t.Run("numbers events in commit order", func(t *testing.T) {
		testEventSeqFollowsCommitOrder(t, newStore(t))
	})
	t.Run("stores settings", func(t *testing.T) {
		testSettings(t, newStore(t))
	})
	t.Run("lists audit logs newest first", func(t *testing.T) {
		testAuditLogs(t, newStore(t))
	})
	t.Run("updates dispute records", func(t *testing.T) {
		testDisputes(t, newStore(t))
	})
}

func NewInvoice(id uint64) *invoicedomain.Invoice {
	return &invoicedomain.Invoice{
		ID:           id,
		Issuer:       Issuer,
		Client:       Client,
		TokenAddress: Token,
		Amount:       1000,
		DueDate:      base.Add(24 * time.Hour),
		CreatedAt:    base,
		UpdatedAt:    base,
		Description:  "design work",
		Status:       invoicedomain.InvoiceStatusCreated,
	}
}

func createInvoice(t *testing.T, s store.Store, mutate func(*invoicedomain.Invoice)) uint64 {
	t.Helper()
	var id uint64
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		id, err = tx.AllocateInvoiceID(ctx)
		if err != nil {
			return err
		}
		inv := NewInvoice(id)
		if mutate != nil {
			mutate(inv)
		}
		return tx.InsertInvoice(ctx, inv)
	})
	require.NoError(t, err)
	return id
}

func testAllocateInvoiceIDs(t *testing.T, s store.Store) {
	ctx := context.Background()

	next, err := s.NextInvoiceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)

	first := createInvoice(t, s, nil)
	second := createInvoice(t, s, func(inv *invoicedomain.Invoice) { inv.Client = Issuer })
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)

	next, err = s.NextInvoiceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), next)

	byIssuer, err := s.ListInvoiceIDsByIssuer(ctx, Issuer)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, byIssuer)

	byClient, err := s.ListInvoiceIDsByClient(ctx, Client)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, byClient)

	got, err := s.GetInvoice(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1000), got.Amount)
	assert.Equal(t, Token, got.TokenAddress)
	assert.True(t, base.Add(24*time.Hour).Equal(got.DueDate))

	missing, err := s.GetInvoice(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		id, err := tx.AllocateInvoiceID(ctx)
		if err != nil {
			return err
		}
		if err := tx.InsertInvoice(ctx, NewInvoice(id)); err != nil {
			return err
		}
		seen, err := tx.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if seen == nil {
			return errors.New("write not visible inside transaction")
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	next, err := s.NextInvoiceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)

	got, err := s.GetInvoice(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func entry(invoiceID uint64, source ledgerdomain.LedgerSourceType, id int64, lines ...ledgerdomain.LedgerEntryLine) *ledgerdomain.LedgerEntry {
	for i := range lines {
		lines[i].ID = snowflake.ID(id*10 + int64(i) + 1)
		lines[i].LedgerEntryID = snowflake.ID(id)
		lines[i].CreatedAt = base
	}
	return &ledgerdomain.LedgerEntry{
		ID:         snowflake.ID(id),
		InvoiceID:  invoiceID,
		SourceType: source,
		Token:      Token,
		OccurredAt: base,
		CreatedAt:  base,
		Lines:      lines,
	}
}

func line(account ledgerdomain.LedgerAccount, direction ledgerdomain.LedgerEntryDirection, amount int64) ledgerdomain.LedgerEntryLine {
	return ledgerdomain.LedgerEntryLine{Account: account, Token: Token, Direction: direction, Amount: amount}
}

func testDuplicateLedgerEntry(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := createInvoice(t, s, nil)

	post := func(entryID int64) error {
		return s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertLedgerEntry(ctx, entry(id, ledgerdomain.SourceTypeSettlement, entryID,
				line(ledgerdomain.PartyAccount(Client), ledgerdomain.LedgerEntryDirectionDebit, 10),
				line(ledgerdomain.PartyAccount(Issuer), ledgerdomain.LedgerEntryDirectionCredit, 10),
			))
		})
	}

	require.NoError(t, post(100))
	err := post(200)
	assert.ErrorIs(t, err, store.ErrDuplicate)
	assert.ErrorIs(t, err, ledgerdomain.ErrDuplicateEntry)

	entries, err := s.ListLedgerEntries(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Lines, 2)
}

func testBalances(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := createInvoice(t, s, nil)
	escrow := ledgerdomain.EscrowAccount(id)

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertLedgerEntry(ctx, entry(id, ledgerdomain.SourceTypeEscrowDeposit, 100,
			line(ledgerdomain.PartyAccount(Client), ledgerdomain.LedgerEntryDirectionDebit, 1000),
			line(escrow, ledgerdomain.LedgerEntryDirectionCredit, 1000),
		)); err != nil {
			return err
		}
		// Pending writes count toward balances read in the same transaction.
		held, err := tx.AccountBalance(ctx, escrow, Token)
		if err != nil {
			return err
		}
		if held != 1000 {
			return errors.New("pending entry not reflected in balance")
		}
		return tx.InsertLedgerEntry(ctx, entry(id, ledgerdomain.SourceTypeEscrowRelease, 200,
			line(escrow, ledgerdomain.LedgerEntryDirectionDebit, 1000),
			line(ledgerdomain.PartyAccount(Issuer), ledgerdomain.LedgerEntryDirectionCredit, 995),
			line(ledgerdomain.PartyAccount(Token), ledgerdomain.LedgerEntryDirectionCredit, 5),
		))
	})
	require.NoError(t, err)

	cases := map[ledgerdomain.LedgerAccount]int64{
		ledgerdomain.PartyAccount(Client): -1000,
		ledgerdomain.PartyAccount(Issuer): 995,
		escrow:                            0,
	}
	for account, want := range cases {
		got, err := s.AccountBalance(ctx, account, Token)
		require.NoError(t, err)
		assert.Equal(t, want, got, account.String())
	}

	tokens, err := s.ListAccountTokens(ctx, ledgerdomain.PartyAccount(Issuer))
	require.NoError(t, err)
	assert.Equal(t, []address.Address{Token}, tokens)
}

func testReleasableEscrow(t *testing.T, s store.Store) {
	ctx := context.Background()
	due := createInvoice(t, s, nil)
	later := createInvoice(t, s, nil)
	disputed := createInvoice(t, s, func(inv *invoicedomain.Invoice) { inv.Disputed = true })

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for id, releaseAt := range map[uint64]time.Time{
			due:      base.Add(time.Hour),
			later:    base.Add(48 * time.Hour),
			disputed: base.Add(time.Hour),
		} {
			if err := tx.InsertEscrowAccount(ctx, &escrowdomain.Account{
				InvoiceID:   id,
				Depositor:   Client,
				Beneficiary: Issuer,
				Client:      Client,
				Token:       Token,
				Amount:      1000,
				Balance:     1000,
				DepositedAt: base,
				ReleaseAt:   releaseAt,
				State:       escrowdomain.StateHeld,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	ready, err := s.ListReleasableEscrow(ctx, base.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, due, ready[0].InvoiceID)

	all, err := s.ListReleasableEscrow(ctx, base.Add(72*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []uint64{due, later}, []uint64{all[0].InvoiceID, all[1].InvoiceID})

	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.GetEscrowAccount(ctx, due)
		if err != nil {
			return err
		}
		acct.State = escrowdomain.StateReleased
		acct.Balance = 0
		resolved := base.Add(3 * time.Hour)
		acct.ResolvedAt = &resolved
		return tx.UpdateEscrowAccount(ctx, acct)
	})
	require.NoError(t, err)

	ready, err = s.ListReleasableEscrow(ctx, base.Add(72*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, later, ready[0].InvoiceID)

	dup := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertEscrowAccount(ctx, &escrowdomain.Account{
			InvoiceID: later, Token: Token, State: escrowdomain.StateHeld,
			Depositor: Client, Beneficiary: Issuer, Client: Client,
			DepositedAt: base, ReleaseAt: base,
		})
	})
	assert.ErrorIs(t, dup, store.ErrDuplicate)
}

func testReceipts(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := createInvoice(t, s, nil)
	second := createInvoice(t, s, nil)

	for _, invoiceID := range []uint64{first, second} {
		err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			tokenID, err := tx.AllocateReceiptID(ctx)
			if err != nil {
				return err
			}
			return tx.InsertReceipt(ctx, &receiptdomain.Receipt{
				TokenID:     tokenID,
				InvoiceID:   invoiceID,
				Issuer:      Issuer,
				Owner:       Client,
				Token:       Token,
				Amount:      1000,
				PaidAt:      base,
				Description: "design work",
			})
		})
		require.NoError(t, err)
	}

	ids, err := s.ListReceiptIDsByOwner(ctx, Client)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, ids)

	r, err := s.GetReceiptByInvoice(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, uint64(2), r.TokenID)

	missing, err := s.GetReceipt(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertReceipt(ctx, &receiptdomain.Receipt{
			TokenID: 9, InvoiceID: first, Issuer: Issuer, Owner: Client, Token: Token, PaidAt: base,
		})
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func testEvents(t *testing.T, s store.Store) {
	ctx := context.Background()

	appended := make([]*events.Event, 0, 3)
	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for i := int64(1); i <= 3; i++ {
			ev := &events.Event{
				ID:         snowflake.ID(i),
				Type:       events.EventInvoiceCreated,
				InvoiceID:  uint64(i),
				Payload:    map[string]any{"n": float64(i)},
				OccurredAt: base,
			}
			if err := tx.AppendEvent(ctx, ev); err != nil {
				return err
			}
			appended = append(appended, ev)
		}
		return nil
	})
	require.NoError(t, err)
	for i, ev := range appended {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}

	page, err := s.ListEvents(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, snowflake.ID(1), page[0].ID)
	assert.Equal(t, uint64(1), page[0].Seq)

	rest, err := s.ListEvents(ctx, page[1].Seq, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, uint64(3), rest[0].InvoiceID)
	assert.Equal(t, float64(3), rest[0].Payload["n"])
}

// A transaction holding an older event id can commit after a newer one. The
// feed must still hand it to a reader that already consumed the newer event.
func testEventSeqFollowsCommitOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	appendOne := func(id int64) error {
		return s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.AppendEvent(ctx, &events.Event{
				ID:         snowflake.ID(id),
				Type:       events.EventInvoicePaid,
				InvoiceID:  uint64(id),
				OccurredAt: base,
			})
		})
	}

	require.NoError(t, appendOne(101))
	seen, err := s.ListEvents(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, seen, 1)
	cursor := seen[0].Seq

	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.AppendEvent(ctx, &events.Event{
			ID: snowflake.ID(99), Type: events.EventInvoicePaid, InvoiceID: 99, OccurredAt: base,
		}); err != nil {
			return err
		}
		return errors.New("rollback")
	})
	require.Error(t, err)

	require.NoError(t, appendOne(100))
	next, err := s.ListEvents(ctx, cursor, 10)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, snowflake.ID(100), next[0].ID)
	assert.Equal(t, cursor+1, next[0].Seq)
}

func testSettings(t *testing.T, s store.Store) {
	ctx := context.Background()

	value, err := s.GetSetting(ctx, "fee.recipient")
	require.NoError(t, err)
	assert.Empty(t, value)

	for _, v := range []string{"0xaa", "0xbb"} {
		err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.PutSetting(ctx, "fee.recipient", v, base)
		})
		require.NoError(t, err)
	}

	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.PutSetting(ctx, "fee.recipient", "0xcc", base); err != nil {
			return err
		}
		inTx, err := tx.GetSetting(ctx, "fee.recipient")
		require.NoError(t, err)
		assert.Equal(t, "0xcc", inTx)
		return errors.New("rollback")
	})
	require.Error(t, err)

	value, err = s.GetSetting(ctx, "fee.recipient")
	require.NoError(t, err)
	assert.Equal(t, "0xbb", value)
}

func testAuditLogs(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for i := int64(1); i <= 3; i++ {
			action := auditdomain.ActionDisputeResolved
			if i == 2 {
				action = auditdomain.ActionFeeRecipientSet
			}
			if err := tx.InsertAuditLog(ctx, &auditdomain.AuditLog{
				ID:         snowflake.ID(i),
				ActorType:  auditdomain.ActorTypeAccount,
				Actor:      Issuer,
				Action:     action,
				TargetType: auditdomain.TargetInvoice,
				TargetID:   "7",
				Metadata:   map[string]any{"n": float64(i)},
				CreatedAt:  base,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	all, err := s.ListAuditLogs(ctx, auditdomain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, snowflake.ID(3), all[0].ID)
	assert.Equal(t, float64(3), all[0].Metadata["n"])

	resolved, err := s.ListAuditLogs(ctx, auditdomain.ListFilter{Action: auditdomain.ActionDisputeResolved, Limit: 1})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, snowflake.ID(3), resolved[0].ID)

	older, err := s.ListAuditLogs(ctx, auditdomain.ListFilter{Before: 3})
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, snowflake.ID(2), older[0].ID)
}

func testDisputes(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := createInvoice(t, s, nil)

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertDispute(ctx, &disputedomain.Dispute{
			InvoiceID: id,
			Reason:    "late delivery",
			RaisedBy:  Client,
			RaisedAt:  base,
			Outcome:   disputedomain.OutcomePending,
		})
	})
	require.NoError(t, err)

	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		d, err := tx.GetDispute(ctx, id)
		if err != nil {
			return err
		}
		resolved := base.Add(time.Hour)
		d.Outcome = disputedomain.OutcomeFavorClient
		d.ResolvedBy = Issuer
		d.ResolvedAt = &resolved
		return tx.UpdateDispute(ctx, d)
	})
	require.NoError(t, err)

	d, err := s.GetDispute(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, disputedomain.OutcomeFavorClient, d.Outcome)
	require.NotNil(t, d.ResolvedAt)

	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateDispute(ctx, &disputedomain.Dispute{InvoiceID: 42})
	})
	assert.ErrorIs(t, err, disputedomain.ErrDisputeNotFound)
}
