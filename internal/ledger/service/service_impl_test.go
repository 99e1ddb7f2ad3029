package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/freya/internal/ledger/domain"
	"github.com/smallbiznis/freya/pkg/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureWriter struct {
	entries []*ledgerdomain.LedgerEntry
}

func (w *captureWriter) InsertLedgerEntry(_ context.Context, entry *ledgerdomain.LedgerEntry) error {
	w.entries = append(w.entries, entry)
	return nil
}

func newTestService(t *testing.T) ledgerdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), GenID: node})
}

func TestPostDropsZeroLinesAndStampsEntry(t *testing.T) {
	svc := newTestService(t)
	w := &captureWriter{}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	entry, err := svc.Post(context.Background(), w, ledgerdomain.PostRequest{
		InvoiceID:  1,
		SourceType: ledgerdomain.SourceTypeSettlement,
		Token:      address.Native,
		OccurredAt: now,
		Lines: []ledgerdomain.LedgerEntryLine{
			{Account: ledgerdomain.PartyAccount("0xc1"), Direction: "DEBIT", Amount: 100},
			{Account: ledgerdomain.PartyAccount("0x11"), Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 100},
			{Account: ledgerdomain.PartyAccount("0xfe"), Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 0},
		},
	})
	require.NoError(t, err)
	require.Len(t, w.entries, 1)
	assert.Len(t, entry.Lines, 2)
	for _, line := range entry.Lines {
		assert.Equal(t, entry.ID, line.LedgerEntryID)
		assert.Equal(t, address.Native, line.Token)
	}
	assert.Equal(t, ledgerdomain.LedgerEntryDirectionDebit, entry.Lines[0].Direction)
}

func TestPostRejectsUnbalanced(t *testing.T) {
	svc := newTestService(t)
	w := &captureWriter{}

	_, err := svc.Post(context.Background(), w, ledgerdomain.PostRequest{
		InvoiceID:  1,
		SourceType: ledgerdomain.SourceTypeSettlement,
		Token:      address.Native,
		OccurredAt: time.Now(),
		Lines: []ledgerdomain.LedgerEntryLine{
			{Account: ledgerdomain.PartyAccount("0xc1"), Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: 100},
			{Account: ledgerdomain.PartyAccount("0x11"), Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 90},
		},
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrUnbalancedEntry)
	assert.Empty(t, w.entries)
}

func TestPostValidatesHeader(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Post(context.Background(), &captureWriter{}, ledgerdomain.PostRequest{})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidInvoice)

	_, err = svc.Post(context.Background(), &captureWriter{}, ledgerdomain.PostRequest{InvoiceID: 1})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidSourceType)
}
