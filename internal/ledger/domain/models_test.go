package domain

import (
	"testing"

	"github.com/smallbiznis/freya/pkg/address"
	"github.com/stretchr/testify/assert"
)

func TestValidateBalanced(t *testing.T) {
	balanced := []LedgerEntryLine{
		{Account: PartyAccount("0xc1"), Direction: LedgerEntryDirectionDebit, Amount: 1000},
		{Account: PartyAccount("0x11"), Direction: LedgerEntryDirectionCredit, Amount: 995},
		{Account: PartyAccount("0xfe"), Direction: LedgerEntryDirectionCredit, Amount: 5},
	}
	assert.NoError(t, ValidateBalanced(balanced))

	unbalanced := []LedgerEntryLine{
		{Account: PartyAccount("0xc1"), Direction: LedgerEntryDirectionDebit, Amount: 1000},
		{Account: PartyAccount("0x11"), Direction: LedgerEntryDirectionCredit, Amount: 999},
	}
	assert.ErrorIs(t, ValidateBalanced(unbalanced), ErrUnbalancedEntry)

	assert.ErrorIs(t, ValidateBalanced(balanced[:1]), ErrInvalidEntryLines)
}

func TestAccountNames(t *testing.T) {
	assert.Equal(t, LedgerAccount("party:0xabc"), PartyAccount(address.Address("0xabc")))
	assert.Equal(t, LedgerAccount("escrow:42"), EscrowAccount(42))
}

func TestSignedAmount(t *testing.T) {
	assert.Equal(t, int64(7), LedgerEntryLine{Direction: LedgerEntryDirectionCredit, Amount: 7}.SignedAmount())
	assert.Equal(t, int64(-7), LedgerEntryLine{Direction: LedgerEntryDirectionDebit, Amount: 7}.SignedAmount())
}
