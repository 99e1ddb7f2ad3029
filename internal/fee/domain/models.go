// Package domain describes the basis-point protocol fee.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/freya/internal/ledger/domain"
	"github.com/smallbiznis/freya/pkg/address"
)

const BasisPointsDenominator = 10_000

// ComputeFee returns floor(amount*bps/10000) without overflowing int64.
func ComputeFee(amount, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount/BasisPointsDenominator)*bps + (amount%BasisPointsDenominator)*bps/BasisPointsDenominator
}

// Settlement moves Amount out of From into the issuer and fee recipient.
type Settlement struct {
	InvoiceID  uint64
	SourceType ledgerdomain.LedgerSourceType
	From       ledgerdomain.LedgerAccount
	Issuer     address.Address
	Token      address.Address
	Amount     int64
	OccurredAt time.Time
}

// Split is the outcome of routing one settlement.
type Split struct {
	Gross       int64           `json:"gross"`
	Fee         int64           `json:"fee"`
	Net         int64           `json:"net"`
	BasisPoints int64           `json:"basis_points"`
	Recipient   address.Address `json:"recipient"`
	EntryID     snowflake.ID    `json:"ledger_entry_id"`
}
