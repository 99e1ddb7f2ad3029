package domain

import (
	"context"

	ledgerdomain "github.com/smallbiznis/freya/internal/ledger/domain"
	"github.com/smallbiznis/freya/pkg/address"
)

// SettingRecipientKey names the persisted fee recipient override.
const SettingRecipientKey = "fee.recipient"

// SettingReader reads persisted overrides. Transactions passed to Distribute
// implement it so the recipient is read inside the settlement.
type SettingReader interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

type Distributor interface {
	ComputeFee(amount int64) int64
	// Distribute posts one balanced entry: From debited, issuer and recipient credited.
	Distribute(ctx context.Context, w ledgerdomain.EntryWriter, s Settlement) (Split, error)
	// Recipient returns the persisted override, or ledger.fee_recipient when none is set.
	Recipient(ctx context.Context) (address.Address, error)
	SetRecipient(ctx context.Context, caller address.Address, recipient address.Address) error
}
