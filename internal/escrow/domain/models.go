// Package domain holds escrow custody accounts, one per escrow-enabled invoice.
package domain

import (
	"time"

	"github.com/smallbiznis/freya/pkg/address"
)

type State string

const (
	StateHeld     State = "HELD"
	StateReleased State = "RELEASED"
	StateRefunded State = "REFUNDED"
)

// Account custodies an invoice payment until release or refund. It leaves
// Held exactly once.
type Account struct {
	InvoiceID   uint64          `gorm:"primaryKey;autoIncrement:false" json:"invoice_id"`
	Depositor   address.Address `gorm:"type:varchar(128);not null" json:"depositor"`
	Beneficiary address.Address `gorm:"type:varchar(128);not null" json:"beneficiary"`
	Client      address.Address `gorm:"type:varchar(128);not null" json:"client"`
	Token       address.Address `gorm:"type:varchar(128);not null" json:"token"`
	Amount      int64           `gorm:"not null" json:"amount"`
	Balance     int64           `gorm:"not null" json:"balance"`
	DepositedAt time.Time       `gorm:"not null" json:"deposited_at"`
	ReleaseAt   time.Time       `gorm:"not null;index" json:"release_at"`
	State       State           `gorm:"type:varchar(16);not null;index" json:"state"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "escrow_accounts" }

func (a Account) Held() bool {
	return a.State == StateHeld
}

// Matured reports whether the release time has been reached at now.
func (a Account) Matured(now time.Time) bool {
	return !now.Before(a.ReleaseAt)
}

func (a Account) Clone() Account {
	out := a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}
