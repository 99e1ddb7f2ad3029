// Package domain contains the invoice record and its lifecycle rules.
package domain

import (
	"time"

	"github.com/smallbiznis/freya/pkg/address"
)

// InvoiceStatus represents invoice lifecycle states. Overdue is never stored.
type InvoiceStatus string

const (
	InvoiceStatusCreated   InvoiceStatus = "CREATED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusDisputed  InvoiceStatus = "DISPUTED"
	InvoiceStatusCompleted InvoiceStatus = "COMPLETED"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Terminal reports whether no further transition can leave s.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusCompleted || s == InvoiceStatusCancelled
}

// Invoice is a request for payment from Issuer to Client.
type Invoice struct {
	ID                uint64          `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Issuer            address.Address `gorm:"type:varchar(128);not null;index" json:"issuer"`
	Client            address.Address `gorm:"type:varchar(128);not null;index" json:"client"`
	TokenAddress      address.Address `gorm:"type:varchar(128);not null" json:"token_address"`
	Amount            int64           `gorm:"not null" json:"amount"`
	AmountPaid        int64           `gorm:"not null;default:0" json:"amount_paid"`
	DueDate           time.Time       `gorm:"not null" json:"due_date"`
	CreatedAt         time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null" json:"updated_at"`
	Description       string          `gorm:"type:text;not null" json:"description"`
	Status            InvoiceStatus   `gorm:"type:varchar(16);not null" json:"status"`
	UseEscrow         bool            `gorm:"not null;default:false" json:"use_escrow"`
	EscrowReleaseTime *time.Time      `json:"escrow_release_time,omitempty"`
	Disputed          bool            `gorm:"not null;default:false" json:"disputed"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Remaining is the amount still owed.
func (i Invoice) Remaining() int64 {
	return i.Amount - i.AmountPaid
}

// IsOverdue reports the derived Overdue condition at now.
func (i Invoice) IsOverdue(now time.Time) bool {
	return i.Status == InvoiceStatusCreated && i.AmountPaid == 0 && now.After(i.DueDate)
}

// EffectiveStatus is the status a reader observes at now.
func (i Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if i.IsOverdue(now) {
		return InvoiceStatusOverdue
	}
	return i.Status
}

// View returns a copy carrying the effective status at now.
func (i Invoice) View(now time.Time) Invoice {
	out := i.Clone()
	out.Status = i.EffectiveStatus(now)
	return out
}

// Clone returns a deep copy.
func (i Invoice) Clone() Invoice {
	out := i
	if i.EscrowReleaseTime != nil {
		t := *i.EscrowReleaseTime
		out.EscrowReleaseTime = &t
	}
	return out
}

// FullyPaid reports whether the invoice has been settled in full.
func (i Invoice) FullyPaid() bool {
	return i.AmountPaid == i.Amount
}
