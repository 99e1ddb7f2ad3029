// Package domain holds non-transferable payment receipts.
package domain

import (
	"time"

	"github.com/smallbiznis/freya/pkg/address"
)

// Receipt is permanent proof of a completed invoice. It is never mutated,
// transferred or deleted.
type Receipt struct {
	TokenID     uint64          `gorm:"primaryKey;autoIncrement:false" json:"token_id"`
	InvoiceID   uint64          `gorm:"not null;uniqueIndex" json:"invoice_id"`
	Issuer      address.Address `gorm:"type:varchar(128);not null" json:"issuer"`
	Owner       address.Address `gorm:"type:varchar(128);not null;index" json:"owner"`
	Token       address.Address `gorm:"type:varchar(128);not null" json:"token"`
	Amount      int64           `gorm:"not null" json:"amount"`
	PaidAt      time.Time       `gorm:"not null" json:"paid_at"`
	Description string          `gorm:"type:text;not null" json:"description"`
}

// TableName sets the database table name.
func (Receipt) TableName() string { return "receipts" }
