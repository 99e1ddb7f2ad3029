// Package domain holds dispute records. A dispute is 0:1 with its invoice.
package domain

import (
	"strings"
	"time"

	"github.com/smallbiznis/freya/pkg/address"
)

type Outcome string

const (
	OutcomePending     Outcome = "PENDING"
	OutcomeFavorIssuer Outcome = "FAVOR_ISSUER"
	OutcomeFavorClient Outcome = "FAVOR_CLIENT"
)

// ParseOutcome accepts the wire spelling of a final outcome.
func ParseOutcome(raw string) (Outcome, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(OutcomeFavorIssuer), "ISSUER":
		return OutcomeFavorIssuer, nil
	case string(OutcomeFavorClient), "CLIENT":
		return OutcomeFavorClient, nil
	default:
		return "", ErrInvalidOutcome
	}
}

// Final reports whether o resolves a dispute.
func (o Outcome) Final() bool {
	return o == OutcomeFavorIssuer || o == OutcomeFavorClient
}

type Dispute struct {
	InvoiceID  uint64          `gorm:"primaryKey;autoIncrement:false" json:"invoice_id"`
	Reason     string          `gorm:"type:text;not null" json:"reason"`
	RaisedBy   address.Address `gorm:"type:varchar(128);not null" json:"raised_by"`
	RaisedAt   time.Time       `gorm:"not null" json:"raised_at"`
	Outcome    Outcome         `gorm:"type:varchar(16);not null" json:"outcome"`
	ResolvedBy address.Address `gorm:"type:varchar(128)" json:"resolved_by,omitempty"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

// TableName sets the database table name.
func (Dispute) TableName() string { return "disputes" }

func (d Dispute) Pending() bool {
	return d.Outcome == OutcomePending
}

func (d Dispute) Clone() Dispute {
	out := d
	if d.ResolvedAt != nil {
		t := *d.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}
