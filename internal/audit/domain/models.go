package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freya/pkg/address"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeAccount ActorType = "account"
	ActorTypeSystem  ActorType = "system"
)

const (
	ActionDisputeResolved = "dispute.resolved"
	ActionFeeRecipientSet = "fee.recipient_set"
	ActionRoleGranted     = "role.granted"
)

const (
	TargetInvoice = "invoice"
	TargetFee     = "fee"
	TargetAccount = "account"
)

// AuditLog records an administrative action against the ledger.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType  ActorType         `gorm:"type:varchar(16);not null" json:"actor_type"`
	Actor      address.Address   `gorm:"type:varchar(128);not null;index" json:"actor"`
	Action     string            `gorm:"type:varchar(64);not null;index" json:"action"`
	TargetType string            `gorm:"type:varchar(32);not null" json:"target_type"`
	TargetID   string            `gorm:"type:varchar(128);index" json:"target_id"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	RequestID  string            `gorm:"type:varchar(64)" json:"request_id,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// ListFilter selects audit logs newest first. Before, when non-zero, is the
// id of the last row of the previous page.
type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	Before     snowflake.ID
	Limit      int
}
