package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EventType string

const (
	EventInvoiceCreated   EventType = "invoice.created"
	EventInvoicePaid      EventType = "invoice.paid"
	EventInvoiceDisputed  EventType = "invoice.disputed"
	EventInvoiceCompleted EventType = "invoice.completed"
	EventInvoiceCancelled EventType = "invoice.cancelled"
	EventEscrowDeposited  EventType = "escrow.deposited"
	EventEscrowReleased   EventType = "escrow.released"
	EventEscrowRefunded   EventType = "escrow.refunded"
	EventDisputeResolved  EventType = "dispute.resolved"
	EventReceiptIssued    EventType = "receipt.issued"
	EventFeeDistributed   EventType = "fee.distributed"
	EventFeeRecipientSet  EventType = "fee.recipient_updated"
)

// Event is an append-only ledger notification. ID identifies the event; Seq
// is assigned by the store when the emitting transaction commits, so it
// follows commit order and is the feed cursor.
type Event struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	Seq        uint64            `gorm:"not null;uniqueIndex" json:"seq"`
	Type       EventType         `gorm:"type:varchar(64);not null;index" json:"type"`
	InvoiceID  uint64            `gorm:"not null;index" json:"invoice_id"`
	Payload    datatypes.JSONMap `json:"payload"`
	OccurredAt time.Time         `gorm:"not null" json:"occurred_at"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "ledger_events" }
