package events

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/smallbiznis/freya/internal/observability/context"
	"go.uber.org/zap"
)

var ErrInvalidEvent = errors.New("invalid_event")

const correlationKey = "correlation_id"

// Appender stores events as part of an open transaction. Implementations
// set Seq on the appended event once the transaction commits.
type Appender interface {
	AppendEvent(ctx context.Context, event *Event) error
}

// Outbox records events transactionally and fans them out after commit.
type Outbox struct {
	genID *snowflake.Node
	hub   *Hub
	log   *zap.Logger
}

func NewOutbox(genID *snowflake.Node, hub *Hub, log *zap.Logger) *Outbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &Outbox{genID: genID, hub: hub, log: log.Named("events.outbox")}
}

// PublishTx assigns an ID and appends the event through tx. The request ID on
// ctx, if any, is recorded as the payload's correlation_id. The returned
// event carries its Seq only after tx commits.
func (o *Outbox) PublishTx(ctx context.Context, tx Appender, event Event) (*Event, error) {
	if event.Type == "" || event.OccurredAt.IsZero() {
		return nil, ErrInvalidEvent
	}
	ev := event
	ev.ID = o.genID.Generate()
	ev.Seq = 0
	ev.OccurredAt = ev.OccurredAt.UTC()
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
	if cid := obscontext.RequestIDFromContext(ctx); cid != "" {
		if _, ok := ev.Payload[correlationKey]; !ok {
			ev.Payload[correlationKey] = cid
		}
	}
	if err := tx.AppendEvent(ctx, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Dispatch forwards committed events to live subscribers.
func (o *Outbox) Dispatch(events ...Event) {
	if o == nil || o.hub == nil {
		return
	}
	for _, ev := range events {
		o.hub.Publish(ev)
		o.log.Debug("event dispatched",
			zap.String("type", string(ev.Type)),
			zap.Uint64("invoice_id", ev.InvoiceID),
			zap.String("event_id", ev.ID.String()),
			zap.Uint64("seq", ev.Seq),
		)
	}
}

// Batch collects events emitted inside one transaction.
type Batch struct {
	outbox *Outbox
	tx     Appender
	events []*Event
}

func (o *Outbox) Batch(tx Appender) *Batch {
	return &Batch{outbox: o, tx: tx}
}

func (b *Batch) Add(ctx context.Context, event Event) error {
	published, err := b.outbox.PublishTx(ctx, b.tx, event)
	if err != nil {
		return err
	}
	b.events = append(b.events, published)
	return nil
}

// Events returns the collected events. Call it after commit so each event
// carries its Seq.
func (b *Batch) Events() []Event {
	if b == nil {
		return nil
	}
	out := make([]Event, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, *ev)
	}
	return out
}
