package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/freya/internal/audit/domain"
	disputedomain "github.com/smallbiznis/freya/internal/dispute/domain"
	escrowdomain "github.com/smallbiznis/freya/internal/escrow/domain"
	"github.com/smallbiznis/freya/internal/events"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	"github.com/smallbiznis/freya/internal/observability/logger"
	"github.com/smallbiznis/freya/internal/store"
	"go.uber.org/zap"
)

func (s *Service) DisputeInvoice(ctx context.Context, req invoicedomain.DisputeInvoiceRequest) (invoicedomain.Invoice, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return invoicedomain.Invoice{}, disputedomain.ErrInvalidReason
	}
	now := s.now()

	var (
		invoice *invoicedomain.Invoice
		batch   *events.Batch
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		batch = s.outbox.Batch(tx)

		var err error
		invoice, err = s.lockInvoice(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if req.Caller != invoice.Client {
			return invoicedomain.ErrNotClient
		}
		if invoice.Disputed || invoice.Status == invoicedomain.InvoiceStatusDisputed {
			return invoicedomain.ErrAlreadyDisputed
		}
		switch invoice.Status {
		case invoicedomain.InvoiceStatusCompleted:
			return invoicedomain.ErrInvoiceCompleted
		case invoicedomain.InvoiceStatusCancelled:
			return invoicedomain.ErrInvoiceCancelled
		}

		if _, err := s.disputes.Raise(ctx, tx, invoice.ID, req.Caller, reason, now); err != nil {
			return err
		}

		invoice.Disputed = true
		invoice.Status = invoicedomain.InvoiceStatusDisputed
		invoice.UpdatedAt = now
		if err := tx.UpdateInvoice(ctx, invoice); err != nil {
			return err
		}

		return batch.Add(ctx, events.Event{
			Type:      events.EventInvoiceDisputed,
			InvoiceID: invoice.ID,
			Payload: map[string]any{
				"raised_by": req.Caller.String(),
				"reason":    reason,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	s.outbox.Dispatch(batch.Events()...)

	logger.WithInvoice(s.log, invoice.ID).Info("invoice disputed",
		zap.String("raised_by", req.Caller.String()),
	)
	return invoice.View(now), nil
}

// ResolveDispute applies a resolver's outcome. FavorClient cancels the invoice
// and refunds any held escrow. FavorIssuer restores the pre-dispute state, or
// completes the invoice when its escrow has already matured.
func (s *Service) ResolveDispute(ctx context.Context, req invoicedomain.ResolveDisputeRequest) (invoicedomain.Invoice, error) {
	if !req.Outcome.Final() {
		return invoicedomain.Invoice{}, disputedomain.ErrInvalidOutcome
	}
	if err := s.disputes.Authorize(ctx, req.Resolver); err != nil {
		return invoicedomain.Invoice{}, err
	}
	now := s.now()

	var (
		invoice *invoicedomain.Invoice
		batch   *events.Batch
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		batch = s.outbox.Batch(tx)

		var err error
		invoice, err = s.lockInvoice(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if !invoice.Disputed {
			return disputedomain.ErrDisputeNotFound
		}

		if _, err := s.disputes.Resolve(ctx, tx, invoice.ID, req.Outcome, req.Resolver, now); err != nil {
			return err
		}
		if err := batch.Add(ctx, events.Event{
			Type:      events.EventDisputeResolved,
			InvoiceID: invoice.ID,
			Payload: map[string]any{
				"outcome":     string(req.Outcome),
				"resolved_by": req.Resolver.String(),
			},
			OccurredAt: now,
		}); err != nil {
			return err
		}

		account, err := tx.GetEscrowAccount(ctx, invoice.ID)
		if err != nil {
			return err
		}
		held := account != nil && account.Held()

		invoice.Disputed = false
		invoice.UpdatedAt = now
		if req.Outcome == disputedomain.OutcomeFavorClient {
			err = s.favorClient(ctx, tx, batch, invoice, held, now)
		} else {
			err = s.favorIssuer(ctx, tx, batch, invoice, account, held, now)
		}
		if err != nil {
			return err
		}

		if s.audit == nil {
			return nil
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Actor:      req.Resolver,
			Action:     auditdomain.ActionDisputeResolved,
			TargetType: auditdomain.TargetInvoice,
			TargetID:   strconv.FormatUint(invoice.ID, 10),
			Metadata: map[string]any{
				"outcome":  string(req.Outcome),
				"status":   string(invoice.Status),
				"refunded": held && req.Outcome == disputedomain.OutcomeFavorClient,
			},
		})
	})
	if err != nil {
		if invoice != nil {
			s.logFatal(invoice.ID, "resolve_dispute", err)
		}
		return invoicedomain.Invoice{}, err
	}
	s.outbox.Dispatch(batch.Events()...)

	logger.WithInvoice(s.log, invoice.ID).Info("dispute resolved",
		zap.String("outcome", string(req.Outcome)),
		zap.String("resolved_by", req.Resolver.String()),
		zap.String("status", string(invoice.Status)),
	)
	return invoice.View(now), nil
}

func (s *Service) favorClient(ctx context.Context, tx store.Tx, batch *events.Batch, invoice *invoicedomain.Invoice, held bool, now time.Time) error {
	if held {
		refunded, err := s.vault.Refund(ctx, tx, *invoice, now)
		if err != nil {
			return err
		}
		if err := batch.Add(ctx, events.Event{
			Type:      events.EventEscrowRefunded,
			InvoiceID: invoice.ID,
			Payload: map[string]any{
				"client": refunded.Client.String(),
				"amount": refunded.Amount,
			},
			OccurredAt: now,
		}); err != nil {
			return err
		}
	}

	invoice.Status = invoicedomain.InvoiceStatusCancelled
	if err := tx.UpdateInvoice(ctx, invoice); err != nil {
		return err
	}
	return batch.Add(ctx, events.Event{
		Type:       events.EventInvoiceCancelled,
		InvoiceID:  invoice.ID,
		Payload:    map[string]any{"refunded": held},
		OccurredAt: now,
	})
}

func (s *Service) favorIssuer(ctx context.Context, tx store.Tx, batch *events.Batch, invoice *invoicedomain.Invoice, account *escrowdomain.Account, held bool, now time.Time) error {
	if !held {
		invoice.Status = invoicedomain.InvoiceStatusCreated
		return tx.UpdateInvoice(ctx, invoice)
	}
	if !account.Matured(now) {
		invoice.Status = invoicedomain.InvoiceStatusPaid
		return tx.UpdateInvoice(ctx, invoice)
	}
	return s.release(ctx, tx, batch, invoice, now)
}
