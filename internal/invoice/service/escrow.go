package service

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/freya/internal/authorization"
	escrowdomain "github.com/smallbiznis/freya/internal/escrow/domain"
	"github.com/smallbiznis/freya/internal/events"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	"github.com/smallbiznis/freya/internal/observability/logger"
	"github.com/smallbiznis/freya/internal/store"
	"github.com/smallbiznis/freya/pkg/address"
)

// ReleaseEscrow pays a matured escrow out to the issuer and completes the
// invoice. Callers other than the issuer need the escrow.release permission.
func (s *Service) ReleaseEscrow(ctx context.Context, req invoicedomain.ReleaseEscrowRequest) (invoicedomain.Invoice, error) {
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
		if err := s.authorizeRelease(ctx, *invoice, req.Caller); err != nil {
			return err
		}
		if !invoice.UseEscrow {
			return escrowdomain.ErrEscrowNotFound
		}
		return s.release(ctx, tx, batch, invoice, now)
	})
	if err != nil {
		if invoice != nil {
			s.logFatal(invoice.ID, "release_escrow", err)
		}
		return invoicedomain.Invoice{}, err
	}
	s.outbox.Dispatch(batch.Events()...)

	logger.WithActor(logger.WithInvoice(s.log, invoice.ID), req.Caller.String()).Info("escrow release completed")
	return invoice.View(now), nil
}

func (s *Service) authorizeRelease(ctx context.Context, invoice invoicedomain.Invoice, caller address.Address) error {
	if caller != "" && caller == invoice.Issuer {
		return nil
	}
	if s.authz == nil {
		return invoicedomain.ErrNotIssuer
	}
	err := s.authz.Authorize(ctx, caller, authorization.ObjectEscrow, authorization.ActionEscrowRelease)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authorization.ErrForbidden), errors.Is(err, authorization.ErrInvalidActor):
		return invoicedomain.ErrNotIssuer
	default:
		return err
	}
}

func (s *Service) release(ctx context.Context, tx store.Tx, batch *events.Batch, invoice *invoicedomain.Invoice, now time.Time) error {
	account, split, err := s.vault.Release(ctx, tx, *invoice, now)
	if err != nil {
		return err
	}
	if err := batch.Add(ctx, events.Event{
		Type:      events.EventEscrowReleased,
		InvoiceID: invoice.ID,
		Payload: map[string]any{
			"beneficiary": account.Beneficiary.String(),
			"amount":      account.Amount,
		},
		OccurredAt: now,
	}); err != nil {
		return err
	}
	if err := batch.Add(ctx, feeEvent(invoice.ID, split, now)); err != nil {
		return err
	}
	_, err = s.complete(ctx, tx, batch, invoice, now)
	return err
}
