package service

import (
	"context"
	"time"

	"github.com/smallbiznis/freya/internal/events"
	feedomain "github.com/smallbiznis/freya/internal/fee/domain"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/freya/internal/ledger/domain"
	"github.com/smallbiznis/freya/internal/observability/logger"
	"github.com/smallbiznis/freya/internal/store"
	"go.uber.org/zap"
)

// PayInvoice settles the full remaining amount. Escrow invoices move to Paid
// with funds in custody; direct invoices complete and receive a receipt.
func (s *Service) PayInvoice(ctx context.Context, req invoicedomain.PayInvoiceRequest) (invoicedomain.Invoice, error) {
	now := s.now()
	cfg := s.cfg.Get()

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
		if err := checkPayable(*invoice); err != nil {
			return err
		}
		if req.Payer != invoice.Client && !cfg.AllowThirdPartyPayment {
			return invoicedomain.ErrNotClient
		}
		if !req.Payer.Valid() {
			return invoicedomain.ErrNotClient
		}
		remaining := invoice.Remaining()
		if req.Amount > 0 && req.Amount < remaining {
			return invoicedomain.ErrPartialPaymentNotSupported
		}
		if req.Amount != remaining {
			return invoicedomain.ErrWrongAmount
		}

		if invoice.UseEscrow {
			return s.payIntoEscrow(ctx, tx, batch, invoice, req, now)
		}
		return s.payDirect(ctx, tx, batch, invoice, req, now)
	})
	if err != nil {
		if invoice != nil {
			s.logFatal(invoice.ID, "pay_invoice", err)
		}
		return invoicedomain.Invoice{}, err
	}
	s.outbox.Dispatch(batch.Events()...)

	if s.obsMetrics != nil {
		s.obsMetrics.RecordPayment(ctx, paymentMode(*invoice))
	}
	logger.WithInvoice(s.log, invoice.ID).Info("invoice paid",
		zap.String("payer", req.Payer.String()),
		zap.Int64("amount", req.Amount),
		zap.String("status", string(invoice.Status)),
	)
	return invoice.View(now), nil
}

func checkPayable(invoice invoicedomain.Invoice) error {
	if invoice.Disputed || invoice.Status == invoicedomain.InvoiceStatusDisputed {
		return invoicedomain.ErrInvoiceDisputed
	}
	switch invoice.Status {
	case invoicedomain.InvoiceStatusPaid, invoicedomain.InvoiceStatusCompleted:
		return invoicedomain.ErrAlreadySettled
	case invoicedomain.InvoiceStatusCancelled:
		return invoicedomain.ErrInvoiceCancelled
	}
	return nil
}

func (s *Service) payIntoEscrow(ctx context.Context, tx store.Tx, batch *events.Batch, invoice *invoicedomain.Invoice, req invoicedomain.PayInvoiceRequest, now time.Time) error {
	account, err := s.vault.Deposit(ctx, tx, *invoice, req.Payer, req.Amount, now)
	if err != nil {
		return err
	}

	releaseAt := account.ReleaseAt
	invoice.AmountPaid += req.Amount
	invoice.Status = invoicedomain.InvoiceStatusPaid
	invoice.EscrowReleaseTime = &releaseAt
	invoice.UpdatedAt = now
	if err := tx.UpdateInvoice(ctx, invoice); err != nil {
		return err
	}

	if err := batch.Add(ctx, paidEvent(invoice, req, now)); err != nil {
		return err
	}
	return batch.Add(ctx, events.Event{
		Type:      events.EventEscrowDeposited,
		InvoiceID: invoice.ID,
		Payload: map[string]any{
			"depositor":  account.Depositor.String(),
			"amount":     account.Amount,
			"release_at": account.ReleaseAt.Unix(),
		},
		OccurredAt: now,
	})
}

func (s *Service) payDirect(ctx context.Context, tx store.Tx, batch *events.Batch, invoice *invoicedomain.Invoice, req invoicedomain.PayInvoiceRequest, now time.Time) error {
	split, err := s.fees.Distribute(ctx, tx, feedomain.Settlement{
		InvoiceID:  invoice.ID,
		SourceType: ledgerdomain.SourceTypeSettlement,
		From:       ledgerdomain.PartyAccount(req.Payer),
		Issuer:     invoice.Issuer,
		Token:      invoice.TokenAddress,
		Amount:     req.Amount,
		OccurredAt: now,
	})
	if err != nil {
		return err
	}

	invoice.AmountPaid += req.Amount
	if err := batch.Add(ctx, paidEvent(invoice, req, now)); err != nil {
		return err
	}
	if err := batch.Add(ctx, feeEvent(invoice.ID, split, now)); err != nil {
		return err
	}
	_, err = s.complete(ctx, tx, batch, invoice, now)
	return err
}

func paidEvent(invoice *invoicedomain.Invoice, req invoicedomain.PayInvoiceRequest, now time.Time) events.Event {
	return events.Event{
		Type:      events.EventInvoicePaid,
		InvoiceID: invoice.ID,
		Payload: map[string]any{
			"payer":  req.Payer.String(),
			"amount": req.Amount,
			"token":  invoice.TokenAddress.String(),
			"escrow": invoice.UseEscrow,
		},
		OccurredAt: now,
	}
}
