package service

import (
	"context"
	"errors"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/freya/internal/audit/domain"
	"github.com/smallbiznis/freya/internal/authorization"
	"github.com/smallbiznis/freya/internal/clock"
	"github.com/smallbiznis/freya/internal/config"
	disputedomain "github.com/smallbiznis/freya/internal/dispute/domain"
	escrowdomain "github.com/smallbiznis/freya/internal/escrow/domain"
	"github.com/smallbiznis/freya/internal/events"
	feedomain "github.com/smallbiznis/freya/internal/fee/domain"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	"github.com/smallbiznis/freya/internal/invoice/format"
	"github.com/smallbiznis/freya/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/freya/internal/observability/metrics"
	receiptdomain "github.com/smallbiznis/freya/internal/receipt/domain"
	"github.com/smallbiznis/freya/internal/store"
	"github.com/smallbiznis/freya/pkg/address"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	modeEscrow = "escrow"
	modeDirect = "direct"
)

type ServiceParam struct {
	fx.In

	Store    store.Store
	Log      *zap.Logger
	Clock    clock.Clock
	Config   *config.LedgerConfigHolder
	Vault    escrowdomain.Vault
	Disputes disputedomain.Resolver
	Receipts receiptdomain.Issuer
	Fees     feedomain.Distributor
	Authz    authorization.Service
	Outbox   *events.Outbox

	Audit      auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	store store.Store
	log   *zap.Logger
	clock clock.Clock
	cfg   *config.LedgerConfigHolder

	vault    escrowdomain.Vault
	disputes disputedomain.Resolver
	receipts receiptdomain.Issuer
	fees     feedomain.Distributor
	authz    authorization.Service
	outbox   *events.Outbox
	audit    auditdomain.Service

	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		store: p.Store,
		log:   p.Log.Named("invoice.service"),
		clock: p.Clock,
		cfg:   p.Config,

		vault:    p.Vault,
		disputes: p.Disputes,
		receipts: p.Receipts,
		fees:     p.Fees,
		authz:    p.Authz,
		outbox:   p.Outbox,
		audit:    p.Audit,

		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateInvoice(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	if req.Amount <= 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}
	if !req.Issuer.Valid() || !req.Client.Valid() || req.Issuer == req.Client {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidParty
	}
	now := s.now()
	if !req.DueDate.After(now) {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidDueDate
	}
	token := req.TokenAddress
	if token == "" {
		token = address.Native
	}

	var (
		invoice invoicedomain.Invoice
		batch   *events.Batch
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		batch = s.outbox.Batch(tx)

		id, err := tx.AllocateInvoiceID(ctx)
		if err != nil {
			return err
		}
		invoice = invoicedomain.Invoice{
			ID:           id,
			Issuer:       req.Issuer,
			Client:       req.Client,
			TokenAddress: token,
			Amount:       req.Amount,
			DueDate:      req.DueDate.UTC(),
			CreatedAt:    now,
			UpdatedAt:    now,
			Description:  strings.TrimSpace(req.Description),
			Status:       invoicedomain.InvoiceStatusCreated,
			UseEscrow:    req.UseEscrow,
		}
		if err := tx.InsertInvoice(ctx, &invoice); err != nil {
			return err
		}

		return batch.Add(ctx, events.Event{
			Type:      events.EventInvoiceCreated,
			InvoiceID: id,
			Payload: map[string]any{
				"number":     format.InvoiceNumber(now, id),
				"issuer":     invoice.Issuer.String(),
				"client":     invoice.Client.String(),
				"token":      invoice.TokenAddress.String(),
				"amount":     invoice.Amount,
				"due_date":   invoice.DueDate.Unix(),
				"use_escrow": invoice.UseEscrow,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	s.outbox.Dispatch(batch.Events()...)

	if s.obsMetrics != nil {
		s.obsMetrics.RecordInvoiceCreated(ctx, paymentMode(invoice))
	}
	logger.WithInvoice(s.log, invoice.ID).Info("invoice created",
		zap.String("issuer", invoice.Issuer.String()),
		zap.String("client", invoice.Client.String()),
		zap.Int64("amount", invoice.Amount),
		zap.Bool("use_escrow", invoice.UseEscrow),
	)
	return invoice.View(now), nil
}

func (s *Service) GetInvoice(ctx context.Context, id uint64) (invoicedomain.Invoice, error) {
	if id == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	invoice, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return invoice.View(s.now()), nil
}

func (s *Service) GetUserInvoices(ctx context.Context, issuer address.Address) ([]uint64, error) {
	ids, err := s.store.ListInvoiceIDsByIssuer(ctx, issuer)
	return nonNil(ids), err
}

func (s *Service) GetClientInvoices(ctx context.Context, client address.Address) ([]uint64, error) {
	ids, err := s.store.ListInvoiceIDsByClient(ctx, client)
	return nonNil(ids), err
}

func (s *Service) NextInvoiceID(ctx context.Context) (uint64, error) {
	return s.store.NextInvoiceID(ctx)
}

// lockInvoice loads the invoice for the rest of the transaction.
func (s *Service) lockInvoice(ctx context.Context, tx store.Tx, id uint64) (*invoicedomain.Invoice, error) {
	if id == 0 {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	invoice, err := tx.LockInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

// complete marks a fully paid invoice Completed and issues its receipt.
func (s *Service) complete(ctx context.Context, tx store.Tx, batch *events.Batch, invoice *invoicedomain.Invoice, now time.Time) (*receiptdomain.Receipt, error) {
	invoice.Status = invoicedomain.InvoiceStatusCompleted
	invoice.UpdatedAt = now
	if err := tx.UpdateInvoice(ctx, invoice); err != nil {
		return nil, err
	}

	receipt, err := s.receipts.Issue(ctx, tx, *invoice, now)
	if err != nil {
		return nil, err
	}

	if err := batch.Add(ctx, events.Event{
		Type:      events.EventInvoiceCompleted,
		InvoiceID: invoice.ID,
		Payload: map[string]any{
			"amount_paid": invoice.AmountPaid,
		},
		OccurredAt: now,
	}); err != nil {
		return nil, err
	}
	if err := batch.Add(ctx, events.Event{
		Type:      events.EventReceiptIssued,
		InvoiceID: invoice.ID,
		Payload: map[string]any{
			"token_id": receipt.TokenID,
			"owner":    receipt.Owner.String(),
			"amount":   receipt.Amount,
		},
		OccurredAt: now,
	}); err != nil {
		return nil, err
	}
	return receipt, nil
}

func feeEvent(invoiceID uint64, split feedomain.Split, now time.Time) events.Event {
	return events.Event{
		Type:      events.EventFeeDistributed,
		InvoiceID: invoiceID,
		Payload: map[string]any{
			"gross":           split.Gross,
			"fee":             split.Fee,
			"net":             split.Net,
			"basis_points":    split.BasisPoints,
			"recipient":       split.Recipient.String(),
			"ledger_entry_id": split.EntryID.String(),
		},
		OccurredAt: now,
	}
}

// logFatal records broken invariants; the caller still returns the error.
func (s *Service) logFatal(invoiceID uint64, op string, err error) {
	if errors.Is(err, receiptdomain.ErrReceiptExists) ||
		errors.Is(err, escrowdomain.ErrEscrowExists) ||
		errors.Is(err, store.ErrDuplicate) {
		logger.WithInvoice(s.log, invoiceID).Error("ledger invariant violated",
			zap.String("operation", op),
			zap.Error(err),
		)
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

func paymentMode(invoice invoicedomain.Invoice) string {
	if invoice.UseEscrow {
		return modeEscrow
	}
	return modeDirect
}

func nonNil(ids []uint64) []uint64 {
	if ids == nil {
		return []uint64{}
	}
	return ids
}
