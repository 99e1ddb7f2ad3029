package service

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/freya/internal/config"
	escrowdomain "github.com/smallbiznis/freya/internal/escrow/domain"
	feedomain "github.com/smallbiznis/freya/internal/fee/domain"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/freya/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/freya/internal/observability/metrics"
	"github.com/smallbiznis/freya/internal/store"
	"github.com/smallbiznis/freya/pkg/address"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Store      store.Store
	Config     *config.LedgerConfigHolder
	Ledger     ledgerdomain.Service
	Fees       feedomain.Distributor
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	store      store.Store
	cfg        *config.LedgerConfigHolder
	ledger     ledgerdomain.Service
	fees       feedomain.Distributor
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) escrowdomain.Vault {
	return &Service{
		log:        p.Log.Named("escrow.service"),
		store:      p.Store,
		cfg:        p.Config,
		ledger:     p.Ledger,
		fees:       p.Fees,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Deposit(ctx context.Context, tx escrowdomain.Tx, invoice invoicedomain.Invoice, payer address.Address, amount int64, now time.Time) (*escrowdomain.Account, error) {
	if amount <= 0 {
		return nil, invoicedomain.ErrWrongAmount
	}

	existing, err := tx.GetEscrowAccount(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.log.Error("second escrow deposit rejected", zap.Uint64("invoice_id", invoice.ID))
		return nil, fmt.Errorf("invoice %d: %w", invoice.ID, escrowdomain.ErrEscrowExists)
	}

	now = now.UTC()
	account := &escrowdomain.Account{
		InvoiceID:   invoice.ID,
		Depositor:   payer,
		Beneficiary: invoice.Issuer,
		Client:      invoice.Client,
		Token:       invoice.TokenAddress,
		Amount:      amount,
		Balance:     amount,
		DepositedAt: now,
		ReleaseAt:   now.Add(s.cfg.Get().EscrowPeriod),
		State:       escrowdomain.StateHeld,
	}

	if _, err := s.ledger.Post(ctx, tx, ledgerdomain.PostRequest{
		InvoiceID:  invoice.ID,
		SourceType: ledgerdomain.SourceTypeEscrowDeposit,
		Token:      account.Token,
		OccurredAt: now,
		Lines: []ledgerdomain.LedgerEntryLine{
			{Account: ledgerdomain.PartyAccount(payer), Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: amount},
			{Account: ledgerdomain.EscrowAccount(invoice.ID), Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: amount},
		},
	}); err != nil {
		return nil, err
	}
	if err := tx.InsertEscrowAccount(ctx, account); err != nil {
		return nil, err
	}

	s.recordMovement(ctx, "deposited")
	s.log.Info("escrow deposited",
		zap.Uint64("invoice_id", invoice.ID),
		zap.Int64("amount", amount),
		zap.Time("release_at", account.ReleaseAt),
	)
	return account, nil
}

func (s *Service) Release(ctx context.Context, tx escrowdomain.Tx, invoice invoicedomain.Invoice, now time.Time) (*escrowdomain.Account, feedomain.Split, error) {
	if invoice.Disputed {
		return nil, feedomain.Split{}, invoicedomain.ErrInvoiceDisputed
	}
	account, err := s.loadHeld(ctx, tx, invoice.ID)
	if err != nil {
		return nil, feedomain.Split{}, err
	}
	if !account.Matured(now) {
		return nil, feedomain.Split{}, escrowdomain.ErrEscrowLocked
	}

	now = now.UTC()
	split, err := s.fees.Distribute(ctx, tx, feedomain.Settlement{
		InvoiceID:  invoice.ID,
		SourceType: ledgerdomain.SourceTypeEscrowRelease,
		From:       ledgerdomain.EscrowAccount(invoice.ID),
		Issuer:     account.Beneficiary,
		Token:      account.Token,
		Amount:     account.Balance,
		OccurredAt: now,
	})
	if err != nil {
		return nil, feedomain.Split{}, err
	}

	account.Balance = 0
	account.State = escrowdomain.StateReleased
	account.ResolvedAt = &now
	if err := tx.UpdateEscrowAccount(ctx, account); err != nil {
		return nil, feedomain.Split{}, err
	}

	s.recordMovement(ctx, "released")
	s.log.Info("escrow released",
		zap.Uint64("invoice_id", invoice.ID),
		zap.Int64("net", split.Net),
		zap.Int64("fee", split.Fee),
	)
	return account, split, nil
}

func (s *Service) Refund(ctx context.Context, tx escrowdomain.Tx, invoice invoicedomain.Invoice, now time.Time) (*escrowdomain.Account, error) {
	account, err := s.loadHeld(ctx, tx, invoice.ID)
	if err != nil {
		return nil, err
	}

	now = now.UTC()
	if _, err := s.ledger.Post(ctx, tx, ledgerdomain.PostRequest{
		InvoiceID:  invoice.ID,
		SourceType: ledgerdomain.SourceTypeEscrowRefund,
		Token:      account.Token,
		OccurredAt: now,
		Lines: []ledgerdomain.LedgerEntryLine{
			{Account: ledgerdomain.EscrowAccount(invoice.ID), Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: account.Balance},
			{Account: ledgerdomain.PartyAccount(account.Client), Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: account.Balance},
		},
	}); err != nil {
		return nil, err
	}

	refunded := account.Balance
	account.Balance = 0
	account.State = escrowdomain.StateRefunded
	account.ResolvedAt = &now
	if err := tx.UpdateEscrowAccount(ctx, account); err != nil {
		return nil, err
	}

	s.recordMovement(ctx, "refunded")
	s.log.Info("escrow refunded",
		zap.Uint64("invoice_id", invoice.ID),
		zap.Int64("amount", refunded),
	)
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, invoiceID uint64) (*escrowdomain.Account, error) {
	account, err := s.store.GetEscrowAccount(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, escrowdomain.ErrEscrowNotFound
	}
	return account, nil
}

func (s *Service) ListReleasable(ctx context.Context, now time.Time, limit int) ([]escrowdomain.Account, error) {
	return s.store.ListReleasableEscrow(ctx, now, limit)
}

func (s *Service) loadHeld(ctx context.Context, tx escrowdomain.Tx, invoiceID uint64) (*escrowdomain.Account, error) {
	account, err := tx.GetEscrowAccount(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, escrowdomain.ErrEscrowNotFound
	}
	switch account.State {
	case escrowdomain.StateReleased:
		return nil, escrowdomain.ErrAlreadyReleased
	case escrowdomain.StateRefunded:
		return nil, escrowdomain.ErrAlreadyRefunded
	}
	return account, nil
}

func (s *Service) recordMovement(ctx context.Context, eventType string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordEscrowMovement(ctx, eventType)
	}
}
