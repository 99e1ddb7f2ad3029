package service

import (
	"context"
	"errors"
	"time"

	auditdomain "github.com/smallbiznis/freya/internal/audit/domain"
	"github.com/smallbiznis/freya/internal/authorization"
	"github.com/smallbiznis/freya/internal/clock"
	"github.com/smallbiznis/freya/internal/config"
	"github.com/smallbiznis/freya/internal/events"
	feedomain "github.com/smallbiznis/freya/internal/fee/domain"
	ledgerdomain "github.com/smallbiznis/freya/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/freya/internal/observability/metrics"
	"github.com/smallbiznis/freya/internal/store"
	"github.com/smallbiznis/freya/pkg/address"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Config *config.LedgerConfigHolder
	Ledger ledgerdomain.Service
	Authz  authorization.Service
	Store  store.Store

	Clock      clock.Clock         `optional:"true"`
	Outbox     *events.Outbox      `optional:"true"`
	Audit      auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	cfg        *config.LedgerConfigHolder
	ledger     ledgerdomain.Service
	authz      authorization.Service
	clock      clock.Clock
	store      store.Store
	outbox     *events.Outbox
	audit      auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) feedomain.Distributor {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		log:        p.Log.Named("fee.service"),
		cfg:        p.Config,
		ledger:     p.Ledger,
		authz:      p.Authz,
		clock:      clk,
		store:      p.Store,
		outbox:     p.Outbox,
		audit:      p.Audit,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) ComputeFee(amount int64) int64 {
	return feedomain.ComputeFee(amount, s.cfg.Get().FeeBasisPoints)
}

func (s *Service) Recipient(ctx context.Context) (address.Address, error) {
	return s.recipientFrom(ctx, s.store)
}

// recipientFrom falls back to config when no override is stored.
func (s *Service) recipientFrom(ctx context.Context, r feedomain.SettingReader) (address.Address, error) {
	if r != nil {
		raw, err := r.GetSetting(ctx, feedomain.SettingRecipientKey)
		if err != nil {
			return "", err
		}
		if override := address.Parse(raw); override.Valid() {
			return override, nil
		}
	}
	return s.cfg.Get().FeeRecipientAddress(), nil
}

func (s *Service) Distribute(ctx context.Context, w ledgerdomain.EntryWriter, settlement feedomain.Settlement) (feedomain.Split, error) {
	if settlement.InvoiceID == 0 || settlement.Amount <= 0 || settlement.From == "" || !settlement.Issuer.Valid() {
		return feedomain.Split{}, feedomain.ErrInvalidSettlement
	}

	bps := s.cfg.Get().FeeBasisPoints
	fee := feedomain.ComputeFee(settlement.Amount, bps)

	var recipient address.Address
	if fee > 0 {
		var reader feedomain.SettingReader = s.store
		if tx, ok := w.(feedomain.SettingReader); ok {
			reader = tx
		}
		var err error
		if recipient, err = s.recipientFrom(ctx, reader); err != nil {
			return feedomain.Split{}, err
		}
		if !recipient.Valid() {
			return feedomain.Split{}, feedomain.ErrRecipientNotConfigured
		}
	}
	net := settlement.Amount - fee

	lines := []ledgerdomain.LedgerEntryLine{
		{Account: settlement.From, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: settlement.Amount},
		{Account: ledgerdomain.PartyAccount(settlement.Issuer), Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: net},
	}
	if fee > 0 {
		lines = append(lines, ledgerdomain.LedgerEntryLine{
			Account:   ledgerdomain.PartyAccount(recipient),
			Direction: ledgerdomain.LedgerEntryDirectionCredit,
			Amount:    fee,
		})
	}

	entry, err := s.ledger.Post(ctx, w, ledgerdomain.PostRequest{
		InvoiceID:  settlement.InvoiceID,
		SourceType: settlement.SourceType,
		Token:      settlement.Token,
		OccurredAt: settlement.OccurredAt,
		Lines:      lines,
	})
	if err != nil {
		return feedomain.Split{}, err
	}

	if fee > 0 && s.obsMetrics != nil {
		s.obsMetrics.RecordFeeCollected(ctx, string(settlement.SourceType), fee)
	}

	split := feedomain.Split{
		Gross:       settlement.Amount,
		Fee:         fee,
		Net:         net,
		BasisPoints: bps,
		EntryID:     entry.ID,
	}
	if fee > 0 {
		split.Recipient = recipient
	}
	return split, nil
}

func (s *Service) SetRecipient(ctx context.Context, caller address.Address, recipient address.Address) error {
	if !recipient.Valid() {
		return feedomain.ErrInvalidRecipient
	}
	if err := s.authz.Authorize(ctx, caller, authorization.ObjectFee, authorization.ActionFeeConfigure); err != nil {
		if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, authorization.ErrInvalidActor) {
			return feedomain.ErrNotOwner
		}
		return err
	}

	now := s.now()
	var (
		previous address.Address
		batch    *events.Batch
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if previous, err = s.recipientFrom(ctx, tx); err != nil {
			return err
		}
		if err := tx.PutSetting(ctx, feedomain.SettingRecipientKey, recipient.String(), now); err != nil {
			return err
		}
		if s.outbox != nil {
			batch = s.outbox.Batch(tx)
			if err := batch.Add(ctx, events.Event{
				Type: events.EventFeeRecipientSet,
				Payload: map[string]any{
					"previous":  previous.String(),
					"recipient": recipient.String(),
				},
				OccurredAt: now,
			}); err != nil {
				return err
			}
		}
		if s.audit != nil {
			return s.audit.Record(ctx, tx, auditdomain.Entry{
				Actor:      caller,
				Action:     auditdomain.ActionFeeRecipientSet,
				TargetType: auditdomain.TargetFee,
				TargetID:   feedomain.SettingRecipientKey,
				Metadata: map[string]any{
					"previous":  previous.String(),
					"recipient": recipient.String(),
				},
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.outbox.Dispatch(batch.Events()...)

	s.log.Info("fee recipient updated",
		zap.String("caller", caller.String()),
		zap.String("previous", previous.String()),
		zap.String("recipient", recipient.String()),
	)
	return nil
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}
