package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/freya/internal/authorization"
	disputedomain "github.com/smallbiznis/freya/internal/dispute/domain"
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
	Authz      authorization.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	store      store.Store
	authz      authorization.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) disputedomain.Resolver {
	return &Service{
		log:        p.Log.Named("dispute.service"),
		store:      p.Store,
		authz:      p.Authz,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Raise(ctx context.Context, tx disputedomain.Tx, invoiceID uint64, raisedBy address.Address, reason string, now time.Time) (*disputedomain.Dispute, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, disputedomain.ErrInvalidReason
	}

	existing, err := tx.GetDispute(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, disputedomain.ErrAlreadyDisputed
	}

	dispute := &disputedomain.Dispute{
		InvoiceID: invoiceID,
		Reason:    reason,
		RaisedBy:  raisedBy,
		RaisedAt:  now.UTC(),
		Outcome:   disputedomain.OutcomePending,
	}
	if err := tx.InsertDispute(ctx, dispute); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, disputedomain.ErrAlreadyDisputed
		}
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordDispute(ctx)
	}
	s.log.Info("dispute raised",
		zap.Uint64("invoice_id", invoiceID),
		zap.String("raised_by", raisedBy.String()),
	)
	return dispute, nil
}

func (s *Service) Resolve(ctx context.Context, tx disputedomain.Tx, invoiceID uint64, outcome disputedomain.Outcome, resolvedBy address.Address, now time.Time) (*disputedomain.Dispute, error) {
	if !outcome.Final() {
		return nil, disputedomain.ErrInvalidOutcome
	}
	if err := s.Authorize(ctx, resolvedBy); err != nil {
		return nil, err
	}

	dispute, err := tx.GetDispute(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if dispute == nil || !dispute.Pending() {
		return nil, disputedomain.ErrDisputeNotFound
	}

	resolvedAt := now.UTC()
	dispute.Outcome = outcome
	dispute.ResolvedBy = resolvedBy
	dispute.ResolvedAt = &resolvedAt
	if err := tx.UpdateDispute(ctx, dispute); err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordDisputeResolution(ctx, string(outcome))
	}
	s.log.Info("dispute resolved",
		zap.Uint64("invoice_id", invoiceID),
		zap.String("outcome", string(outcome)),
		zap.String("resolved_by", resolvedBy.String()),
	)
	return dispute, nil
}

func (s *Service) Authorize(ctx context.Context, resolvedBy address.Address) error {
	err := s.authz.Authorize(ctx, resolvedBy, authorization.ObjectDispute, authorization.ActionDisputeResolve)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authorization.ErrForbidden), errors.Is(err, authorization.ErrInvalidActor):
		return disputedomain.ErrNotResolver
	default:
		return err
	}
}

func (s *Service) Get(ctx context.Context, invoiceID uint64) (*disputedomain.Dispute, error) {
	dispute, err := s.store.GetDispute(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if dispute == nil {
		return nil, disputedomain.ErrDisputeNotFound
	}
	return dispute, nil
}
