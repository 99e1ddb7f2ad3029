package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freya/internal/clock"
	escrowdomain "github.com/smallbiznis/freya/internal/escrow/domain"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/freya/internal/observability/metrics"
	"github.com/smallbiznis/freya/internal/ratelimit"
	"github.com/smallbiznis/freya/pkg/address"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	jobEscrowRelease = "escrow_release"

	escrowReleaseLockKey = "freya:scheduler:escrow_release"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// leaseLocker is the leader lease held for the length of a sweep.
type leaseLocker interface {
	Enabled() bool
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Invoices invoicedomain.Service
	Vault    escrowdomain.Vault
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   Config                       `optional:"true"`
	Locker   *ratelimit.Locker            `optional:"true"`
	Metrics  *obsmetrics.SchedulerMetrics `optional:"true"`
}

// Scheduler periodically releases matured, undisputed escrow as the system actor.
type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	invoices invoicedomain.Service
	vault    escrowdomain.Vault
	locker   leaseLocker
	metrics  *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Invoices == nil || p.Vault == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		invoices: p.Invoices,
		vault:    p.Vault,
		locker:   leaseLockerFrom(p.Locker),
		metrics:  p.Metrics,
	}, nil
}

func leaseLockerFrom(l *ratelimit.Locker) leaseLocker {
	if l == nil {
		return nil
	}
	return l
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name, batchSize)
	s.logJobStart(ctx, run)

	err := fn(ctx)
	s.metrics.RecordJobRun(name, time.Since(start))
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	s.metrics.RecordJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, jobEscrowRelease, s.cfg.BatchSize, s.cfg.JobTimeout, s.EscrowReleaseJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.metrics.ObserveRunLoopLag(time.Since(nextRun))
			nextRun = nextRun.Add(s.cfg.RunInterval)
		}
	}
}

// EscrowReleaseJob releases one batch of matured escrow accounts. Items that
// became ineligible since listing are deferred, never retried in the same run.
func (s *Scheduler) EscrowReleaseJob(ctx context.Context) error {
	token, ok, err := s.acquireLeader(ctx)
	if err != nil || !ok {
		return err
	}
	defer s.releaseLeader(ctx, token)

	run := jobRunFromContext(ctx)
	accounts, err := s.vault.ListReleasable(ctx, s.clock.Now().UTC(), s.cfg.BatchSize)
	if err != nil {
		return err
	}

	var errs error
	released := 0
	lease := s.newLease(token)
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return errors.Join(errs, err)
		}
		held, keepErr := lease.keep(ctx)
		if keepErr != nil {
			errs = errors.Join(errs, keepErr)
		}
		if !held {
			break
		}

		_, err := s.invoices.ReleaseEscrow(ctx, invoicedomain.ReleaseEscrowRequest{
			InvoiceID: account.InvoiceID,
			Caller:    address.System,
		})
		switch {
		case err == nil:
			released++
			s.logEscrowReleased(ctx, account)
		case errors.Is(err, invoicedomain.ErrInvoiceDisputed):
			s.metrics.IncBatchDeferred(jobEscrowRelease, obsmetrics.SchedulerBatchDeferredReasonDisputed)
		case errors.Is(err, escrowdomain.ErrEscrowLocked):
			s.metrics.IncBatchDeferred(jobEscrowRelease, obsmetrics.SchedulerBatchDeferredReasonNotMatured)
		case errors.Is(err, escrowdomain.ErrAlreadyReleased), errors.Is(err, escrowdomain.ErrAlreadyRefunded):
		default:
			s.logSchedulerError(ctx, run, "escrow release failed", account.InvoiceID, err)
			errs = errors.Join(errs, fmt.Errorf("invoice %d: %w", account.InvoiceID, err))
		}
	}

	run.AddProcessed(released)
	s.metrics.AddBatchProcessed(jobEscrowRelease, "escrow_account", released)
	return errs
}

// acquireLeader returns ok=true without a token when no locker is configured.
func (s *Scheduler) acquireLeader(ctx context.Context) (string, bool, error) {
	if s.locker == nil || !s.locker.Enabled() {
		return "", true, nil
	}
	token, ok, err := s.locker.TryLock(ctx, escrowReleaseLockKey, s.cfg.LockTTL)
	switch {
	case err != nil:
		s.metrics.RecordLockAttempt(jobEscrowRelease, obsmetrics.LockOutcomeError)
		return "", false, err
	case !ok:
		s.metrics.RecordLockAttempt(jobEscrowRelease, obsmetrics.LockOutcomeHeld)
		s.metrics.IncBatchDeferred(jobEscrowRelease, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.logger(ctx).Debug("escrow release lock held elsewhere")
		return "", false, nil
	}
	s.metrics.RecordLockAttempt(jobEscrowRelease, obsmetrics.LockOutcomeAcquired)
	return token, true, nil
}

// lease tracks when the leader lock was last extended during a sweep.
type lease struct {
	s         *Scheduler
	token     string
	refreshed time.Time
}

func (s *Scheduler) newLease(token string) *lease {
	return &lease{s: s, token: token, refreshed: s.clock.Now()}
}

// keep extends the lock once half its TTL has elapsed. It reports false when
// another replica took the lock over.
func (l *lease) keep(ctx context.Context) (bool, error) {
	s := l.s
	if l.token == "" {
		return true, nil
	}
	now := s.clock.Now()
	if now.Sub(l.refreshed) < s.cfg.LockTTL/2 {
		return true, nil
	}
	ok, err := s.locker.Refresh(ctx, escrowReleaseLockKey, l.token, s.cfg.LockTTL)
	switch {
	case err != nil:
		s.metrics.RecordLockAttempt(jobEscrowRelease, obsmetrics.LockOutcomeError)
		return false, fmt.Errorf("refresh leader lock: %w", err)
	case !ok:
		s.metrics.RecordLockAttempt(jobEscrowRelease, obsmetrics.LockOutcomeHeld)
		s.metrics.IncBatchDeferred(jobEscrowRelease, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.logger(ctx).Warn("escrow release lock lost mid sweep")
		return false, nil
	}
	l.refreshed = now
	return true, nil
}

func (s *Scheduler) releaseLeader(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := s.locker.Release(context.WithoutCancel(ctx), escrowReleaseLockKey, token); err != nil {
		s.logger(ctx).Warn("failed to release scheduler lock", zap.Error(err))
	}
}
