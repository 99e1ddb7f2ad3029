package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/freya/internal/clock"
	escrowdomain "github.com/smallbiznis/freya/internal/escrow/domain"
	feedomain "github.com/smallbiznis/freya/internal/fee/domain"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/freya/internal/observability/metrics"
	"github.com/smallbiznis/freya/pkg/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type mockInvoices struct {
	invoicedomain.Service
	mock.Mock
}

func (m *mockInvoices) ReleaseEscrow(ctx context.Context, req invoicedomain.ReleaseEscrowRequest) (invoicedomain.Invoice, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(invoicedomain.Invoice), args.Error(1)
}

type mockVault struct {
	mock.Mock
}

func (m *mockVault) Deposit(context.Context, escrowdomain.Tx, invoicedomain.Invoice, address.Address, int64, time.Time) (*escrowdomain.Account, error) {
	panic("unexpected deposit")
}

func (m *mockVault) Release(context.Context, escrowdomain.Tx, invoicedomain.Invoice, time.Time) (*escrowdomain.Account, feedomain.Split, error) {
	panic("unexpected release")
}

func (m *mockVault) Refund(context.Context, escrowdomain.Tx, invoicedomain.Invoice, time.Time) (*escrowdomain.Account, error) {
	panic("unexpected refund")
}

func (m *mockVault) GetAccount(ctx context.Context, invoiceID uint64) (*escrowdomain.Account, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).(*escrowdomain.Account), args.Error(1)
}

func (m *mockVault) ListReleasable(ctx context.Context, at time.Time, limit int) ([]escrowdomain.Account, error) {
	args := m.Called(ctx, at, limit)
	return args.Get(0).([]escrowdomain.Account), args.Error(1)
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Enabled() bool { return true }

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockLocker) Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, token, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockLocker) Release(ctx context.Context, key, token string) error {
	return m.Called(ctx, key, token).Error(0)
}

func newTestScheduler(t *testing.T, invoices *mockInvoices, vault *mockVault) (*Scheduler, *prometheus.Registry) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	s, err := New(Params{
		Log:      zap.NewNop(),
		Invoices: invoices,
		Vault:    vault,
		GenID:    node,
		Clock:    clock.NewFakeClock(now),
		Config:   Config{BatchSize: 10},
		Metrics:  obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{ServiceName: "freya", Environment: "test"}),
	})
	require.NoError(t, err)
	return s, registry
}

func releaseReq(id uint64) invoicedomain.ReleaseEscrowRequest {
	return invoicedomain.ReleaseEscrowRequest{InvoiceID: id, Caller: address.System}
}

func TestEscrowReleaseJobReleasesBatchAsSystem(t *testing.T) {
	invoices := &mockInvoices{}
	vault := &mockVault{}
	s, registry := newTestScheduler(t, invoices, vault)

	vault.On("ListReleasable", mock.Anything, now, 10).Return([]escrowdomain.Account{
		{InvoiceID: 1, Amount: 100},
		{InvoiceID: 2, Amount: 200},
		{InvoiceID: 3, Amount: 300},
	}, nil)
	invoices.On("ReleaseEscrow", mock.Anything, releaseReq(1)).Return(invoicedomain.Invoice{ID: 1}, nil)
	invoices.On("ReleaseEscrow", mock.Anything, releaseReq(2)).Return(invoicedomain.Invoice{}, invoicedomain.ErrInvoiceDisputed)
	invoices.On("ReleaseEscrow", mock.Anything, releaseReq(3)).Return(invoicedomain.Invoice{ID: 3}, nil)

	require.NoError(t, s.RunOnce(context.Background()))
	invoices.AssertExpectations(t)
	vault.AssertExpectations(t)

	assert.Equal(t, float64(2), counterValue(t, registry, "freya_scheduler_batch_processed_total", map[string]string{
		"service": "freya", "env": "test", "job": jobEscrowRelease, "resource": "escrow_account",
	}))
	assert.Equal(t, float64(1), counterValue(t, registry, "freya_scheduler_batch_deferred_total", map[string]string{
		"service": "freya", "env": "test", "job": jobEscrowRelease, "reason": obsmetrics.SchedulerBatchDeferredReasonDisputed,
	}))
}

func TestEscrowReleaseJobJoinsUnexpectedErrors(t *testing.T) {
	invoices := &mockInvoices{}
	vault := &mockVault{}
	s, registry := newTestScheduler(t, invoices, vault)

	boom := errors.New("boom")
	vault.On("ListReleasable", mock.Anything, now, 10).Return([]escrowdomain.Account{{InvoiceID: 4}, {InvoiceID: 5}, {InvoiceID: 6}}, nil)
	invoices.On("ReleaseEscrow", mock.Anything, releaseReq(4)).Return(invoicedomain.Invoice{}, boom)
	invoices.On("ReleaseEscrow", mock.Anything, releaseReq(5)).Return(invoicedomain.Invoice{}, escrowdomain.ErrAlreadyReleased)
	invoices.On("ReleaseEscrow", mock.Anything, releaseReq(6)).Return(invoicedomain.Invoice{ID: 6}, nil)

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, escrowdomain.ErrAlreadyReleased)
	invoices.AssertNumberOfCalls(t, "ReleaseEscrow", 3)

	assert.Equal(t, float64(1), counterValue(t, registry, "freya_scheduler_job_errors_total", map[string]string{
		"service": "freya", "env": "test", "job": jobEscrowRelease, "reason": obsmetrics.SchedulerJobReasonUnknown,
	}))
}

func TestEscrowReleaseJobRefreshesLeaderLock(t *testing.T) {
	invoices := &mockInvoices{}
	vault := &mockVault{}
	s, _ := newTestScheduler(t, invoices, vault)
	locker := &mockLocker{}
	s.locker = locker
	fakeClock := s.clock.(*clock.FakeClock)
	ttl := s.cfg.LockTTL

	locker.On("TryLock", mock.Anything, escrowReleaseLockKey, ttl).Return("lease-1", true, nil).Once()
	locker.On("Refresh", mock.Anything, escrowReleaseLockKey, "lease-1", ttl).Return(true, nil).Twice()
	locker.On("Release", mock.Anything, escrowReleaseLockKey, "lease-1").Return(nil).Once()

	vault.On("ListReleasable", mock.Anything, now, 10).Return([]escrowdomain.Account{{InvoiceID: 1}, {InvoiceID: 2}, {InvoiceID: 3}}, nil)
	for id := uint64(1); id <= 3; id++ {
		invoices.On("ReleaseEscrow", mock.Anything, releaseReq(id)).
			Run(func(mock.Arguments) { fakeClock.Advance(ttl/2 + time.Second) }).
			Return(invoicedomain.Invoice{ID: id}, nil)
	}

	require.NoError(t, s.RunOnce(context.Background()))
	locker.AssertExpectations(t)
	invoices.AssertNumberOfCalls(t, "ReleaseEscrow", 3)
}

func TestEscrowReleaseJobStopsWhenLeaseIsLost(t *testing.T) {
	invoices := &mockInvoices{}
	vault := &mockVault{}
	s, registry := newTestScheduler(t, invoices, vault)
	locker := &mockLocker{}
	s.locker = locker
	fakeClock := s.clock.(*clock.FakeClock)
	ttl := s.cfg.LockTTL

	locker.On("TryLock", mock.Anything, escrowReleaseLockKey, ttl).Return("lease-1", true, nil)
	locker.On("Refresh", mock.Anything, escrowReleaseLockKey, "lease-1", ttl).Return(false, nil).Once()
	locker.On("Release", mock.Anything, escrowReleaseLockKey, "lease-1").Return(nil)

	vault.On("ListReleasable", mock.Anything, now, 10).Return([]escrowdomain.Account{{InvoiceID: 1}, {InvoiceID: 2}}, nil)
	invoices.On("ReleaseEscrow", mock.Anything, releaseReq(1)).
		Run(func(mock.Arguments) { fakeClock.Advance(ttl) }).
		Return(invoicedomain.Invoice{ID: 1}, nil)

	require.NoError(t, s.RunOnce(context.Background()))
	invoices.AssertNumberOfCalls(t, "ReleaseEscrow", 1)
	locker.AssertExpectations(t)

	assert.Equal(t, float64(1), counterValue(t, registry, "freya_scheduler_batch_processed_total", map[string]string{
		"service": "freya", "env": "test", "job": jobEscrowRelease, "resource": "escrow_account",
	}))
	assert.Equal(t, float64(1), counterValue(t, registry, "freya_scheduler_batch_deferred_total", map[string]string{
		"service": "freya", "env": "test", "job": jobEscrowRelease, "reason": obsmetrics.SchedulerBatchDeferredReasonLockHeld,
	}))
}

func TestEscrowReleaseJobSurfacesRefreshErrors(t *testing.T) {
	invoices := &mockInvoices{}
	vault := &mockVault{}
	s, _ := newTestScheduler(t, invoices, vault)
	locker := &mockLocker{}
	s.locker = locker
	fakeClock := s.clock.(*clock.FakeClock)
	ttl := s.cfg.LockTTL

	down := errors.New("redis down")
	locker.On("TryLock", mock.Anything, escrowReleaseLockKey, ttl).Return("lease-1", true, nil)
	locker.On("Refresh", mock.Anything, escrowReleaseLockKey, "lease-1", ttl).Return(false, down)
	locker.On("Release", mock.Anything, escrowReleaseLockKey, "lease-1").Return(nil)

	vault.On("ListReleasable", mock.Anything, now, 10).Return([]escrowdomain.Account{{InvoiceID: 1}, {InvoiceID: 2}}, nil)
	invoices.On("ReleaseEscrow", mock.Anything, releaseReq(1)).
		Run(func(mock.Arguments) { fakeClock.Advance(ttl) }).
		Return(invoicedomain.Invoice{ID: 1}, nil)

	err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, down)
	invoices.AssertNumberOfCalls(t, "ReleaseEscrow", 1)
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	s, registry := newTestScheduler(t, &mockInvoices{}, &mockVault{})

	err := s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	assert.Equal(t, float64(1), counterValue(t, registry, "freya_scheduler_job_errors_total", map[string]string{
		"service": "freya", "env": "test", "job": "timeout_job", "reason": obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if labelsMatch(metric, labels) {
				require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
