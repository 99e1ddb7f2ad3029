package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/freya/internal/authorization"
	"github.com/smallbiznis/freya/internal/config"
	disputedomain "github.com/smallbiznis/freya/internal/dispute/domain"
	"github.com/smallbiznis/freya/internal/store"
	"github.com/smallbiznis/freya/internal/store/memory"
	"github.com/smallbiznis/freya/pkg/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	client   = address.Address("0x00000000000000000000000000000000000000c1")
	resolver = address.Address("0x00000000000000000000000000000000000000bb")
	stranger = address.Address("0x00000000000000000000000000000000000000cc")
)

var now = time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (disputedomain.Resolver, *memory.Store) {
	t.Helper()
	holder, err := config.NewStaticLedgerConfigHolder(config.LedgerConfig{
		EscrowPeriod: time.Hour,
		Resolvers:    []string{resolver.String()},
	})
	require.NoError(t, err)

	enforcer, err := authorization.NewEnforcer(authorization.EnforcerParams{})
	require.NoError(t, err)
	authz, err := authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer, Config: holder})
	require.NoError(t, err)

	st := memory.New()
	return NewService(Params{Log: zap.NewNop(), Store: st, Authz: authz}), st
}

func raise(t *testing.T, svc disputedomain.Resolver, st store.Store, invoiceID uint64, reason string) error {
	t.Helper()
	return st.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := svc.Raise(ctx, tx, invoiceID, client, reason, now)
		return err
	})
}

func resolve(t *testing.T, svc disputedomain.Resolver, st store.Store, invoiceID uint64, outcome disputedomain.Outcome, by address.Address) error {
	t.Helper()
	return st.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := svc.Resolve(ctx, tx, invoiceID, outcome, by, now.Add(time.Hour))
		return err
	})
}

func TestRaiseRecordsPendingDispute(t *testing.T) {
	svc, st := newTestService(t)

	require.NoError(t, raise(t, svc, st, 1, "  work not delivered: missing pages "))

	d, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "work not delivered: missing pages", d.Reason)
	assert.Equal(t, disputedomain.OutcomePending, d.Outcome)
	assert.Equal(t, client, d.RaisedBy)
	assert.True(t, now.Equal(d.RaisedAt))
}

func TestRaiseValidation(t *testing.T) {
	svc, st := newTestService(t)

	assert.ErrorIs(t, raise(t, svc, st, 1, "   "), disputedomain.ErrInvalidReason)

	require.NoError(t, raise(t, svc, st, 1, "late"))
	assert.ErrorIs(t, raise(t, svc, st, 1, "again"), disputedomain.ErrAlreadyDisputed)

	require.NoError(t, resolve(t, svc, st, 1, disputedomain.OutcomeFavorIssuer, resolver))
	assert.ErrorIs(t, raise(t, svc, st, 1, "after resolution"), disputedomain.ErrAlreadyDisputed)
}

func TestResolve(t *testing.T) {
	svc, st := newTestService(t)
	require.NoError(t, raise(t, svc, st, 1, "late"))

	assert.ErrorIs(t, resolve(t, svc, st, 1, disputedomain.OutcomePending, resolver), disputedomain.ErrInvalidOutcome)
	assert.ErrorIs(t, resolve(t, svc, st, 1, disputedomain.OutcomeFavorClient, stranger), disputedomain.ErrNotResolver)
	assert.ErrorIs(t, resolve(t, svc, st, 2, disputedomain.OutcomeFavorClient, resolver), disputedomain.ErrDisputeNotFound)

	require.NoError(t, resolve(t, svc, st, 1, disputedomain.OutcomeFavorClient, resolver))
	assert.ErrorIs(t, resolve(t, svc, st, 1, disputedomain.OutcomeFavorIssuer, resolver), disputedomain.ErrDisputeNotFound)

	d, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, disputedomain.OutcomeFavorClient, d.Outcome)
	assert.Equal(t, resolver, d.ResolvedBy)
	require.NotNil(t, d.ResolvedAt)
}

func TestAuthorize(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, resolver))
	assert.ErrorIs(t, svc.Authorize(ctx, stranger), disputedomain.ErrNotResolver)
	assert.ErrorIs(t, svc.Authorize(ctx, address.System), disputedomain.ErrNotResolver)
	assert.ErrorIs(t, svc.Authorize(ctx, ""), disputedomain.ErrNotResolver)
}

func TestGetUnknownDispute(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), 9)
	assert.ErrorIs(t, err, disputedomain.ErrDisputeNotFound)
}
