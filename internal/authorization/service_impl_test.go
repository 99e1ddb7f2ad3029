package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/freya/internal/audit/domain"
	"github.com/smallbiznis/freya/internal/config"
	"github.com/smallbiznis/freya/pkg/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	owner    = address.Address("0x00000000000000000000000000000000000000aa")
	resolver = address.Address("0x00000000000000000000000000000000000000bb")
	stranger = address.Address("0x00000000000000000000000000000000000000cc")
)

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	enforcer, err := NewEnforcer(EnforcerParams{DB: db})
	require.NoError(t, err)

	holder, err := config.NewStaticLedgerConfigHolder(config.LedgerConfig{
		EscrowPeriod: time.Hour,
		Owner:        owner.String(),
		Resolvers:    []string{resolver.String()},
	})
	require.NoError(t, err)

	svc, err := NewService(Params{Log: zap.NewNop(), Enforcer: enforcer, Config: holder})
	require.NoError(t, err)
	return svc
}

func TestAuthorizeRoles(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, owner, ObjectDispute, ActionDisputeResolve))
	assert.NoError(t, svc.Authorize(ctx, resolver, ObjectDispute, ActionDisputeResolve))
	assert.ErrorIs(t, svc.Authorize(ctx, stranger, ObjectDispute, ActionDisputeResolve), ErrForbidden)

	assert.ErrorIs(t, svc.Authorize(ctx, resolver, ObjectFee, ActionFeeConfigure), ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, address.System, ObjectEscrow, ActionEscrowRelease))
	assert.ErrorIs(t, svc.Authorize(ctx, address.System, ObjectDispute, ActionDisputeResolve), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, "", ObjectDispute, ActionDisputeResolve), ErrInvalidActor)
}

func TestGrantRoleRequiresOwner(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.GrantRole(ctx, stranger, stranger, "resolver"), ErrForbidden)
	assert.ErrorIs(t, svc.GrantRole(ctx, owner, stranger, "admin"), ErrInvalidRole)

	require.NoError(t, svc.GrantRole(ctx, owner, stranger, "resolver"))
	has, err := svc.HasRole(ctx, stranger, RoleResolver)
	require.NoError(t, err)
	assert.True(t, has)
	assert.NoError(t, svc.Authorize(ctx, stranger, ObjectDispute, ActionDisputeResolve))
}

type recordingAudit struct {
	auditdomain.Service
	entries []auditdomain.Entry
}

func (r *recordingAudit) Log(_ context.Context, entry auditdomain.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func TestGrantRoleWritesAuditLog(t *testing.T) {
	enforcer, err := NewEnforcer(EnforcerParams{})
	require.NoError(t, err)
	holder, err := config.NewStaticLedgerConfigHolder(config.LedgerConfig{EscrowPeriod: time.Hour, Owner: owner.String()})
	require.NoError(t, err)
	audit := &recordingAudit{}
	svc, err := NewService(Params{Log: zap.NewNop(), Enforcer: enforcer, Config: holder, Audit: audit})
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, svc.GrantRole(ctx, stranger, stranger, "resolver"), ErrForbidden)
	assert.Empty(t, audit.entries)

	require.NoError(t, svc.GrantRole(ctx, owner, resolver, "resolver"))
	require.NoError(t, svc.GrantRole(ctx, owner, resolver, "resolver"))
	require.Len(t, audit.entries, 2)

	first := audit.entries[0]
	assert.Equal(t, owner, first.Actor)
	assert.Equal(t, auditdomain.ActionRoleGranted, first.Action)
	assert.Equal(t, auditdomain.TargetAccount, first.TargetType)
	assert.Equal(t, resolver.String(), first.TargetID)
	assert.Equal(t, RoleResolver, first.Metadata["role"])
	assert.Equal(t, true, first.Metadata["changed"])
	assert.Equal(t, false, audit.entries[1].Metadata["changed"])
}

func TestOnlyOwnerReadsAuditLogs(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, owner, ObjectAudit, ActionAuditRead))
	assert.ErrorIs(t, svc.Authorize(ctx, resolver, ObjectAudit, ActionAuditRead), ErrForbidden)
}

func TestSyncConfigReplacesOwner(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.SyncConfig(config.LedgerConfig{EscrowPeriod: time.Hour, Owner: stranger.String()}))

	assert.ErrorIs(t, svc.Authorize(ctx, owner, ObjectFee, ActionFeeConfigure), ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, stranger, ObjectFee, ActionFeeConfigure))
}

func TestGrantsPersistThroughGormAdapter(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:authz_persist?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	svc := newTestService(t, db)
	require.NoError(t, svc.GrantRole(context.Background(), owner, stranger, "resolver"))

	reloaded := newTestService(t, db)
	has, err := reloaded.HasRole(context.Background(), stranger, RoleResolver)
	require.NoError(t, err)
	assert.True(t, has)
}
