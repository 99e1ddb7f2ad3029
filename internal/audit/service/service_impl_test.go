package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/freya/internal/audit/domain"
	"github.com/smallbiznis/freya/internal/clock"
	obscontext "github.com/smallbiznis/freya/internal/observability/context"
	"github.com/smallbiznis/freya/internal/store"
	"github.com/smallbiznis/freya/internal/store/memory"
	"github.com/smallbiznis/freya/pkg/address"
	"github.com/smallbiznis/freya/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const owner = address.Address("0x00000000000000000000000000000000000000aa")

var now = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (auditdomain.Service, *memory.Store) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	st := memory.New()
	svc := NewService(Params{Store: st, Log: zap.NewNop(), GenID: node, Clock: clock.NewFakeClock(now)})
	return svc, st
}

func TestLogRecordsActorAndRequestID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := obscontext.WithRequestID(context.Background(), "req-42")

	require.NoError(t, svc.Log(ctx, auditdomain.Entry{
		Actor:      owner,
		Action:     auditdomain.ActionRoleGranted,
		TargetType: auditdomain.TargetAccount,
		TargetID:   " 0xbb ",
		Metadata:   map[string]any{"role": "role:resolver", "": "dropped"},
	}))
	require.NoError(t, svc.Log(ctx, auditdomain.Entry{
		Actor:  address.System,
		Action: auditdomain.ActionDisputeResolved,
	}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 2)

	system := resp.AuditLogs[0]
	assert.Equal(t, auditdomain.ActorTypeSystem, system.ActorType)
	assert.Equal(t, "unknown", system.TargetType)

	grant := resp.AuditLogs[1]
	assert.Equal(t, auditdomain.ActorTypeAccount, grant.ActorType)
	assert.Equal(t, owner, grant.Actor)
	assert.Equal(t, "0xbb", grant.TargetID)
	assert.Equal(t, "req-42", grant.RequestID)
	assert.Equal(t, now, grant.CreatedAt)
	assert.Equal(t, "role:resolver", grant.Metadata["role"])
	assert.NotContains(t, grant.Metadata, "")
}

func TestLogRejectsInvalidEntries(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Log(ctx, auditdomain.Entry{Actor: owner, Action: " "}), auditdomain.ErrInvalidAction)
	assert.ErrorIs(t, svc.Log(ctx, auditdomain.Entry{Actor: address.Zero, Action: auditdomain.ActionRoleGranted}), auditdomain.ErrInvalidActor)
}

func TestRecordRollsBackWithTransaction(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := svc.Record(ctx, tx, auditdomain.Entry{Actor: owner, Action: auditdomain.ActionFeeRecipientSet}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.AuditLogs)
}

func TestListPagesNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	actions := []string{
		auditdomain.ActionRoleGranted,
		auditdomain.ActionFeeRecipientSet,
		auditdomain.ActionDisputeResolved,
	}
	for _, action := range actions {
		require.NoError(t, svc.Log(ctx, auditdomain.Entry{Actor: owner, Action: action}))
	}

	req := auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2}}
	first, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, auditdomain.ActionDisputeResolved, first.AuditLogs[0].Action)
	assert.Equal(t, auditdomain.ActionFeeRecipientSet, first.AuditLogs[1].Action)

	req.PageToken = first.NextPageToken
	second, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, auditdomain.ActionRoleGranted, second.AuditLogs[0].Action)

	filtered, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: auditdomain.ActionFeeRecipientSet})
	require.NoError(t, err)
	require.Len(t, filtered.AuditLogs, 1)
}

func TestListRejectsBadPageToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	token, err := pagination.EncodeCursor(pagination.Cursor{ID: "not-a-number"})
	require.NoError(t, err)
	_, err = svc.List(context.Background(), auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageToken: token}})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
