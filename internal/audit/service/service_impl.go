package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/freya/internal/audit/domain"
	"github.com/smallbiznis/freya/internal/clock"
	obscontext "github.com/smallbiznis/freya/internal/observability/context"
	"github.com/smallbiznis/freya/internal/store"
	"github.com/smallbiznis/freya/pkg/address"
	"github.com/smallbiznis/freya/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Store store.Store
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	store store.Store
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		store: p.Store,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: clk,
	}
}

func (s *Service) Record(ctx context.Context, w auditdomain.Writer, entry auditdomain.Entry) error {
	log, err := s.build(ctx, entry)
	if err != nil {
		return err
	}
	if err := w.InsertAuditLog(ctx, log); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", log.Action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) Log(ctx context.Context, entry auditdomain.Entry) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return s.Record(ctx, tx, entry)
	})
}

func (s *Service) build(ctx context.Context, entry auditdomain.Entry) (*auditdomain.AuditLog, error) {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return nil, auditdomain.ErrInvalidAction
	}
	actorType := auditdomain.ActorTypeAccount
	switch {
	case entry.Actor == address.System:
		actorType = auditdomain.ActorTypeSystem
	case !entry.Actor.Valid():
		return nil, auditdomain.ErrInvalidActor
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	metadata := datatypes.JSONMap{}
	for key, value := range entry.Metadata {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	return &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  actorType,
		Actor:      entry.Actor,
		Action:     action,
		TargetType: targetType,
		TargetID:   strings.TrimSpace(entry.TargetID),
		Metadata:   metadata,
		RequestID:  obscontext.RequestIDFromContext(ctx),
		CreatedAt:  s.clock.Now().UTC(),
	}, nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	var before snowflake.ID
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		before, err = snowflake.ParseString(strings.TrimSpace(cursor.ID))
		if err != nil || before == 0 {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
	}

	limit := req.Limit()
	items, err := s.store.ListAuditLogs(ctx, auditdomain.ListFilter{
		Action:     strings.TrimSpace(req.Action),
		TargetType: strings.TrimSpace(req.TargetType),
		TargetID:   strings.TrimSpace(req.TargetID),
		Before:     before,
		Limit:      limit + 1,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	items, info, err := pagination.BuildCursorPageInfo(items, limit, func(item auditdomain.AuditLog) string {
		return item.ID.String()
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}
	return auditdomain.ListAuditLogResponse{PageInfo: info, AuditLogs: items}, nil
}
