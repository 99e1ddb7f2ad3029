package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/freya/internal/audit/domain"
	"github.com/smallbiznis/freya/internal/config"
	"github.com/smallbiznis/freya/pkg/address"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectAudit   = "audit"
	ObjectDispute = "dispute"
	ObjectEscrow  = "escrow"
	ObjectFee     = "fee"
	ObjectRole    = "role"
)

const (
	ActionAuditRead      = "audit.read"
	ActionDisputeResolve = "dispute.resolve"
	ActionEscrowRelease  = "escrow.release"
	ActionFeeConfigure   = "fee.configure"
	ActionRoleGrant      = "role.grant"
)

const (
	RoleOwner    = "role:owner"
	RoleResolver = "role:resolver"
	RoleSystem   = "role:system"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Config   *config.LedgerConfigHolder `optional:"true"`
	Audit    auditdomain.Service        `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	audit    auditdomain.Service
}

type EnforcerParams struct {
	fx.In

	DB *gorm.DB `optional:"true"`
}

// NewEnforcer builds the role enforcer. Policies persist through the gorm
// adapter when a database is available and stay in memory otherwise.
func NewEnforcer(p EnforcerParams) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if p.DB != nil {
		adapter, err := gormadapter.NewAdapterByDB(p.DB)
		if err != nil {
			return nil, err
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
		if err != nil {
			return nil, err
		}
		enforcer.EnableAutoSave(true)
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err != nil {
			return nil, err
		}
	}
	enforcer.EnableAutoBuildRoleLinks(true)

	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) (Service, error) {
	svc := &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		audit:    p.Audit,
	}
	if p.Config != nil {
		if err := svc.SyncConfig(p.Config.Get()); err != nil {
			return nil, err
		}
		p.Config.OnChange(func(cfg config.LedgerConfig) {
			if err := svc.SyncConfig(cfg); err != nil {
				svc.log.Warn("failed to sync roles from ledger config", zap.Error(err))
			}
		})
	}
	return svc, nil
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor address.Address, object string, action string) error {
	subject := subjectFor(actor)
	if subject == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("actor", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) GrantRole(ctx context.Context, caller address.Address, subject address.Address, role string) error {
	role, err := normalizeRole(role)
	if err != nil {
		return err
	}
	if !subject.Valid() {
		return ErrInvalidActor
	}
	if err := s.Authorize(ctx, caller, ObjectRole, ActionRoleGrant); err != nil {
		return err
	}
	added, err := s.enforcer.AddGroupingPolicy(subjectFor(subject), role)
	if err != nil {
		return err
	}
	s.log.Info("role granted",
		zap.String("caller", caller.String()),
		zap.String("subject", subject.String()),
		zap.String("role", role),
	)
	s.writeAuditLog(ctx, caller, subject, role, added)
	return nil
}

// writeAuditLog records a grant after it is applied. The casbin adapter
// commits on its own, so a failed write is logged instead of returned.
func (s *ServiceImpl) writeAuditLog(ctx context.Context, caller, subject address.Address, role string, added bool) {
	if s.audit == nil {
		return
	}
	err := s.audit.Log(ctx, auditdomain.Entry{
		Actor:      caller,
		Action:     auditdomain.ActionRoleGranted,
		TargetType: auditdomain.TargetAccount,
		TargetID:   subject.String(),
		Metadata: map[string]any{
			"role":    role,
			"changed": added,
		},
	})
	if err != nil {
		s.log.Warn("failed to write role grant audit log", zap.String("role", role), zap.Error(err))
	}
}

func (s *ServiceImpl) HasRole(ctx context.Context, subject address.Address, role string) (bool, error) {
	role, err := normalizeRole(role)
	if err != nil {
		return false, err
	}
	return s.enforcer.HasRoleForUser(subjectFor(subject), role)
}

func (s *ServiceImpl) SyncConfig(cfg config.LedgerConfig) error {
	owner := cfg.OwnerAddress()
	if _, err := s.enforcer.RemoveFilteredGroupingPolicy(1, RoleOwner); err != nil {
		return err
	}
	if owner.Valid() {
		if _, err := s.enforcer.AddGroupingPolicy(subjectFor(owner), RoleOwner); err != nil {
			return err
		}
	}
	for _, resolver := range cfg.ResolverAddresses() {
		if _, err := s.enforcer.AddGroupingPolicy(subjectFor(resolver), RoleResolver); err != nil {
			return err
		}
	}
	return nil
}

func subjectFor(actor address.Address) string {
	if actor == address.System {
		return string(address.System)
	}
	if actor.IsZero() {
		return ""
	}
	return "account:" + actor.String()
}

func normalizeRole(role string) (string, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !strings.HasPrefix(role, "role:") {
		role = "role:" + role
	}
	switch role {
	case RoleOwner, RoleResolver:
		return role, nil
	default:
		return "", ErrInvalidRole
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleOwner, ObjectAudit, ActionAuditRead},
		{RoleOwner, ObjectDispute, ActionDisputeResolve},
		{RoleOwner, ObjectEscrow, ActionEscrowRelease},
		{RoleOwner, ObjectFee, ActionFeeConfigure},
		{RoleOwner, ObjectRole, ActionRoleGrant},

		{RoleResolver, ObjectDispute, ActionDisputeResolve},
		{RoleResolver, ObjectEscrow, ActionEscrowRelease},

		// Automated escrow sweeper.
		{RoleSystem, ObjectEscrow, ActionEscrowRelease},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	if _, err := enforcer.AddGroupingPolicy(string(address.System), RoleSystem); err != nil {
		return err
	}
	return nil
}
