package authorization

import (
	"context"

	"github.com/smallbiznis/freya/internal/config"
	"github.com/smallbiznis/freya/pkg/address"
)

type Service interface {
	// Authorize returns ErrForbidden when actor may not perform action on object.
	Authorize(ctx context.Context, actor address.Address, object string, action string) error
	// GrantRole assigns role to subject on behalf of caller.
	GrantRole(ctx context.Context, caller address.Address, subject address.Address, role string) error
	HasRole(ctx context.Context, subject address.Address, role string) (bool, error)
	// SyncConfig applies owner and resolver assignments from the ledger config.
	SyncConfig(cfg config.LedgerConfig) error
}
