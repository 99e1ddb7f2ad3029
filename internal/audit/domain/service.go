package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/freya/pkg/address"
	"github.com/smallbiznis/freya/pkg/db/pagination"
)

// Writer persists audit logs inside an open transaction.
type Writer interface {
	InsertAuditLog(ctx context.Context, entry *AuditLog) error
}

// Entry describes one action to record.
type Entry struct {
	Actor      address.Address
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	// Record writes entry through w so it commits with the audited change.
	Record(ctx context.Context, w Writer, entry Entry) error
	// Log writes entry in its own transaction.
	Log(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidActor     = errors.New("invalid_actor")
	ErrInvalidPageToken = pagination.ErrInvalidPageToken
)
