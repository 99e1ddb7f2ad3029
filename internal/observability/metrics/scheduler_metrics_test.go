package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/freya/internal/authorization"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "forbidden",
			err:  authorization.ErrForbidden,
			want: SchedulerJobReasonForbidden,
		},
		{
			name: "lock_not_available",
			err:  fmt.Errorf("lock escrow: %w", &pgconn.PgError{Code: "55P03"}),
			want: SchedulerJobReasonDBContention,
		},
		{
			name: "sqlite_busy",
			err:  errors.New("database is locked (5) (SQLITE_BUSY)"),
			want: SchedulerJobReasonDBContention,
		},
		{
			name: "check_violation",
			err:  &pgconn.PgError{Code: "23514"},
			want: SchedulerJobReasonCheckViolation,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "freya",
		Environment: "test",
	})

	metrics.AddBatchProcessed("escrow_release", "escrow_accounts", 3)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("escrow_release", "escrow_accounts"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestRecordJobRunAndError(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{Environment: "test"})

	metrics.RecordJobRun("escrow_release", 20*time.Millisecond)
	metrics.RecordJobError("escrow_release", context.DeadlineExceeded)

	if got := testutil.ToFloat64(metrics.jobRuns.WithLabelValues("escrow_release")); got != 1 {
		t.Fatalf("expected 1 run, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.jobErrors.WithLabelValues("escrow_release", SchedulerJobReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected 1 deadline error, got %v", got)
	}
}
