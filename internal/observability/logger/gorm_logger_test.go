package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql, op, table string
	}{
		{`SELECT * FROM "invoices" WHERE id = $1 FOR UPDATE`, "SELECT", "invoices"},
		{`INSERT INTO "ledger_entry_lines" (id) VALUES ($1)`, "INSERT", "ledger_entry_lines"},
		{`UPDATE "escrow_accounts" SET state = $1`, "UPDATE", "escrow_accounts"},
		{`PRAGMA foreign_keys = ON`, "UNKNOWN", ""},
	}
	for _, tc := range cases {
		op, table := describeSQL(tc.sql)
		assert.Equal(t, tc.op, op, tc.sql)
		assert.Equal(t, tc.table, table, tc.sql)
	}
}

func TestGormTraceLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(GormLoggerConfig{Base: zap.New(core), Level: gormlogger.Warn, SlowThreshold: 100 * time.Millisecond})
	query := func() (string, int64) { return `SELECT * FROM "receipts"`, 0 }

	l.Trace(context.Background(), time.Now(), query, gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	l.Trace(context.Background(), time.Now(), query, errors.New("deadlock detected"))
	l.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
		assert.Equal(t, "receipts", entries[1].ContextMap()["table"])
	}
}
