package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Violation classifies driver errors that the ledger store translates.
type Violation int

const (
	ViolationNone Violation = iota
	ViolationUnique
	ViolationCheck
	ViolationContention
)

func (v Violation) String() string {
	switch v {
	case ViolationUnique:
		return "unique"
	case ViolationCheck:
		return "check"
	case ViolationContention:
		return "contention"
	default:
		return "none"
	}
}

var pgCodes = map[string]Violation{
	"23505": ViolationUnique,
	"23514": ViolationCheck,
	"40001": ViolationContention, // serialization_failure
	"40P01": ViolationContention, // deadlock_detected
	"55P03": ViolationContention, // lock_not_available
}

// Message fragments for drivers that do not surface pgconn errors.
var messageHints = []struct {
	fragment  string
	violation Violation
}{
	{"duplicate key value violates unique constraint", ViolationUnique},
	{"Error 1062", ViolationUnique},
	{"UNIQUE constraint failed", ViolationUnique},
	{"violates check constraint", ViolationCheck},
	{"CHECK constraint failed", ViolationCheck},
	{"Error 3819", ViolationCheck},
	{"database is locked", ViolationContention},
	{"Error 1213", ViolationContention},
}

// Classify maps err to a Violation across postgres, mysql and sqlite.
func Classify(err error) Violation {
	if err == nil {
		return ViolationNone
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ViolationUnique
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if v, ok := pgCodes[pgErr.Code]; ok {
			return v
		}
		return ViolationNone
	}

	msg := err.Error()
	for _, hint := range messageHints {
		if strings.Contains(msg, hint.fragment) {
			return hint.violation
		}
	}
	return ViolationNone
}

func IsDuplicateKeyErr(err error) bool {
	return Classify(err) == ViolationUnique
}

// ConstraintName returns the violated constraint or "table.column" when the
// driver reports one, and "" otherwise.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, prefix := range []string{"UNIQUE constraint failed: ", "CHECK constraint failed: "} {
		if idx := strings.Index(msg, prefix); idx >= 0 {
			name := msg[idx+len(prefix):]
			if cut := strings.IndexAny(name, " ,("); cut >= 0 {
				name = name[:cut]
			}
			return name
		}
	}
	return ""
}
