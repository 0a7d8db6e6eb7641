// Package catalog owns all durable state: generations, tags, references,
// collections and jobs, backed by a single sqlite database.
//
// One mutex serializes every operation. Methods are synchronous and short;
// nothing in this package performs network or provider I/O, so the lock is
// never held across a slow call.
package catalog

import (
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"imagegen/internal/models"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrJobTerminal indicates an attempted transition on a completed or
	// failed job.
	ErrJobTerminal = errors.New("job already terminal")
)

type Catalog struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *slog.Logger
}

// New wraps an opened (and migrated) database handle.
func New(db *sql.DB, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{db: db, logger: logger}
}

func now() string {
	return time.Now().Format(models.TimestampLayout)
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullToPtr[T any](valid bool, v T) *T {
	if !valid {
		return nil
	}
	return &v
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	out := make([]byte, 0, 2*n-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

