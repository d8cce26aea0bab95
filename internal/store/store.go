package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Run is one finished solver invocation as recorded by the experiment driver.
type Run struct {
	ID        string
	Instance  string
	Solver    string
	Index     int
	Cost      float64
	Feasible  bool
	Attempts  int
	Genome    string
	Duration  time.Duration
	StartedAt time.Time
	Seed      int64
	Host      string
}

// Filter narrows ListRuns. Empty fields match everything.
type Filter struct {
	Instance string
	Solver   string
	Limit    int
}

func (f Filter) match(r Run) bool {
	return (f.Instance == "" || f.Instance == r.Instance) && (f.Solver == "" || f.Solver == r.Solver)
}

// Store is the persistence interface used by the experiment driver.
type Store interface {
	// SaveRun assigns an ID when r.ID is empty and returns it.
	SaveRun(ctx context.Context, r Run) (string, error)
	GetRun(ctx context.Context, id string) (Run, error)
	// ListRuns returns matching runs oldest first.
	ListRuns(ctx context.Context, f Filter) ([]Run, error)
	Close() error
}

var ErrNotFound = errors.New("not found")

// New picks a backend from dsn: empty for memory, postgres:// or
// postgresql:// for Postgres, sqlite:// or a *.db path for SQLite.
func New(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "":
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgres(ctx, dsn)
	case strings.HasPrefix(dsn, "sqlite://"):
		return NewSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "file:"), strings.HasSuffix(dsn, ".db"), dsn == ":memory:":
		return NewSQLite(ctx, dsn)
	}
	return nil, fmt.Errorf("store: unsupported DATABASE_URL %q", dsn)
}
