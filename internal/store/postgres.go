package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// SQL stores runs through database/sql for both Postgres (pgx) and SQLite;
// the dialect only changes placeholder syntax.
type SQL struct {
	db     *sql.DB
	rebind func(string) string
}

func NewPostgres(ctx context.Context, dsn string) (*SQL, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	p := &SQL{db: db, rebind: func(q string) string { return q }}
	if err := p.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *SQL) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *SQL) Close() error { return p.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS solver_runs (
    id          TEXT PRIMARY KEY,
    instance    TEXT NOT NULL,
    solver      TEXT NOT NULL,
    run_index   INTEGER NOT NULL,
    cost        DOUBLE PRECISION NOT NULL,
    feasible    BOOLEAN NOT NULL,
    attempts    INTEGER NOT NULL,
    genome      TEXT NOT NULL,
    duration_ns BIGINT NOT NULL,
    started_at  BIGINT NOT NULL,
    seed        BIGINT NOT NULL,
    host        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS solver_runs_instance_solver ON solver_runs (instance, solver, started_at)`

// Migrate creates the runs table when missing.
func (p *SQL) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *SQL) SaveRun(ctx context.Context, r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx, p.rebind(`INSERT INTO solver_runs (id, instance, solver, run_index, cost, feasible, attempts, genome, duration_ns, started_at, seed, host)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`),
		r.ID, r.Instance, r.Solver, r.Index, r.Cost, r.Feasible, r.Attempts, r.Genome,
		r.Duration.Nanoseconds(), r.StartedAt.UnixNano(), r.Seed, r.Host)
	if err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	return r.ID, nil
}

const runColumns = `id, instance, solver, run_index, cost, feasible, attempts, genome, duration_ns, started_at, seed, host`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var r Run
	var durNs, startNs int64
	if err := s.Scan(&r.ID, &r.Instance, &r.Solver, &r.Index, &r.Cost, &r.Feasible, &r.Attempts, &r.Genome, &durNs, &startNs, &r.Seed, &r.Host); err != nil {
		return Run{}, err
	}
	r.Duration = time.Duration(durNs)
	r.StartedAt = time.Unix(0, startNs)
	return r, nil
}

func (p *SQL) GetRun(ctx context.Context, id string) (Run, error) {
	row := p.db.QueryRowContext(ctx, p.rebind(`SELECT `+runColumns+` FROM solver_runs WHERE id=$1`), id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

func (p *SQL) ListRuns(ctx context.Context, f Filter) ([]Run, error) {
	q, args := listQuery(f)
	rows, err := p.db.QueryContext(ctx, p.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	out := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func listQuery(f Filter) (string, []any) {
	q := `SELECT ` + runColumns + ` FROM solver_runs`
	var where []string
	var args []any
	if f.Instance != "" {
		args = append(args, f.Instance)
		where = append(where, "instance=$"+strconv.Itoa(len(args)))
	}
	if f.Solver != "" {
		args = append(args, f.Solver)
		where = append(where, "solver=$"+strconv.Itoa(len(args)))
	}
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += ` LIMIT $` + strconv.Itoa(len(args))
	}
	return q, args
}

// questionMarks rewrites $N placeholders to ?. Arguments must appear in
// ascending order, which holds for every query in this package.
func questionMarks(q string) string {
	var b strings.Builder
	b.Grow(len(q))
	for i := 0; i < len(q); i++ {
		if q[i] == '$' && i+1 < len(q) && q[i+1] >= '0' && q[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(q) && q[i+1] >= '0' && q[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}
