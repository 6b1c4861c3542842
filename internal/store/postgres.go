package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Querier is the subset of *pgxpool.Pool used by PGTable.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Schema maps a row type onto a table. Columns must match the row's `db` tags
// and Values must return arguments in Columns order.
type Schema[R any] struct {
	Table    string
	Key      string
	Columns  []string
	Mutable  []string
	OrderBy  string
	Values   func(R) []any
	Touching string
}

// PGTable implements Table over PostgreSQL. Each call gets its own timeout so
// a slow store degrades a single operation instead of blocking callers.
type PGTable[R any] struct {
	db      Querier
	schema  Schema[R]
	timeout time.Duration
}

// NewPGTable builds a PGTable.
func NewPGTable[R any](db Querier, schema Schema[R], timeout time.Duration) *PGTable[R] {
	return &PGTable[R]{db: db, schema: schema, timeout: timeout}
}

// Select returns rows matching every filter column, in schema order.
func (t *PGTable[R]) Select(ctx context.Context, filter Filter) ([]R, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(t.schema.Columns, ", "), t.schema.Table)
	where, args, err := t.whereClause(filter)
	if err != nil {
		return nil, err
	}
	query += where
	if t.schema.OrderBy != "" {
		query += " ORDER BY " + t.schema.OrderBy
	}

	rows, err := t.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: select %s: %w", t.schema.Table, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[R])
	if err != nil {
		return nil, fmt.Errorf("store: scan %s: %w", t.schema.Table, err)
	}
	return out, nil
}

// Insert writes a row and returns the stored key.
func (t *PGTable[R]) Insert(ctx context.Context, row R) (string, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	values := t.schema.Values(row)
	placeholders := make([]string, len(values))
	for i := range values {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		t.schema.Table, strings.Join(t.schema.Columns, ", "), strings.Join(placeholders, ", "), t.schema.Key)

	var id string
	if err := t.db.QueryRow(ctx, query, values...).Scan(&id); err != nil {
		return "", t.mapError("insert", err)
	}
	return id, nil
}

// Update applies patch to the row with the given key.
func (t *PGTable[R]) Update(ctx context.Context, id string, patch Patch) error {
	if len(patch) == 0 {
		return nil
	}
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	columns := make([]string, 0, len(patch))
	for col := range patch {
		if !contains(t.schema.Mutable, col) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.schema.Table, col)
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	sets := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+1)
	for i, col := range columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, patch[col])
	}
	if t.schema.Touching != "" {
		sets = append(sets, t.schema.Touching+" = now()")
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		t.schema.Table, strings.Join(sets, ", "), t.schema.Key, len(args))

	tag, err := t.db.Exec(ctx, query, args...)
	if err != nil {
		return t.mapError("update", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the row with the given key.
func (t *PGTable[R]) Delete(ctx context.Context, id string) error {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", t.schema.Table, t.schema.Key)
	tag, err := t.db.Exec(ctx, query, id)
	if err != nil {
		return t.mapError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *PGTable[R]) whereClause(filter Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	columns := make([]string, 0, len(filter))
	for col := range filter {
		if !contains(t.schema.Columns, col) {
			return "", nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.schema.Table, col)
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)
	conds := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		conds[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args[i] = filter[col]
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (t *PGTable[R]) mapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return fmt.Errorf("store: %s %s: %w", op, t.schema.Table, err)
}

func (t *PGTable[R]) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
