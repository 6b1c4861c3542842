package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/agrimart/backoffice/internal/store"
)

const entryColumns = `id, actor, action, entity, target_id, target_email, details, occurred_at`

const timelineWhere = `
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::text IS NULL OR COALESCE(actor, 'system') = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR action = $5)`

// PGRepository stores the trail in audit_entries. It is both the trail's Sink
// and the activity viewer's Repository.
type PGRepository struct {
	db      store.Querier
	timeout time.Duration
}

// NewPGRepository builds a PGRepository.
func NewPGRepository(db store.Querier, timeout time.Duration) *PGRepository {
	return &PGRepository{db: db, timeout: timeout}
}

// Insert implements Sink.
func (r *PGRepository) Insert(ctx context.Context, entry Entry) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("audit: encode details: %w", err)
	}
	var actor pgtype.Text
	if entry.Actor != nil {
		actor = pgtype.Text{String: *entry.Actor, Valid: true}
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO audit_entries (`+entryColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, actor, string(entry.Action), string(entry.Entity), entry.TargetID, entry.TargetEmail, details, entry.At)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// TimelineWindow implements Repository.
func (r *PGRepository) TimelineWindow(ctx context.Context, q TimelineQuery) ([]Entry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	sql := `SELECT ` + entryColumns + ` FROM audit_entries` + timelineWhere +
		` ORDER BY occurred_at DESC, id DESC OFFSET $6 LIMIT $7`
	args := append(timelineArgs(q), q.Offset, q.Limit)
	return r.query(ctx, sql, args...)
}

// TimelineAll implements Repository.
func (r *PGRepository) TimelineAll(ctx context.Context, q TimelineQuery) ([]Entry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	sql := `SELECT ` + entryColumns + ` FROM audit_entries` + timelineWhere + ` ORDER BY occurred_at DESC, id DESC`
	return r.query(ctx, sql, timelineArgs(q)...)
}

// Recent returns the newest limit entries in chronological order, for seeding
// the in-memory trail.
func (r *PGRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	entries, err := r.query(ctx, `SELECT `+entryColumns+` FROM audit_entries ORDER BY occurred_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (r *PGRepository) query(ctx context.Context, sql string, args ...any) ([]Entry, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query timeline: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("audit: scan timeline: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		e       Entry
		actor   pgtype.Text
		action  string
		entity  string
		details []byte
		at      pgtype.Timestamptz
	)
	if err := row.Scan(&e.ID, &actor, &action, &entity, &e.TargetID, &e.TargetEmail, &details, &at); err != nil {
		return Entry{}, err
	}
	if actor.Valid {
		v := actor.String
		e.Actor = &v
	}
	e.Action = Action(action)
	e.Entity = Entity(entity)
	e.Details = map[string]any{}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return Entry{}, fmt.Errorf("audit: decode details of %s: %w", e.ID, err)
		}
	}
	if at.Valid {
		e.At = at.Time.UTC()
	}
	return e, nil
}

func timelineArgs(q TimelineQuery) []any {
	return []any{toPgTime(q.From), toPgTime(q.To), optionalText(q.Actor), optionalText(q.Entity), optionalText(q.Action)}
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func (r *PGRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
