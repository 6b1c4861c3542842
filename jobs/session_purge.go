package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"

	jobmetrics "github.com/agrimart/backoffice/internal/jobs"
)

// Execer is the subset of *pgxpool.Pool the purge job needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SessionPurgeJob deletes expired rows from the sessions table.
type SessionPurgeJob struct {
	db      Execer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewSessionPurgeJob builds the job.
func NewSessionPurgeJob(db Execer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionPurgeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionPurgeJob{db: db, logger: logger, metrics: metrics, now: time.Now}
}

// Handle processes TaskTypePurgeSessions tasks.
func (j *SessionPurgeJob) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := j.metrics.Track(TaskTypePurgeSessions)
	tag, err := j.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, j.now().UTC())
	if err != nil {
		j.logger.Error("purge sessions", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("expired sessions purged", slog.Int64("rows", tag.RowsAffected()))
	return tracker.End(nil)
}
