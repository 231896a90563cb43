package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsPurge removes expired session audit rows.
	TaskSessionsPurge = "sessions:purge"
)

// NewSessionsPurgeTask constructs the purge task. It carries no payload;
// expiry is decided against the clock at execution time.
func NewSessionsPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsPurge, nil)
}

// SessionsPurger deletes session rows whose tokens have already expired
// in Redis, keeping the audit table bounded.
type SessionsPurger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSessionsPurger constructs a SessionsPurger.
func NewSessionsPurger(pool *pgxpool.Pool, logger *slog.Logger) *SessionsPurger {
	return &SessionsPurger{pool: pool, logger: logger}
}

// Handle processes TaskSessionsPurge tasks.
func (p *SessionsPurger) Handle(ctx context.Context, t *asynq.Task) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return err
	}
	if n := tag.RowsAffected(); n > 0 {
		p.logger.Info("purged expired sessions", slog.Int64("count", n))
	}
	return nil
}
