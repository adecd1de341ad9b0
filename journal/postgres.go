package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"event-escrow/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS ticketing_notifications (
	id          UUID PRIMARY KEY,
	seq         BIGINT NOT NULL UNIQUE,
	kind        TEXT NOT NULL,
	topic       TEXT NOT NULL,
	event_id    BIGINT NOT NULL,
	account     TEXT,
	token       TEXT,
	name        TEXT,
	amount      NUMERIC(78, 0),
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ticketing_notifications_event ON ticketing_notifications (event_id);
`

const insertNotification = `
	INSERT INTO ticketing_notifications (id, seq, kind, topic, event_id, account, token, name, amount, recorded_at)
	VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, '')::NUMERIC, $10)
	ON CONFLICT (seq) DO NOTHING
`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres persists committed notifications so the log survives restarts and
// can be queried outside the process.
type Postgres struct {
	db     execer
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	return newPostgres(pool, logger)
}

func newPostgres(db execer, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{db: db, logger: logger}
}

// Connect opens a pool and checks it with a ping.
func Connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply journal schema: %w", err)
		}
	}
	return nil
}

// Publish inserts n. Re-delivery of a sequence number is ignored.
func (p *Postgres) Publish(ctx context.Context, n models.Notification) error {
	v := models.NewNotificationView(n)
	tag, err := p.db.Exec(ctx, insertNotification,
		uuid.New(),
		int64(n.Seq),
		v.Kind,
		v.Topic,
		int64(n.EventID),
		v.Account,
		v.Token,
		v.Name,
		v.Amount,
		n.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to journal notification %d: %w", n.Seq, err)
	}
	if tag.RowsAffected() == 0 {
		p.logger.Debug("notification already journaled", zap.Uint64("seq", n.Seq))
	}
	return nil
}
