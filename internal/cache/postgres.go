package cache

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    expires_at TIMESTAMPTZ
);
`

// PgxPool is the slice of the pgx pool API the table-backed cache uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres is the persistent, table-backed cache. It survives process
// restarts, which keeps cold starts from hammering upstream providers.
// Expired rows are deleted lazily on read.
type Postgres struct {
	pool PgxPool
}

func NewPostgres(pool PgxPool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) RunMigrations(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, createCacheTable)
	return err
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt *time.Time
	err := p.pool.QueryRow(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = $1`, key,
	).Scan(&value, &expiresAt)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expiresAt != nil && expiresAt.Before(time.Now()) {
		_, _ = p.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key)
		return nil, false, nil
	}
	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO cache_entries (key, value, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt,
	)
	return err
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key)
	return err
}

func (p *Postgres) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := p.Get(ctx, key)
	return ok, err
}

func (p *Postgres) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	return getManySequential(ctx, p, keys)
}

func (p *Postgres) SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	return setManySequential(ctx, p, values, ttl)
}

// StartSweeper deletes expired rows every interval until ctx is cancelled,
// so the table does not grow without bound.
func (p *Postgres) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := p.Sweep(ctx); err != nil {
					log.Printf("cache sweep failed: %v", err)
				} else if n > 0 {
					log.Printf("cache sweep removed %d expired entries", n)
				}
			}
		}
	}()
}

// Sweep deletes all currently expired rows and reports how many went.
func (p *Postgres) Sweep(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
