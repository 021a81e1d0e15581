package postgres

import (
	"context"
	"fmt"

	"github.com/FranksOps/wisher/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS pulls (
	game TEXT NOT NULL,
	id TEXT NOT NULL,
	uid TEXT NOT NULL,
	gacha_type TEXT NOT NULL,
	item_id TEXT NOT NULL,
	name TEXT NOT NULL,
	item_type TEXT NOT NULL,
	rank_type TEXT NOT NULL,
	count INTEGER NOT NULL,
	lang TEXT NOT NULL,
	time TIMESTAMPTZ NOT NULL,
	import_id TEXT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (game, id)
);
CREATE INDEX IF NOT EXISTS pulls_uid_time ON pulls (uid, time);
`

const insertPull = `
INSERT INTO pulls (
	game, id, uid, gacha_type, item_id, name, item_type, rank_type, count, lang, time, import_id, fetched_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (game, id) DO NOTHING
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, pulls []*storage.Pull) (int, error) {
	if len(pulls) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, p := range pulls {
		batch.Queue(insertPull,
			p.Game, p.ID, p.UID, p.GachaType, p.ItemID, p.Name, p.ItemType, p.RankType,
			p.Count, p.Lang, p.Time, p.ImportID, p.FetchedAt,
		)
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range pulls {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("postgres: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("postgres: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: %w", err)
	}
	return inserted, nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Pull, error) {
	query := `SELECT game, id, uid, gacha_type, item_id, name, item_type, rank_type, count, lang, time, import_id, fetched_at FROM pulls WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Game != "" {
		query += fmt.Sprintf(` AND game = $%d`, paramCount)
		args = append(args, filter.Game)
		paramCount++
	}
	if filter.UID != "" {
		query += fmt.Sprintf(` AND uid = $%d`, paramCount)
		args = append(args, filter.UID)
		paramCount++
	}
	if filter.GachaType != "" {
		query += fmt.Sprintf(` AND gacha_type = $%d`, paramCount)
		args = append(args, filter.GachaType)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND time >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY time DESC, id DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	defer rows.Close()

	var pulls []*storage.Pull
	for rows.Next() {
		var p storage.Pull
		err := rows.Scan(
			&p.Game, &p.ID, &p.UID, &p.GachaType, &p.ItemID, &p.Name, &p.ItemType, &p.RankType,
			&p.Count, &p.Lang, &p.Time, &p.ImportID, &p.FetchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		pulls = append(pulls, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return pulls, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
