package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/FranksOps/wisher/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
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
	time DATETIME NOT NULL,
	import_id TEXT NOT NULL,
	fetched_at DATETIME NOT NULL,
	PRIMARY KEY (game, id)
);
CREATE INDEX IF NOT EXISTS pulls_uid_time ON pulls (uid, time);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, pulls []*storage.Pull) (int, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO pulls (
		game, id, uid, gacha_type, item_id, name, item_type, rank_type, count, lang, time, import_id, fetched_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, p := range pulls {
		res, err := stmt.ExecContext(ctx,
			p.Game, p.ID, p.UID, p.GachaType, p.ItemID, p.Name, p.ItemType, p.RankType,
			p.Count, p.Lang, p.Time.UTC(), p.ImportID, p.FetchedAt.UTC(),
		)
		if err != nil {
			return 0, fmt.Errorf("sqlite: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("sqlite: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: %w", err)
	}
	return inserted, nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Pull, error) {
	query := `SELECT game, id, uid, gacha_type, item_id, name, item_type, rank_type, count, lang, time, import_id, fetched_at FROM pulls WHERE 1=1`
	args := []any{}

	if filter.Game != "" {
		query += ` AND game = ?`
		args = append(args, filter.Game)
	}
	if filter.UID != "" {
		query += ` AND uid = ?`
		args = append(args, filter.UID)
	}
	if filter.GachaType != "" {
		query += ` AND gacha_type = ?`
		args = append(args, filter.GachaType)
	}
	if filter.Since != nil {
		query += ` AND time >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY time DESC, id DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
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
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		pulls = append(pulls, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return pulls, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
