package cli

import (
	"context"
	"strings"

	"github.com/FranksOps/wisher/internal/storage"
	"github.com/FranksOps/wisher/internal/storage/csvbackend"
	"github.com/FranksOps/wisher/internal/storage/jsonbackend"
	"github.com/FranksOps/wisher/internal/storage/postgres"
	"github.com/FranksOps/wisher/internal/storage/sqlite"
)

// openStore picks a backend from the DSN prefix. Anything without a known
// prefix is a SQLite database path.
func openStore(ctx context.Context, dsn string) (storage.Backend, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.New(ctx, dsn)
	case strings.HasPrefix(dsn, "csv:"):
		return csvbackend.New(strings.TrimPrefix(dsn, "csv:"))
	case strings.HasPrefix(dsn, "json:"):
		return jsonbackend.New(strings.TrimPrefix(dsn, "json:"))
	}
	return sqlite.New(strings.TrimPrefix(dsn, "sqlite:"))
}
