package install

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FranksOps/wisher/internal/cache"
	"github.com/FranksOps/wisher/internal/game"
	"github.com/FranksOps/wisher/internal/metrics"
	"github.com/sourcegraph/conc/pool"
)

// Result is the outcome of scanning one cache data file.
type Result struct {
	File DataFile
	// URLs are the extracted history URLs, most recent first.
	URLs []string
	// Err is set when the file could not be read. It only concerns this file.
	Err error
}

// Scanner reads and extracts cache data files.
type Scanner struct {
	concurrency int
	logger      *slog.Logger
}

// NewScanner creates a Scanner reading up to concurrency files at once.
func NewScanner(concurrency int, logger *slog.Logger) *Scanner {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{concurrency: concurrency, logger: logger}
}

// Scan processes files concurrently and returns one Result per file, in the
// order of files. A failure on one file never stops the others.
func (s *Scanner) Scan(ctx context.Context, files []DataFile) []Result {
	results := make([]Result, len(files))

	p := pool.New().WithMaxGoroutines(s.concurrency)
	for i, f := range files {
		p.Go(func() {
			results[i] = s.scanFile(ctx, f)
		})
	}
	p.Wait()

	return results
}

func (s *Scanner) scanFile(ctx context.Context, f DataFile) Result {
	res := Result{File: f}
	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("install: %w", err)
		return res
	}

	data, err := cache.ReadFile(f.Path)
	if err != nil {
		s.logger.Warn("failed to read cache file", "path", f.Path, "error", err)
		res.Err = err
		metrics.RecordScan(gameLabel(res.File), 0, err)
		return res
	}

	res.URLs = cache.Extract(data)
	if !res.File.GameKnown && len(res.URLs) > 0 {
		res.File.Game, res.File.GameKnown = game.FromURL(res.URLs[0])
	}

	s.logger.Debug("scanned cache file", "path", f.Path, "bytes", len(data), "urls", len(res.URLs))
	metrics.RecordScan(gameLabel(res.File), len(res.URLs), nil)
	return res
}

func gameLabel(f DataFile) string {
	if !f.GameKnown {
		return "unknown"
	}
	return f.Game.String()
}
