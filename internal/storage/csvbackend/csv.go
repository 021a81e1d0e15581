package csvbackend

import (
	"cmp"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/wisher/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
	seen map[string]struct{}
}

// headers defines the CSV column order
var headers = []string{
	"game",
	"id",
	"uid",
	"gacha_type",
	"item_id",
	"name",
	"item_type",
	"rank_type",
	"count",
	"lang",
	"time",
	"import_id",
	"fetched_at",
}

// New creates a new CSV-backed storage.Backend. A header row is written to
// empty files; existing rows are read once to learn which pulls are stored.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: %w", err)
		}
	}

	b := &csvBackend{file: f, seen: make(map[string]struct{})}
	err = b.scan(func(p *storage.Pull) {
		b.seen[key(p)] = struct{}{}
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	return b, nil
}

func key(p *storage.Pull) string {
	return p.Game + "\x00" + p.ID
}

func (b *csvBackend) Save(ctx context.Context, pulls []*storage.Pull) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return 0, fmt.Errorf("csvbackend: %w", err)
	}

	w := csv.NewWriter(b.file)
	var added []string
	for _, p := range pulls {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("csvbackend: %w", err)
		}
		k := key(p)
		if _, ok := b.seen[k]; ok {
			continue
		}
		if err := w.Write(record(p)); err != nil {
			return 0, fmt.Errorf("csvbackend: %w", err)
		}
		b.seen[k] = struct{}{}
		added = append(added, k)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		for _, k := range added {
			delete(b.seen, k)
		}
		return 0, fmt.Errorf("csvbackend: %w", err)
	}
	return len(added), nil
}

func record(p *storage.Pull) []string {
	return []string{
		p.Game,
		p.ID,
		p.UID,
		p.GachaType,
		p.ItemID,
		p.Name,
		p.ItemType,
		p.RankType,
		strconv.Itoa(p.Count),
		p.Lang,
		p.Time.UTC().Format(time.RFC3339),
		p.ImportID,
		p.FetchedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseRecord(rec []string) (*storage.Pull, error) {
	count, err := strconv.Atoi(rec[8])
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, rec[10])
	if err != nil {
		return nil, err
	}
	fetchedAt, _ := time.Parse(time.RFC3339Nano, rec[12])

	return &storage.Pull{
		Game:      rec[0],
		ID:        rec[1],
		UID:       rec[2],
		GachaType: rec[3],
		ItemID:    rec[4],
		Name:      rec[5],
		ItemType:  rec[6],
		RankType:  rec[7],
		Count:     count,
		Lang:      rec[9],
		Time:      t,
		ImportID:  rec[11],
		FetchedAt: fetchedAt,
	}, nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Pull, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var matched []*storage.Pull
	err := b.scan(func(p *storage.Pull) {
		if filter.Match(p) {
			matched = append(matched, p)
		}
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(matched, func(x, y *storage.Pull) int {
		if c := y.Time.Compare(x.Time); c != 0 {
			return c
		}
		return cmp.Compare(y.ID, x.ID)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*storage.Pull{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// scan calls fn for every well-formed row. The caller must hold mu or own b.
func (b *csvBackend) scan(fn func(*storage.Pull)) error {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	r.FieldsPerRecord = -1

	// Read headers
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("csvbackend: %w", err)
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("csvbackend: %w", err)
		}
		if len(rec) != len(headers) {
			continue // skip malformed rows
		}
		p, err := parseRecord(rec)
		if err != nil {
			continue
		}
		fn(p)
	}
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
