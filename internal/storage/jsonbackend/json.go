package jsonbackend

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/FranksOps/wisher/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
	seen map[string]struct{}
}

// New creates a new NDJSON-backed storage.Backend. Existing lines are read
// once to learn which pulls are already stored.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("jsonbackend: %w", err)
	}

	b := &jsonBackend{file: f, seen: make(map[string]struct{})}
	err = b.scan(func(p *storage.Pull) {
		b.seen[key(p)] = struct{}{}
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return b, nil
}

func key(p *storage.Pull) string {
	return p.Game + "\x00" + p.ID
}

func (b *jsonBackend) Save(ctx context.Context, pulls []*storage.Pull) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := bufio.NewWriter(b.file)
	var added []string
	for _, p := range pulls {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("jsonbackend: %w", err)
		}
		k := key(p)
		if _, ok := b.seen[k]; ok {
			continue
		}
		data, err := json.Marshal(p)
		if err != nil {
			return 0, fmt.Errorf("jsonbackend: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return 0, fmt.Errorf("jsonbackend: %w", err)
		}
		// Duplicates inside one batch are written once.
		b.seen[k] = struct{}{}
		added = append(added, k)
	}

	if err := w.Flush(); err != nil {
		for _, k := range added {
			delete(b.seen, k)
		}
		return 0, fmt.Errorf("jsonbackend: %w", err)
	}
	return len(added), nil
}

func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Pull, error) {
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

// scan calls fn for every stored pull. The caller must hold mu or own b.
func (b *jsonBackend) scan(fn func(*storage.Pull)) error {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("jsonbackend: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	scanner := bufio.NewScanner(b.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var p storage.Pull
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("jsonbackend: %w", err)
		}
		fn(&p)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("jsonbackend: %w", err)
	}
	return nil
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
