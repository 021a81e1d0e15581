package cache

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// DataFileName is the web cache block file the game's embedded browser
// writes request metadata into.
const DataFileName = "data_2"

// Markers the extractor relies on. They describe an undocumented cache layout
// and are matched as opaque literals.
const (
	// HistoryMarker appears in the path of every draw-history page request.
	HistoryMarker = "gacha-v2/"
	// EntryPrefix precedes the stored URL inside a cache entry.
	EntryPrefix = "1/0/"

	recordSep = "\n"
	fieldSep  = "\x00"
)

// ReadFile loads a cache data file into memory.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return data, nil
}

// Decode converts the raw buffer to text, replacing invalid UTF-8 sequences
// with U+FFFD instead of failing.
func Decode(buf []byte) string {
	// The UTF-8 decoder never reports an error; it emits U+FFFD instead.
	out, _ := unicode.UTF8.NewDecoder().Bytes(buf)
	return string(out)
}

// Extract returns the draw-history URLs stored in buf, most recent first.
//
// Records later in the file are newer, so records are visited from the end of
// the buffer backwards. Every record containing HistoryMarker contributes the
// first of its NUL-separated fields that starts with EntryPrefix, with the
// prefix removed. Records without such a field are skipped. The result is
// never nil and may be empty; duplicates are kept.
func Extract(buf []byte) []string {
	records := strings.Split(Decode(buf), recordSep)

	urls := make([]string, 0)
	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		if !strings.Contains(record, HistoryMarker) {
			continue
		}
		if u, ok := entryURL(record); ok {
			urls = append(urls, u)
		}
	}
	return urls
}

func entryURL(record string) (string, bool) {
	for _, field := range strings.Split(record, fieldSep) {
		if u, ok := strings.CutPrefix(field, EntryPrefix); ok {
			return u, true
		}
	}
	return "", false
}
