package history

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pkg/browser"
)

// DefaultLimit is the number of URLs shown per cache file.
const DefaultLimit = 3

// ErrNoURLs is returned by OpenFirst when there is nothing to open.
var ErrNoURLs = errors.New("history: no urls")

// Options controls how extracted URLs are presented.
type Options struct {
	// Reverse lists URLs oldest first.
	Reverse bool
	// Limit caps the number of URLs. Zero or less keeps all of them; a limit
	// above the number of URLs is clamped.
	Limit int
	// OpenFirst opens the first selected URL in a browser.
	OpenFirst bool
}

// Select orders and truncates urls, which must be most recent first. The input
// slice is not modified.
func Select(urls []string, opts Options) []string {
	out := slices.Clone(urls)
	if out == nil {
		out = []string{}
	}
	if opts.Reverse {
		slices.Reverse(out)
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out
}

// Opener opens a URL outside the process.
type Opener interface {
	Open(url string) error
}

// OpenFirst opens urls[0] with o.
func OpenFirst(o Opener, urls []string) error {
	if len(urls) == 0 {
		return ErrNoURLs
	}
	if err := o.Open(urls[0]); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	return nil
}

// SystemOpener opens URLs with the platform's default browser and waits for
// the launcher to exit.
type SystemOpener struct{}

func (SystemOpener) Open(url string) error {
	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("history: open %s: %w", url, err)
	}
	return nil
}
