package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"

	"github.com/FranksOps/wisher/internal/game"
	"github.com/FranksOps/wisher/internal/history"
	"github.com/FranksOps/wisher/internal/install"
)

// Entry is the presentable outcome for one cache data file.
type Entry struct {
	DataFile string   `json:"data_file"`
	Dir      string   `json:"dir"`
	Game     string   `json:"game,omitempty"`
	URLs     []string `json:"urls"`
	// APIURL is the backend URL resolved from the first listed URL.
	APIURL string `json:"api_url,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report aggregates a scan of one installation.
type Report struct {
	Entries   []Entry `json:"entries"`
	Files     int     `json:"files"`
	WithURLs  int     `json:"with_urls"`
	Errors    int     `json:"errors"`
	TotalURLs int     `json:"total_urls"`
}

// Build applies opts to each scan result. With resolve set, the first
// selected URL of every file with a known game is resolved to its API URL.
func Build(results []install.Result, opts history.Options, resolve bool) Report {
	r := Report{Entries: make([]Entry, 0, len(results))}

	for _, res := range results {
		e := Entry{
			DataFile: res.File.Path,
			Dir:      res.File.Dir,
			URLs:     []string{},
		}
		if res.File.GameKnown {
			e.Game = res.File.Game.String()
		}

		r.Files++
		switch {
		case res.Err != nil:
			e.Error = res.Err.Error()
			r.Errors++
		default:
			r.TotalURLs += len(res.URLs)
			e.URLs = history.Select(res.URLs, opts)
			if len(e.URLs) > 0 {
				r.WithURLs++
			}
			if resolve && res.File.GameKnown && len(e.URLs) > 0 {
				if u, ok := game.BackendURL(e.URLs[0], res.File.Game); ok {
					e.APIURL = u
				}
			}
		}

		r.Entries = append(r.Entries, e)
	}

	return r
}

// WriteJSON writes the report to the provided writer in JSON format.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

const textTmpl = `{{- range .Entries -}}
[#] Data file: {{.DataFile}}
{{- if .Error}}
Failed to parse wishes URLs: {{.Error}}
{{- else if not .URLs}}
No wishes URL found
{{- else}}
{{- range .URLs}}
    - {{.}}
{{- end}}
{{- if .APIURL}}
    API: {{.APIURL}}
{{- end}}
{{- end}}

{{end -}}
`

var textReport = template.Must(template.New("textReport").Parse(textTmpl))

// WriteText writes one block per data file followed by a blank line.
func WriteText(w io.Writer, r Report) error {
	if err := textReport.Execute(w, r); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
