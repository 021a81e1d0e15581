package cli

import (
	"errors"
	"fmt"

	"github.com/FranksOps/wisher/internal/history"
	"github.com/FranksOps/wisher/internal/install"
	"github.com/FranksOps/wisher/internal/report"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		gamePath string
		opts     = history.Options{Limit: history.DefaultLimit}
		api      bool
		format   string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print gacha history URLs found in the game's web cache",
		Long: "Scan every *_Data directory of a game installation for web cache data files and print the " +
			"gacha history URLs they contain, most recent first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := install.FindDataFiles(gamePath)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				a.logger.Warn("no web cache data files found", "path", gamePath)
			}

			results := install.NewScanner(a.cfg.Scan.Concurrency, a.logger).Scan(cmd.Context(), files)
			r := report.Build(results, opts, api)
			a.logger.Debug("scan finished", "files", r.Files, "with_urls", r.WithURLs, "errors", r.Errors)

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				err = report.WriteJSON(out, r)
			case "text":
				err = report.WriteText(out, r)
			default:
				return fmt.Errorf("cli: unknown format %q", format)
			}
			if err != nil {
				return err
			}

			if opts.OpenFirst {
				return openEntries(a, r)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&gamePath, "game-path", "g", "", "Path to the game installation")
	cmd.Flags().BoolVarP(&opts.Reverse, "reverse-order", "r", false, "List URLs from oldest to most recent")
	cmd.Flags().BoolVarP(&opts.OpenFirst, "open-first-url", "o", false, "Open the first listed URL of every data file")
	cmd.Flags().IntVarP(&opts.Limit, "max-return-num", "n", history.DefaultLimit, "Maximum number of URLs per data file (0 lists all)")
	cmd.Flags().BoolVar(&api, "api", false, "Also print the history API URL of the first listed URL")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json)")
	cmd.Flags().Int("concurrency", 4, "Data files read in parallel")
	_ = cmd.MarkFlagRequired("game-path")

	return cmd
}

func openEntries(a *app, r report.Report) error {
	var errs []error
	for _, e := range r.Entries {
		if len(e.URLs) == 0 {
			continue
		}
		if err := history.OpenFirst(a.opener, e.URLs); err != nil {
			errs = append(errs, err)
			continue
		}
		a.logger.Info("opened url", "data_file", e.DataFile)
	}
	return errors.Join(errs...)
}
