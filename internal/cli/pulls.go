package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/FranksOps/wisher/internal/game"
	"github.com/FranksOps/wisher/internal/storage"
	"github.com/spf13/cobra"
)

func newPullsCmd(a *app) *cobra.Command {
	var (
		gameName string
		filter   storage.Filter
		since    string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "pulls",
		Short: "List stored pulls, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if gameName != "" {
				g, err := game.Parse(gameName)
				if err != nil {
					return err
				}
				filter.Game = g.String()
			}
			if since != "" {
				t, err := time.Parse(time.DateOnly, since)
				if err != nil {
					return fmt.Errorf("cli: --since: %w", err)
				}
				filter.Since = &t
			}

			store, err := openStore(cmd.Context(), a.cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			pulls, err := store.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				if pulls == nil {
					pulls = []*storage.Pull{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(pulls)
			case "text":
			default:
				return fmt.Errorf("cli: unknown format %q", format)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tGAME\tBANNER\tRANK\tNAME\tID")
			for _, p := range pulls {
				name := p.GachaType
				if g, err := game.Parse(p.Game); err == nil {
					name = bannerName(g, p.GachaType)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					p.Time.UTC().Format(time.DateTime), p.Game, name, p.RankType, p.Name, p.ID)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&gameName, "game", "", "Only pulls of this game")
	cmd.Flags().StringVar(&filter.UID, "uid", "", "Only pulls of this account")
	cmd.Flags().StringVar(&filter.GachaType, "banner", "", "Only pulls of this gacha_type")
	cmd.Flags().StringVar(&since, "since", "", "Only pulls on or after this date (YYYY-MM-DD, UTC)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum number of pulls (0 lists all)")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "Skip this many pulls")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json)")

	return cmd
}
