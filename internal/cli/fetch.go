package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/FranksOps/wisher/internal/gachalog"
	"github.com/FranksOps/wisher/internal/game"
	"github.com/FranksOps/wisher/internal/install"
	"github.com/FranksOps/wisher/internal/storage"
	"github.com/FranksOps/wisher/pkg/proxy"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// target is one history URL to fetch, with the game it belongs to.
type target struct {
	game game.Game
	url  string
	from string
}

func newFetchCmd(a *app) *cobra.Command {
	var (
		gamePath string
		rawURL   string
		gameName string
		banners  []string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch pulls from the history API into the store",
		Long: "Resolve the most recent cached history URL (or --url) to the history API, page through " +
			"every banner and save new pulls to the configured store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			targets, err := fetchTargets(ctx, a, gamePath, rawURL, gameName)
			if err != nil {
				return err
			}

			proxies, err := proxyPool(a)
			if err != nil {
				return err
			}

			client, err := gachalog.New(gachalog.Config{
				Timeout:           a.cfg.API.Timeout,
				RequestsPerSecond: a.cfg.API.RequestsPerSecond,
				Jitter:            a.cfg.API.Jitter,
				PageSize:          a.cfg.API.PageSize,
				MaxPages:          a.cfg.API.MaxPages,
				BannerConcurrency: a.cfg.API.BannerConcurrency,
				Fingerprint:       a.cfg.API.Fingerprint,
				Proxies:           proxies,
				Transport:         a.transport,
			}, a.logger)
			if err != nil {
				return err
			}

			store, err := openStore(ctx, a.cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, t := range targets {
				if err := fetchTarget(ctx, a, client, store, t, banners, cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&gamePath, "game-path", "g", "", "Path to the game installation")
	cmd.Flags().StringVar(&rawURL, "url", "", "History URL to fetch instead of scanning the cache")
	cmd.Flags().StringVar(&gameName, "game", "", "Game of --url (genshin, starrail); guessed from the host when empty")
	cmd.Flags().StringSliceVar(&banners, "banner", nil, "Banner gacha_type to fetch (repeatable, default all)")
	cmd.Flags().Duration("timeout", 15*time.Second, "Per-request timeout")
	cmd.Flags().Float64("rps", 2, "API requests per second (0 disables pacing)")
	cmd.Flags().String("fingerprint", "chrome", "TLS fingerprint (chrome, firefox, safari, go)")
	cmd.Flags().Int("concurrency", 4, "Data files read in parallel")
	cmd.Flags().StringSlice("proxy", nil, "Proxy URL for API requests (repeatable)")
	cmd.Flags().String("proxy-file", "", "File with one proxy URL per line")
	cmd.MarkFlagsMutuallyExclusive("game-path", "url")
	cmd.MarkFlagsOneRequired("game-path", "url")

	return cmd
}

// fetchTargets returns the explicit URL, or the most recent URL of every
// cache data file whose game is known.
func fetchTargets(ctx context.Context, a *app, gamePath, rawURL, gameName string) ([]target, error) {
	if rawURL != "" {
		var (
			g   game.Game
			ok  bool
			err error
		)
		if gameName != "" {
			if g, err = game.Parse(gameName); err != nil {
				return nil, err
			}
		} else if g, ok = game.FromURL(rawURL); !ok {
			return nil, errors.New("cli: cannot tell the game from --url, pass --game")
		}
		return []target{{game: g, url: rawURL, from: "--url"}}, nil
	}

	files, err := install.FindDataFiles(gamePath)
	if err != nil {
		return nil, err
	}

	var targets []target
	for _, res := range install.NewScanner(a.cfg.Scan.Concurrency, a.logger).Scan(ctx, files) {
		switch {
		case res.Err != nil:
			a.logger.Warn("skipping unreadable data file", "path", res.File.Path, "error", res.Err)
		case len(res.URLs) == 0:
			a.logger.Info("no history url in data file", "path", res.File.Path)
		case !res.File.GameKnown:
			a.logger.Warn("skipping data file of unknown game", "path", res.File.Path)
		default:
			targets = append(targets, target{game: res.File.Game, url: res.URLs[0], from: res.File.Path})
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("cli: %s: %w", gamePath, errNoHistory)
	}
	return targets, nil
}

// proxyPool returns nil when no proxy is configured.
func proxyPool(a *app) (*proxy.Pool, error) {
	if len(a.cfg.API.Proxies) == 0 && a.cfg.API.ProxyFile == "" {
		return nil, nil
	}
	pool := proxy.NewPool(proxy.Config{})
	if err := pool.Add(a.cfg.API.Proxies...); err != nil {
		return nil, err
	}
	if a.cfg.API.ProxyFile != "" {
		if err := pool.LoadFile(a.cfg.API.ProxyFile); err != nil {
			return nil, err
		}
	}
	a.logger.Debug("using proxies", "count", pool.Len())
	return pool, nil
}

var errNoHistory = errors.New("no history url found")

func fetchTarget(ctx context.Context, a *app, client *gachalog.Client, store storage.Backend, t target, banners []string, out io.Writer) error {
	backendURL, err := gachalog.BackendURL(t.url, t.game)
	if err != nil {
		return err
	}

	a.logger.Info("fetching history", "game", t.game, "source", t.from)
	logs, err := client.FetchBanners(ctx, backendURL, t.game, banners)
	if err != nil {
		var apiErr *gachalog.APIError
		if errors.As(err, &apiErr) && apiErr.Expired() {
			return fmt.Errorf("%w (open the wish history in game to refresh the cache)", err)
		}
		return err
	}

	importID := uuid.NewString()
	fetchedAt := time.Now().UTC()

	for _, l := range logs {
		loc := gachalog.RegionLocation(l.Region)
		pulls := make([]*storage.Pull, 0, len(l.Records))
		for _, rec := range l.Records {
			p, err := rec.Pull(t.game.String(), loc)
			if err != nil {
				return err
			}
			p.ImportID = importID
			p.FetchedAt = fetchedAt
			pulls = append(pulls, p)
		}

		saved, err := store.Save(ctx, pulls)
		if err != nil {
			return err
		}

		name := bannerName(t.game, l.GachaType)
		fmt.Fprintf(out, "%s %s: %d fetched, %d new\n", t.game, name, len(pulls), saved)
		if l.Truncated {
			fmt.Fprintf(out, "%s %s: stopped at the page limit, older pulls were not fetched\n", t.game, name)
		}
	}
	return nil
}

func bannerName(g game.Game, gachaType string) string {
	for _, b := range g.Spec().Banners {
		if b.Type == gachaType {
			return b.Name
		}
	}
	return "banner " + gachaType
}
