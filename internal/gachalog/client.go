package gachalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/FranksOps/wisher/internal/bypass"
	"github.com/FranksOps/wisher/internal/fingerprint"
	"github.com/FranksOps/wisher/internal/game"
	"github.com/FranksOps/wisher/internal/metrics"
	"github.com/FranksOps/wisher/pkg/httpclient"
	"github.com/FranksOps/wisher/pkg/proxy"
	"github.com/FranksOps/wisher/pkg/ratelimit"
	"github.com/FranksOps/wisher/pkg/useragent"
	"golang.org/x/sync/errgroup"
)

// ErrNoBackendURL is returned when a history URL lacks the game's banner key.
var ErrNoBackendURL = errors.New("gachalog: url has no banner parameter")

// MaxPageSize is the largest page the API serves.
const MaxPageSize = 20

// Config configures the API client.
type Config struct {
	Timeout time.Duration
	// RequestsPerSecond paces page requests across all banners; <= 0 disables.
	RequestsPerSecond float64
	Jitter            float64
	PageSize          int
	// MaxPages bounds pagination per banner.
	MaxPages int
	// BannerConcurrency is the number of banners fetched at once.
	BannerConcurrency int
	Fingerprint       fingerprint.Profile
	UAPool            *useragent.Pool
	// Proxies, when set, routes each page request through the next healthy proxy.
	Proxies *proxy.Pool
	// Transport overrides the fingerprinted transport.
	Transport http.RoundTripper
}

// Client queries the draw-history API.
type Client struct {
	cfg     Config
	http    *httpclient.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// PageQuery selects one page of one banner.
type PageQuery struct {
	GachaType string
	Page      int
	Size      int
	// EndID is the id of the last record of the previous page, "0" for the first.
	EndID string
}

// BannerLog is the full history of one banner.
type BannerLog struct {
	GachaType string
	Region    string
	Records   []Record
	// Truncated is set when MaxPages stopped pagination early.
	Truncated bool
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PageSize <= 0 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	if cfg.BannerConcurrency <= 0 {
		cfg.BannerConcurrency = 2
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := cfg.Transport
	if transport == nil {
		var err error
		opts := fingerprint.Options{}
		if cfg.Proxies != nil {
			opts.Proxy = proxy.FromRequest
		}
		transport, err = fingerprint.Transport(cfg.Fingerprint, opts)
		if err != nil {
			return nil, fmt.Errorf("gachalog: %w", err)
		}
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: 3,
		Transport:    transport,
		UserAgent:    cfg.UAPool.Next,
		Header:       http.Header{"Accept-Language": {"en-US,en;q=0.9"}},
	})
	if err != nil {
		return nil, fmt.Errorf("gachalog: %w", err)
	}

	return &Client{
		cfg:     cfg,
		http:    client,
		limiter: ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Jitter),
		logger:  logger,
	}, nil
}

// BackendURL resolves a cached history URL to its API URL.
func BackendURL(historyURL string, g game.Game) (string, error) {
	u, ok := game.BackendURL(historyURL, g)
	if !ok {
		return "", fmt.Errorf("%w: %s expects %q", ErrNoBackendURL, g, g.Spec().QueryKey)
	}
	return u, nil
}

// PageURL rewrites the paging parameters of backendURL.
func PageURL(backendURL string, q PageQuery) (string, error) {
	u, err := url.Parse(backendURL)
	if err != nil {
		return "", fmt.Errorf("gachalog: %w", err)
	}
	if q.EndID == "" {
		q.EndID = "0"
	}
	if q.Page <= 0 {
		q.Page = 1
	}

	values := u.Query()
	if q.GachaType != "" {
		values.Set("gacha_type", q.GachaType)
	}
	values.Set("page", strconv.Itoa(q.Page))
	values.Set("size", strconv.Itoa(q.Size))
	values.Set("end_id", q.EndID)
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// FetchPage requests a single page.
func (c *Client) FetchPage(ctx context.Context, backendURL string, g game.Game, q PageQuery) (*Page, error) {
	if q.Size <= 0 {
		q.Size = c.cfg.PageSize
	}
	target, err := PageURL(backendURL, q)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("gachalog: %w", err)
	}

	var proxyURL *url.URL
	if c.cfg.Proxies != nil {
		if ctx, proxyURL, err = c.cfg.Proxies.Pick(ctx); err != nil {
			return nil, fmt.Errorf("gachalog: %w", err)
		}
	}

	start := time.Now()
	var resp response
	status, err := c.http.GetJSON(ctx, target, &resp)
	err = classify(err)
	c.reportProxy(proxyURL, status, err)
	if err != nil {
		metrics.RecordAPIRequest(g.String(), status, time.Since(start), err)
		var blocked *BlockedError
		if errors.As(err, &blocked) {
			c.logger.Warn("request blocked", "game", g, "source", blocked.Source, "status", blocked.StatusCode)
			return nil, err
		}
		return nil, fmt.Errorf("gachalog: %w", err)
	}

	if resp.Retcode != 0 {
		apiErr := &APIError{Code: resp.Retcode, Message: resp.Message}
		metrics.RecordAPIRequest(g.String(), status, time.Since(start), apiErr)
		metrics.RecordAPIRetcode(g.String(), resp.Retcode)
		return nil, apiErr
	}
	metrics.RecordAPIRequest(g.String(), status, time.Since(start), nil)

	if resp.Data == nil {
		return &Page{}, nil
	}
	metrics.PullsFetched.WithLabelValues(g.String(), q.GachaType).Add(float64(len(resp.Data.List)))
	return resp.Data, nil
}

// classify replaces a status error served by a bot protection layer with a
// *BlockedError.
func classify(err error) error {
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		return err
	}
	source, ok := bypass.Detect(&bypass.Response{
		StatusCode: se.StatusCode,
		Header:     se.Header,
		Body:       se.Body,
	}, bypass.DefaultDetectors())
	if !ok {
		return err
	}
	return &BlockedError{Source: source, StatusCode: se.StatusCode}
}

// reportProxy feeds the outcome of a request back into the proxy pool.
// Connection failures, blocks, 403 and 429 count against the proxy.
func (c *Client) reportProxy(u *url.URL, status int, err error) {
	if u == nil {
		return
	}
	var blocked *BlockedError
	if err != nil && (status == 0 || status == http.StatusForbidden || status == http.StatusTooManyRequests || errors.As(err, &blocked)) {
		_ = c.cfg.Proxies.MarkFailure(u)
		c.logger.Debug("proxy request failed", "proxy", u.Host, "status", status)
		return
	}
	_ = c.cfg.Proxies.MarkSuccess(u)
}

// FetchAll pages through one banner using end_id until a short page arrives.
func (c *Client) FetchAll(ctx context.Context, backendURL string, g game.Game, gachaType string) (*BannerLog, error) {
	log := &BannerLog{GachaType: gachaType}
	endID := "0"

	for page := 1; ; page++ {
		if page > c.cfg.MaxPages {
			log.Truncated = true
			c.logger.Warn("page limit reached", "game", g, "gacha_type", gachaType, "pages", c.cfg.MaxPages)
			break
		}

		p, err := c.FetchPage(ctx, backendURL, g, PageQuery{
			GachaType: gachaType,
			Page:      page,
			Size:      c.cfg.PageSize,
			EndID:     endID,
		})
		if err != nil {
			return nil, err
		}
		if p.Region != "" {
			log.Region = p.Region
		}
		log.Records = append(log.Records, p.List...)
		c.logger.Debug("fetched page", "game", g, "gacha_type", gachaType, "page", page, "records", len(p.List))

		if len(p.List) < c.cfg.PageSize {
			break
		}
		endID = p.List[len(p.List)-1].ID
	}

	return log, nil
}

// FetchBanners fetches every banner in gachaTypes, or every banner of g when
// empty. Results keep the order of gachaTypes. The first error cancels the rest.
func (c *Client) FetchBanners(ctx context.Context, backendURL string, g game.Game, gachaTypes []string) ([]*BannerLog, error) {
	if len(gachaTypes) == 0 {
		for _, b := range g.Spec().Banners {
			gachaTypes = append(gachaTypes, b.Type)
		}
	}

	logs := make([]*BannerLog, len(gachaTypes))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.cfg.BannerConcurrency)

	for i, t := range gachaTypes {
		eg.Go(func() error {
			log, err := c.FetchAll(egCtx, backendURL, g, t)
			if err != nil {
				return fmt.Errorf("banner %s: %w", t, err)
			}
			logs[i] = log
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return logs, nil
}
