package gachalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/wisher/internal/fingerprint"
	"github.com/FranksOps/wisher/internal/game"
	"github.com/FranksOps/wisher/internal/metrics"
	"github.com/FranksOps/wisher/pkg/proxy"
	"github.com/FranksOps/wisher/pkg/useragent"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeAPI serves count records per banner with descending ids, honoring
// size and end_id the way the real endpoint does.
func fakeAPI(t *testing.T, count int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		q := r.URL.Query()
		if q.Get("authkey") != "valid" {
			_ = json.NewEncoder(w).Encode(map[string]any{"retcode": -101, "message": "authkey timeout", "data": nil})
			return
		}
		if r.Header.Get("User-Agent") != "TestView/1.0" {
			t.Errorf("expected User-Agent TestView/1.0, got %q", r.Header.Get("User-Agent"))
		}

		gachaType := q.Get("gacha_type")
		size, _ := strconv.Atoi(q.Get("size"))
		endID, _ := strconv.Atoi(q.Get("end_id"))

		list := []Record{}
		for id := count; id >= 1 && len(list) < size; id-- {
			if endID != 0 && id >= endID {
				continue
			}
			list = append(list, Record{
				UID:       "700",
				GachaType: gachaType,
				Count:     "1",
				Time:      fmt.Sprintf("2024-01-01 00:%02d:00", id%60),
				Name:      "Item " + strconv.Itoa(id),
				Lang:      "en-us",
				ItemType:  "Weapon",
				RankType:  "3",
				ID:        strconv.Itoa(id),
			})
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"retcode": 0,
			"message": "OK",
			"data": Page{
				Page:   q.Get("page"),
				Size:   q.Get("size"),
				List:   list,
				Region: "os_euro",
			},
		})
	}))
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	cfg.Fingerprint = fingerprint.ProfileGo
	cfg.UAPool = useragent.NewPool([]string{"TestView/1.0"})
	c, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestPageURL(t *testing.T) {
	got, err := PageURL("https://api.example/getGachaLog?authkey=a%2Bb&init_type=301&gacha_type=301", PageQuery{
		GachaType: "200",
		Page:      2,
		Size:      5,
		EndID:     "123",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u, _ := url.Parse(got)
	q := u.Query()
	if q.Get("authkey") != "a+b" {
		t.Errorf("authkey not preserved: %q", q.Get("authkey"))
	}
	if q["gacha_type"][0] != "200" || len(q["gacha_type"]) != 1 {
		t.Errorf("expected single gacha_type=200, got %v", q["gacha_type"])
	}
	if q.Get("page") != "2" || q.Get("size") != "5" || q.Get("end_id") != "123" {
		t.Errorf("unexpected paging params: %v", q)
	}

	got, _ = PageURL("https://api.example/x?init_type=301", PageQuery{})
	u, _ = url.Parse(got)
	if u.Query().Get("end_id") != "0" || u.Query().Get("page") != "1" {
		t.Errorf("expected defaults end_id=0 page=1, got %s", got)
	}
}

func TestBackendURL(t *testing.T) {
	u, err := BackendURL("https://h/index.html?init_type=301&authkey=k", game.Genshin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u == "" {
		t.Fatal("expected url")
	}

	_, err = BackendURL("https://h/index.html?authkey=k", game.StarRail)
	if !errors.Is(err, ErrNoBackendURL) {
		t.Errorf("expected ErrNoBackendURL, got %v", err)
	}
}

func TestClient_FetchAll(t *testing.T) {
	ts := fakeAPI(t, 45, nil)
	defer ts.Close()

	c := newTestClient(t, Config{PageSize: 20})
	log, err := c.FetchAll(context.Background(), ts.URL+"?authkey=valid&init_type=301", game.Genshin, "301")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(log.Records) != 45 {
		t.Fatalf("expected 45 records, got %d", len(log.Records))
	}
	if log.Records[0].ID != "45" || log.Records[44].ID != "1" {
		t.Errorf("expected ids 45..1, got %s..%s", log.Records[0].ID, log.Records[44].ID)
	}
	if log.Region != "os_euro" || log.Truncated {
		t.Errorf("unexpected log metadata: region=%q truncated=%v", log.Region, log.Truncated)
	}
}

func TestClient_FetchAll_ExactMultipleOfPageSize(t *testing.T) {
	var requests atomic.Int32
	ts := fakeAPI(t, 40, &requests)
	defer ts.Close()

	c := newTestClient(t, Config{PageSize: 20})
	log, err := c.FetchAll(context.Background(), ts.URL+"?authkey=valid", game.Genshin, "200")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(log.Records) != 40 {
		t.Errorf("expected 40 records, got %d", len(log.Records))
	}
	// Two full pages and one empty page.
	if requests.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", requests.Load())
	}
}

func TestClient_FetchAll_MaxPages(t *testing.T) {
	ts := fakeAPI(t, 100, nil)
	defer ts.Close()

	c := newTestClient(t, Config{PageSize: 10, MaxPages: 2})
	log, err := c.FetchAll(context.Background(), ts.URL+"?authkey=valid", game.Genshin, "301")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(log.Records) != 20 || !log.Truncated {
		t.Errorf("expected 20 truncated records, got %d truncated=%v", len(log.Records), log.Truncated)
	}
}

func TestClient_APIError(t *testing.T) {
	ts := fakeAPI(t, 5, nil)
	defer ts.Close()

	apiErrors := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("starrail", "api_error"))
	retcodes := testutil.ToFloat64(metrics.APIRetcodes.WithLabelValues("starrail", "-101"))

	c := newTestClient(t, Config{})
	_, err := c.FetchPage(context.Background(), ts.URL+"?authkey=stale", game.StarRail, PageQuery{GachaType: "11"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if !apiErr.Expired() {
		t.Errorf("expected expired authkey, got code %d", apiErr.Code)
	}

	if got := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("starrail", "api_error")); got != apiErrors+1 {
		t.Errorf("expected one api_error request, got %v", got-apiErrors)
	}
	if got := testutil.ToFloat64(metrics.APIRetcodes.WithLabelValues("starrail", "-101")); got != retcodes+1 {
		t.Errorf("expected retcode -101 counted once, got %v", got-retcodes)
	}
	if got := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("starrail", "-101")); got != 0 {
		t.Errorf("retcode leaked into the status label: %v", got)
	}
}

func TestClient_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := newTestClient(t, Config{})
	if _, err := c.FetchPage(context.Background(), ts.URL, game.Genshin, PageQuery{}); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestClient_Blocked(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("Attention Required! | Cloudflare"))
	}))
	defer ts.Close()

	c := newTestClient(t, Config{})
	_, err := c.FetchPage(context.Background(), ts.URL+"?authkey=valid", game.Genshin, PageQuery{})

	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected *BlockedError, got %v", err)
	}
	if blocked.Source != "Cloudflare" || blocked.StatusCode != http.StatusForbidden {
		t.Errorf("unexpected block: %+v", blocked)
	}
}

func TestClient_FetchBanners(t *testing.T) {
	ts := fakeAPI(t, 3, nil)
	defer ts.Close()

	c := newTestClient(t, Config{RequestsPerSecond: 100})
	logs, err := c.FetchBanners(context.Background(), ts.URL+"?authkey=valid", game.StarRail, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	banners := game.StarRail.Spec().Banners
	if len(logs) != len(banners) {
		t.Fatalf("expected %d banner logs, got %d", len(banners), len(logs))
	}
	for i, b := range banners {
		if logs[i].GachaType != b.Type {
			t.Errorf("log %d: expected gacha_type %s, got %s", i, b.Type, logs[i].GachaType)
		}
		if len(logs[i].Records) != 3 || logs[i].Records[0].GachaType != b.Type {
			t.Errorf("log %d: unexpected records %+v", i, logs[i].Records)
		}
	}
}

func TestClient_FetchBanners_FirstErrorWins(t *testing.T) {
	ts := fakeAPI(t, 3, nil)
	defer ts.Close()

	c := newTestClient(t, Config{})
	_, err := c.FetchBanners(context.Background(), ts.URL+"?authkey=stale", game.Genshin, []string{"301", "302"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
}

func TestClient_Proxies(t *testing.T) {
	var requests atomic.Int32
	// The fake API also answers absolute-form proxy requests.
	good := fakeAPI(t, 3, &requests)
	defer good.Close()
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	pool := proxy.NewPool(proxy.Config{MaxFailures: 1, Cooldown: time.Hour})
	if err := pool.Add(dead.URL, good.URL); err != nil {
		t.Fatalf("failed to add proxies: %v", err)
	}

	c := newTestClient(t, Config{Proxies: pool})
	backend := "http://gacha.invalid/getGachaLog?authkey=valid"

	if _, err := c.FetchPage(context.Background(), backend, game.Genshin, PageQuery{GachaType: "301"}); err == nil {
		t.Fatal("expected error through dead proxy")
	}
	for i := 0; i < 2; i++ {
		p, err := c.FetchPage(context.Background(), backend, game.Genshin, PageQuery{GachaType: "301"})
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
		if len(p.List) != 3 {
			t.Errorf("request %d: expected 3 records, got %d", i, len(p.List))
		}
	}
	if requests.Load() != 2 {
		t.Errorf("expected 2 requests through the healthy proxy, got %d", requests.Load())
	}
}

func TestRecord_Pull(t *testing.T) {
	r := Record{ID: "9", UID: "700", GachaType: "301", Count: "1", Time: "2024-03-01 12:30:00", Name: "Diluc", RankType: "5", ItemType: "Character", Lang: "en-us"}

	p, err := r.Pull("genshin", RegionLocation("os_asia"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 3, 1, 4, 30, 0, 0, time.UTC)
	if !p.Time.Equal(want) {
		t.Errorf("expected %v, got %v", want, p.Time.UTC())
	}
	if p.Game != "genshin" || p.ID != "9" || p.Count != 1 || p.Name != "Diluc" {
		t.Errorf("unexpected pull: %+v", p)
	}

	if _, err := (Record{ID: "1", Time: "yesterday"}).Pull("genshin", nil); err == nil {
		t.Error("expected time parse error")
	}
	if _, err := (Record{ID: "1", Time: "2024-03-01 12:30:00", Count: "x"}).Pull("genshin", nil); err == nil {
		t.Error("expected count parse error")
	}
}

func TestRegionLocation(t *testing.T) {
	if RegionLocation("unknown") != time.UTC {
		t.Error("expected UTC for unknown region")
	}
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, RegionLocation("os_usa")).Zone()
	if offset != -5*3600 {
		t.Errorf("expected -5h offset, got %d", offset)
	}
}
