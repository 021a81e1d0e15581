package gachalog

import (
	"fmt"
	"strconv"
	"time"

	"github.com/FranksOps/wisher/internal/storage"
)

// timeLayout is the server-local timestamp format of draw records.
const timeLayout = "2006-01-02 15:04:05"

// Record is one draw as returned by getGachaLog.
type Record struct {
	UID       string `json:"uid"`
	GachaType string `json:"gacha_type"`
	ItemID    string `json:"item_id"`
	Count     string `json:"count"`
	Time      string `json:"time"`
	Name      string `json:"name"`
	Lang      string `json:"lang"`
	ItemType  string `json:"item_type"`
	RankType  string `json:"rank_type"`
	ID        string `json:"id"`
}

// Page is the data object of a getGachaLog response.
type Page struct {
	Page   string   `json:"page"`
	Size   string   `json:"size"`
	Total  string   `json:"total"`
	List   []Record `json:"list"`
	Region string   `json:"region"`
}

type response struct {
	Retcode int    `json:"retcode"`
	Message string `json:"message"`
	Data    *Page  `json:"data"`
}

// APIError is a failure reported in the response body.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gachalog: api error %d: %s", e.Code, e.Message)
}

// Expired reports whether the authkey embedded in the URL is no longer valid.
func (e *APIError) Expired() bool {
	return e.Code == -101
}

// BlockedError reports that a bot protection layer answered instead of the API.
type BlockedError struct {
	Source     string
	StatusCode int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("gachalog: blocked by %s (status %d)", e.Source, e.StatusCode)
}

// Pull converts r for storage. Times are interpreted in loc, the region's
// server time zone; nil means UTC.
func (r Record) Pull(game string, loc *time.Location) (*storage.Pull, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(timeLayout, r.Time, loc)
	if err != nil {
		return nil, fmt.Errorf("gachalog: record %s: %w", r.ID, err)
	}
	count := 1
	if r.Count != "" {
		if count, err = strconv.Atoi(r.Count); err != nil {
			return nil, fmt.Errorf("gachalog: record %s: %w", r.ID, err)
		}
	}
	return &storage.Pull{
		ID:        r.ID,
		Game:      game,
		UID:       r.UID,
		GachaType: r.GachaType,
		ItemID:    r.ItemID,
		Name:      r.Name,
		ItemType:  r.ItemType,
		RankType:  r.RankType,
		Count:     count,
		Lang:      r.Lang,
		Time:      t,
	}, nil
}

// regionOffsets maps server regions to their UTC offset in hours.
var regionOffsets = map[string]int{
	"os_usa":             -5,
	"os_euro":            1,
	"os_asia":            8,
	"os_cht":             8,
	"prod_official_usa":  -5,
	"prod_official_eur":  1,
	"prod_official_asia": 8,
	"prod_official_cht":  8,
	"cn_gf01":            8,
	"cn_qd01":            8,
	"prod_gf_cn":         8,
	"prod_qd_cn":         8,
}

// RegionLocation returns the fixed zone of a server region, or UTC.
func RegionLocation(region string) *time.Location {
	offset, ok := regionOffsets[region]
	if !ok {
		return time.UTC
	}
	return time.FixedZone(region, offset*3600)
}
