package storage

import (
	"context"
	"time"
)

// Pull is one draw record returned by the history API.
type Pull struct {
	// ID is the server-assigned record id, unique per game.
	ID        string    `json:"id"`
	Game      string    `json:"game"`
	UID       string    `json:"uid"`
	GachaType string    `json:"gacha_type"`
	ItemID    string    `json:"item_id,omitempty"`
	Name      string    `json:"name"`
	ItemType  string    `json:"item_type"`
	RankType  string    `json:"rank_type"`
	Count     int       `json:"count"`
	Lang      string    `json:"lang"`
	Time      time.Time `json:"time"`
	// ImportID identifies the fetch run that first stored the pull.
	ImportID  string    `json:"import_id"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Filter allows querying for specific pulls. Zero fields match everything.
type Filter struct {
	Game      string
	UID       string
	GachaType string
	Since     *time.Time
	Limit     int
	Offset    int
}

// Match reports whether p satisfies every set field of f.
func (f Filter) Match(p *Pull) bool {
	if f.Game != "" && p.Game != f.Game {
		return false
	}
	if f.UID != "" && p.UID != f.UID {
		return false
	}
	if f.GachaType != "" && p.GachaType != f.GachaType {
		return false
	}
	if f.Since != nil && p.Time.Before(*f.Since) {
		return false
	}
	return true
}

// Backend stores pulls. Save ignores pulls whose (Game, ID) already exists and
// reports how many were new. Query returns pulls newest first.
type Backend interface {
	Save(ctx context.Context, pulls []*Pull) (int, error)
	Query(ctx context.Context, filter Filter) ([]*Pull, error)
	Close() error
}
