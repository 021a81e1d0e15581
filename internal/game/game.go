package game

import (
	"fmt"
	"strings"
)

// Game identifies a supported title. The set is closed: every value has a row
// in the endpoint table.
type Game int

const (
	Genshin Game = iota
	StarRail
)

// EndpointSpec describes how a history URL of one game maps to its API.
type EndpointSpec struct {
	// QueryKey is the page parameter carrying the banner type, including "=".
	QueryKey string
	// BaseURL is the draw-history API endpoint without a query string.
	BaseURL string
	// Banners lists the gacha_type values the API accepts.
	Banners []Banner
}

// Banner is one queryable draw pool.
type Banner struct {
	Type string
	Name string
}

var endpoints = [...]EndpointSpec{
	Genshin: {
		QueryKey: "init_type=",
		BaseURL:  "https://hk4e-api-os.hoyoverse.com/event/gacha_info/api/getGachaLog",
		Banners: []Banner{
			{Type: "100", Name: "Beginners' Wish"},
			{Type: "200", Name: "Standard Wish"},
			{Type: "301", Name: "Character Event Wish"},
			{Type: "302", Name: "Weapon Event Wish"},
			{Type: "500", Name: "Chronicled Wish"},
		},
	},
	StarRail: {
		QueryKey: "default_gacha_type=",
		BaseURL:  "https://api-os-takumi.mihoyo.com/common/gacha_record/api/getGachaLog",
		Banners: []Banner{
			{Type: "1", Name: "Stellar Warp"},
			{Type: "2", Name: "Departure Warp"},
			{Type: "11", Name: "Character Event Warp"},
			{Type: "12", Name: "Light Cone Event Warp"},
		},
	},
}

var names = [...]string{
	Genshin:  "genshin",
	StarRail: "starrail",
}

// All returns every supported game.
func All() []Game {
	return []Game{Genshin, StarRail}
}

// Spec returns the endpoint row for g.
func (g Game) Spec() EndpointSpec {
	return endpoints[g]
}

func (g Game) String() string {
	if g < 0 || int(g) >= len(names) {
		return fmt.Sprintf("game(%d)", int(g))
	}
	return names[g]
}

// Parse maps a user supplied name to a Game.
func Parse(s string) (Game, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "genshin", "gi", "genshinimpact", "yuanshen":
		return Genshin, nil
	case "starrail", "hsr", "sr", "honkaistarrail":
		return StarRail, nil
	}
	return 0, fmt.Errorf("game: unknown game %q", s)
}

// FromDataDir detects the game from an installation data directory name such
// as "GenshinImpact_Data".
func FromDataDir(name string) (Game, bool) {
	switch strings.TrimSuffix(name, "_Data") {
	case "GenshinImpact", "YuanShen":
		return Genshin, true
	case "StarRail":
		return StarRail, true
	}
	return 0, false
}

// FromURL guesses the game from the host of a cached history URL.
func FromURL(u string) (Game, bool) {
	switch {
	case strings.Contains(u, "hk4e"):
		return Genshin, true
	case strings.Contains(u, "hkrpg"):
		return StarRail, true
	}
	return 0, false
}
