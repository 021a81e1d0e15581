package game

import (
	"strings"
	"testing"
)

func TestBackendURL_Genshin(t *testing.T) {
	u := "https://host/index.html?a=1&init_type=301&b=2"

	got, ok := BackendURL(u, Genshin)
	if !ok {
		t.Fatal("expected a backend url")
	}
	want := "https://hk4e-api-os.hoyoverse.com/event/gacha_info/api/getGachaLog?a=1&init_type=301&b=2&gacha_type=301"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestBackendURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		game Game
		want string
		ok   bool
	}{
		{
			name: "star rail",
			url:  "https://gs.hoyoverse.com/hkrpg/event/e20211215gacha-v2/index.html?authkey=k&default_gacha_type=11&lang=en",
			game: StarRail,
			want: "https://api-os-takumi.mihoyo.com/common/gacha_record/api/getGachaLog?authkey=k&default_gacha_type=11&lang=en&gacha_type=11",
			ok:   true,
		},
		{
			name: "value at end of query",
			url:  "https://h/index.html?authkey=k&init_type=200",
			game: Genshin,
			want: "https://hk4e-api-os.hoyoverse.com/event/gacha_info/api/getGachaLog?authkey=k&init_type=200&gacha_type=200",
			ok:   true,
		},
		{
			name: "marker missing uses whole input",
			url:  "init_type=302&x=y",
			game: Genshin,
			want: "https://hk4e-api-os.hoyoverse.com/event/gacha_info/api/getGachaLog?init_type=302&x=y&gacha_type=302",
			ok:   true,
		},
		{
			name: "last marker wins",
			url:  "https://h/index.html?init_type=1#/index.html?init_type=2",
			game: Genshin,
			want: "https://hk4e-api-os.hoyoverse.com/event/gacha_info/api/getGachaLog?init_type=2&gacha_type=2",
			ok:   true,
		},
		{
			name: "first occurrence of key",
			url:  "https://h/index.html?init_type=301&init_type=400",
			game: Genshin,
			want: "https://hk4e-api-os.hoyoverse.com/event/gacha_info/api/getGachaLog?init_type=301&init_type=400&gacha_type=301",
			ok:   true,
		},
		{
			name: "value stops at repeated key",
			url:  "https://h/index.html?init_type=3init_type=4",
			game: Genshin,
			want: "https://hk4e-api-os.hoyoverse.com/event/gacha_info/api/getGachaLog?init_type=3init_type=4&gacha_type=3",
			ok:   true,
		},
		{
			name: "empty value",
			url:  "https://h/index.html?init_type=&a=1",
			game: Genshin,
			want: "https://hk4e-api-os.hoyoverse.com/event/gacha_info/api/getGachaLog?init_type=&a=1&gacha_type=",
			ok:   true,
		},
		{
			name: "key missing",
			url:  "https://h/index.html?a=1&b=2",
			game: Genshin,
			ok:   false,
		},
		{
			name: "other game's key",
			url:  "https://h/index.html?init_type=301",
			game: StarRail,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BackendURL(tt.url, tt.game)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v (%s)", tt.ok, ok, got)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSpec_EveryGame(t *testing.T) {
	for _, g := range All() {
		spec := g.Spec()
		if !strings.HasSuffix(spec.QueryKey, "=") {
			t.Errorf("%s: query key %q must end with '='", g, spec.QueryKey)
		}
		if !strings.HasPrefix(spec.BaseURL, "https://") {
			t.Errorf("%s: unexpected base url %q", g, spec.BaseURL)
		}
		if len(spec.Banners) == 0 {
			t.Errorf("%s: no banners", g)
		}
	}
}

func TestParse(t *testing.T) {
	for _, g := range All() {
		parsed, err := Parse(g.String())
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", g, err)
		}
		if parsed != g {
			t.Errorf("expected %s, got %s", g, parsed)
		}
	}

	if g, err := Parse(" HSR "); err != nil || g != StarRail {
		t.Errorf("expected starrail, got %v (%v)", g, err)
	}
	if _, err := Parse("zzz"); err == nil {
		t.Error("expected error for unknown game")
	}
}

func TestFromDataDir(t *testing.T) {
	tests := []struct {
		dir  string
		want Game
		ok   bool
	}{
		{"GenshinImpact_Data", Genshin, true},
		{"YuanShen_Data", Genshin, true},
		{"StarRail_Data", StarRail, true},
		{"Other_Data", 0, false},
	}
	for _, tt := range tests {
		got, ok := FromDataDir(tt.dir)
		if ok != tt.ok || got != tt.want {
			t.Errorf("%s: expected (%v, %v), got (%v, %v)", tt.dir, tt.want, tt.ok, got, ok)
		}
	}
}

func TestFromURL(t *testing.T) {
	if g, ok := FromURL("https://gs.hoyoverse.com/hk4e/event/x/index.html"); !ok || g != Genshin {
		t.Errorf("expected genshin, got %v %v", g, ok)
	}
	if g, ok := FromURL("https://gs.hoyoverse.com/hkrpg/event/x/index.html"); !ok || g != StarRail {
		t.Errorf("expected starrail, got %v %v", g, ok)
	}
	if _, ok := FromURL("https://example.com"); ok {
		t.Error("expected no match")
	}
}
