package game

import "strings"

const pageMarker = "/index.html?"

// BackendURL rebuilds the draw-history API URL from a cached history page URL.
//
// The query string is whatever follows the last "/index.html?" in u, or all of
// u when the marker is missing. The banner type is read from the game's query
// key and appended as gacha_type. The second return value is false when the
// key is absent.
func BackendURL(u string, g Game) (string, bool) {
	parts := strings.Split(u, pageMarker)
	query := parts[len(parts)-1]

	spec := g.Spec()
	value, ok := queryValue(query, spec.QueryKey)
	if !ok {
		return "", false
	}
	return spec.BaseURL + "?" + query + "&gacha_type=" + value, true
}

// queryValue returns the text after the first key up to the next '&', the
// next key occurrence, or the end of the query.
func queryValue(query, key string) (string, bool) {
	_, after, found := strings.Cut(query, key)
	if !found {
		return "", false
	}
	after, _, _ = strings.Cut(after, key)
	value, _, _ := strings.Cut(after, "&")
	return value, true
}
