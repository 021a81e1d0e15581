package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the part of a failed API response the detectors look at.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detector reports whether a bot protection layer answered instead of the
// API, and which one.
type Detector func(r *Response) (detected bool, source string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Detect runs r through detectors and returns the first source found.
func Detect(r *Response, detectors []Detector) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, d := range detectors {
		if detected, source := d(r); detected {
			return source, true
		}
	}
	return "", false
}

func server(r *Response) string {
	return strings.ToLower(r.Header.Get("Server"))
}

func detectCloudflare(r *Response) (bool, string) {
	if r.StatusCode != http.StatusForbidden && r.StatusCode != http.StatusServiceUnavailable && r.StatusCode != http.StatusTooManyRequests {
		return false, ""
	}
	if strings.Contains(server(r), "cloudflare") || r.Header.Get("Cf-Ray") != "" {
		return true, "Cloudflare"
	}
	if bytes.Contains(r.Body, []byte("cf-browser-verification")) ||
		bytes.Contains(r.Body, []byte("cf-turnstile")) ||
		bytes.Contains(r.Body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(r *Response) (bool, string) {
	if r.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(server(r), "akamai") {
		return true, "Akamai"
	}
	// Generic "Reference #" block page.
	if bytes.Contains(r.Body, []byte("Reference #")) && bytes.Contains(r.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(r *Response) (bool, string) {
	if r.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(server(r), "datadome") || r.Header.Get("X-DataDome") != "" || r.Header.Get("X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bytes.Contains(r.Body, []byte("geo.captcha-delivery.com")) {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(r *Response) (bool, string) {
	if r.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if r.Header.Get("X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if bytes.Contains(r.Body, []byte("client.perimeterx.net")) ||
		bytes.Contains(r.Body, []byte("px-captcha")) ||
		bytes.Contains(r.Body, []byte("_pxBlock")) {
		return true, "PerimeterX"
	}
	return false, ""
}
