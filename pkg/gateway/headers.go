package gateway

import (
	"strings"

	"github.com/corpix/uarand"
)

// captchaMarkers flag challenge pages that come back with a 200
var captchaMarkers = []string{
	"captcha", "recaptcha", "hcaptcha", "cf-turnstile",
	"challenge-platform", "cf-chl-bypass", "challenge-form",
	"just a moment...", "checking your browser",
	"access denied", "automated access",
}

// DetectCaptcha reports whether a response body contains CAPTCHA or
// bot-challenge markers
func DetectCaptcha(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range captchaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// BrowserHeaders returns realistic navigation headers with a rotated
// User-Agent, for endpoints that serve HTML
func BrowserHeaders() map[string]string {
	return map[string]string{
		"User-Agent":                uarand.GetRandom(),
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"DNT":                       "1",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Cache-Control":             "max-age=0",
	}
}

// APIHeaders returns headers for JSON endpoints
func APIHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      uarand.GetRandom(),
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9",
		"DNT":             "1",
		"Connection":      "keep-alive",
	}
}
