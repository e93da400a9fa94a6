// Package blockdetect classifies a scrape response as blocked or clean.
//
// Detect is a pure function: no I/O, no clock, nothing but string
// comparisons over its arguments. That purity is deliberate — it keeps
// the precedence table trivially table-test-driven and safe to fuzz.
package blockdetect

import (
	"strings"

	"github.com/use-agent/scrapeworker/models"
)

// captchaPatterns are checked against the lowercased body.
var captchaPatterns = []string{
	"captcha", "recaptcha", "hcaptcha", "cf-turnstile", "challenge-form",
	"challenge-running", "g-recaptcha", "h-captcha", "arkose", "funcaptcha",
}

// botPatterns are checked against the lowercased body.
var botPatterns = []string{
	"verify you are human", "access denied", "suspicious activity",
	"unusual traffic", "bot detected", "browser check",
	"please enable javascript", "automated access", "are you a robot",
	"security check", "please verify you are a human", "unusual activity",
	"automated requests", "pardon our interruption", "request blocked",
	"your browser does not support javascript", "enable cookies and reload",
	"detected unusual traffic", "bot protection", "not a robot",
	"human verification", "please complete the security check",
}

// cloudflarePatterns are checked against the lowercased body.
var cloudflarePatterns = []string{
	"cloudflare", "cf-ray", "checking your browser", "just a moment",
	"please wait while we verify", "ddos protection", "ray id:",
	"performance & security by cloudflare", "__cf_bm", "cf_chl_opt",
}

// rateLimitPatterns are checked against the lowercased body.
var rateLimitPatterns = []string{
	"rate limit", "rate-limit", "ratelimit", "too many requests",
	"slow down", "request limit exceeded", "quota exceeded", "throttled",
}

// ipBlockPatterns are checked against the lowercased body.
var ipBlockPatterns = []string{
	"ip blocked", "ip banned", "your ip", "ip address", "blocked ip",
	"banned ip", "forbidden", "403 forbidden",
}

const (
	cloudflareBodyCeiling = 15000
	captchaBodyCeiling    = 50000
	botBodyCeiling        = 20000
	ipBlockBodyCeiling    = 20000
)

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func headerEquals(headers map[string]string, key, value string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, key) && v == value {
			return true
		}
	}
	return false
}

func headerPresent(headers map[string]string, key string) bool {
	for k := range headers {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func blocked(reason string, confidence float64) models.BlockDetectionResult {
	return models.BlockDetectionResult{IsBlocked: true, Reason: reason, Confidence: confidence}
}

var clean = models.BlockDetectionResult{}

// Detect applies the §4.1 precedence table to a scrape response in order;
// the first matching rule decides the result. It never returns a result
// with IsBlocked=false and a non-empty Reason or non-zero Confidence.
func Detect(status int, body string, headers map[string]string) models.BlockDetectionResult {
	lower := strings.ToLower(body)

	// 1. Rate-limit headers.
	if headerPresent(headers, "retry-after") ||
		headerEquals(headers, "x-ratelimit-remaining", "0") ||
		headerEquals(headers, "x-rate-limit-remaining", "0") {
		return blocked(models.ReasonRateLimited, 0.95)
	}

	// 2. Status 429.
	if status == 429 {
		return blocked(models.ReasonRateLimited, 0.95)
	}

	// 3. Status 403.
	if status == 403 {
		switch {
		case containsAny(lower, captchaPatterns):
			return blocked(models.ReasonCaptcha, 0.9)
		case containsAny(lower, botPatterns):
			return blocked(models.ReasonRobotDetected, 0.85)
		default:
			return blocked(models.ReasonIPBlock, 0.8)
		}
	}

	// 4. Status 503.
	if status == 503 {
		if containsAny(lower, cloudflarePatterns) {
			return blocked(models.ReasonRobotDetected, 0.85)
		}
		return blocked(models.ReasonIPBlock, 0.6)
	}

	// 5. Status 401.
	if status == 401 {
		if containsAny(lower, ipBlockPatterns) {
			return blocked(models.ReasonIPBlock, 0.7)
		}
		return clean
	}

	// 6. CAPTCHA pattern in body.
	if containsAny(lower, captchaPatterns) {
		if len(body) < captchaBodyCeiling {
			return blocked(models.ReasonCaptcha, 0.9)
		}
		return blocked(models.ReasonCaptcha, 0.6)
	}

	// 7. Cloudflare pattern in body.
	if containsAny(lower, cloudflarePatterns) {
		if len(body) < cloudflareBodyCeiling {
			return blocked(models.ReasonRobotDetected, 0.85)
		}
		return clean
	}

	// 8. Bot-detection pattern in body.
	if containsAny(lower, botPatterns) {
		if len(body) < botBodyCeiling {
			return blocked(models.ReasonRobotDetected, 0.8)
		}
		return blocked(models.ReasonRobotDetected, 0.5)
	}

	// 9. Rate-limit pattern in body.
	if containsAny(lower, rateLimitPatterns) {
		return blocked(models.ReasonRateLimited, 0.75)
	}

	// 10. IP-block pattern in body.
	if containsAny(lower, ipBlockPatterns) {
		if len(body) < ipBlockBodyCeiling {
			return blocked(models.ReasonIPBlock, 0.7)
		}
		return blocked(models.ReasonIPBlock, 0.4)
	}

	// 11. Status 200 and empty-trimmed body.
	if status == 200 && strings.TrimSpace(body) == "" {
		return blocked(models.ReasonUnknown, 0.3)
	}

	// 12. Otherwise not blocked.
	return clean
}

// ShouldRetryWithStealth is the caller policy from §4.1: retry iff
// blocked AND (confidence ≥ 0.7 OR (reason ∈ {captcha, robot_detected}
// AND confidence ≥ 0.5)).
func ShouldRetryWithStealth(r models.BlockDetectionResult) bool {
	if !r.IsBlocked {
		return false
	}
	if r.Confidence >= 0.7 {
		return true
	}
	return (r.Reason == models.ReasonCaptcha || r.Reason == models.ReasonRobotDetected) && r.Confidence >= 0.5
}
