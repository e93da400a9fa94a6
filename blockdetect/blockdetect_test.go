package blockdetect

import (
	"strings"
	"testing"

	"github.com/use-agent/scrapeworker/models"
)

func TestDetect_RateLimitHeader(t *testing.T) {
	got := Detect(200, "<html>ok</html>", map[string]string{"Retry-After": "30"})
	if !got.IsBlocked || got.Reason != models.ReasonRateLimited {
		t.Errorf("Detect() = %+v, want blocked/rate_limited", got)
	}
	if got.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", got.Confidence)
	}
}

func TestDetect_RateLimitRemainingHeaderCaseInsensitive(t *testing.T) {
	got := Detect(200, "ok", map[string]string{"X-RateLimit-Remaining": "0"})
	if !got.IsBlocked || got.Reason != models.ReasonRateLimited {
		t.Errorf("Detect() = %+v, want blocked/rate_limited", got)
	}
}

func TestDetect_Status429(t *testing.T) {
	got := Detect(429, "too many requests", nil)
	if !got.IsBlocked || got.Reason != models.ReasonRateLimited || got.Confidence != 0.95 {
		t.Errorf("Detect() = %+v, want rate_limited/0.95", got)
	}
}

func TestDetect_Status403(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
		conf   float64
	}{
		{"captcha", "please solve this captcha", models.ReasonCaptcha, 0.9},
		{"bot", "access denied, unusual traffic detected", models.ReasonRobotDetected, 0.85},
		{"plain", "forbidden: no soup for you", models.ReasonIPBlock, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(403, tt.body, nil)
			if !got.IsBlocked || got.Reason != tt.reason || got.Confidence != tt.conf {
				t.Errorf("Detect(403, %q) = %+v, want %s/%v", tt.body, got, tt.reason, tt.conf)
			}
		})
	}
}

func TestDetect_Status503_Cloudflare(t *testing.T) {
	got := Detect(503, "checking your browser before accessing", nil)
	if !got.IsBlocked || got.Reason != models.ReasonRobotDetected || got.Confidence != 0.85 {
		t.Errorf("Detect() = %+v, want robot_detected/0.85", got)
	}
}

func TestDetect_Status503_Generic(t *testing.T) {
	got := Detect(503, "service unavailable", nil)
	if !got.IsBlocked || got.Reason != models.ReasonIPBlock || got.Confidence != 0.6 {
		t.Errorf("Detect() = %+v, want ip_block/0.6", got)
	}
}

func TestDetect_Status401(t *testing.T) {
	blocked := Detect(401, "your ip has been blocked", nil)
	if !blocked.IsBlocked || blocked.Reason != models.ReasonIPBlock {
		t.Errorf("Detect(401, ip pattern) = %+v, want blocked/ip_block", blocked)
	}

	clean := Detect(401, "please log in", nil)
	if clean.IsBlocked {
		t.Errorf("Detect(401, no ip pattern) = %+v, want clean", clean)
	}
}

func TestDetect_CaptchaBodyCeiling(t *testing.T) {
	short := "this page has a recaptcha challenge"
	got := Detect(200, short, nil)
	if !got.IsBlocked || got.Reason != models.ReasonCaptcha || got.Confidence != 0.9 {
		t.Errorf("Detect(short captcha) = %+v, want captcha/0.9", got)
	}

	long := "recaptcha " + strings.Repeat("x", captchaBodyCeiling)
	got = Detect(200, long, nil)
	if !got.IsBlocked || got.Reason != models.ReasonCaptcha || got.Confidence != 0.6 {
		t.Errorf("Detect(long captcha) = %+v, want captcha/0.6", got)
	}
}

func TestDetect_CloudflareBodyCeilingClearsAtLength(t *testing.T) {
	long := "just a moment " + strings.Repeat("x", cloudflareBodyCeiling)
	got := Detect(200, long, nil)
	if got.IsBlocked {
		t.Errorf("Detect(long cloudflare body) = %+v, want clean (ceiling exceeded)", got)
	}
}

func TestDetect_EmptyBodyOn200(t *testing.T) {
	got := Detect(200, "   \n\t  ", nil)
	if !got.IsBlocked || got.Reason != models.ReasonUnknown || got.Confidence != 0.3 {
		t.Errorf("Detect(200, blank) = %+v, want unknown/0.3", got)
	}
}

func TestDetect_Clean(t *testing.T) {
	got := Detect(200, "<html><body>hello world</body></html>", map[string]string{"Content-Type": "text/html"})
	if got.IsBlocked || got.Reason != "" || got.Confidence != 0 {
		t.Errorf("Detect(clean) = %+v, want zero value", got)
	}
}

func TestShouldRetryWithStealth(t *testing.T) {
	tests := []struct {
		name string
		r    models.BlockDetectionResult
		want bool
	}{
		{"not blocked", models.BlockDetectionResult{}, false},
		{"high confidence", models.BlockDetectionResult{IsBlocked: true, Confidence: 0.8}, true},
		{"captcha mid confidence", models.BlockDetectionResult{IsBlocked: true, Reason: models.ReasonCaptcha, Confidence: 0.5}, true},
		{"robot mid confidence", models.BlockDetectionResult{IsBlocked: true, Reason: models.ReasonRobotDetected, Confidence: 0.6}, true},
		{"rate_limited mid confidence", models.BlockDetectionResult{IsBlocked: true, Reason: models.ReasonRateLimited, Confidence: 0.6}, false},
		{"captcha low confidence", models.BlockDetectionResult{IsBlocked: true, Reason: models.ReasonCaptcha, Confidence: 0.4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRetryWithStealth(tt.r); got != tt.want {
				t.Errorf("ShouldRetryWithStealth(%+v) = %v, want %v", tt.r, got, tt.want)
			}
		})
	}
}
