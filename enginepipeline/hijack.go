package enginepipeline

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// adDomains mirrors the teacher's ad/tracking blocklist (scraper/hijack.go).
var adDomains = map[string]struct{}{
	"doubleclick.net": {}, "googlesyndication.com": {}, "googleadservices.com": {},
	"google-analytics.com": {}, "googletagmanager.com": {}, "googletagservices.com": {},
	"facebook.net": {}, "connect.facebook.net": {}, "fbcdn.net": {},
	"adnxs.com": {}, "adsrvr.org": {}, "amazon-adsystem.com": {},
	"criteo.com": {}, "criteo.net": {}, "outbrain.com": {}, "taboola.com": {},
	"moatads.com": {}, "pubmatic.com": {}, "rubiconproject.com": {},
	"scorecardresearch.com": {}, "quantserve.com": {}, "hotjar.com": {},
	"mixpanel.com": {}, "segment.io": {}, "segment.com": {},
	"chartbeat.com": {}, "chartbeat.net": {}, "optimizely.com": {},
	"media.net": {}, "openx.net": {}, "casalemedia.com": {},
	"demdex.net": {}, "bluekai.com": {}, "mathtag.com": {},
	"serving-sys.com": {}, "rlcdn.com": {}, "addthis.com": {},
}

// blockedMediaExtensions is the file-extension list from spec §4.5.
var blockedMediaExtensions = []string{
	".mp4", ".webm", ".avi", ".mov", ".wmv", ".flv",
	".mp3", ".wav", ".ogg", ".gif", ".webp",
}

// isAdDomain reports whether rawURL contains any listed ad/tracking
// domain as a case-insensitive substring.
func isAdDomain(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for d := range adDomains {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

func hasBlockedMediaExtension(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, ext := range blockedMediaExtensions {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

// installHijack mounts a request interceptor that aborts requests per
// spec §4.5 step 3: ad-domain substring matches when blockAds, and
// media/font resource types or blocked extensions when blockMedia.
// Returns nil if neither toggle is set.
func installHijack(page *rod.Page, blockMedia, blockAds bool) *rod.HijackRouter {
	if !blockMedia && !blockAds {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		reqURL := ctx.Request.URL().String()

		if blockMedia {
			rt := ctx.Request.Type()
			if rt == proto.NetworkResourceTypeMedia || rt == proto.NetworkResourceTypeFont || hasBlockedMediaExtension(reqURL) {
				ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
		}

		if blockAds {
			if isAdDomain(reqURL) {
				ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
		}

		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	go router.Run()
	return router
}
