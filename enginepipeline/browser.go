package enginepipeline

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/scrapeworker/actions"
	"github.com/use-agent/scrapeworker/blockdetect"
	"github.com/use-agent/scrapeworker/browserpool"
	"github.com/use-agent/scrapeworker/models"
	"github.com/use-agent/scrapeworker/proxyresolve"
	"github.com/ysmood/gson"
)

// mobile profile constants (iPhone 12), spec §3/§4.5.
const (
	mobileWidth  = 390
	mobileHeight = 844
	mobileDPR    = 3.0
	mobileUA     = "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/604.1"
)

const (
	desktopWidth  = 1920
	desktopHeight = 1080
)

// BrowserPipeline implements the full browser-driven scrape (spec §4.5).
type BrowserPipeline struct {
	pool              *browserpool.Pool
	proxyEnv          proxyresolve.Env
	pageLoadTimeoutMs int
}

// NewBrowserPipeline builds a BrowserPipeline backed by pool.
// pageLoadTimeoutMs caps the navigation step independently of the
// request's overall timeout; 0 disables the cap.
func NewBrowserPipeline(pool *browserpool.Pool, env proxyresolve.Env, pageLoadTimeoutMs int) *BrowserPipeline {
	return &BrowserPipeline{pool: pool, proxyEnv: env, pageLoadTimeoutMs: pageLoadTimeoutMs}
}

// Run drives one scrape request through a fresh, isolated browser
// context. Non-ActionError failures are folded into a soft
// pageStatusCode=0/pageError response rather than returned as errors,
// per spec §4.5's failure policy.
func (b *BrowserPipeline) Run(ctx context.Context, req *models.ScrapeRequest) (*models.SuccessResponse, error) {
	start := time.Now()

	release, err := b.pool.Acquire(ctx)
	if err != nil {
		return softFailure(req, start, err), nil
	}
	defer release()

	browser, err := b.pool.Browser(ctx)
	if err != nil {
		return softFailure(req, start, err), nil
	}

	proxyCfg := proxyresolve.Resolve(req, b.proxyEnv)

	bctxParams := proto.TargetCreateBrowserContext{}
	if proxyCfg != nil {
		bctxParams.ProxyServer = proxyCfg.Server
	}
	bctxResult, err := bctxParams.Call(browser)
	if err != nil {
		if browserpool.IsDisconnectError(err) {
			b.pool.Invalidate()
		}
		return softFailure(req, start, err), nil
	}
	bctxID := bctxResult.BrowserContextID
	defer func() {
		_ = proto.TargetDisposeBrowserContext{BrowserContextID: bctxID}.Call(browser)
	}()

	page, err := browser.Page(proto.TargetCreateTarget{BrowserContextID: bctxID})
	if err != nil {
		if browserpool.IsDisconnectError(err) {
			b.pool.Invalidate()
		}
		return softFailure(req, start, err), nil
	}
	defer func() { _ = page.Close() }()

	if req.SkipTlsVerification {
		_ = proto.SecuritySetIgnoreCertificateErrors{Ignore: true}.Call(page)
	}

	if req.Stealth == nil || *req.Stealth {
		_, _ = page.EvalOnNewDocument(stealth.JS)
		_, _ = page.EvalOnNewDocument(specStealthJS)
	}

	if err := applyDeviceProfile(page, req); err != nil {
		return softFailure(req, start, err), nil
	}
	if err := applyLocale(page, req); err != nil {
		return softFailure(req, start, err), nil
	}
	if err := applyHeaders(page, req); err != nil {
		return softFailure(req, start, err), nil
	}
	if err := applyCookies(page, req); err != nil {
		return softFailure(req, start, err), nil
	}

	blockMedia := req.BlockMedia == nil || *req.BlockMedia
	blockAds := req.BlockAds == nil || *req.BlockAds
	router := installHijack(page, blockMedia, blockAds)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	navTimeoutMs := req.Timeout
	if b.pageLoadTimeoutMs > 0 && b.pageLoadTimeoutMs < navTimeoutMs {
		navTimeoutMs = b.pageLoadTimeoutMs
	}
	navCtx, navCancel := context.WithTimeout(ctx, time.Duration(navTimeoutMs)*time.Millisecond)
	defer navCancel()
	navPage := page.Context(navCtx)

	status, headers := bindNavigationCapture(navPage)

	if err := navigate(navPage, req.URL, req.WaitUntil); err != nil {
		return softFailure(req, start, err), nil
	}

	if req.WaitForSelector != "" {
		selCtx, selCancel := context.WithTimeout(ctx, time.Duration(req.WaitForSelectorTimeoutMs())*time.Millisecond)
		_, err := navPage.Context(selCtx).Timeout(time.Duration(req.WaitForSelectorTimeoutMs()) * time.Millisecond).Element(req.WaitForSelector)
		selCancel()
		if err != nil {
			return softFailure(req, start, err), nil
		}
	}

	idleMs := req.Wait
	if idleMs > 30000 {
		idleMs = 30000
	}
	if idleMs > 0 {
		select {
		case <-time.After(time.Duration(idleMs) * time.Millisecond):
		case <-ctx.Done():
			return softFailure(req, start, ctx.Err()), nil
		}
	}

	html, err := page.HTML()
	if err != nil {
		return softFailure(req, start, err), nil
	}

	result := &models.SuccessResponse{
		TimeTaken:      0,
		Content:        html,
		URL:            req.URL,
		PageStatusCode: status.get(),
		ResponseHeaders: func() map[string]string {
			if len(headers.get()) == 0 {
				return nil
			}
			return headers.get()
		}(),
		UsedMobileProxy: req.MobileProxy,
	}

	if len(req.Actions) > 0 {
		outcome, actionErr := actions.Run(ctx, page, req.Actions)
		result.ActionResults = outcome.Results
		result.ActionContent = outcome.ActionContent
		result.Screenshots = append(result.Screenshots, outcome.Screenshots...)
		if actionErr != nil {
			return nil, actionErr
		}
		if html, err := page.HTML(); err == nil {
			result.Content = html
		}
	}

	if req.Screenshot || req.FullPageScreenshot {
		data, err := page.Screenshot(req.FullPageScreenshot, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
		if err == nil {
			result.Screenshot = base64.StdEncoding.EncodeToString(data)
		}
	}

	block := blockdetect.Detect(result.PageStatusCode, result.Content, result.ResponseHeaders)
	if block.IsBlocked && block.Confidence >= 0.5 {
		result.BlockedReason = block.Reason
	}

	result.TimeTaken = time.Since(start).Seconds()
	return result, nil
}

// syncBox is a tiny concurrency-safe holder for values mutated from the
// network-event goroutine and read from the main flow.
type syncBox[T any] struct {
	mu  sync.Mutex
	val T
}

func (b *syncBox[T]) set(v T) {
	b.mu.Lock()
	b.val = v
	b.mu.Unlock()
}

func (b *syncBox[T]) get() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.val
}

// bindNavigationCapture registers, BEFORE Navigate is called, a listener
// that captures the main document's status code and headers via the
// Network domain. This runs regardless of whether a hijack router is
// mounted: Fetch-domain request interception only gates which requests
// reach the network, it doesn't suppress Network.responseReceived for
// the ones that are continued, so the two domains coexist fine.
func bindNavigationCapture(page *rod.Page) (status *syncBox[int], headers *syncBox[map[string]string]) {
	status = &syncBox[int]{}
	headers = &syncBox[map[string]string]{val: map[string]string{}}

	wait := page.EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Type != proto.NetworkResourceTypeDocument {
			return
		}
		status.set(int(e.Response.Status))
		flat := make(map[string]string, len(e.Response.Headers))
		for k, v := range e.Response.Headers {
			flat[k] = v.Str()
		}
		headers.set(flat)
	})
	go wait()
	return status, headers
}

func navigate(page *rod.Page, targetURL, waitUntil string) error {
	if err := page.Navigate(targetURL); err != nil {
		return err
	}

	switch waitUntil {
	case models.WaitUntilNetworkIdle:
		wait := page.WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
		wait()
	case models.WaitUntilDOMContentLoad:
		return page.WaitDOMStable(300*time.Millisecond, 0.1)
	default: // "load"
		return page.WaitLoad()
	}
	return nil
}

func applyDeviceProfile(page *rod.Page, req *models.ScrapeRequest) error {
	if req.Mobile {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             mobileWidth,
			Height:            mobileHeight,
			DeviceScaleFactor: mobileDPR,
			Mobile:            true,
		}); err != nil {
			return err
		}
		if err := (proto.EmulationSetTouchEmulationEnabled{Enabled: true}).Call(page); err != nil {
			return err
		}
		if err := (proto.EmulationSetUserAgentOverride{UserAgent: mobileUA}).Call(page); err != nil {
			return err
		}
		return nil
	}

	return page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  desktopWidth,
		Height: desktopHeight,
	})
}

// applyLocale sets the context locale from geolocation.languages[0],
// defaulting to en-US. geolocation.country is accepted but never
// consumed, per spec §9.
func applyLocale(page *rod.Page, req *models.ScrapeRequest) error {
	locale := "en-US"
	if req.Geolocation != nil && len(req.Geolocation.Languages) > 0 && req.Geolocation.Languages[0] != "" {
		locale = req.Geolocation.Languages[0]
	}
	err := proto.EmulationSetLocaleOverride{Locale: locale}.Call(page)
	return err
}

func applyHeaders(page *rod.Page, req *models.ScrapeRequest) error {
	if req.UserAgent != "" {
		if err := (proto.EmulationSetUserAgentOverride{UserAgent: req.UserAgent}).Call(page); err != nil {
			return err
		}
	}
	if len(req.Headers) == 0 {
		return nil
	}
	m := make(proto.NetworkHeaders, len(req.Headers))
	for k, v := range req.Headers {
		m[k] = gson.New(v)
	}
	err := proto.NetworkSetExtraHTTPHeaders{Headers: m}.Call(page)
	return err
}

func applyCookies(page *rod.Page, req *models.ScrapeRequest) error {
	for _, cookie := range req.Cookies {
		domain := cookie.Domain
		if domain == "" {
			if u, err := url.Parse(req.URL); err == nil {
				domain = u.Host
			}
		}
		path := cookie.Path
		if path == "" {
			path = "/"
		}
		if _, err := (proto.NetworkSetCookie{
			Name:   cookie.Name,
			Value:  cookie.Value,
			Domain: domain,
			Path:   path,
		}).Call(page); err != nil {
			return err
		}
	}
	return nil
}

// softFailure folds any non-ActionError into the pageStatusCode=0 /
// pageError shape, per spec §4.5/§7 — the request still returns
// normally rather than as an HTTP error.
func softFailure(req *models.ScrapeRequest, start time.Time, err error) *models.SuccessResponse {
	slog.Debug("browser scrape failed", "url", req.URL, "error", err)
	return &models.SuccessResponse{
		TimeTaken:       time.Since(start).Seconds(),
		Content:         "",
		URL:             req.URL,
		PageStatusCode:  0,
		PageError:       err.Error(),
		UsedMobileProxy: req.MobileProxy,
	}
}
