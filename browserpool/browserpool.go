// Package browserpool owns the process-wide singleton browser instance
// and the page-slot concurrency bound (spec §4.4). The browser is
// launched lazily, shared by all requests, and re-launched on the next
// Browser() call after a disconnect is detected.
package browserpool

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"golang.org/x/sync/semaphore"
)

// Config controls browser launch and page concurrency.
type Config struct {
	Headless           bool
	NoSandbox          bool
	BrowserBin         string
	MaxConcurrentPages int
}

// Pool is the singleton browser + bounded page-slot semaphore described
// in spec §4.4/§4.9. Safe for concurrent use.
type Pool struct {
	cfg Config
	sem *semaphore.Weighted

	mu        sync.Mutex
	instance  *rod.Browser
	launching chan struct{}
	launchErr error
}

// New creates a pool. The browser itself is not launched until the
// first Browser() call.
func New(cfg Config) *Pool {
	if cfg.MaxConcurrentPages <= 0 {
		cfg.MaxConcurrentPages = 10
	}
	return &Pool{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.MaxConcurrentPages)),
	}
}

// Acquire blocks until a page slot is available (FIFO, guaranteed by
// semaphore.Weighted) or ctx is done. The returned release func must be
// called exactly once on every exit path.
func (p *Pool) Acquire(ctx context.Context) (release func(), err error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var released bool
	return func() {
		if released {
			return
		}
		released = true
		p.sem.Release(1)
	}, nil
}

// Browser returns the shared browser instance, launching it on first
// use. Concurrent first-callers share a single in-flight launch.
func (p *Pool) Browser(ctx context.Context) (*rod.Browser, error) {
	p.mu.Lock()
	if p.instance != nil {
		b := p.instance
		p.mu.Unlock()
		return b, nil
	}
	if ch := p.launching; ch != nil {
		p.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		p.mu.Lock()
		b, err := p.instance, p.launchErr
		p.mu.Unlock()
		return b, err
	}

	ch := make(chan struct{})
	p.launching = ch
	p.mu.Unlock()

	b, err := p.launch()

	p.mu.Lock()
	p.instance = b
	p.launchErr = err
	p.launching = nil
	p.mu.Unlock()
	close(ch)

	return b, err
}

// Invalidate clears the instance handle so the next Browser() call
// re-launches. Call this when a caller observes the connection has
// dropped.
func (p *Pool) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.instance != nil {
		slog.Warn("browser disconnected, will relaunch on next request")
	}
	p.instance = nil
	p.launchErr = nil
}

// Close shuts down the browser, if running. Call once on process
// shutdown.
func (p *Pool) Close() {
	p.mu.Lock()
	b := p.instance
	p.instance = nil
	p.mu.Unlock()

	if b == nil {
		return
	}
	if err := b.Close(); err != nil {
		slog.Warn("error closing browser", "error", err)
	}
}

func (p *Pool) launch() (*rod.Browser, error) {
	l := launcher.New().
		Headless(p.cfg.Headless).
		NoSandbox(p.cfg.NoSandbox)

	if p.cfg.BrowserBin != "" {
		l = l.Bin(p.cfg.BrowserBin)
	}

	// Stealth / container flags, per spec §4.4: disable sandboxing,
	// shared memory, GPU, and automation signals.
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-infobars"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, err
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, err
	}
	return browser, nil
}

// IsDisconnectError reports whether err looks like the browser's
// transport dropped out from under an in-flight call, as opposed to a
// page-level or navigation failure. Callers use this to decide whether
// to Invalidate() the pool.
func IsDisconnectError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"websocket", "closed network connection", "broken pipe", "eof", "context canceled while reading"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
