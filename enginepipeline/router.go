package enginepipeline

import (
	"context"
	"log/slog"

	"github.com/use-agent/scrapeworker/models"
)

// ScrapePipeline is implemented by BrowserPipeline and HTTPPipeline.
type ScrapePipeline interface {
	Run(ctx context.Context, req *models.ScrapeRequest) (*models.SuccessResponse, error)
}

// Router dispatches a request to the pipeline named by req.Engine,
// per spec §4.7.
type Router struct {
	browser *BrowserPipeline
	http    *HTTPPipeline
}

// NewRouter builds a Router over the given pipelines.
func NewRouter(browser *BrowserPipeline, http *HTTPPipeline) *Router {
	return &Router{browser: browser, http: http}
}

// Run picks the pipeline for req.Engine and runs it.
func (r *Router) Run(ctx context.Context, req *models.ScrapeRequest) (*models.SuccessResponse, error) {
	switch req.Engine {
	case models.EngineTLSClient:
		return r.http.Run(ctx, req)
	case models.EngineChromeCDP, models.EnginePlaywright:
		return r.browser.Run(ctx, req)
	default:
		slog.Warn("unrecognized engine, falling back to chrome-cdp", "engine", req.Engine)
		return r.browser.Run(ctx, req)
	}
}

// nonWaitActionBudgetMs is the per-action time every action variant
// other than "wait" contributes to the chrome-cdp budget in
// GetEngineMaxTime, per spec §4.7.
const nonWaitActionBudgetMs = 250

// GetEngineMaxTime computes the best-effort per-engine execution budget
// callers use for outer timeouts, per spec §4.7:
//
//	tlsclient   -> min(15000, timeout)
//	playwright  -> min(wait + 30000, timeout)
//	chrome-cdp  -> min(wait + Σactions + 30000, timeout), where each
//	               "wait" action contributes its Milliseconds and every
//	               other action contributes 250ms
func GetEngineMaxTime(req *models.ScrapeRequest) int {
	switch req.Engine {
	case models.EngineTLSClient:
		return min(15000, req.Timeout)
	case models.EnginePlaywright:
		return min(req.Wait+30000, req.Timeout)
	default: // chrome-cdp, and anything unrecognized (routed to the browser pipeline)
		budget := req.Wait + 30000
		for _, a := range req.Actions {
			if a.Type == models.ActionWait {
				budget += a.Milliseconds
			} else {
				budget += nonWaitActionBudgetMs
			}
		}
		return min(budget, req.Timeout)
	}
}
