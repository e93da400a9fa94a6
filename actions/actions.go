// Package actions implements the ActionInterpreter (spec §4.3): a
// strictly sequential executor for the eight scripted page-interaction
// variants, driving one shared *rod.Page per request.
package actions

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/scrapeworker/models"
)

// elementWaitTimeout bounds click/type's wait for the target selector to
// exist, per spec §4.3.
const elementWaitTimeout = 10 * time.Second

// Outcome is everything the interpreter accumulates across a run, fed
// back into the SuccessResponse by the caller.
type Outcome struct {
	Results       []models.ActionResult
	Screenshots   []string
	ActionContent []models.ActionContentItem
}

// Run executes actions in order against page, sharing its context with
// the caller's ctx. It stops at the first failing action and returns an
// *models.ActionError identifying it; all results collected up to that
// point are still returned in Outcome.
func Run(ctx context.Context, page *rod.Page, actions []models.Action) (Outcome, error) {
	var out Outcome

	for i, action := range actions {
		result, err := execOne(ctx, page, action)
		if err != nil {
			return out, &models.ActionError{Index: i, Type: action.Type, Err: err}
		}
		if result != nil {
			out.Results = append(out.Results, models.ActionResult{Index: i, Type: action.Type, Result: result})
		}
		switch v := result.(type) {
		case screenshotResult:
			out.Screenshots = append(out.Screenshots, v.Base64)
		case models.ActionContentItem:
			out.ActionContent = append(out.ActionContent, v)
		}
	}
	return out, nil
}

type screenshotResult struct {
	Base64 string `json:"base64"`
}

type jsResult struct {
	Return string `json:"return"`
}

type pdfResult struct {
	Link string `json:"link"`
}

func execOne(ctx context.Context, page *rod.Page, action models.Action) (any, error) {
	actionCtx, cancel := context.WithTimeout(ctx, elementWaitTimeout)
	defer cancel()
	p := page.Context(actionCtx)

	switch action.Type {
	case models.ActionWait:
		return nil, execWait(ctx, action)
	case models.ActionClick:
		return nil, execClick(p, action)
	case models.ActionType:
		return nil, execType(p, action)
	case models.ActionScroll:
		return nil, execScroll(p, action)
	case models.ActionScreenshot:
		return execScreenshot(p, action)
	case models.ActionScrape:
		return execScrape(page, action)
	case models.ActionExecuteJS:
		return execJS(p, action), nil
	case models.ActionPDF:
		slog.Warn("pdf action is not supported in the self-hosted worker")
		return pdfResult{Link: "pdf-not-supported-in-self-hosted"}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", action.Type)
	}
}

// execWait sleeps for the clamped duration, independent of the
// per-action element-wait timeout (spec: up to 30000ms).
func execWait(ctx context.Context, action models.Action) error {
	d := time.Duration(action.WaitMs()) * time.Millisecond
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func execClick(p *rod.Page, action models.Action) error {
	el, err := p.Element(action.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", action.Selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// execType fills the field, replacing any existing value rather than
// appending to it.
func execType(p *rod.Page, action models.Action) error {
	el, err := p.Element(action.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", action.Selector, err)
	}
	if err := el.Focus(); err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(action.Text)
}

func execScroll(p *rod.Page, action models.Action) error {
	if action.Selector != "" {
		el, err := p.Element(action.Selector)
		if err != nil {
			return fmt.Errorf("element %q not found: %w", action.Selector, err)
		}
		return el.ScrollIntoView()
	}

	delta := action.ScrollAmount()
	if action.Direction == models.ScrollUp {
		delta = -delta
	}
	_, err := p.Eval(`(d) => window.scrollBy(0, d)`, delta)
	return err
}

func execScreenshot(p *rod.Page, action models.Action) (any, error) {
	if action.Viewport != nil {
		if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:  action.Viewport.Width,
			Height: action.Viewport.Height,
		}); err != nil {
			return nil, err
		}
	}

	data, err := p.Screenshot(action.FullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, err
	}
	return screenshotResult{Base64: base64.StdEncoding.EncodeToString(data)}, nil
}

// execScrape has no-selector-found return empty string rather than fail
// the sequence, per spec §4.3.
func execScrape(page *rod.Page, action models.Action) (any, error) {
	var html string
	if action.Selector != "" {
		els, err := page.Elements(action.Selector)
		if err != nil {
			return nil, err
		}
		if len(els) > 0 {
			res, err := els[0].Eval(`() => this.innerHTML`)
			if err == nil {
				html = res.Value.Str()
			}
		}
	} else {
		h, err := page.HTML()
		if err != nil {
			return nil, err
		}
		html = h
	}

	pageURL := ""
	if info, err := page.Info(); err == nil {
		pageURL = info.URL
	}
	return models.ActionContentItem{URL: pageURL, HTML: html}, nil
}

// execJS never aborts the sequence: a script error is folded into the
// {"error": ...} shape per spec §4.3/§9.
func execJS(p *rod.Page, action models.Action) jsResult {
	res, err := p.Eval(action.Script)
	if err != nil {
		b, _ := json.Marshal(map[string]string{"error": err.Error()})
		return jsResult{Return: string(b)}
	}
	b, err := json.Marshal(res.Value)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return jsResult{Return: string(b)}
}
