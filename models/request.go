package models

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Engine identifies a scrape strategy. chrome-cdp and playwright are
// identical in this implementation; tlsclient drives a raw HTTP client.
const (
	EngineChromeCDP  = "chrome-cdp"
	EnginePlaywright = "playwright"
	EngineTLSClient  = "tlsclient"
)

// WaitUntil values accepted for navigation readiness.
const (
	WaitUntilLoad           = "load"
	WaitUntilDOMContentLoad = "domcontentloaded"
	WaitUntilNetworkIdle    = "networkidle"
)

const (
	maxWaitMs      = 30000
	maxSelectorMs  = 30000
	defaultTimeout = 300000
)

// Cookie is a single cookie to inject before navigation.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// ProxyProfile is a structured proxy override that takes precedence over
// the bare Proxy string.
type ProxyProfile struct {
	Server   string `json:"server"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Geolocation carries a requested country and locale list. Only
// Languages[0] is ever consumed, as the context locale.
type Geolocation struct {
	Country   string   `json:"country,omitempty"`
	Languages []string `json:"languages,omitempty"`
}

// ScrapeRequest is the payload for POST /v1/scrape. Unrecognized fields
// are rejected by the decoder in Decode, not by this struct's tags.
type ScrapeRequest struct {
	URL    string `json:"url"`
	Engine string `json:"engine,omitempty"`

	Headers map[string]string `json:"headers,omitempty"`
	Cookies []Cookie          `json:"cookies,omitempty"`

	UserAgent string `json:"userAgent,omitempty"`

	Timeout int `json:"timeout,omitempty"`
	Wait    int `json:"wait,omitempty"`

	Actions []Action `json:"actions,omitempty"`

	WaitUntil       string `json:"waitUntil,omitempty"`
	WaitForSelector string `json:"waitForSelector,omitempty"`

	Screenshot         bool `json:"screenshot,omitempty"`
	FullPageScreenshot bool `json:"fullPageScreenshot,omitempty"`

	Proxy        string        `json:"proxy,omitempty"`
	ProxyProfile *ProxyProfile `json:"proxyProfile,omitempty"`
	MobileProxy  bool          `json:"mobileProxy,omitempty"`

	Stealth    *bool `json:"stealth,omitempty"`
	BlockMedia *bool `json:"blockMedia,omitempty"`
	BlockAds   *bool `json:"blockAds,omitempty"`

	Mobile      bool         `json:"mobile,omitempty"`
	Geolocation *Geolocation `json:"geolocation,omitempty"`

	SkipTlsVerification bool `json:"skipTlsVerification,omitempty"`
	InstantReturn       bool `json:"instantReturn,omitempty"`

	// Accepted but not acted upon by any component.
	Priority              json.RawMessage `json:"priority,omitempty"`
	LogRequest            bool            `json:"logRequest,omitempty"`
	SaveScrapeResultToGCS bool            `json:"saveScrapeResultToGCS,omitempty"`
	ZeroDataRetention     bool            `json:"zeroDataRetention,omitempty"`
	DisableSmartWaitCache bool            `json:"disableSmartWaitCache,omitempty"`
	Atsv                  bool            `json:"atsv,omitempty"`
	DisableJsDom          bool            `json:"disableJsDom,omitempty"`
}

// FieldError is one entry in a 400 response's Details list.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// RequestDefaults carries the operator-level fallbacks (config.go's
// TIMEOUT_MS/BLOCK_MEDIA/STEALTH_ENABLED) applied to fields the request
// itself left unset. There is no operator-level default for blockAds:
// spec §6's config table names no such variable, so it always defaults
// to true regardless of RequestDefaults.
type RequestDefaults struct {
	TimeoutMs  int
	BlockMedia bool
	Stealth    bool
}

// Defaults fills unset fields with their documented defaults and clamps
// the ones with a hard ceiling. Call after decoding, before Validate.
func (r *ScrapeRequest) Defaults(d RequestDefaults) {
	if r.Engine == "" {
		r.Engine = EngineChromeCDP
	}
	if r.Timeout == 0 {
		r.Timeout = d.TimeoutMs
		if r.Timeout == 0 {
			r.Timeout = defaultTimeout
		}
	}
	if r.Wait > maxWaitMs {
		r.Wait = maxWaitMs
	}
	if r.WaitUntil == "" {
		r.WaitUntil = WaitUntilLoad
	}
	if r.Stealth == nil {
		r.Stealth = &d.Stealth
	}
	if r.BlockMedia == nil {
		r.BlockMedia = &d.BlockMedia
	}
	if r.BlockAds == nil {
		t := true
		r.BlockAds = &t
	}
	for i := range r.Cookies {
		if r.Cookies[i].Path == "" {
			r.Cookies[i].Path = "/"
		}
		if r.Cookies[i].Domain == "" {
			if u, err := url.Parse(r.URL); err == nil {
				r.Cookies[i].Domain = u.Host
			}
		}
	}
}

// WaitForSelectorTimeoutMs returns min(timeout, 30000), the effective
// selector-wait ceiling from §4.5 step 5.
func (r *ScrapeRequest) WaitForSelectorTimeoutMs() int {
	if r.Timeout < maxSelectorMs {
		return r.Timeout
	}
	return maxSelectorMs
}

// Validate checks the request against the schema, returning one
// FieldError per violation. nil means valid.
func (r *ScrapeRequest) Validate() []FieldError {
	var errs []FieldError

	if r.URL == "" {
		errs = append(errs, FieldError{Path: "url", Message: "url is required"})
	} else if u, err := url.Parse(r.URL); err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, FieldError{Path: "url", Message: "url must be an absolute http(s) URL"})
	}

	switch r.Engine {
	case EngineChromeCDP, EnginePlaywright, EngineTLSClient:
	default:
		errs = append(errs, FieldError{Path: "engine", Message: fmt.Sprintf("unknown engine %q", r.Engine)})
	}

	switch r.WaitUntil {
	case WaitUntilLoad, WaitUntilDOMContentLoad, WaitUntilNetworkIdle:
	default:
		errs = append(errs, FieldError{Path: "waitUntil", Message: fmt.Sprintf("unknown waitUntil %q", r.WaitUntil)})
	}

	for i, a := range r.Actions {
		if msg := a.validate(); msg != "" {
			errs = append(errs, FieldError{Path: fmt.Sprintf("actions[%d]", i), Message: msg})
		}
	}

	for i, c := range r.Cookies {
		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, FieldError{Path: fmt.Sprintf("cookies[%d].name", i), Message: "name is required"})
		}
	}

	return errs
}

// Decode reads a ScrapeRequest from r, rejecting any field not present in
// the struct above (spec §3: "unrecognized fields must be rejected").
func Decode(r io.Reader) (*ScrapeRequest, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var req ScrapeRequest
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}
