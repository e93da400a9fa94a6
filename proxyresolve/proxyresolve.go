// Package proxyresolve merges request-level and environment proxy
// settings into a normalized form (spec §4.2). Like blockdetect, it is a
// pure function package: no I/O, no retries, nothing but string and URL
// parsing.
package proxyresolve

import (
	"net/url"
	"strings"

	"github.com/use-agent/scrapeworker/models"
)

// Config is the normalized proxy the caller should dial through.
// Server always carries a scheme: Parse rebuilds it as scheme://host:port
// (port 80 when missing), while proxyProfile and environment servers only
// get "http://" prepended when they lack one; if Parse cannot decompose
// its input, Server is that raw input. Username/Password are split out so
// callers can build a Proxy-Authorization header without re-parsing
// Server.
type Config struct {
	Server   string
	Username string
	Password string
}

// Env carries the PROXY_SERVER/USERNAME/PASSWORD environment tier.
type Env struct {
	Server   string
	Username string
	Password string
}

// Resolve applies the precedence from spec §4.2: request.proxyProfile >
// request.proxy (parsed) > environment. Returns nil when no tier has
// anything configured.
func Resolve(req *models.ScrapeRequest, env Env) *Config {
	if req.ProxyProfile != nil && req.ProxyProfile.Server != "" {
		return &Config{
			Server:   normalizeScheme(req.ProxyProfile.Server),
			Username: req.ProxyProfile.Username,
			Password: req.ProxyProfile.Password,
		}
	}
	if req.Proxy != "" {
		return Parse(req.Proxy)
	}
	if env.Server != "" {
		return &Config{Server: normalizeScheme(env.Server), Username: env.Username, Password: env.Password}
	}
	return nil
}

// Parse decomposes a proxy URL string into a Config. If the string lacks
// a scheme, "http://" is prepended before parsing. On parse failure the
// raw input is carried through verbatim as Server, per spec §4.2.
func Parse(raw string) *Config {
	candidate := normalizeScheme(raw)

	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return &Config{Server: raw}
	}

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "80"
	}

	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}

	cfg := &Config{Server: scheme + "://" + host + ":" + port}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	return cfg
}

// normalizeScheme prepends "http://" to a bare host:port string that has
// no scheme yet, so url.Parse can decompose it.
func normalizeScheme(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "http://" + raw
}
