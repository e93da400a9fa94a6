package proxyresolve

import (
	"testing"

	"github.com/use-agent/scrapeworker/models"
)

func TestResolve_Precedence(t *testing.T) {
	env := Env{Server: "envproxy:8080", Username: "envuser", Password: "envpass"}

	t.Run("proxyProfile wins over everything", func(t *testing.T) {
		req := &models.ScrapeRequest{
			Proxy:        "user:pass@proxy.example.com:3128",
			ProxyProfile: &models.ProxyProfile{Server: "profile.example.com:9000", Username: "pu", Password: "pp"},
		}
		got := Resolve(req, env)
		if got.Server != "http://profile.example.com:9000" || got.Username != "pu" || got.Password != "pp" {
			t.Errorf("Resolve() = %+v, want profile server", got)
		}
	})

	t.Run("proxy string wins over env", func(t *testing.T) {
		req := &models.ScrapeRequest{Proxy: "user:pass@proxy.example.com:3128"}
		got := Resolve(req, env)
		if got.Server != "http://proxy.example.com:3128" {
			t.Errorf("Resolve().Server = %q, want http://proxy.example.com:3128", got.Server)
		}
		if got.Username != "user" || got.Password != "pass" {
			t.Errorf("Resolve() credentials = %q/%q, want user/pass", got.Username, got.Password)
		}
	})

	t.Run("env is the fallback", func(t *testing.T) {
		req := &models.ScrapeRequest{}
		got := Resolve(req, env)
		if got.Server != "http://envproxy:8080" || got.Username != "envuser" {
			t.Errorf("Resolve() = %+v, want env fallback", got)
		}
	})

	t.Run("nil when nothing configured", func(t *testing.T) {
		req := &models.ScrapeRequest{}
		if got := Resolve(req, Env{}); got != nil {
			t.Errorf("Resolve() = %+v, want nil", got)
		}
	})
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantSrv  string
		wantUser string
		wantPass string
	}{
		{"bare host:port", "proxy.example.com:8080", "http://proxy.example.com:8080", "", ""},
		{"with scheme", "https://proxy.example.com:443", "https://proxy.example.com:443", "", ""},
		{"with credentials", "user:pass@proxy.example.com:3128", "http://proxy.example.com:3128", "user", "pass"},
		{"no port defaults to 80", "proxy.example.com", "http://proxy.example.com:80", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			if got.Server != tt.wantSrv {
				t.Errorf("Parse(%q).Server = %q, want %q", tt.raw, got.Server, tt.wantSrv)
			}
			if got.Username != tt.wantUser || got.Password != tt.wantPass {
				t.Errorf("Parse(%q) creds = %q/%q, want %q/%q", tt.raw, got.Username, got.Password, tt.wantUser, tt.wantPass)
			}
		})
	}
}

func TestParse_FallsBackToRawOnFailure(t *testing.T) {
	raw := "http://[::1"
	got := Parse(raw)
	if got.Server != raw {
		t.Errorf("Parse(%q).Server = %q, want raw input carried through", raw, got.Server)
	}
}

func TestParse_RoundTripsServerUserPassTriple(t *testing.T) {
	got := Parse("alice:s3cret@proxy.example.com:1234")
	again := Parse(got.Username + ":" + got.Password + "@" + got.Server[len("http://"):])
	if again.Server != got.Server {
		t.Errorf("re-parsing formatted server changed it: %q vs %q", again.Server, got.Server)
	}
	if again.Username != got.Username || again.Password != got.Password {
		t.Errorf("re-parsing changed credentials: %q/%q vs %q/%q", again.Username, again.Password, got.Username, got.Password)
	}
}
