package enginepipeline

import (
	"testing"

	"github.com/use-agent/scrapeworker/models"
)

func TestGetEngineMaxTime_TLSClientCapsAt15000(t *testing.T) {
	tests := []struct {
		name    string
		timeout int
		want    int
	}{
		{"under cap", 5000, 5000},
		{"over cap", 300000, 15000},
		{"exactly cap", 15000, 15000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &models.ScrapeRequest{Engine: models.EngineTLSClient, Timeout: tt.timeout}
			if got := GetEngineMaxTime(req); got != tt.want {
				t.Errorf("GetEngineMaxTime() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEngineMaxTime_PlaywrightUsesWaitPlus30s(t *testing.T) {
	req := &models.ScrapeRequest{Engine: models.EnginePlaywright, Timeout: 300000, Wait: 2000}
	if got, want := GetEngineMaxTime(req), 32000; got != want {
		t.Errorf("GetEngineMaxTime() = %d, want %d", got, want)
	}
}

func TestGetEngineMaxTime_PlaywrightClampedByTimeout(t *testing.T) {
	req := &models.ScrapeRequest{Engine: models.EnginePlaywright, Timeout: 10000, Wait: 2000}
	if got, want := GetEngineMaxTime(req), 10000; got != want {
		t.Errorf("GetEngineMaxTime() = %d, want %d", got, want)
	}
}

func TestGetEngineMaxTime_ChromeCDPSumsActionBudgets(t *testing.T) {
	req := &models.ScrapeRequest{
		Engine:  models.EngineChromeCDP,
		Timeout: 300000,
		Wait:    1000,
		Actions: []models.Action{
			{Type: models.ActionWait, Milliseconds: 5000},
			{Type: models.ActionClick, Selector: "#a"},
			{Type: models.ActionScreenshot},
		},
	}
	want := 1000 + 30000 + 5000 + 250 + 250
	if got := GetEngineMaxTime(req); got != want {
		t.Errorf("GetEngineMaxTime() = %d, want %d", got, want)
	}
}

func TestGetEngineMaxTime_ChromeCDPNoExtras(t *testing.T) {
	req := &models.ScrapeRequest{Engine: models.EngineChromeCDP, Timeout: 300000}
	if got, want := GetEngineMaxTime(req), 30000; got != want {
		t.Errorf("GetEngineMaxTime() = %d, want %d", got, want)
	}
}

func TestGetEngineMaxTime_UnrecognizedEngineRoutesLikeChromeCDP(t *testing.T) {
	req := &models.ScrapeRequest{Engine: "unknown-engine", Timeout: 300000}
	if got, want := GetEngineMaxTime(req), 30000; got != want {
		t.Errorf("GetEngineMaxTime() = %d, want %d", got, want)
	}
}
