package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/scrapeworker/models"
)

type fakeRunner struct {
	mu    sync.Mutex
	delay time.Duration
	err   error
	resp  *models.SuccessResponse
	calls int
}

func (f *fakeRunner) Run(ctx context.Context, req *models.ScrapeRequest) (*models.SuccessResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newTestManager(r Runner) *Manager {
	return New(r, Config{TTL: time.Hour, CleanupInterval: time.Hour})
}

func TestExecuteSync_Success(t *testing.T) {
	runner := &fakeRunner{resp: &models.SuccessResponse{PageStatusCode: 200, Content: "<html></html>"}}
	m := newTestManager(runner)
	defer m.Stop()

	job := m.Submit(&models.ScrapeRequest{URL: "https://example.com"})
	result, errDetail := m.ExecuteSync(context.Background(), job)
	if errDetail != nil {
		t.Fatalf("ExecuteSync() error = %+v", errDetail)
	}
	if result.JobID != job.ID {
		t.Errorf("result.JobID = %q, want %q", result.JobID, job.ID)
	}

	_, stored, _, found := m.Status(job.ID)
	if !found || stored.PageStatusCode != 200 {
		t.Errorf("Status() = %+v, found=%v", stored, found)
	}
}

func TestExecuteSync_TransportFailureMarksFailed(t *testing.T) {
	runner := &fakeRunner{resp: &models.SuccessResponse{PageStatusCode: 0, PageError: "net::ERR_CONNECTION_REFUSED", Content: ""}}
	m := newTestManager(runner)
	defer m.Stop()

	job := m.Submit(&models.ScrapeRequest{URL: "https://example.com"})
	_, errDetail := m.ExecuteSync(context.Background(), job)
	if errDetail == nil {
		t.Fatal("ExecuteSync() want error for empty-content pageError, got nil")
	}

	_, _, gotErr, found := m.Status(job.ID)
	if !found || gotErr == nil || gotErr.Error != "net::ERR_CONNECTION_REFUSED" {
		t.Errorf("Status() error = %+v, found=%v", gotErr, found)
	}
}

func TestExecuteSync_RunnerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("boom")}
	m := newTestManager(runner)
	defer m.Stop()

	job := m.Submit(&models.ScrapeRequest{URL: "https://example.com"})
	_, errDetail := m.ExecuteSync(context.Background(), job)
	if errDetail == nil || errDetail.Error != "boom" {
		t.Errorf("ExecuteSync() error = %+v, want boom", errDetail)
	}
}

func TestStatus_Unknown(t *testing.T) {
	m := newTestManager(&fakeRunner{})
	defer m.Stop()

	_, _, _, found := m.Status("does-not-exist")
	if found {
		t.Error("Status() found = true for unknown id, want false")
	}
}

func TestStatus_InFlight(t *testing.T) {
	runner := &fakeRunner{delay: 50 * time.Millisecond, resp: &models.SuccessResponse{Content: "ok", PageStatusCode: 200}}
	m := newTestManager(runner)
	defer m.Stop()

	job := m.Submit(&models.ScrapeRequest{URL: "https://example.com"})
	runCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.RunAsync(runCtx, job, cancel)

	status, _, _, found := m.Status(job.ID)
	if !found || status == nil || !status.Processing {
		t.Errorf("Status() = %+v, found=%v, want in-flight", status, found)
	}

	time.Sleep(150 * time.Millisecond)
	status, result, _, found := m.Status(job.ID)
	if !found || status != nil || result == nil {
		t.Errorf("Status() after completion = status:%+v result:%+v found:%v", status, result, found)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	m := newTestManager(&fakeRunner{})
	defer m.Stop()

	job := m.Submit(&models.ScrapeRequest{URL: "https://example.com"})
	if !m.Delete(job.ID) {
		t.Error("Delete() first call = false, want true")
	}
	if !m.Delete(job.ID) {
		t.Error("Delete() second call = false, want true (idempotent)")
	}
	if _, _, _, found := m.Status(job.ID); found {
		t.Error("Status() found deleted job")
	}
}

func TestStats(t *testing.T) {
	runner := &fakeRunner{resp: &models.SuccessResponse{Content: "ok", PageStatusCode: 200}}
	m := newTestManager(runner)
	defer m.Stop()

	queued := m.Submit(&models.ScrapeRequest{URL: "https://example.com"})
	completed := m.Submit(&models.ScrapeRequest{URL: "https://example.com"})
	if _, errDetail := m.ExecuteSync(context.Background(), completed); errDetail != nil {
		t.Fatalf("ExecuteSync() error = %+v", errDetail)
	}

	stats := m.Stats()
	if stats.Total != 2 || stats.Queued != 1 || stats.Completed != 1 {
		t.Errorf("Stats() = %+v, want total=2 queued=1 completed=1", stats)
	}
	_ = queued
}

func TestSweepEvictsExpiredJobs(t *testing.T) {
	runner := &fakeRunner{resp: &models.SuccessResponse{Content: "ok", PageStatusCode: 200}}
	m := New(runner, Config{TTL: 20 * time.Millisecond, CleanupInterval: 10 * time.Millisecond})
	defer m.Stop()

	job := m.Submit(&models.ScrapeRequest{URL: "https://example.com"})

	time.Sleep(100 * time.Millisecond)

	if _, _, _, found := m.Status(job.ID); found {
		t.Error("Status() found job past its TTL, want swept")
	}
}
