// Package jobs owns the in-memory job store: synchronous and deferred
// execution, TTL eviction, and status projection (spec §4.8). The store
// is an RWMutex-guarded map rather than a sync.Map, since job mutation
// needs atomic multi-field status transitions that a single-key CAS
// doesn't give for free — grounded on cache/cache.go's RWMutex+map
// shape.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/scrapeworker/models"
)

// Runner is the subset of enginepipeline.Router a Manager needs.
type Runner interface {
	Run(ctx context.Context, req *models.ScrapeRequest) (*models.SuccessResponse, error)
}

// Config controls TTL eviction.
type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// StatusResponse is what GET /v1/scrape/:jobId returns while in flight,
// per spec §4.8's getJobStatus projection.
type StatusResponse struct {
	JobID      string `json:"jobId"`
	Processing bool   `json:"processing"`
}

// Manager is the job store plus TTL sweeper. Safe for concurrent use.
type Manager struct {
	runner Runner
	cfg    Config

	mu   sync.RWMutex
	jobs map[string]*models.Job

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Manager and starts its TTL sweeper goroutine.
func New(runner Runner, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 600 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 60 * time.Second
	}
	m := &Manager{
		runner: runner,
		cfg:    cfg,
		jobs:   make(map[string]*models.Job),
		stopCh: make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Stop halts the TTL sweeper. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Submit creates a queued job for req. Callers choose whether to run it
// synchronously (ExecuteSync) or fire it off (RunAsync).
func (m *Manager) Submit(req *models.ScrapeRequest) *models.Job {
	job := &models.Job{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    models.JobQueued,
		CreatedAt: time.Now(),
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
	return job
}

// ExecuteSync runs job's request to completion and returns the
// resulting SuccessResponse (with JobID populated) or an error detail
// suitable for a 500 response. Grounded on spec §4.8's executeJob.
func (m *Manager) ExecuteSync(ctx context.Context, job *models.Job) (*models.SuccessResponse, *models.ErrorDetail) {
	m.setProcessing(job.ID)

	result, err := m.runner.Run(ctx, job.Request)
	if err != nil {
		detail := &models.ErrorDetail{Error: err.Error()}
		m.complete(job.ID, models.JobFailed, nil, detail)
		return nil, detail
	}

	if result.PageError != "" && result.Content == "" {
		detail := &models.ErrorDetail{Error: result.PageError}
		m.complete(job.ID, models.JobFailed, nil, detail)
		return nil, detail
	}

	result.JobID = job.ID
	m.complete(job.ID, models.JobCompleted, result, nil)
	return result, nil
}

// RunAsync runs job's request in the background against ctx (typically
// a context.Background() bounded by the engine's own max-time budget,
// not the originating HTTP request's context, so a returning handler
// doesn't abort the scrape). cancel is called once the run finishes to
// release ctx's resources.
func (m *Manager) RunAsync(ctx context.Context, job *models.Job, cancel context.CancelFunc) {
	go func() {
		defer cancel()
		if _, errDetail := m.ExecuteSync(ctx, job); errDetail != nil {
			slog.Debug("async job failed", "jobId", job.ID, "error", errDetail.Error)
		}
	}()
}

// Status projects job id's current state, per spec §4.8: found=false if
// missing, a StatusResponse if still in flight, else the stored
// SuccessResponse or ErrorDetail.
func (m *Manager) Status(id string) (status *StatusResponse, result *models.SuccessResponse, errDetail *models.ErrorDetail, found bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, nil, false
	}

	switch job.Status {
	case models.JobQueued, models.JobProcessing:
		return &StatusResponse{JobID: job.ID, Processing: true}, nil, nil, true
	case models.JobFailed:
		return nil, nil, job.Error, true
	default:
		return nil, job.Result, nil, true
	}
}

// Delete removes job id. Idempotent: returns true whether or not the
// job existed, per spec §4.8/§7.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()
	return true
}

// Stats tallies jobs by status for the health endpoint.
func (m *Manager) Stats() models.HealthStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := models.HealthStats{Total: len(m.jobs)}
	for _, j := range m.jobs {
		switch j.Status {
		case models.JobQueued:
			stats.Queued++
		case models.JobProcessing:
			stats.Processing++
		case models.JobCompleted:
			stats.Completed++
		case models.JobFailed:
			stats.Failed++
		}
	}
	return stats
}

func (m *Manager) setProcessing(id string) {
	m.mu.Lock()
	if j, ok := m.jobs[id]; ok {
		j.Status = models.JobProcessing
	}
	m.mu.Unlock()
}

func (m *Manager) complete(id string, status string, result *models.SuccessResponse, errDetail *models.ErrorDetail) {
	now := time.Now()
	m.mu.Lock()
	if j, ok := m.jobs[id]; ok {
		j.Status = status
		j.Result = result
		j.Error = errDetail
		j.CompletedAt = &now
	}
	m.mu.Unlock()
}

// sweepLoop evicts jobs older than the configured TTL on every tick,
// grounded on cache/cache.go's cleanupLoop.
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-m.cfg.TTL)
			m.mu.Lock()
			for id, j := range m.jobs {
				if j.CreatedAt.Before(cutoff) {
					delete(m.jobs, id)
				}
			}
			m.mu.Unlock()
		}
	}
}
