package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	ItemsFetched     int64
	SourcesFailed    int64
	ItemsSelected    int64
	StageAttempts    int64
	StageFailures    int64
	DigestsPublished int64
	RunsSucceeded    int64
	RunsFailed       int64

	// Timings
	LastRunDuration    time.Duration
	AverageRunDuration time.Duration
	TotalRunDuration   time.Duration
	RunCount           int64

	// Status
	LastRunTime    time.Time
	LastTargetDate string
	LastErrorTime  time.Time
	LastErrorStep  string
	LastError      string
	IsHealthy      bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func (m *Metrics) AddItemsFetched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsFetched += int64(n)
}

func (m *Metrics) AddSourcesFailed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SourcesFailed += int64(n)
}

func (m *Metrics) AddItemsSelected(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsSelected += int64(n)
}

// RecordStageAttempt counts one stage attempt and whether it failed.
func (m *Metrics) RecordStageAttempt(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StageAttempts++
	if failed {
		m.StageFailures++
	}
}

func (m *Metrics) IncrementDigestsPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DigestsPublished++
}

// RecordRun stores the outcome of a finished run.
func (m *Metrics) RecordRun(date string, duration time.Duration, step string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastRunTime = time.Now()
	m.LastTargetDate = date
	m.LastRunDuration = duration
	m.TotalRunDuration += duration
	m.RunCount++
	m.AverageRunDuration = m.TotalRunDuration / time.Duration(m.RunCount)

	if err != nil {
		m.RunsFailed++
		m.LastError = err.Error()
		m.LastErrorStep = step
		m.LastErrorTime = time.Now()
		m.IsHealthy = false
		return
	}
	m.RunsSucceeded++
	m.IsHealthy = true
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"items_fetched":           m.ItemsFetched,
		"sources_failed":          m.SourcesFailed,
		"items_selected":          m.ItemsSelected,
		"stage_attempts":          m.StageAttempts,
		"stage_failures":          m.StageFailures,
		"digests_published":       m.DigestsPublished,
		"runs_succeeded":          m.RunsSucceeded,
		"runs_failed":             m.RunsFailed,
		"last_run_duration_ms":    m.LastRunDuration.Milliseconds(),
		"average_run_duration_ms": m.AverageRunDuration.Milliseconds(),
		"last_run_time":           m.LastRunTime.Format(time.RFC3339),
		"last_target_date":        m.LastTargetDate,
		"last_error_time":         m.LastErrorTime.Format(time.RFC3339),
		"last_error_step":         m.LastErrorStep,
		"last_error":              m.LastError,
		"is_healthy":              m.IsHealthy,
	}
}
