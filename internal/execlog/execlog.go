// Package execlog records the step-by-step outcome of one pipeline run.
package execlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/technews/internal/fsutil"
)

// Status of one entry.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusDegraded Status = "degraded"
)

// Outcome of a run.
type Outcome string

const (
	OutcomeRunning Outcome = "running"
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// Entry is one step, stage attempt, or degraded source.
type Entry struct {
	Name       string         `json:"name"`
	Attempt    int            `json:"attempt,omitempty"`
	Status     Status         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Record is the telemetry of one run.
type Record struct {
	RunID      string    `json:"run_id"`
	TargetDate string    `json:"target_date"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	FailedStep string    `json:"failed_step,omitempty"`
	Error      string    `json:"error,omitempty"`
	Entries    []Entry   `json:"entries"`
}

// Duration returns the wall time of a finished run.
func (r Record) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Recorder appends entries to a Record until it is finalized. After
// Finalize every further call is ignored.
type Recorder struct {
	mu        sync.Mutex
	rec       Record
	finalized bool
	now       func() time.Time
}

// NewRecorder starts a record for targetDate with a fresh run id.
func NewRecorder(targetDate string) *Recorder {
	return NewRecorderWithClock(targetDate, time.Now)
}

// NewRecorderWithClock is NewRecorder with an explicit clock for every
// timestamp in the record.
func NewRecorderWithClock(targetDate string, now func() time.Time) *Recorder {
	return &Recorder{
		rec: Record{
			RunID:      uuid.NewString(),
			TargetDate: targetDate,
			StartedAt:  now(),
			Outcome:    OutcomeRunning,
			Entries:    []Entry{},
		},
		now: now,
	}
}

// Add appends an entry.
func (r *Recorder) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return
	}
	r.rec.Entries = append(r.rec.Entries, e)
}

// Step starts timing a named step.
func (r *Recorder) Step(name string) *Step {
	return &Step{r: r, name: name, started: r.now()}
}

// Finalize closes the record. err nil means success.
func (r *Recorder) Finalize(failedStep string, err error) Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finalized {
		r.rec.FinishedAt = r.now()
		if err != nil {
			r.rec.Outcome = OutcomeError
			r.rec.FailedStep = failedStep
			r.rec.Error = err.Error()
		} else {
			r.rec.Outcome = OutcomeSuccess
		}
		r.finalized = true
	}
	return r.snapshot()
}

// Snapshot returns a copy of the record.
func (r *Recorder) Snapshot() Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Recorder) snapshot() Record {
	out := r.rec
	out.Entries = make([]Entry, len(r.rec.Entries))
	copy(out.Entries, r.rec.Entries)
	return out
}

// Step is an in-flight entry.
type Step struct {
	r       *Recorder
	name    string
	started time.Time
}

// Done records the step as successful.
func (s *Step) Done(details map[string]any) {
	s.r.Add(Entry{Name: s.name, Status: StatusSuccess, StartedAt: s.started, FinishedAt: s.r.now(), Details: details})
}

// Fail records the step as failed.
func (s *Step) Fail(err error, details map[string]any) {
	e := Entry{Name: s.name, Status: StatusFailed, StartedAt: s.started, FinishedAt: s.r.now(), Details: details}
	if err != nil {
		e.Error = err.Error()
	}
	s.r.Add(e)
}

// Save writes rec as indented JSON, replacing path atomically.
func Save(path string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution record: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write execution record: %w", err)
	}
	return nil
}

// Load reads a saved record.
func Load(path string) (Record, error) {
	var rec Record
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to parse execution record: %w", err)
	}
	return rec, nil
}
