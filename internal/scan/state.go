// Package scan contains the orchestration layer of the scanner: the
// per-kind scan state, the batch orchestrator that drives an evaluator
// over a ticker list, the scan manager that owns one state per scan
// kind, and the baseline differ that flags newly-appearing matches.
package scan

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"prefscan/internal/model"
)

// Error definitions for the scan lifecycle.
var (
	// ErrAlreadyRunning indicates a scan of the same kind is in
	// progress; concurrent scans of one kind are rejected, not queued.
	ErrAlreadyRunning = errors.New("scan already running")
)

// Status is the lifecycle state of one scan kind.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// State holds the mutable per-scan-kind state: status, progress, the
// cooperative cancellation flag, the last completed results and the
// baseline ticker set from the previous completed scan.
//
// One State exists per scan kind for the life of the process. A new
// scan atomically resets progress and cancellation while the previous
// completed results stay visible until the new scan finishes.
type State struct {
	kind model.ScanKind

	mu          sync.RWMutex
	runID       string
	status      Status
	progress    int
	total       int
	results     []model.PatternMatch
	baseline    map[string]struct{}
	lastUpdated time.Time

	cancelled atomic.Bool
}

// NewState creates an idle State for a scan kind.
func NewState(kind model.ScanKind) *State {
	return &State{
		kind:     kind,
		status:   StatusIdle,
		baseline: make(map[string]struct{}),
	}
}

// Kind returns the scan kind this state belongs to.
func (s *State) Kind() model.ScanKind { return s.kind }

// Cancel trips the cooperative cancellation flag. The running scan
// stops before its next unit of work; in-flight network calls are not
// aborted.
func (s *State) Cancel() { s.cancelled.Store(true) }

// Cancelled reports whether cancellation has been requested for the
// current run.
func (s *State) Cancelled() bool { return s.cancelled.Load() }

// begin transitions the state into processing for a new run, resetting
// progress and the cancellation flag. Rejected when a run is already in
// progress.
func (s *State) begin(total int) (runID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusProcessing {
		return "", ErrAlreadyRunning
	}

	s.runID = uuid.NewString()
	s.status = StatusProcessing
	s.progress = 0
	s.total = total
	s.cancelled.Store(false)
	return s.runID, nil
}

// setProgress records a monotonically non-decreasing progress count.
func (s *State) setProgress(processed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if processed > s.progress {
		s.progress = processed
	}
}

// complete stores a finished run's results diffed against the previous
// baseline, replaces the baseline with the new result ticker set and
// timestamps the state. The marked results are returned.
func (s *State) complete(results []model.PatternMatch, at time.Time) []model.PatternMatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := MarkNew(results, s.baseline)
	s.status = StatusCompleted
	s.results = marked
	s.lastUpdated = at
	s.baseline = make(map[string]struct{}, len(marked))
	for _, m := range marked {
		s.baseline[m.Ticker] = struct{}{}
	}
	return marked
}

// abort settles the state after a cancelled run: completed when partial
// results exist, idle otherwise. The baseline is not replaced; only a
// fully completed scan establishes a new baseline.
func (s *State) abort(results []model.PatternMatch, at time.Time) []model.PatternMatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(results) == 0 {
		s.status = StatusIdle
		return nil
	}

	marked := MarkNew(results, s.baseline)
	s.status = StatusCompleted
	s.results = marked
	s.lastUpdated = at
	return marked
}

// fail marks the run as errored. Reserved for systemic conditions (the
// provider entirely unreachable); per-ticker failures never reach here.
func (s *State) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusError
}

// Baseline returns a copy of the ticker set from the last completed
// scan.
func (s *State) Baseline() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{}, len(s.baseline))
	for t := range s.baseline {
		out[t] = struct{}{}
	}
	return out
}

// RestoreBaseline seeds the baseline and completion timestamp, used
// when reloading a persisted snapshot at process start.
func (s *State) RestoreBaseline(tickers []string, results []model.PatternMatch, lastUpdated time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.baseline = make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		s.baseline[t] = struct{}{}
	}
	s.results = results
	s.lastUpdated = lastUpdated
	if len(results) > 0 || !lastUpdated.IsZero() {
		s.status = StatusCompleted
	}
}

// Snapshot is a point-in-time copy of a State, safe to serialize and to
// expose on a polling boundary.
type Snapshot struct {
	RunID       string               `json:"run_id,omitempty"`
	Status      Status               `json:"status"`
	Progress    int                  `json:"progress"`
	Total       int                  `json:"total"`
	Results     []model.PatternMatch `json:"results"`
	Baseline    []string             `json:"baseline"`
	LastUpdated time.Time            `json:"last_updated"`
}

// Snapshot returns a consistent copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]model.PatternMatch, len(s.results))
	copy(results, s.results)
	baseline := make([]string, 0, len(s.baseline))
	for t := range s.baseline {
		baseline = append(baseline, t)
	}

	return Snapshot{
		RunID:       s.runID,
		Status:      s.status,
		Progress:    s.progress,
		Total:       s.total,
		Results:     results,
		Baseline:    baseline,
		LastUpdated: s.lastUpdated,
	}
}

// LastUpdated returns the completion time of the last completed scan.
func (s *State) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}
