package scan

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"prefscan/internal/model"
	"prefscan/internal/pattern"
)

// CompletionHook is invoked after a scan kind completes naturally, with
// a snapshot of its settled state. Persistence lives behind this hook
// so durable writes happen only at the completion transition.
type CompletionHook func(kind model.ScanKind, snap Snapshot)

// Manager owns one State per scan kind and serializes runs within a
// kind. Scans of different kinds are independent and may run
// concurrently; a second scan of the same kind while one is processing
// is rejected with ErrAlreadyRunning.
type Manager struct {
	orch *Orchestrator
	hook CompletionHook

	mu     sync.Mutex
	states map[model.ScanKind]*State
}

// NewManager creates a manager around an orchestrator. hook may be nil.
func NewManager(orch *Orchestrator, hook CompletionHook) *Manager {
	return &Manager{
		orch:   orch,
		hook:   hook,
		states: make(map[model.ScanKind]*State),
	}
}

// State returns the state handle for a scan kind, creating it on first
// use.
func (m *Manager) State(kind model.ScanKind) *State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[kind]
	if !ok {
		st = NewState(kind)
		m.states[kind] = st
	}
	return st
}

// Run executes one scan of the evaluator's kind over the ticker list.
// Results carry is_new flags relative to the previous completed scan's
// baseline. The completion hook fires only on natural completion, not
// after cancellation.
func (m *Manager) Run(ctx context.Context, ev pattern.Evaluator, tickers []string, progress ProgressFunc) ([]model.PatternMatch, error) {
	st := m.State(ev.Kind())

	results, err := m.orch.Run(ctx, st, ev, tickers, progress)
	if err != nil {
		return nil, err
	}

	snap := st.Snapshot()
	if m.hook != nil && snap.Status == StatusCompleted && snap.Progress == snap.Total {
		m.hook(ev.Kind(), snap)
	}
	return results, nil
}

// RunIfStale runs the scan only when the kind's last completed results
// are older than ttl, or when force is set. ran reports whether a scan
// actually executed.
func (m *Manager) RunIfStale(ctx context.Context, ev pattern.Evaluator, tickers []string, ttl time.Duration, force bool, progress ProgressFunc) (results []model.PatternMatch, ran bool, err error) {
	st := m.State(ev.Kind())

	if !force {
		snap := st.Snapshot()
		if len(snap.Results) > 0 && time.Since(snap.LastUpdated) < ttl {
			log.Info().
				Stringer("kind", ev.Kind()).
				Time("last_updated", snap.LastUpdated).
				Msg("scan skipped, recent results exist")
			return snap.Results, false, nil
		}
	}

	results, err = m.Run(ctx, ev, tickers, progress)
	return results, err == nil, err
}

// Cancel trips the cancellation flag for a scan kind.
func (m *Manager) Cancel(kind model.ScanKind) {
	m.State(kind).Cancel()
}

// MarkError flags a kind's state as errored. Reserved for systemic
// failures in the caller's refresh path (e.g., the ticker list is
// unreadable); zero-match completions are not errors.
func (m *Manager) MarkError(kind model.ScanKind) {
	m.State(kind).fail()
}

// Snapshot returns a point-in-time copy of a kind's state for the
// polling boundary.
func (m *Manager) Snapshot(kind model.ScanKind) Snapshot {
	return m.State(kind).Snapshot()
}

// Restore seeds a kind's baseline and results from a persisted
// snapshot, used at process start.
func (m *Manager) Restore(kind model.ScanKind, snap Snapshot) {
	m.State(kind).RestoreBaseline(snap.Baseline, snap.Results, snap.LastUpdated)
}
