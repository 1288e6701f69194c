package render

import "sync"

// Phase labels the coarse job state exposed to progress pollers.
type Phase string

const (
	PhaseRendering Phase = "rendering"
	PhaseMerging   Phase = "merging"
	PhaseCompleted Phase = "completed"
)

// Snapshot is a point-in-time view of job progress.
type Snapshot struct {
	Completed  int
	Total      int
	Percentage int
	Phase      Phase
}

// Tracker holds the mutable state of one render job: segment counts, phase,
// and the cooperative cancellation flag. One Tracker exists per job and is
// shared by reference between the scheduler and external pollers; every
// field is guarded by a single lock. It is never a process singleton, so
// concurrent jobs stay isolated.
type Tracker struct {
	mu        sync.Mutex
	total     int
	completed int
	phase     Phase
	cancelled bool
}

// NewTracker creates job state for the given segment count.
func NewTracker(total int) *Tracker {
	return &Tracker{total: total, phase: PhaseRendering}
}

// SegmentDone increments the completed counter. The counter is monotonically
// non-decreasing and never exceeds the total.
func (t *Tracker) SegmentDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed < t.total {
		t.completed++
	}
}

// SetPhase updates the job phase label.
func (t *Tracker) SetPhase(phase Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = phase
	if phase == PhaseCompleted {
		t.completed = t.total
	}
}

// Cancel sets the cancellation flag. The flag is monotonic: once set it is
// never cleared for the lifetime of the job. Returns true as acknowledgement.
func (t *Tracker) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
	return true
}

// Cancelled reports whether cancellation has been requested. Render code
// consults it at frame and batch boundaries only; work already dispatched to
// an external process runs to completion.
func (t *Tracker) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Progress returns a consistent snapshot for pollers.
func (t *Tracker) Progress() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.total
	if total < 1 {
		total = 1
	}
	return Snapshot{
		Completed:  t.completed,
		Total:      t.total,
		Percentage: t.completed * 100 / total,
		Phase:      t.phase,
	}
}
