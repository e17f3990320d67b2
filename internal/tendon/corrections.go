package tendon

import "sync"

// correctionKey uniquely identifies one override.
type correctionKey struct {
	frame int
	site  Site
}

// CorrectionStore lets a reviewer override specific (frame, site)
// positions without mutating the underlying smoothed trajectory. Writes
// follow last-write-wins under a serialising lock; there is no multi-writer
// merge semantics. Overrides live until Reset, which the caller must
// confirm before invoking: the reset is immediate, total, and
// irreversible for the session.
type CorrectionStore struct {
	mu        sync.Mutex
	overrides map[correctionKey]Position
}

// NewCorrectionStore returns an empty store.
func NewCorrectionStore() *CorrectionStore {
	return &CorrectionStore{overrides: make(map[correctionKey]Position)}
}

// Set upserts one override. Idempotent; a later write for the same
// (frame, site) replaces the earlier one.
func (c *CorrectionStore) Set(frameIndex int, site Site, x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[correctionKey{frame: frameIndex, site: site}] = Position{X: x, Y: y}
}

// SetAll applies a batch of corrections in order, so duplicates within the
// batch also resolve last-write-wins.
func (c *CorrectionStore) SetAll(corrections []Correction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cor := range corrections {
		c.overrides[correctionKey{frame: cor.FrameIndex, site: cor.Site}] = Position{X: cor.X, Y: cor.Y}
	}
}

// Effective returns a copy of trajectory with every stored override for
// site applied at its frame index. The input trajectory is never mutated.
// Overrides for frames outside the trajectory are ignored.
func (c *CorrectionStore) Effective(site Site, trajectory Trajectory) Trajectory {
	out := trajectory.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, pos := range c.overrides {
		if key.site == site && key.frame >= 0 && key.frame < len(out) {
			out[key.frame] = pos
		}
	}
	return out
}

// Len returns the number of stored overrides.
func (c *CorrectionStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.overrides)
}

// Corrections returns a snapshot of all stored overrides.
func (c *CorrectionStore) Corrections() []Correction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Correction, 0, len(c.overrides))
	for key, pos := range c.overrides {
		out = append(out, Correction{FrameIndex: key.frame, Site: key.site, X: pos.X, Y: pos.Y})
	}
	return out
}

// Reset clears all overrides. Subsequent Effective calls return the
// unmodified trajectory. Destructive and irreversible for the session;
// callers are expected to have confirmed the action.
func (c *CorrectionStore) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides = make(map[correctionKey]Position)
}
