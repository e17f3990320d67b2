package tendon

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the explicit context object for one loaded recording. The
// conversion factor, correction set and smoothed trajectories all hang off
// a Session value so concurrent recordings never share state.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu          sync.RWMutex
	smoothed    map[Site]Trajectory
	calibration *Calibration

	Corrections *CorrectionStore
}

// NewSession creates an empty session with a fresh identifier.
func NewSession() *Session {
	return &Session{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		smoothed:    make(map[Site]Trajectory),
		Corrections: NewCorrectionStore(),
	}
}

// SetTrajectory stores the smoothed trajectory for one site, replacing any
// previous one.
func (s *Session) SetTrajectory(site Site, trajectory Trajectory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smoothed[site] = trajectory.Clone()
}

// Trajectory returns the stored smoothed trajectory for site, without
// corrections applied.
func (s *Session) Trajectory(site Site) (Trajectory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.smoothed[site]
	return t.Clone(), ok
}

// Effective returns the site's trajectory with the current corrections
// overlaid. The view is recomputed on every call so it can never go stale
// against either input.
func (s *Session) Effective(site Site) (Trajectory, bool) {
	s.mu.RLock()
	t, ok := s.smoothed[site]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return s.Corrections.Effective(site, t), true
}

// SetCalibration derives and records the session calibration from a
// baseline measurement in pixels and a conversion factor.
func (s *Session) SetCalibration(baselinePx, factorPxPerMM float64) (Calibration, error) {
	cal, err := NewCalibration(baselinePx, factorPxPerMM)
	if err != nil {
		return Calibration{}, err
	}
	s.mu.Lock()
	s.calibration = &cal
	s.mu.Unlock()
	return cal, nil
}

// RestoreCalibration installs a previously persisted calibration without
// re-deriving it.
func (s *Session) RestoreCalibration(cal Calibration) error {
	if err := ValidateFactor(cal.FactorPxPerMM); err != nil {
		return err
	}
	if cal.BaselineLengthMM <= 0 {
		return fmt.Errorf("%w: baseline length must be > 0", ErrInvalidCalibration)
	}
	s.mu.Lock()
	s.calibration = &cal
	s.mu.Unlock()
	return nil
}

// Calibration returns the session calibration, or ErrMissingBaseline when
// none has been submitted yet.
func (s *Session) Calibration() (Calibration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.calibration == nil {
		return Calibration{}, ErrMissingBaseline
	}
	return *s.calibration, nil
}

// Stiffness recomputes the stiffness metrics from the current effective
// trajectories, calibration, and the supplied force ramp. A failure leaves
// every piece of session state untouched.
func (s *Session) Stiffness(samples []ForceSample, cfg BiomechConfig) (StiffnessResult, error) {
	cal, err := s.Calibration()
	if err != nil {
		return StiffnessResult{}, err
	}
	distal, ok := s.Effective(SiteDistal)
	if !ok {
		return StiffnessResult{}, fmt.Errorf("%w: distal trajectory not loaded", ErrDataNotReady)
	}
	proximal, ok := s.Effective(SiteProximal)
	if !ok {
		return StiffnessResult{}, fmt.Errorf("%w: proximal trajectory not loaded", ErrDataNotReady)
	}
	return ComputeStiffness(distal, proximal, cal, samples, cfg)
}

// Anomalies runs the detector over both sites' smoothed trajectories and
// returns the per-site flags plus the union surfaced to the reviewer.
func (s *Session) Anomalies(cfg AnomalyConfig) (map[Site][]FrameFlag, []int) {
	perSite := make(map[Site][]FrameFlag, len(Sites))
	var sets [][]FrameFlag
	for _, site := range Sites {
		if t, ok := s.Trajectory(site); ok {
			flags := DetectAnomalies(t, cfg)
			perSite[site] = flags
			sets = append(sets, flags)
		}
	}
	return perSite, UnionFlags(sets...)
}
