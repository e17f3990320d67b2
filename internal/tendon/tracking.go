package tendon

import (
	"fmt"
	"log"
	"math"
	"sync"
)

// Internal numerical stability constants, not user-tunable.
const (
	// minDeterminant is the minimum determinant accepted when inverting the
	// innovation covariance.
	minDeterminant = 1e-12
)

// TrackerConfig holds the fixed noise parameters for one site estimator.
// The values are tuned empirically and loaded from the tuning config;
// they are never re-estimated from data.
type TrackerConfig struct {
	InitialCovariance float64 // Diagonal of P at initialisation (total initial uncertainty)
	ProcessNoisePos   float64 // Process noise added to position variance per frame (σ²)
	ProcessNoiseVel   float64 // Process noise added to velocity variance per frame (σ²)
	MeasurementNoise  float64 // Measurement noise on the detector output (σ²)

	// AccelerationGate skips the observation update for a frame when the
	// magnitude of the velocity change implied by the predict step exceeds
	// this value. Zero disables gating entirely, which is the validated
	// default: enabling the gate is known to degrade results on real
	// recordings and is kept only as an advanced knob.
	AccelerationGate float64
}

// Tracker is the per-site recursive estimator interface. Two instances run
// per recording, one per insertion site, with no shared state.
type Tracker interface {
	// Predict advances the state one frame under the constant-velocity
	// motion model and inflates the covariance by the process noise.
	Predict()

	// Update incorporates one observation via the standard linear-Gaussian
	// correction. Returns false when the acceleration gate rejected the
	// observation and the frame remained prediction-only.
	Update(obs Observation) bool

	// State returns the current position estimate.
	State() Position
}

// SiteTracker is a 4-state constant-velocity Kalman filter over one
// insertion site. State vector: [x, y, vx, vy]. The covariance is kept as
// a flattened 4x4 row-major array; the filter recursion is strictly
// sequential in frame order and must not be parallelised within a site.
type SiteTracker struct {
	site Site
	cfg  TrackerConfig

	initialized bool
	x, y        float64
	vx, vy      float64
	p           [16]float64
}

// NewSiteTracker creates an uninitialised tracker for one site. The first
// observation passed to Update seeds the state.
func NewSiteTracker(site Site, cfg TrackerConfig) *SiteTracker {
	return &SiteTracker{site: site, cfg: cfg}
}

// Site returns the insertion site this tracker owns.
func (t *SiteTracker) Site() Site { return t.site }

// State returns the current smoothed position estimate.
func (t *SiteTracker) State() Position {
	return Position{X: t.x, Y: t.y}
}

// Covariance returns the position variance diagonal (x, y). Exposed for
// convergence diagnostics and tests.
func (t *SiteTracker) Covariance() (float64, float64) {
	return t.p[0*4+0], t.p[1*4+1]
}

// init seeds the state from the first observation: position from the
// detection, velocity zero, covariance large to reflect total initial
// uncertainty.
func (t *SiteTracker) init(obs Observation) {
	t.x = obs.X
	t.y = obs.Y
	t.vx = 0
	t.vy = 0
	t.p = [16]float64{}
	for i := 0; i < 4; i++ {
		t.p[i*4+i] = t.cfg.InitialCovariance
	}
	t.initialized = true
}

// Predict advances the state one frame: position moves by velocity,
// velocity is unchanged, and the covariance is propagated through the
// constant-velocity transition and inflated by the process noise.
func (t *SiteTracker) Predict() {
	if !t.initialized {
		return
	}

	// State transition for unit frame step:
	// F = [1 0 1 0]
	//     [0 1 0 1]
	//     [0 0 1 0]
	//     [0 0 0 1]
	t.x += t.vx
	t.y += t.vy

	// P' = F * P * F^T + Q, computed directly on the flattened array.
	var fp [16]float64
	for j := 0; j < 4; j++ {
		fp[0*4+j] = t.p[0*4+j] + t.p[2*4+j]
		fp[1*4+j] = t.p[1*4+j] + t.p[3*4+j]
		fp[2*4+j] = t.p[2*4+j]
		fp[3*4+j] = t.p[3*4+j]
	}
	for i := 0; i < 4; i++ {
		t.p[i*4+0] = fp[i*4+0] + fp[i*4+2]
		t.p[i*4+1] = fp[i*4+1] + fp[i*4+3]
		t.p[i*4+2] = fp[i*4+2]
		t.p[i*4+3] = fp[i*4+3]
	}

	t.p[0*4+0] += t.cfg.ProcessNoisePos
	t.p[1*4+1] += t.cfg.ProcessNoisePos
	t.p[2*4+2] += t.cfg.ProcessNoiseVel
	t.p[3*4+3] += t.cfg.ProcessNoiseVel
}

// Update incorporates obs into the state. On the first observation it
// seeds the filter instead. Returns false when the acceleration gate
// rejected the observation (the frame stays prediction-only).
func (t *SiteTracker) Update(obs Observation) bool {
	if !t.initialized {
		t.init(obs)
		return true
	}

	// Innovation against the position-only measurement. On a unit frame
	// step the innovation equals the velocity change, and therefore the
	// acceleration, implied by accepting the observation.
	iy0 := obs.X - t.x
	iy1 := obs.Y - t.y

	if t.cfg.AccelerationGate > 0 {
		if math.Sqrt(iy0*iy0+iy1*iy1) > t.cfg.AccelerationGate {
			return false
		}
	}

	// Innovation covariance S = H*P*H^T + R with H extracting position.
	s00 := t.p[0*4+0] + t.cfg.MeasurementNoise
	s01 := t.p[0*4+1]
	s10 := t.p[1*4+0]
	s11 := t.p[1*4+1] + t.cfg.MeasurementNoise

	det := s00*s11 - s01*s10
	if det < minDeterminant {
		// Singular innovation covariance; skip the correction.
		return false
	}
	inv00 := s11 / det
	inv01 := -s01 / det
	inv10 := -s10 / det
	inv11 := s00 / det

	// Kalman gain K = P * H^T * S^-1 (4x2).
	var k [8]float64
	for i := 0; i < 4; i++ {
		k[i*2+0] = t.p[i*4+0]*inv00 + t.p[i*4+1]*inv10
		k[i*2+1] = t.p[i*4+0]*inv01 + t.p[i*4+1]*inv11
	}

	t.x += k[0*2+0]*iy0 + k[0*2+1]*iy1
	t.y += k[1*2+0]*iy0 + k[1*2+1]*iy1
	t.vx += k[2*2+0]*iy0 + k[2*2+1]*iy1
	t.vy += k[3*2+0]*iy0 + k[3*2+1]*iy1

	// P' = (I - K*H) * P. K*H only touches the first two columns.
	var ikh [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			v := 0.0
			if i == j {
				v = 1
			}
			switch j {
			case 0:
				v -= k[i*2+0]
			case 1:
				v -= k[i*2+1]
			}
			ikh[i*4+j] = v
		}
	}
	var newP [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for m := 0; m < 4; m++ {
				sum += ikh[i*4+m] * t.p[m*4+j]
			}
			newP[i*4+j] = sum
		}
	}
	t.p = newP

	return true
}

// Smooth runs the full predict/update cycle over an ordered observation
// stream for one site and returns one smoothed position per input frame.
// Frame indices must be contiguous and ascending.
func Smooth(site Site, cfg TrackerConfig, observations []Observation) (Trajectory, error) {
	if cfg.AccelerationGate > 0 {
		log.Printf("tracker[%s]: acceleration gate enabled at %.3f (validated default is disabled)", site, cfg.AccelerationGate)
	}

	tracker := NewSiteTracker(site, cfg)
	out := make(Trajectory, 0, len(observations))
	for i, obs := range observations {
		if i > 0 && obs.FrameIndex != observations[i-1].FrameIndex+1 {
			return nil, malformedf("frame gap at index %d: %d follows %d",
				i, obs.FrameIndex, observations[i-1].FrameIndex)
		}
		tracker.Predict()
		tracker.Update(obs)
		out = append(out, tracker.State())
	}
	return out, nil
}

// SmoothBoth smooths both sites concurrently. The two filters share no
// state, so they run in parallel without synchronisation beyond the join.
func SmoothBoth(cfg TrackerConfig, distal, proximal []Observation) (Trajectory, Trajectory, error) {
	var (
		wg                 sync.WaitGroup
		distalT, proximalT Trajectory
		distalE, proximalE error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		distalT, distalE = Smooth(SiteDistal, cfg, distal)
	}()
	go func() {
		defer wg.Done()
		proximalT, proximalE = Smooth(SiteProximal, cfg, proximal)
	}()
	wg.Wait()

	if distalE != nil {
		return nil, nil, fmt.Errorf("distal: %w", distalE)
	}
	if proximalE != nil {
		return nil, nil, fmt.Errorf("proximal: %w", proximalE)
	}
	return distalT, proximalT, nil
}
