package tendon

import (
	"fmt"
	"math"
)

// Site identifies which anatomical insertion a trajectory or estimator
// belongs to.
type Site string

const (
	SiteDistal   Site = "distal"
	SiteProximal Site = "proximal"
)

// Sites lists the two tracked insertion sites in canonical order.
var Sites = []Site{SiteDistal, SiteProximal}

// Valid reports whether s is one of the known insertion sites.
func (s Site) Valid() bool {
	return s == SiteDistal || s == SiteProximal
}

// Observation is one raw detection emitted by the segmentation model:
// a single (x, y) candidate for one site at one frame. Observations are
// consumed read-only; the pipeline never mutates them.
type Observation struct {
	FrameIndex int     `json:"frame_index"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

// Position is a smoothed or corrected 2D point.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between two positions.
func (p Position) Dist(q Position) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Trajectory is an ordered sequence of positions, one per processed frame,
// indexed by frame. Frame indices are contiguous from zero; gaps are a
// precondition violation upstream, not something this package repairs.
type Trajectory []Position

// Clone returns an independent copy of the trajectory.
func (t Trajectory) Clone() Trajectory {
	if t == nil {
		return nil
	}
	out := make(Trajectory, len(t))
	copy(out, t)
	return out
}

// Correction is a manual override for one (frame, site) position. Later
// writes for the same key replace earlier ones.
type Correction struct {
	FrameIndex int     `json:"frame_index"`
	Site       Site    `json:"site"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

// Calibration carries the session's pixel→millimetre conversion and the
// baseline (rest) tendon length derived from the reference frame.
type Calibration struct {
	FactorPxPerMM    float64 `json:"conversion_factor_px_per_mm"`
	BaselineLengthMM float64 `json:"baseline_length_mm"`
}

// ForceSample is one row of the externally recorded force ramp. Frame
// numbering is independent from the video; series are aligned by position.
type ForceSample struct {
	FrameIndex int     `json:"frame_index"`
	TorqueNm   float64 `json:"torque_nm"`
}

// StiffnessResult is the derived biomechanical output. It is recomputed on
// demand; each computation is appended to the audit log, never updated in
// place.
type StiffnessResult struct {
	StiffnessNPerMM      float64 `json:"stiffness_n_per_mm"`
	NormalizedStiffnessN float64 `json:"normalized_stiffness_n"`

	// Diagnostic values carried alongside the headline numbers.
	TFMax   float64 `json:"tf_max_n"`
	TF50    float64 `json:"tf50_n"`
	TF80    float64 `json:"tf80_n"`
	Samples int     `json:"paired_samples"`
}

func (r StiffnessResult) String() string {
	return fmt.Sprintf("stiffness=%.4f N/mm normalized=%.4f N (TFmax=%.2f N over %d samples)",
		r.StiffnessNPerMM, r.NormalizedStiffnessN, r.TFMax, r.Samples)
}
