package tendon

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Anomaly criteria identifiers, reported per flagged frame so the review
// UI can explain why a frame was surfaced.
const (
	CriterionVelocity     = "velocity"
	CriterionAcceleration = "acceleration"
	CriterionJitter       = "jitter"
	CriterionTrend        = "trend"
)

// Window sizes for the local statistics, in frames each side.
const (
	jitterHalfWindow = 5
	trendHalfWindow  = 10
)

// AnomalyConfig controls the detector sensitivity.
type AnomalyConfig struct {
	// K scales the adaptive velocity and acceleration thresholds
	// (mean + K·std). Default 3.
	K float64
}

// DefaultAnomalyConfig returns the validated default sensitivity.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{K: 3}
}

// FrameFlag records one suspect frame together with the criteria that
// fired for it.
type FrameFlag struct {
	FrameIndex int      `json:"frame_index"`
	Criteria   []string `json:"criteria"`
}

// DetectAnomalies scans an already-smoothed trajectory for frames whose
// estimate is still statistically suspect. A frame is flagged when any of
// the four criteria (velocity, acceleration, jitter, trend deviation)
// exceeds its adaptive threshold; criteria are evaluated independently.
// The first frame has no velocity or acceleration and is never flagged by
// those criteria. Empty or single-point trajectories return no flags.
func DetectAnomalies(trajectory Trajectory, cfg AnomalyConfig) []FrameFlag {
	n := len(trajectory)
	if n < 2 {
		return nil
	}
	if cfg.K <= 0 {
		cfg.K = 3
	}

	// Per-frame velocity magnitude; vel[i] is the step into frame i,
	// undefined (zero-filled) for frame 0.
	vel := make([]float64, n)
	for i := 1; i < n; i++ {
		vel[i] = trajectory[i].Dist(trajectory[i-1])
	}

	// Per-frame acceleration magnitude, defined from frame 2 on.
	acc := make([]float64, n)
	for i := 2; i < n; i++ {
		acc[i] = math.Abs(vel[i] - vel[i-1])
	}

	velMean, velStd := stat.MeanStdDev(vel[1:], nil)
	if math.IsNaN(velStd) {
		velStd = 0
	}
	var accMean, accStd float64
	if n > 2 {
		accMean, accStd = stat.MeanStdDev(acc[2:], nil)
		if math.IsNaN(accStd) {
			accStd = 0
		}
	}

	velThreshold := velMean + cfg.K*velStd
	accThreshold := accMean + cfg.K*accStd
	jitterThreshold := 1.5 * velStd

	// Deviation of each position from its ±10-frame moving average.
	deviation := make([]float64, n)
	for i := 0; i < n; i++ {
		lo, hi := windowBounds(i, n, trendHalfWindow)
		var sx, sy float64
		for j := lo; j < hi; j++ {
			sx += trajectory[j].X
			sy += trajectory[j].Y
		}
		count := float64(hi - lo)
		trend := Position{X: sx / count, Y: sy / count}
		deviation[i] = trajectory[i].Dist(trend)
	}
	trendThreshold := tukeyUpperFence(deviation)

	// A constant trajectory yields zero-variance series and therefore
	// all-zero thresholds; without this guard any nonzero float difference
	// would flag every frame. Criteria whose threshold collapsed to zero
	// are disabled.
	velActive := velStd > 0
	accActive := accStd > 0
	trendActive := trendThreshold > 0

	var flags []FrameFlag
	for i := 1; i < n; i++ {
		var criteria []string
		if velActive && vel[i] > velThreshold {
			criteria = append(criteria, CriterionVelocity)
		}
		if accActive && i >= 2 && acc[i] > accThreshold {
			criteria = append(criteria, CriterionAcceleration)
		}
		if velActive {
			lo, hi := windowBounds(i, n, jitterHalfWindow)
			// Local jitter: stddev of velocity magnitudes around i. The
			// velocity series starts at frame 1.
			if lo < 1 {
				lo = 1
			}
			if hi-lo >= 2 {
				jitter := stat.StdDev(vel[lo:hi], nil)
				if !math.IsNaN(jitter) && jitter > jitterThreshold {
					criteria = append(criteria, CriterionJitter)
				}
			}
		}
		if trendActive && deviation[i] > trendThreshold {
			criteria = append(criteria, CriterionTrend)
		}
		if len(criteria) > 0 {
			flags = append(flags, FrameFlag{FrameIndex: i, Criteria: criteria})
		}
	}
	return flags
}

// FlaggedFrames reduces detector output to the sorted, deduplicated set of
// frame indices.
func FlaggedFrames(flags []FrameFlag) []int {
	seen := make(map[int]bool, len(flags))
	var out []int
	for _, f := range flags {
		if !seen[f.FrameIndex] {
			seen[f.FrameIndex] = true
			out = append(out, f.FrameIndex)
		}
	}
	sort.Ints(out)
	return out
}

// UnionFlags merges per-site flag sets into the single review list
// surfaced to the operator.
func UnionFlags(sets ...[]FrameFlag) []int {
	var all []FrameFlag
	for _, s := range sets {
		all = append(all, s...)
	}
	return FlaggedFrames(all)
}

// windowBounds clamps a ±half window around i to [0, n).
func windowBounds(i, n, half int) (int, int) {
	lo := i - half
	if lo < 0 {
		lo = 0
	}
	hi := i + half + 1
	if hi > n {
		hi = n
	}
	return lo, hi
}

// tukeyUpperFence returns Q3 + 1.5·IQR over values, using linearly
// interpolated quantiles.
func tukeyUpperFence(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	return q3 + 1.5*(q3-q1)
}
