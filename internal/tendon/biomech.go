package tendon

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Default moment arms in metres. Substituted (with a logged warning) when
// a caller supplies a non-positive override; bad arms are never an error.
const (
	DefaultTendonMomentArmM   = 0.04
	DefaultLowerLegMomentArmM = 0.28
)

// RegressionRange selects which part of the paired loading curve feeds the
// quadratic fit.
type RegressionRange string

const (
	// RangeFull fits over the full paired range. The default.
	RangeFull RegressionRange = "full"

	// RangePrefix80 fits only the prefix of the ramp up to 80% of the
	// maximum observed force.
	RangePrefix80 RegressionRange = "prefix80"
)

// BiomechConfig controls the force conversion and regression.
type BiomechConfig struct {
	TendonMomentArmM   float64
	LowerLegMomentArmM float64

	// UseLowerLegRatio additionally scales tendon force by
	// LowerLegMomentArmM / TendonMomentArmM. Off by default.
	UseLowerLegRatio bool

	Range RegressionRange
}

// DefaultBiomechConfig returns the validated defaults.
func DefaultBiomechConfig() BiomechConfig {
	return BiomechConfig{
		TendonMomentArmM:   DefaultTendonMomentArmM,
		LowerLegMomentArmM: DefaultLowerLegMomentArmM,
		Range:              RangeFull,
	}
}

// normalise substitutes defaults for non-positive moment arms. The
// substitution is logged, never an error.
func (c BiomechConfig) normalise() BiomechConfig {
	if c.TendonMomentArmM <= 0 {
		log.Printf("biomech: tendon moment arm %v m is not positive, substituting default %v m", c.TendonMomentArmM, DefaultTendonMomentArmM)
		c.TendonMomentArmM = DefaultTendonMomentArmM
	}
	if c.LowerLegMomentArmM <= 0 {
		log.Printf("biomech: lower-leg moment arm %v m is not positive, substituting default %v m", c.LowerLegMomentArmM, DefaultLowerLegMomentArmM)
		c.LowerLegMomentArmM = DefaultLowerLegMomentArmM
	}
	if c.Range == "" {
		c.Range = RangeFull
	}
	return c
}

// ElongationSeries computes the tendon length in millimetres at every
// frame present in both effective trajectories: the Euclidean distance
// between the distal and proximal positions divided by the calibration
// factor. No other conversion is applied.
func ElongationSeries(distal, proximal Trajectory, factorPxPerMM float64) ([]float64, error) {
	if err := ValidateFactor(factorPxPerMM); err != nil {
		return nil, err
	}
	n := minInt(len(distal), len(proximal))
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = distal[i].Dist(proximal[i]) / factorPxPerMM
	}
	return out, nil
}

// ForceSeries converts the recorded torque samples to tendon force in
// newtons: force = torque / tendon moment arm, optionally scaled by the
// lower-leg ratio when that mode is enabled.
func ForceSeries(samples []ForceSample, cfg BiomechConfig) []float64 {
	cfg = cfg.normalise()
	scale := 1.0 / cfg.TendonMomentArmM
	if cfg.UseLowerLegRatio {
		scale *= cfg.LowerLegMomentArmM / cfg.TendonMomentArmM
	}
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.TorqueNm * scale
	}
	return out
}

// ComputeStiffness derives the stiffness metrics from the effective
// trajectories, the session calibration, and the force ramp. Elongation
// and force are paired positionally, truncated to the shorter series.
// Upstream resampling (see LoadForceRamp) is responsible for matching
// lengths when the recordings disagree.
func ComputeStiffness(distal, proximal Trajectory, cal Calibration, samples []ForceSample, cfg BiomechConfig) (StiffnessResult, error) {
	if cal.BaselineLengthMM <= 0 {
		return StiffnessResult{}, fmt.Errorf("%w: submit a calibration before computing stiffness", ErrMissingBaseline)
	}

	elongation, err := ElongationSeries(distal, proximal, cal.FactorPxPerMM)
	if err != nil {
		return StiffnessResult{}, err
	}

	deltaL := make([]float64, len(elongation))
	for i, e := range elongation {
		deltaL[i] = e - cal.BaselineLengthMM
	}

	force := ForceSeries(samples, cfg)

	n := minInt(len(deltaL), len(force))
	return fitStiffness(deltaL[:n], force[:n], cal.BaselineLengthMM, cfg)
}

// fitStiffness runs the regression and inversion over paired
// (ΔL, force) samples.
func fitStiffness(deltaL, force []float64, baselineMM float64, cfg BiomechConfig) (StiffnessResult, error) {
	cfg = cfg.normalise()

	if len(force) == 0 {
		return StiffnessResult{}, fmt.Errorf("%w: no paired samples", ErrInsufficientData)
	}

	tfMaxFull := maxFloat(force)

	// Optionally restrict the fit to the loading prefix below 80% of the
	// observed maximum.
	usedL, usedF := deltaL, force
	if cfg.Range == RangePrefix80 {
		cut := 0.8 * tfMaxFull
		end := 0
		for end < len(force) && force[end] <= cut {
			end++
		}
		usedL, usedF = deltaL[:end], force[:end]
		if len(usedF) == 0 {
			return StiffnessResult{}, fmt.Errorf("%w: no samples below 80%% of TFmax", ErrInsufficientData)
		}
	}

	tfMax := maxFloat(usedF)
	tf50 := 0.5 * tfMax
	tf80 := 0.8 * tfMax

	// The slope window [TF50, TF80] must be supported by the data: at
	// least 3 paired samples on the loading curve up to TF80.
	inBand := 0
	for _, f := range usedF {
		if f <= tf80 {
			inBand++
		}
	}
	if inBand < 3 {
		return StiffnessResult{}, fmt.Errorf("%w: %d paired samples at or below TF80=%.2f N, need 3", ErrInsufficientData, inBand, tf80)
	}
	if len(usedF) < 3 {
		return StiffnessResult{}, fmt.Errorf("%w: %d paired samples, need 3 for a quadratic fit", ErrInsufficientData, len(usedF))
	}

	a, b, c, err := quadraticFit(usedL, usedF)
	if err != nil {
		return StiffnessResult{}, err
	}

	dl50, err := invertQuadratic(a, b, c, tf50)
	if err != nil {
		return StiffnessResult{}, fmt.Errorf("inverting fit at TF50=%.2f N: %w", tf50, err)
	}
	dl80, err := invertQuadratic(a, b, c, tf80)
	if err != nil {
		return StiffnessResult{}, fmt.Errorf("inverting fit at TF80=%.2f N: %w", tf80, err)
	}

	if dl80 == dl50 {
		return StiffnessResult{}, fmt.Errorf("%w: fit is flat between TF50 and TF80", ErrNoRoot)
	}

	stiffness := (tf80 - tf50) / (dl80 - dl50)
	return StiffnessResult{
		StiffnessNPerMM:      stiffness,
		NormalizedStiffnessN: stiffness * baselineMM,
		TFMax:                tfMax,
		TF50:                 tf50,
		TF80:                 tf80,
		Samples:              len(usedF),
	}, nil
}

// quadraticFit solves the least-squares fit force = a·ΔL² + b·ΔL + c.
func quadraticFit(x, y []float64) (a, b, c float64, err error) {
	n := len(x)
	design := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, x[i]*x[i])
		design.Set(i, 1, x[i])
		design.Set(i, 2, 1)
	}
	rhs := mat.NewVecDense(n, append([]float64(nil), y...))

	var qr mat.QR
	qr.Factorize(design)
	var coef mat.VecDense
	if solveErr := qr.SolveVecTo(&coef, false, rhs); solveErr != nil {
		return 0, 0, 0, fmt.Errorf("%w: degenerate regression system: %v", ErrInsufficientData, solveErr)
	}
	return coef.AtVec(0), coef.AtVec(1), coef.AtVec(2), nil
}

// invertQuadratic solves a·x² + b·x + (c − targetForce) = 0 for the
// elongation at a target force. When two real roots exist the larger one
// is selected, the ascending branch of the loading curve. A negative
// discriminant means the fitted curve never reaches the target force.
func invertQuadratic(a, b, c, targetForce float64) (float64, error) {
	cc := c - targetForce

	// Near-linear fit: fall back to the linear solution.
	if math.Abs(a) < 1e-12 {
		if math.Abs(b) < 1e-12 {
			return 0, fmt.Errorf("%w: fit is constant", ErrNoRoot)
		}
		return -cc / b, nil
	}

	disc := b*b - 4*a*cc
	if disc < 0 {
		return 0, fmt.Errorf("%w (discriminant %.4g)", ErrNoRoot, disc)
	}
	sq := math.Sqrt(disc)
	r1 := (-b + sq) / (2 * a)
	r2 := (-b - sq) / (2 * a)
	return math.Max(r1, r2), nil
}

// ResampleForce linearly resamples a raw torque series (typically recorded
// at ~1 kHz) down to one sample per video frame so the two recordings can
// be paired positionally.
func ResampleForce(torque []float64, frames int) []float64 {
	if frames <= 0 || len(torque) == 0 {
		return nil
	}
	out := make([]float64, frames)
	if len(torque) == 1 || frames == 1 {
		for i := range out {
			out[i] = torque[0]
		}
		return out
	}
	step := float64(len(torque)-1) / float64(frames-1)
	for i := 0; i < frames; i++ {
		pos := float64(i) * step
		lo := int(pos)
		if lo >= len(torque)-1 {
			out[i] = torque[len(torque)-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = torque[lo]*(1-frac) + torque[lo+1]*frac
	}
	return out
}

// AlignmentDiagnostic reports the cross-correlation between the force and
// elongation series. Positive lag means the force ramp leads elongation.
// The lag is reported for operator review, never applied automatically.
type AlignmentDiagnostic struct {
	LagFrames       int     `json:"lag_frames"`
	LagSeconds      float64 `json:"lag_seconds"`
	PeakCorrelation float64 `json:"peak_correlation"`
}

// CrossCorrelate computes the full normalized cross-correlation between
// mean-centred force and elongation series and returns the best lag.
// fps converts the lag to seconds; fps ≤ 0 leaves LagSeconds zero.
func CrossCorrelate(force, elongation []float64, fps float64) AlignmentDiagnostic {
	if len(force) == 0 || len(elongation) == 0 {
		return AlignmentDiagnostic{}
	}

	fm := stat.Mean(force, nil)
	em := stat.Mean(elongation, nil)
	f := make([]float64, len(force))
	for i, v := range force {
		f[i] = v - fm
	}
	e := make([]float64, len(elongation))
	for i, v := range elongation {
		e[i] = v - em
	}

	bestLag := 0
	bestCorr := math.Inf(-1)
	for lag := -(len(f) - 1); lag <= len(e)-1; lag++ {
		var sum float64
		for i := 0; i < len(f); i++ {
			j := i + lag
			if j >= 0 && j < len(e) {
				sum += f[i] * e[j]
			}
		}
		if sum > bestCorr {
			bestCorr = sum
			bestLag = lag
		}
	}

	fsd := stat.StdDev(force, nil)
	esd := stat.StdDev(elongation, nil)
	diag := AlignmentDiagnostic{LagFrames: bestLag}
	if fsd > 0 && esd > 0 {
		diag.PeakCorrelation = bestCorr / (float64(len(f)) * fsd * esd)
	}
	if fps > 0 {
		diag.LagSeconds = float64(bestLag) / fps
	}
	return diag
}

func maxFloat(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
