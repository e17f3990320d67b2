package tendon

import (
	"errors"
	"math"
	"testing"
)

// stiffnessFixture builds trajectories whose elongation at frame i is
// exactly lengthPx[i] (proximal pinned at the origin, unit conversion
// factor) plus a matching torque sample per frame.
func stiffnessFixture(lengthPx, torque []float64) (Trajectory, Trajectory, []ForceSample) {
	distal := make(Trajectory, len(lengthPx))
	proximal := make(Trajectory, len(lengthPx))
	for i, d := range lengthPx {
		distal[i] = Position{X: d, Y: 0}
		proximal[i] = Position{}
	}
	samples := make([]ForceSample, len(torque))
	for i, nm := range torque {
		samples[i] = ForceSample{FrameIndex: i, TorqueNm: nm}
	}
	return distal, proximal, samples
}

// unitArmConfig keeps force numerically equal to torque so test data can
// be written directly in newtons.
func unitArmConfig() BiomechConfig {
	return BiomechConfig{TendonMomentArmM: 1, LowerLegMomentArmM: 1, Range: RangeFull}
}

func TestComputeStiffnessQuadraticRamp(t *testing.T) {
	// Forces lie exactly on f = 10·ΔL², so the fit and its inversion have
	// closed-form expectations.
	distal, proximal, samples := stiffnessFixture(
		[]float64{10, 11, 12, 13},
		[]float64{0, 10, 40, 90},
	)
	cal := Calibration{FactorPxPerMM: 1, BaselineLengthMM: 10}

	result, err := ComputeStiffness(distal, proximal, cal, samples, unitArmConfig())
	if err != nil {
		t.Fatalf("ComputeStiffness: %v", err)
	}

	if result.TFMax != 90 {
		t.Errorf("TFMax = %v, want 90", result.TFMax)
	}
	if result.TF50 != 45 || result.TF80 != 72 {
		t.Errorf("band = [%v, %v], want [45, 72]", result.TF50, result.TF80)
	}
	if result.Samples != 4 {
		t.Errorf("Samples = %d, want 4", result.Samples)
	}

	wantStiffness := 27 / (math.Sqrt(7.2) - math.Sqrt(4.5))
	if math.Abs(result.StiffnessNPerMM-wantStiffness) > 1e-6 {
		t.Errorf("stiffness = %v, want %v", result.StiffnessNPerMM, wantStiffness)
	}
	wantNormalized := wantStiffness * 10
	if math.Abs(result.NormalizedStiffnessN-wantNormalized) > 1e-5 {
		t.Errorf("normalized stiffness = %v, want %v", result.NormalizedStiffnessN, wantNormalized)
	}
}

func TestComputeStiffnessPrefix80(t *testing.T) {
	// The prefix80 range drops everything from the first sample above
	// 80% of the observed maximum, so the late 90N spike never feeds the
	// fit.
	distal, proximal, samples := stiffnessFixture(
		[]float64{10, 11, 12, 13, 14},
		[]float64{0, 5, 10, 40, 90},
	)
	cal := Calibration{FactorPxPerMM: 1, BaselineLengthMM: 10}
	cfg := unitArmConfig()
	cfg.Range = RangePrefix80

	result, err := ComputeStiffness(distal, proximal, cal, samples, cfg)
	if err != nil {
		t.Fatalf("ComputeStiffness: %v", err)
	}
	if result.Samples != 4 {
		t.Errorf("Samples = %d, want 4 after the prefix cut", result.Samples)
	}
	if result.TFMax != 40 {
		t.Errorf("TFMax = %v, want 40 over the used range", result.TFMax)
	}
	if result.StiffnessNPerMM <= 0 {
		t.Errorf("stiffness = %v, want > 0", result.StiffnessNPerMM)
	}
}

func TestComputeStiffnessSparseBand(t *testing.T) {
	// Only one sample sits at or below TF80, not enough support for the
	// slope window.
	distal, proximal, samples := stiffnessFixture(
		[]float64{10, 11, 12, 13},
		[]float64{0, 90, 95, 100},
	)
	cal := Calibration{FactorPxPerMM: 1, BaselineLengthMM: 10}

	_, err := ComputeStiffness(distal, proximal, cal, samples, unitArmConfig())
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestComputeStiffnessUnloadingRamp(t *testing.T) {
	// A rise-and-fall force profile fits a downward parabola whose peak
	// never reaches TF80; the inversion has no real root.
	distal, proximal, samples := stiffnessFixture(
		[]float64{10, 11, 12, 13, 14},
		[]float64{0, 30, 100, 30, 0},
	)
	cal := Calibration{FactorPxPerMM: 1, BaselineLengthMM: 10}

	_, err := ComputeStiffness(distal, proximal, cal, samples, unitArmConfig())
	if !errors.Is(err, ErrNoRoot) {
		t.Fatalf("expected ErrNoRoot, got %v", err)
	}
}

func TestComputeStiffnessMissingBaseline(t *testing.T) {
	distal, proximal, samples := stiffnessFixture(
		[]float64{10, 11, 12},
		[]float64{0, 10, 20},
	)

	_, err := ComputeStiffness(distal, proximal, Calibration{}, samples, unitArmConfig())
	if !errors.Is(err, ErrMissingBaseline) {
		t.Fatalf("expected ErrMissingBaseline, got %v", err)
	}
}

func TestElongationSeries(t *testing.T) {
	distal := Trajectory{{X: 20, Y: 0}, {X: 24, Y: 0}, {X: 28, Y: 0}}
	proximal := Trajectory{{X: 0, Y: 0}, {X: 0, Y: 0}}

	elong, err := ElongationSeries(distal, proximal, 4)
	if err != nil {
		t.Fatalf("ElongationSeries: %v", err)
	}
	// Truncated to the shorter trajectory.
	if len(elong) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(elong))
	}
	if elong[0] != 5 || elong[1] != 6 {
		t.Errorf("elongation = %v, want [5 6]", elong)
	}
}

func TestElongationSeriesInvalidFactor(t *testing.T) {
	_, err := ElongationSeries(Trajectory{{X: 1}}, Trajectory{{X: 0}}, 0)
	if !errors.Is(err, ErrInvalidCalibration) {
		t.Fatalf("expected ErrInvalidCalibration, got %v", err)
	}
}

func TestForceSeries(t *testing.T) {
	samples := []ForceSample{{FrameIndex: 0, TorqueNm: 4}}

	cfg := BiomechConfig{TendonMomentArmM: 0.04, LowerLegMomentArmM: 0.28}
	force := ForceSeries(samples, cfg)
	if math.Abs(force[0]-100) > 1e-9 {
		t.Errorf("force = %v, want 100", force[0])
	}

	cfg.UseLowerLegRatio = true
	force = ForceSeries(samples, cfg)
	if math.Abs(force[0]-700) > 1e-9 {
		t.Errorf("ratio-scaled force = %v, want 700", force[0])
	}
}

func TestForceSeriesSubstitutesDefaultArms(t *testing.T) {
	samples := []ForceSample{{FrameIndex: 0, TorqueNm: DefaultTendonMomentArmM}}

	// Non-positive arms fall back to the defaults instead of erroring.
	force := ForceSeries(samples, BiomechConfig{TendonMomentArmM: -1})
	if math.Abs(force[0]-1) > 1e-9 {
		t.Errorf("force = %v, want 1 with the default arm substituted", force[0])
	}
}

func TestResampleForce(t *testing.T) {
	torque := []float64{0, 1, 2, 3, 4}

	got := ResampleForce(torque, 3)
	want := []float64{0, 2, 4}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}

	if got := ResampleForce([]float64{7}, 4); len(got) != 4 || got[0] != 7 || got[3] != 7 {
		t.Errorf("single-sample broadcast = %v", got)
	}
	if got := ResampleForce(torque, 0); got != nil {
		t.Errorf("frames=0 should return nil, got %v", got)
	}
}

func TestCrossCorrelateLag(t *testing.T) {
	// Elongation repeats the force pulse two frames later, so the force
	// leads and the lag is positive.
	force := []float64{0, 0, 10, 0, 0, 0, 0}
	elongation := []float64{0, 0, 0, 0, 10, 0, 0}

	diag := CrossCorrelate(force, elongation, 50)
	if diag.LagFrames != 2 {
		t.Errorf("LagFrames = %d, want 2", diag.LagFrames)
	}
	if math.Abs(diag.LagSeconds-0.04) > 1e-9 {
		t.Errorf("LagSeconds = %v, want 0.04", diag.LagSeconds)
	}
	if diag.PeakCorrelation <= 0 {
		t.Errorf("PeakCorrelation = %v, want > 0", diag.PeakCorrelation)
	}
}

func TestCrossCorrelateEmpty(t *testing.T) {
	diag := CrossCorrelate(nil, []float64{1, 2}, 50)
	if diag != (AlignmentDiagnostic{}) {
		t.Errorf("expected zero diagnostic, got %+v", diag)
	}
}
