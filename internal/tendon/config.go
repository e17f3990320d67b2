package tendon

import (
	"github.com/banshee-data/tendon.report/internal/config"
)

// DefaultTrackerConfig returns tracker parameters loaded from the
// canonical tuning defaults file (config/tuning.defaults.json). Panics if
// the file cannot be found, so it is intended for tests and binaries that have
// already validated config availability.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfigFromTuning(config.MustLoadDefaultConfig())
}

// TrackerConfigFromTuning builds a TrackerConfig from a loaded
// TuningConfig. Use this in production code where the TuningConfig is
// already loaded.
func TrackerConfigFromTuning(cfg *config.TuningConfig) TrackerConfig {
	return TrackerConfig{
		InitialCovariance: cfg.GetInitialCovariance(),
		ProcessNoisePos:   cfg.GetProcessNoisePos(),
		ProcessNoiseVel:   cfg.GetProcessNoiseVel(),
		MeasurementNoise:  cfg.GetMeasurementNoise(),
		AccelerationGate:  cfg.GetAccelerationGate(),
	}
}

// AnomalyConfigFromTuning builds an AnomalyConfig from a loaded
// TuningConfig.
func AnomalyConfigFromTuning(cfg *config.TuningConfig) AnomalyConfig {
	return AnomalyConfig{K: cfg.GetAnomalyK()}
}

// BiomechConfigFromTuning builds a BiomechConfig from a loaded
// TuningConfig.
func BiomechConfigFromTuning(cfg *config.TuningConfig) BiomechConfig {
	return BiomechConfig{
		TendonMomentArmM:   cfg.GetTendonMomentArmM(),
		LowerLegMomentArmM: cfg.GetLowerLegMomentArmM(),
		UseLowerLegRatio:   cfg.GetUseLowerLegRatio(),
		Range:              RegressionRange(cfg.GetRegressionRange()),
	}
}
