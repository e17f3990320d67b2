package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/params endpoint so the same JSON can be used
// for both startup configuration and runtime inspection. All fields are
// optional; the Get* accessors supply compiled-in defaults, so partial
// configs are safe.
type TuningConfig struct {
	// Kalman tracker params
	InitialCovariance *float64 `json:"initial_covariance,omitempty"`
	ProcessNoisePos   *float64 `json:"process_noise_pos,omitempty"`
	ProcessNoiseVel   *float64 `json:"process_noise_vel,omitempty"`
	MeasurementNoise  *float64 `json:"measurement_noise,omitempty"`

	// AccelerationGate skips observation updates for frames whose implied
	// acceleration exceeds the gate. Zero disables gating, the validated
	// default; enabling it is known to degrade results on real recordings.
	AccelerationGate *float64 `json:"acceleration_gate,omitempty"`

	// Anomaly detector params
	AnomalyK *float64 `json:"anomaly_k,omitempty"`

	// Geometry params
	SplineSubdivisions *int `json:"spline_subdivisions,omitempty"`

	// Biomechanics params
	TendonMomentArmM   *float64 `json:"tendon_moment_arm_m,omitempty"`
	LowerLegMomentArmM *float64 `json:"lower_leg_moment_arm_m,omitempty"`
	UseLowerLegRatio   *bool    `json:"use_lower_leg_ratio,omitempty"`
	RegressionRange    *string  `json:"regression_range,omitempty"` // "full" or "prefix80"

	// Video params
	VideoFPS *float64 `json:"video_fps,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Fields omitted
// from the JSON retain their defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching upward from the current directory. Panics
// if the file cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.InitialCovariance != nil && *c.InitialCovariance <= 0 {
		return fmt.Errorf("initial_covariance must be positive, got %f", *c.InitialCovariance)
	}
	if c.ProcessNoisePos != nil && *c.ProcessNoisePos < 0 {
		return fmt.Errorf("process_noise_pos must be non-negative, got %f", *c.ProcessNoisePos)
	}
	if c.ProcessNoiseVel != nil && *c.ProcessNoiseVel < 0 {
		return fmt.Errorf("process_noise_vel must be non-negative, got %f", *c.ProcessNoiseVel)
	}
	if c.MeasurementNoise != nil && *c.MeasurementNoise <= 0 {
		return fmt.Errorf("measurement_noise must be positive, got %f", *c.MeasurementNoise)
	}
	if c.AccelerationGate != nil && *c.AccelerationGate < 0 {
		return fmt.Errorf("acceleration_gate must be non-negative, got %f", *c.AccelerationGate)
	}
	if c.AnomalyK != nil && *c.AnomalyK <= 0 {
		return fmt.Errorf("anomaly_k must be positive, got %f", *c.AnomalyK)
	}
	if c.SplineSubdivisions != nil && *c.SplineSubdivisions < 1 {
		return fmt.Errorf("spline_subdivisions must be at least 1, got %d", *c.SplineSubdivisions)
	}
	if c.RegressionRange != nil {
		switch *c.RegressionRange {
		case "full", "prefix80":
		default:
			return fmt.Errorf("regression_range must be \"full\" or \"prefix80\", got %q", *c.RegressionRange)
		}
	}
	if c.VideoFPS != nil && *c.VideoFPS <= 0 {
		return fmt.Errorf("video_fps must be positive, got %f", *c.VideoFPS)
	}
	return nil
}

// GetInitialCovariance returns the initial_covariance value or the default.
func (c *TuningConfig) GetInitialCovariance() float64 {
	if c.InitialCovariance == nil {
		return 500.0
	}
	return *c.InitialCovariance
}

// GetProcessNoisePos returns the process_noise_pos value or the default.
func (c *TuningConfig) GetProcessNoisePos() float64 {
	if c.ProcessNoisePos == nil {
		return 0.1
	}
	return *c.ProcessNoisePos
}

// GetProcessNoiseVel returns the process_noise_vel value or the default.
func (c *TuningConfig) GetProcessNoiseVel() float64 {
	if c.ProcessNoiseVel == nil {
		return 0.1
	}
	return *c.ProcessNoiseVel
}

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *TuningConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 1.0
	}
	return *c.MeasurementNoise
}

// GetAccelerationGate returns the acceleration_gate value or the default.
// The default is 0: gating disabled.
func (c *TuningConfig) GetAccelerationGate() float64 {
	if c.AccelerationGate == nil {
		return 0
	}
	return *c.AccelerationGate
}

// GetAnomalyK returns the anomaly_k value or the default.
func (c *TuningConfig) GetAnomalyK() float64 {
	if c.AnomalyK == nil {
		return 3.0
	}
	return *c.AnomalyK
}

// GetSplineSubdivisions returns the spline_subdivisions value or the default.
func (c *TuningConfig) GetSplineSubdivisions() int {
	if c.SplineSubdivisions == nil {
		return 30
	}
	return *c.SplineSubdivisions
}

// GetTendonMomentArmM returns the tendon_moment_arm_m value or the default.
func (c *TuningConfig) GetTendonMomentArmM() float64 {
	if c.TendonMomentArmM == nil {
		return 0.04
	}
	return *c.TendonMomentArmM
}

// GetLowerLegMomentArmM returns the lower_leg_moment_arm_m value or the default.
func (c *TuningConfig) GetLowerLegMomentArmM() float64 {
	if c.LowerLegMomentArmM == nil {
		return 0.28
	}
	return *c.LowerLegMomentArmM
}

// GetUseLowerLegRatio returns the use_lower_leg_ratio value or the default.
func (c *TuningConfig) GetUseLowerLegRatio() bool {
	if c.UseLowerLegRatio == nil {
		return false
	}
	return *c.UseLowerLegRatio
}

// GetRegressionRange returns the regression_range value or the default.
func (c *TuningConfig) GetRegressionRange() string {
	if c.RegressionRange == nil || *c.RegressionRange == "" {
		return "full"
	}
	return *c.RegressionRange
}

// GetVideoFPS returns the video_fps value or the default. The default
// matches the ultrasound capture hardware.
func (c *TuningConfig) GetVideoFPS() float64 {
	if c.VideoFPS == nil {
		return 51.491
	}
	return *c.VideoFPS
}
