package tendon

import (
	"fmt"
	"math"
)

// ConvertPxToMM converts a pixel length to millimetres using the session's
// conversion factor. The factor must be a finite number greater than zero;
// anything else makes every downstream conversion undefined and is
// rejected with ErrInvalidCalibration.
func ConvertPxToMM(lengthPx, factorPxPerMM float64) (float64, error) {
	if err := ValidateFactor(factorPxPerMM); err != nil {
		return 0, err
	}
	return lengthPx / factorPxPerMM, nil
}

// ValidateFactor checks a pixel-per-millimetre conversion factor.
func ValidateFactor(factorPxPerMM float64) error {
	if math.IsNaN(factorPxPerMM) || math.IsInf(factorPxPerMM, 0) {
		return fmt.Errorf("%w: factor must be finite, got %v", ErrInvalidCalibration, factorPxPerMM)
	}
	if factorPxPerMM <= 0 {
		return fmt.Errorf("%w: factor must be > 0, got %v", ErrInvalidCalibration, factorPxPerMM)
	}
	return nil
}

// NewCalibration derives the session calibration from a measured baseline
// length in pixels and a conversion factor, recording both the factor and
// the resulting rest length.
func NewCalibration(baselinePx, factorPxPerMM float64) (Calibration, error) {
	mm, err := ConvertPxToMM(baselinePx, factorPxPerMM)
	if err != nil {
		return Calibration{}, err
	}
	if mm <= 0 {
		return Calibration{}, fmt.Errorf("%w: baseline length must be > 0, got %v mm", ErrInvalidCalibration, mm)
	}
	return Calibration{FactorPxPerMM: factorPxPerMM, BaselineLengthMM: mm}, nil
}
