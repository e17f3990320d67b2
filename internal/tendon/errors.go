package tendon

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline. Callers classify failures with
// errors.Is; the HTTP layer maps each to a status code and a structured
// JSON body. Only ErrDataNotReady is retryable.
var (
	// ErrDataNotReady indicates an upstream artifact (typically the
	// segmentation model's coordinate CSV) has not been produced yet.
	// Retry with backoff.
	ErrDataNotReady = errors.New("upstream data not ready")

	// ErrMalformedInput indicates an unparseable row or a column count
	// mismatch in an input feed. Not retryable; surfaced to the user.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInvalidCalibration indicates a conversion factor that is not a
	// finite positive number.
	ErrInvalidCalibration = errors.New("invalid calibration factor")

	// ErrMissingBaseline indicates a computation that needs the baseline
	// length before one has been recorded for the session.
	ErrMissingBaseline = errors.New("baseline length not set")

	// ErrInsufficientPoints indicates too few valid points for the spline
	// fit (at least the two anchor landmarks are required).
	ErrInsufficientPoints = errors.New("insufficient points for spline fit")

	// ErrInsufficientData indicates too few paired samples inside the
	// [TF50, TF80] band to support a defensible stiffness fit.
	ErrInsufficientData = errors.New("insufficient samples in force band")

	// ErrNoRoot indicates the fitted quadratic has no real solution at the
	// requested force level; the fit cannot be inverted in range.
	ErrNoRoot = errors.New("force-elongation fit has no real root at target force")
)

// Retryable reports whether err represents a transient condition the
// caller should retry rather than surface.
func Retryable(err error) bool {
	return errors.Is(err, ErrDataNotReady)
}

// malformedf wraps ErrMalformedInput with position detail.
func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}
