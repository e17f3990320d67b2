package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/banshee-data/tendon.report/internal/tendon"
)

// calibrationRequest derives the session baseline from the reference
// (rest) frame's effective landmark positions, optionally refined by up to
// two user-placed free points, and a pixel→mm conversion factor.
type calibrationRequest struct {
	FactorPxPerMM  float64           `json:"conversion_factor_px_per_mm"`
	ReferenceFrame int               `json:"reference_frame"`
	ExtraPoints    []tendon.Position `json:"extra_points,omitempty"`
}

// handleCalibration measures the baseline tendon length on the reference
// frame and records the session calibration. Responds with the derived
// baseline length or a validation error.
func (ws *WebServer) handleCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req calibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid calibration payload: %v", err))
		return
	}
	if len(req.ExtraPoints) > 2 {
		ws.writeJSONError(w, http.StatusBadRequest, "at most 2 free points may be added to the anchors")
		return
	}

	points, err := ws.referencePoints(req.ReferenceFrame)
	if err != nil {
		ws.writeTypedError(w, err)
		return
	}
	points = append(points, req.ExtraPoints...)

	lengthPx, err := tendon.SplineLength(points, ws.tuning.GetSplineSubdivisions())
	if err != nil {
		ws.writeTypedError(w, err)
		return
	}

	cal, err := ws.session.SetCalibration(lengthPx, req.FactorPxPerMM)
	if err != nil {
		ws.writeTypedError(w, err)
		return
	}

	if ws.db != nil {
		if err := ws.db.SaveCalibration(ws.session.ID, cal); err != nil {
			ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	ws.writeJSON(w, http.StatusOK, map[string]any{
		"baseline_length_px": lengthPx,
		"baseline_length_mm": cal.BaselineLengthMM,
		"factor_px_per_mm":   cal.FactorPxPerMM,
	})
}

// referencePoints returns the two anchor landmark positions at the
// reference frame, corrections applied.
func (ws *WebServer) referencePoints(frame int) ([]tendon.Position, error) {
	points := make([]tendon.Position, 0, 4)
	for _, site := range tendon.Sites {
		trajectory, ok := ws.session.Effective(site)
		if !ok {
			return nil, fmt.Errorf("%w: %s trajectory not loaded", tendon.ErrDataNotReady, site)
		}
		if frame < 0 || frame >= len(trajectory) {
			return nil, fmt.Errorf("%w: reference frame %d outside trajectory (0..%d)",
				tendon.ErrMalformedInput, frame, len(trajectory)-1)
		}
		points = append(points, trajectory[frame])
	}
	return points, nil
}

// stiffnessRequest carries the optional overrides for one computation.
type stiffnessRequest struct {
	TendonMomentArmM   *float64 `json:"tendon_moment_arm_m,omitempty"`
	LowerLegMomentArmM *float64 `json:"lower_leg_moment_arm_m,omitempty"`
	UseLowerLegRatio   *bool    `json:"use_lower_leg_ratio,omitempty"`
	Range              string   `json:"range,omitempty"` // "full" or "prefix80"
}

// handleStiffness recomputes the stiffness metrics from the current
// effective trajectories, the calibration, and the force ramp recording.
func (ws *WebServer) handleStiffness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := tendon.BiomechConfigFromTuning(ws.tuning)

	// An empty body keeps the configured defaults.
	var req stiffnessRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid stiffness payload: %v", err))
		return
	}
	if req.TendonMomentArmM != nil {
		cfg.TendonMomentArmM = *req.TendonMomentArmM
	}
	if req.LowerLegMomentArmM != nil {
		cfg.LowerLegMomentArmM = *req.LowerLegMomentArmM
	}
	if req.UseLowerLegRatio != nil {
		cfg.UseLowerLegRatio = *req.UseLowerLegRatio
	}
	switch req.Range {
	case "":
	case string(tendon.RangeFull), string(tendon.RangePrefix80):
		cfg.Range = tendon.RegressionRange(req.Range)
	default:
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown regression range %q", req.Range))
		return
	}

	samples, err := ws.loadForceRamp()
	if err != nil {
		ws.writeTypedError(w, err)
		return
	}

	result, err := ws.session.Stiffness(samples, cfg)
	if err != nil {
		ws.writeTypedError(w, err)
		return
	}

	if ws.db != nil {
		if err := ws.db.RecordStiffnessResult(ws.session.ID, result); err != nil {
			ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	ws.writeJSON(w, http.StatusOK, result)
}

// loadForceRamp reads the configured force ramp recording, resampled to
// the video's frame count when the two disagree.
func (ws *WebServer) loadForceRamp() ([]tendon.ForceSample, error) {
	if ws.forceRampPath == "" {
		return nil, fmt.Errorf("%w: no force ramp recording configured", tendon.ErrDataNotReady)
	}
	frames := 0
	if t, ok := ws.session.Trajectory(tendon.SiteDistal); ok {
		frames = len(t)
	}
	return tendon.LoadForceRamp(ws.fs, ws.forceRampPath, frames)
}
