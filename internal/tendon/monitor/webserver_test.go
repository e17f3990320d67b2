package monitor

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/tendon.report/internal/config"
	"github.com/banshee-data/tendon.report/internal/fsutil"
	"github.com/banshee-data/tendon.report/internal/tendon"
)

// newTestServer builds a server around a pre-loaded session: four frames
// with the proximal landmark pinned at the origin and the distal landmark
// pulling away, plus a matching in-memory force ramp. The elongation
// follows f = 10·ΔL² in torque units.
func newTestServer(t *testing.T) (*WebServer, *tendon.Session, *fsutil.MemoryFileSystem) {
	t.Helper()

	session := tendon.NewSession()
	session.SetTrajectory(tendon.SiteDistal, tendon.Trajectory{
		{X: 10, Y: 0}, {X: 11, Y: 0}, {X: 12, Y: 0}, {X: 13, Y: 0},
	})
	session.SetTrajectory(tendon.SiteProximal, tendon.Trajectory{
		{}, {}, {}, {},
	})

	fs := fsutil.NewMemoryFileSystem()
	if err := fs.WriteFile("ramp.csv", []byte("0,0\n1,10\n2,40\n3,90\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ws := NewWebServer(WebServerConfig{
		Address:       ":0",
		Session:       session,
		Tuning:        config.MustLoadDefaultConfig(),
		FS:            fs,
		ForceRampPath: "ramp.csv",
	})
	return ws, session, fs
}

func doRequest(ws *WebServer, method, target string, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&body); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	ws, _, _ := newTestServer(t)
	rec := doRequest(ws, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestSessionStatus(t *testing.T) {
	ws, session, _ := newTestServer(t)
	rec := doRequest(ws, http.MethodGet, "/api/session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["session_id"] != session.ID {
		t.Errorf("session_id = %v, want %v", body["session_id"], session.ID)
	}
	if body["calibrated"] != false {
		t.Errorf("calibrated = %v before calibration", body["calibrated"])
	}
	frames, ok := body["frames"].(map[string]any)
	if !ok || frames["distal"] != float64(4) {
		t.Errorf("frames = %v", body["frames"])
	}
}

func TestTrajectoryEndpoint(t *testing.T) {
	ws, session, _ := newTestServer(t)

	rec := doRequest(ws, http.MethodGet, "/api/trajectory", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing site: status = %d, want 400", rec.Code)
	}

	session.Corrections.Set(1, tendon.SiteDistal, 99, 99)

	rec = doRequest(ws, http.MethodGet, "/api/trajectory?site=distal", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	points := body["trajectory"].([]any)
	if got := points[1].(map[string]any)["x"]; got != float64(99) {
		t.Errorf("effective x[1] = %v, want corrected 99", got)
	}

	rec = doRequest(ws, http.MethodGet, "/api/trajectory?site=distal&raw=true", "")
	body = decodeBody(t, rec)
	points = body["trajectory"].([]any)
	if got := points[1].(map[string]any)["x"]; got != float64(11) {
		t.Errorf("raw x[1] = %v, want uncorrected 11", got)
	}
}

func TestAnomaliesEndpoint(t *testing.T) {
	ws, session, _ := newTestServer(t)
	session.SetTrajectory(tendon.SiteDistal, tendon.Trajectory{
		{X: 0}, {X: 10}, {X: 20}, {X: 60}, {X: 70}, {X: 80},
	})

	rec := doRequest(ws, http.MethodGet, "/api/anomalies?k=0.5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	frames := body["frames"].([]any)
	if len(frames) != 2 || frames[0] != float64(3) || frames[1] != float64(4) {
		t.Errorf("frames = %v, want [3 4]", frames)
	}

	rec = doRequest(ws, http.MethodGet, "/api/anomalies?k=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad sensitivity: status = %d, want 400", rec.Code)
	}
}

func TestCorrectionsEndpoint(t *testing.T) {
	ws, session, _ := newTestServer(t)

	payload := `[{"frame_index":1,"site":"distal","x":50,"y":60},{"frame_index":2,"site":"proximal","x":1,"y":2}]`
	rec := doRequest(ws, http.MethodPost, "/api/corrections", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["applied"] != float64(2) {
		t.Errorf("applied = %v, want 2", body["applied"])
	}
	if session.Corrections.Len() != 2 {
		t.Errorf("stored corrections = %d, want 2", session.Corrections.Len())
	}

	rec = doRequest(ws, http.MethodPost, "/api/corrections", `[{"frame_index":0,"site":"lateral","x":0,"y":0}]`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown site: status = %d, want 400", rec.Code)
	}
}

func TestCorrectionsResetRequiresConfirm(t *testing.T) {
	ws, session, _ := newTestServer(t)
	session.Corrections.Set(0, tendon.SiteDistal, 1, 1)

	rec := doRequest(ws, http.MethodPost, "/api/corrections/reset", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unconfirmed reset: status = %d, want 400", rec.Code)
	}
	if session.Corrections.Len() != 1 {
		t.Error("unconfirmed reset cleared the store")
	}

	rec = doRequest(ws, http.MethodPost, "/api/corrections/reset?confirm=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("confirmed reset: status = %d, want 200", rec.Code)
	}
	if session.Corrections.Len() != 0 {
		t.Error("confirmed reset did not clear the store")
	}
}

func TestCalibrationEndpoint(t *testing.T) {
	ws, session, _ := newTestServer(t)

	rec := doRequest(ws, http.MethodPost, "/api/calibration", `{"conversion_factor_px_per_mm":2,"reference_frame":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	// Anchors at (10,0) and (0,0): a 10px straight baseline, 5mm at 2px/mm.
	if px := body["baseline_length_px"].(float64); math.Abs(px-10) > 1e-9 {
		t.Errorf("baseline_length_px = %v, want 10", px)
	}
	if mm := body["baseline_length_mm"].(float64); math.Abs(mm-5) > 1e-9 {
		t.Errorf("baseline_length_mm = %v, want 5", mm)
	}
	if _, err := session.Calibration(); err != nil {
		t.Errorf("calibration not stored: %v", err)
	}

	rec = doRequest(ws, http.MethodPost, "/api/calibration", `{"conversion_factor_px_per_mm":0,"reference_frame":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero factor: status = %d, want 400", rec.Code)
	}

	rec = doRequest(ws, http.MethodPost, "/api/calibration", `{"conversion_factor_px_per_mm":2,"reference_frame":99}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("out-of-range frame: status = %d, want 400", rec.Code)
	}

	rec = doRequest(ws, http.MethodPost, "/api/calibration",
		`{"conversion_factor_px_per_mm":2,"reference_frame":0,"extra_points":[{"x":1,"y":1},{"x":2,"y":2},{"x":3,"y":3}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("3 extra points: status = %d, want 400", rec.Code)
	}
}

func TestStiffnessEndpoint(t *testing.T) {
	ws, session, _ := newTestServer(t)

	// Without a calibration the computation must refuse.
	rec := doRequest(ws, http.MethodPost, "/api/stiffness", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("uncalibrated: status = %d, want 409 (body %s)", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["kind"] != "missing_baseline" {
		t.Errorf("kind = %v, want missing_baseline", body["kind"])
	}

	if err := session.RestoreCalibration(tendon.Calibration{FactorPxPerMM: 1, BaselineLengthMM: 10}); err != nil {
		t.Fatalf("RestoreCalibration: %v", err)
	}

	rec = doRequest(ws, http.MethodPost, "/api/stiffness", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if v, ok := body["stiffness_n_per_mm"].(float64); !ok || v <= 0 {
		t.Errorf("stiffness_n_per_mm = %v, want > 0", body["stiffness_n_per_mm"])
	}
	if body["paired_samples"] != float64(4) {
		t.Errorf("paired_samples = %v, want 4", body["paired_samples"])
	}

	rec = doRequest(ws, http.MethodPost, "/api/stiffness", `{"range":"sideways"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad range: status = %d, want 400", rec.Code)
	}
}

func TestStiffnessWithoutForceRamp(t *testing.T) {
	ws, session, _ := newTestServer(t)
	ws.forceRampPath = ""
	if err := session.RestoreCalibration(tendon.Calibration{FactorPxPerMM: 1, BaselineLengthMM: 10}); err != nil {
		t.Fatalf("RestoreCalibration: %v", err)
	}

	rec := doRequest(ws, http.MethodPost, "/api/stiffness", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestTrajectoryChartRenders(t *testing.T) {
	ws, _, _ := newTestServer(t)
	rec := doRequest(ws, http.MethodGet, "/debug/charts/trajectory", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ws, _, _ := newTestServer(t)
	for _, target := range []string{"/api/corrections", "/api/calibration", "/api/stiffness", "/api/corrections/reset"} {
		rec := doRequest(ws, http.MethodGet, target, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s GET: status = %d, want 405", target, rec.Code)
		}
	}
}
