package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/tendon.report/internal/tendon"
)

// handleSession returns the session status: identity, loaded frame counts,
// correction count, and whether a calibration has been submitted.
func (ws *WebServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	frames := map[tendon.Site]int{}
	for _, site := range tendon.Sites {
		if t, ok := ws.session.Trajectory(site); ok {
			frames[site] = len(t)
		}
	}

	_, calErr := ws.session.Calibration()

	ws.writeJSON(w, http.StatusOK, map[string]any{
		"session_id":  ws.session.ID,
		"created_at":  ws.session.CreatedAt,
		"frames":      frames,
		"corrections": ws.session.Corrections.Len(),
		"calibrated":  calErr == nil,
	})
}

// handleTrajectory returns one site's trajectory. By default the effective
// trajectory (corrections overlaid) is returned; ?raw=true returns the
// smoothed estimate without overrides.
func (ws *WebServer) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	site := tendon.Site(r.URL.Query().Get("site"))
	if !site.Valid() {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown site %q", site))
		return
	}

	var (
		trajectory tendon.Trajectory
		ok         bool
	)
	if r.URL.Query().Get("raw") == "true" {
		trajectory, ok = ws.session.Trajectory(site)
	} else {
		trajectory, ok = ws.session.Effective(site)
	}
	if !ok {
		ws.writeTypedError(w, fmt.Errorf("%w: %s trajectory not loaded", tendon.ErrDataNotReady, site))
		return
	}

	ws.writeJSON(w, http.StatusOK, map[string]any{
		"site":       site,
		"frames":     len(trajectory),
		"trajectory": trajectory,
	})
}

// handleAnomalies runs the detector over both sites and returns per-site
// flags plus the union review list. ?k= overrides the sensitivity.
func (ws *WebServer) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := tendon.AnomalyConfigFromTuning(ws.tuning)
	if kParam := r.URL.Query().Get("k"); kParam != "" {
		var k float64
		if _, err := fmt.Sscanf(kParam, "%g", &k); err != nil || k <= 0 {
			ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid sensitivity %q", kParam))
			return
		}
		cfg.K = k
	}

	perSite, union := ws.session.Anomalies(cfg)
	ws.writeJSON(w, http.StatusOK, map[string]any{
		"sensitivity": cfg.K,
		"sites":       perSite,
		"frames":      union,
	})
}

// handleCorrections accepts a full or partial batch of manual overrides
// and acknowledges with the number applied.
func (ws *WebServer) handleCorrections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var corrections []tendon.Correction
	if err := json.NewDecoder(r.Body).Decode(&corrections); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid correction payload: %v", err))
		return
	}
	for _, c := range corrections {
		if !c.Site.Valid() {
			ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown site %q at frame %d", c.Site, c.FrameIndex))
			return
		}
		if c.FrameIndex < 0 {
			ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("negative frame index %d", c.FrameIndex))
			return
		}
	}

	ws.session.Corrections.SetAll(corrections)

	if ws.db != nil {
		for _, c := range corrections {
			if err := ws.db.UpsertCorrection(ws.session.ID, c); err != nil {
				ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
	}

	ws.writeJSON(w, http.StatusOK, map[string]any{"applied": len(corrections)})
}

// handleCorrectionsReset clears every override for the session. The
// operation is destructive and irreversible, so the caller must confirm it
// explicitly with confirm=true.
func (ws *WebServer) handleCorrectionsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if r.URL.Query().Get("confirm") != "true" && r.FormValue("confirm") != "true" {
		ws.writeJSONError(w, http.StatusBadRequest, "reset is irreversible; pass confirm=true")
		return
	}

	ws.session.Corrections.Reset()
	if ws.db != nil {
		if err := ws.db.DeleteCorrections(ws.session.ID); err != nil {
			ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	ws.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
