package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/tendon.report/internal/tendon"
)

// handleTrajectoryChart renders a quick line plot (HTML) of the smoothed
// landmark trajectories using go-echarts. This is a debugging-only endpoint
// (no auth) for eyeballing tracker output without a frontend.
// Query params:
//   - raw=true to plot the stored trajectories without correction overlays
//   - max_points (optional; default 5000) to reduce payload size
func (ws *WebServer) handleTrajectoryChart(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("raw") == "true"

	maxPoints := 5000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	line := charts.NewLine()

	var frames []int
	seriesCount := 0
	for _, site := range tendon.Sites {
		var traj tendon.Trajectory
		var ok bool
		if raw {
			traj, ok = ws.session.Trajectory(site)
		} else {
			traj, ok = ws.session.Effective(site)
		}
		if !ok {
			continue
		}

		stride := 1
		if len(traj) > maxPoints {
			stride = (len(traj) + maxPoints - 1) / maxPoints
		}

		data := make([]opts.LineData, 0, len(traj)/stride+1)
		axis := make([]int, 0, len(traj)/stride+1)
		for i := 0; i < len(traj); i += stride {
			data = append(data, opts.LineData{Value: traj[i].Y})
			axis = append(axis, i)
		}
		if len(axis) > len(frames) {
			frames = axis
		}
		line.AddSeries(string(site), data, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))
		seriesCount++
	}

	if seriesCount == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no smoothed trajectories available")
		return
	}

	mode := "effective"
	if raw {
		mode = "raw"
	}

	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Landmark Trajectories", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Landmark Vertical Position", Subtitle: fmt.Sprintf("mode=%s frames=%d", mode, len(frames))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "y (px)", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(frames)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render trajectory chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleForceElongationChart renders the force-elongation samples as a
// scatter plot. Requires both smoothed trajectories, a session calibration
// and a configured force ramp recording.
func (ws *WebServer) handleForceElongationChart(w http.ResponseWriter, r *http.Request) {
	cal, err := ws.session.Calibration()
	if err != nil {
		ws.writeTypedError(w, err)
		return
	}

	distal, ok := ws.session.Effective(tendon.SiteDistal)
	if !ok {
		ws.writeTypedError(w, tendon.ErrDataNotReady)
		return
	}
	proximal, ok := ws.session.Effective(tendon.SiteProximal)
	if !ok {
		ws.writeTypedError(w, tendon.ErrDataNotReady)
		return
	}

	samples, err := ws.loadForceRamp()
	if err != nil {
		ws.writeTypedError(w, err)
		return
	}

	cfg := tendon.BiomechConfigFromTuning(ws.tuning)

	elong, err := tendon.ElongationSeries(distal, proximal, cal.FactorPxPerMM)
	if err != nil {
		ws.writeTypedError(w, err)
		return
	}
	force := tendon.ForceSeries(samples, cfg)

	n := len(elong)
	if len(force) < n {
		n = len(force)
	}
	data := make([]opts.ScatterData, 0, n)
	maxForce := 0.0
	for i := 0; i < n; i++ {
		if force[i] > maxForce {
			maxForce = force[i]
		}
		data = append(data, opts.ScatterData{Value: []interface{}{elong[i], force[i]}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Force-Elongation", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Force vs Elongation", Subtitle: fmt.Sprintf("samples=%d peak=%.1fN", n, maxForce)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "elongation (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "force (N)", NameLocation: "middle", NameGap: 40}),
	)
	scatter.AddSeries("force-elongation", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render force-elongation chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
