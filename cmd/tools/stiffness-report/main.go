// Command stiffness-report runs the full measurement pipeline offline and
// renders a force-elongation plot alongside the fitted stiffness numbers.
// Useful for batch reprocessing of recorded sessions without the web UI.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/tendon.report/internal/config"
	"github.com/banshee-data/tendon.report/internal/fsutil"
	"github.com/banshee-data/tendon.report/internal/tendon"
)

var (
	distalPath   = flag.String("distal", "", "Path to the distal landmark coordinate CSV")
	proximalPath = flag.String("proximal", "", "Path to the proximal landmark coordinate CSV")
	forcePath    = flag.String("force-ramp", "", "Path to the dynamometer force ramp CSV")
	factor       = flag.Float64("factor", 0, "Pixel to millimetre conversion factor (px/mm)")
	refFrame     = flag.Int("reference-frame", 0, "Rest frame used to measure the baseline length")
	tuningPath   = flag.String("tuning", "", "Path to a tuning config JSON (default: search for config/tuning.defaults.json)")
	outFile      = flag.String("out", "force_elongation.png", "Output PNG path for the force-elongation plot")
)

func main() {
	flag.Parse()

	if *distalPath == "" || *proximalPath == "" || *forcePath == "" {
		fmt.Fprintln(os.Stderr, "usage: stiffness-report -distal coords.csv -proximal coords.csv -force-ramp ramp.csv -factor N")
		os.Exit(2)
	}
	if *factor <= 0 {
		log.Fatal("A positive -factor (px/mm) is required")
	}

	var tuning *config.TuningConfig
	if *tuningPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	} else {
		tuning = config.MustLoadDefaultConfig()
	}

	fs := fsutil.OSFileSystem{}
	distalObs, err := tendon.ReadSiteCoordinates(fs, *distalPath)
	if err != nil {
		log.Fatalf("Failed to read distal coordinates: %v", err)
	}
	proximalObs, err := tendon.ReadSiteCoordinates(fs, *proximalPath)
	if err != nil {
		log.Fatalf("Failed to read proximal coordinates: %v", err)
	}

	distal, proximal, err := tendon.SmoothBoth(tendon.TrackerConfigFromTuning(tuning), distalObs, proximalObs)
	if err != nil {
		log.Fatalf("Failed to smooth trajectories: %v", err)
	}

	session := tendon.NewSession()
	session.SetTrajectory(tendon.SiteDistal, distal)
	session.SetTrajectory(tendon.SiteProximal, proximal)

	if *refFrame < 0 || *refFrame >= len(distal) || *refFrame >= len(proximal) {
		log.Fatalf("Reference frame %d out of range", *refFrame)
	}
	baseline, err := tendon.SplineLength([]tendon.Position{distal[*refFrame], proximal[*refFrame]}, tuning.GetSplineSubdivisions())
	if err != nil {
		log.Fatalf("Failed to measure baseline: %v", err)
	}
	cal, err := session.SetCalibration(baseline, *factor)
	if err != nil {
		log.Fatalf("Failed to calibrate: %v", err)
	}
	log.Printf("Baseline %.2fpx (%.2fmm) at frame %d", baseline, cal.BaselineLengthMM, *refFrame)

	samples, err := tendon.LoadForceRamp(fs, *forcePath, len(distal))
	if err != nil {
		log.Fatalf("Failed to read force ramp: %v", err)
	}

	cfg := tendon.BiomechConfigFromTuning(tuning)
	result, err := session.Stiffness(samples, cfg)
	if err != nil {
		log.Fatalf("Stiffness computation failed: %v", err)
	}

	fmt.Println(result)
	fmt.Printf("  TFmax=%.2fN TF50=%.2fN TF80=%.2fN samples=%d\n",
		result.TFMax, result.TF50, result.TF80, result.Samples)

	elong, err := tendon.ElongationSeries(distal, proximal, cal.FactorPxPerMM)
	if err != nil {
		log.Fatalf("Failed to compute elongation series: %v", err)
	}
	force := tendon.ForceSeries(samples, cfg)

	if err := renderPlot(*outFile, elong, force, result); err != nil {
		log.Fatalf("Failed to render plot: %v", err)
	}
	log.Printf("Wrote %s", *outFile)
}

func renderPlot(path string, elong, force []float64, result tendon.StiffnessResult) error {
	n := len(elong)
	if len(force) < n {
		n = len(force)
	}

	pts := make(plotter.XYs, 0, n)
	for i := 0; i < n; i++ {
		pts = append(pts, plotter.XY{X: elong[i], Y: force[i]})
	}

	p := plot.New()
	p.Title.Text = "Force vs Elongation"
	p.X.Label.Text = "Elongation (mm)"
	p.Y.Label.Text = "Force (N)"

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to build scatter: %w", err)
	}
	scatter.GlyphStyle.Radius = vg.Points(2)
	scatter.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(scatter)
	p.Legend.Add(fmt.Sprintf("k=%.1f N/mm", result.StiffnessNPerMM), scatter)

	// Horizontal guides at the regression band edges.
	for _, level := range []float64{result.TF50, result.TF80} {
		guide := plotter.NewFunction(func(float64) float64 { return level })
		guide.Color = color.RGBA{R: 200, G: 80, B: 80, A: 255}
		guide.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(guide)
	}

	return p.Save(10*vg.Inch, 6*vg.Inch, path)
}
