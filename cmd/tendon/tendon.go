package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/tendon.report/internal/config"
	"github.com/banshee-data/tendon.report/internal/db"
	"github.com/banshee-data/tendon.report/internal/fsutil"
	"github.com/banshee-data/tendon.report/internal/tendon"
	"github.com/banshee-data/tendon.report/internal/tendon/monitor"
	"github.com/banshee-data/tendon.report/internal/version"
)

var (
	listen        = flag.String("listen", ":8081", "HTTP listen address")
	distalPath    = flag.String("distal", "", "Path to the distal landmark coordinate CSV")
	proximalPath  = flag.String("proximal", "", "Path to the proximal landmark coordinate CSV")
	forceRampPath = flag.String("force-ramp", "", "Path to the dynamometer force ramp CSV (optional)")
	dbFile        = flag.String("db", "tendon_data.db", "Path to the SQLite database file")
	migrationsDir = flag.String("migrations", "db/migrations", "Path to the SQL migrations directory")
	tuningPath    = flag.String("tuning", "", "Path to a tuning config JSON (default: search for config/tuning.defaults.json)")
	videoName     = flag.String("video", "", "Recording name stored with the session (optional)")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("tendon %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}
	if *distalPath == "" || *proximalPath == "" {
		log.Fatal("Both -distal and -proximal coordinate paths are required")
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
	if err := tuning.Validate(); err != nil {
		log.Fatalf("Invalid tuning config: %v", err)
	}

	tdb, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open tendon database: %v", err)
	}
	defer tdb.Close()

	if err := tdb.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fs := fsutil.OSFileSystem{}

	// Block until the landmark tracker has produced both coordinate
	// artifacts. Ctrl-C during the wait exits cleanly.
	log.Printf("Waiting for coordinate artifacts: distal=%s proximal=%s", *distalPath, *proximalPath)
	distalObs, err := tendon.WaitForSiteCoordinates(ctx, fs, *distalPath)
	if err != nil {
		log.Fatalf("Failed to read distal coordinates: %v", err)
	}
	proximalObs, err := tendon.WaitForSiteCoordinates(ctx, fs, *proximalPath)
	if err != nil {
		log.Fatalf("Failed to read proximal coordinates: %v", err)
	}

	trackerCfg := tendon.TrackerConfigFromTuning(tuning)
	distal, proximal, err := tendon.SmoothBoth(trackerCfg, distalObs, proximalObs)
	if err != nil {
		log.Fatalf("Failed to smooth trajectories: %v", err)
	}
	log.Printf("Smoothed %d distal and %d proximal frames", len(distal), len(proximal))

	session := tendon.NewSession()
	session.SetTrajectory(tendon.SiteDistal, distal)
	session.SetTrajectory(tendon.SiteProximal, proximal)

	if err := tdb.CreateSession(session.ID, *videoName); err != nil {
		log.Fatalf("Failed to record session: %v", err)
	}
	log.Printf("Session %s ready", session.ID)

	ws := monitor.NewWebServer(monitor.WebServerConfig{
		Address:       *listen,
		Session:       session,
		Tuning:        tuning,
		DB:            tdb,
		FS:            fs,
		ForceRampPath: *forceRampPath,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("Web server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Print("Shutting down")
	wg.Wait()
}
