// Package monitor exposes the HTTP interface for a tendon analysis
// session: trajectory review, correction submission, calibration, and
// stiffness computation, plus go-echarts debug charts.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/tendon.report/internal/config"
	"github.com/banshee-data/tendon.report/internal/db"
	"github.com/banshee-data/tendon.report/internal/fsutil"
	"github.com/banshee-data/tendon.report/internal/tendon"
	"github.com/banshee-data/tendon.report/internal/version"
)

// WebServer handles the HTTP interface for one analysis session.
type WebServer struct {
	address string
	server  *http.Server

	session *tendon.Session
	tuning  *config.TuningConfig
	db      *db.DB
	fs      fsutil.FileSystem

	// Path to the force ramp CSV; loaded lazily on the first stiffness
	// request so the server can start before the recording is uploaded.
	forceRampPath string
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address       string
	Session       *tendon.Session
	Tuning        *config.TuningConfig
	DB            *db.DB
	FS            fsutil.FileSystem
	ForceRampPath string
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(cfg WebServerConfig) *WebServer {
	ws := &WebServer{
		address:       cfg.Address,
		session:       cfg.Session,
		tuning:        cfg.Tuning,
		db:            cfg.DB,
		fs:            cfg.FS,
		forceRampPath: cfg.ForceRampPath,
	}
	if ws.fs == nil {
		ws.fs = fsutil.OSFileSystem{}
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/session", ws.handleSession)
	mux.HandleFunc("/api/trajectory", ws.handleTrajectory)
	mux.HandleFunc("/api/anomalies", ws.handleAnomalies)
	mux.HandleFunc("/api/corrections", ws.handleCorrections)
	mux.HandleFunc("/api/corrections/reset", ws.handleCorrectionsReset)
	mux.HandleFunc("/api/calibration", ws.handleCalibration)
	mux.HandleFunc("/api/stiffness", ws.handleStiffness)
	mux.HandleFunc("/debug/charts/trajectory", ws.handleTrajectoryChart)
	mux.HandleFunc("/debug/charts/force-elongation", ws.handleForceElongationChart)

	return mux
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	return nil
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	ws.writeJSON(w, status, map[string]string{"error": msg})
}

// writeTypedError maps a pipeline error to a status code and a structured
// body carrying the error class, so the UI can distinguish "not enough
// samples in band" from "fit has no solution in range".
func (ws *WebServer) writeTypedError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, tendon.ErrDataNotReady):
		status, kind = http.StatusServiceUnavailable, "data_not_ready"
	case errors.Is(err, tendon.ErrMalformedInput):
		status, kind = http.StatusBadRequest, "malformed_input"
	case errors.Is(err, tendon.ErrInvalidCalibration):
		status, kind = http.StatusBadRequest, "invalid_calibration"
	case errors.Is(err, tendon.ErrMissingBaseline):
		status, kind = http.StatusConflict, "missing_baseline"
	case errors.Is(err, tendon.ErrInsufficientPoints):
		status, kind = http.StatusBadRequest, "insufficient_points"
	case errors.Is(err, tendon.ErrInsufficientData):
		status, kind = http.StatusUnprocessableEntity, "insufficient_data"
	case errors.Is(err, tendon.ErrNoRoot):
		status, kind = http.StatusUnprocessableEntity, "no_root"
	}
	ws.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  kind,
	})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}
