package tendon

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/tendon.report/internal/fsutil"
)

// Artifact polling backoff. The segmentation job writes its coordinate
// CSVs incrementally, so a missing or empty file means "not yet produced",
// not failure.
const (
	pollInitialBackoff = 250 * time.Millisecond
	pollMaxBackoff     = 5 * time.Second
)

// ReadSiteCoordinates loads the per-frame coordinate artifact for one
// site. Each data row carries the detected point in its last two fields,
// stored row-major: the second-to-last field is the vertical (y)
// coordinate and the last field the horizontal (x).
//
// NOTE: the swap mirrors the column layout the upstream model writer
// produces. Do not change the order here without changing the producer
// first.
//
// A missing or empty file returns ErrDataNotReady; unparseable rows or a
// column-count mismatch return ErrMalformedInput.
func ReadSiteCoordinates(fsys fsutil.FileSystem, path string) ([]Observation, error) {
	rows, err := readCSVArtifact(fsys, path)
	if err != nil {
		return nil, err
	}

	observations := make([]Observation, 0, len(rows))
	frame := 0
	for i, row := range rows {
		if len(row) < 2 {
			return nil, malformedf("%s: row %d has %d fields, need at least 2", path, i+1, len(row))
		}
		if i == 0 && isHeaderRow(row) {
			continue
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(row[len(row)-2]), 64)
		if err != nil {
			return nil, malformedf("%s: row %d: bad y value %q", path, i+1, row[len(row)-2])
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(row[len(row)-1]), 64)
		if err != nil {
			return nil, malformedf("%s: row %d: bad x value %q", path, i+1, row[len(row)-1])
		}
		observations = append(observations, Observation{FrameIndex: frame, X: x, Y: y})
		frame++
	}

	if len(observations) == 0 {
		return nil, fmt.Errorf("%w: %s has no data rows yet", ErrDataNotReady, path)
	}
	return observations, nil
}

// ReadForceRamp loads the externally recorded force ramp: one
// (frame_index, torque_Nm) row per sample, first two fields of each row.
func ReadForceRamp(fsys fsutil.FileSystem, path string) ([]ForceSample, error) {
	rows, err := readCSVArtifact(fsys, path)
	if err != nil {
		return nil, err
	}

	samples := make([]ForceSample, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, malformedf("%s: row %d has %d fields, need at least 2", path, i+1, len(row))
		}
		if i == 0 && isHeaderRow(row) {
			continue
		}
		frame, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, malformedf("%s: row %d: bad frame index %q", path, i+1, row[0])
		}
		torque, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return nil, malformedf("%s: row %d: bad torque value %q", path, i+1, row[1])
		}
		samples = append(samples, ForceSample{FrameIndex: frame, TorqueNm: torque})
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: %s has no data rows yet", ErrDataNotReady, path)
	}
	return samples, nil
}

// LoadForceRamp reads the ramp and, when the recording has more samples
// than the video has frames (the ramp is typically logged at ~1 kHz),
// linearly resamples the torque series down to one sample per frame.
// frames ≤ 0 skips resampling.
func LoadForceRamp(fsys fsutil.FileSystem, path string, frames int) ([]ForceSample, error) {
	samples, err := ReadForceRamp(fsys, path)
	if err != nil {
		return nil, err
	}
	if frames <= 0 || len(samples) == frames {
		return samples, nil
	}

	torque := make([]float64, len(samples))
	for i, s := range samples {
		torque[i] = s.TorqueNm
	}
	resampled := ResampleForce(torque, frames)

	out := make([]ForceSample, frames)
	for i, v := range resampled {
		out[i] = ForceSample{FrameIndex: i, TorqueNm: v}
	}
	log.Printf("feed: resampled force ramp %s from %d samples to %d frames", path, len(samples), frames)
	return out, nil
}

// WaitForSiteCoordinates polls for the coordinate artifact with
// exponential backoff until it parses, the input turns out malformed, or
// ctx is cancelled. Malformed input is permanent and returned immediately.
func WaitForSiteCoordinates(ctx context.Context, fsys fsutil.FileSystem, path string) ([]Observation, error) {
	backoff := pollInitialBackoff
	for {
		observations, err := ReadSiteCoordinates(fsys, path)
		if err == nil {
			return observations, nil
		}
		if !Retryable(err) {
			return nil, err
		}

		log.Printf("feed: waiting for %s: %v (retry in %s)", path, err, backoff)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w (last: %v)", path, ctx.Err(), err)
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > pollMaxBackoff {
			backoff = pollMaxBackoff
		}
	}
}

// readCSVArtifact reads and parses a CSV artifact, mapping missing or
// empty files to ErrDataNotReady and parse failures to ErrMalformedInput.
func readCSVArtifact(fsys fsutil.FileSystem, path string) ([][]string, error) {
	if !fsys.Exists(path) {
		return nil, fmt.Errorf("%w: %s not produced yet", ErrDataNotReady, path)
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrDataNotReady, path)
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, malformedf("%s: %v", path, err)
	}
	return rows, nil
}

// isHeaderRow reports whether the first CSV row is a column-name header
// rather than data.
func isHeaderRow(row []string) bool {
	for _, field := range row {
		if _, err := strconv.ParseFloat(strings.TrimSpace(field), 64); err != nil {
			return true
		}
	}
	return false
}
