// Package tendon implements the trajectory and stiffness pipeline for
// patellar tendon recordings: Kalman smoothing of the per-frame insertion
// detections, statistical anomaly flagging for human review, manual
// correction overlay, rest-length geometry, and the force–elongation
// regression that yields tendon stiffness.
//
// The package is organised around batch computations over a complete
// recording. Nothing here streams: a caller loads a coordinate artifact,
// smooths it, optionally overlays corrections, and asks for derived
// quantities. All session-scoped state lives on an explicit Session value
// rather than package globals.
package tendon
