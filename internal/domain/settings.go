package domain

import "strings"

// SplitMode selects what happens to the original task after a split.
type SplitMode string

const (
	SplitReplace SplitMode = "replace"
	SplitKeep    SplitMode = "keep"
	SplitArchive SplitMode = "archive"
)

// IsValidSplitMode reports whether the mode is canonical.
func IsValidSplitMode(mode SplitMode) bool {
	switch mode {
	case SplitReplace, SplitKeep, SplitArchive:
		return true
	default:
		return false
	}
}

// Settings holds the user preferences persisted with the state tree.
type Settings struct {
	ScanDirection       ScanDirection `json:"scan_direction"`
	Theme               string        `json:"theme"`
	SplitMode           SplitMode     `json:"split_mode"`
	InheritNotesOnSplit bool          `json:"inherit_notes_on_split"`
}

// DefaultSettings mirror a fresh install.
func DefaultSettings() Settings {
	return Settings{
		ScanDirection: ScanForward,
		Theme:         "dark",
		SplitMode:     SplitReplace,
	}
}

// NormalizeSettings repairs unknown values back to defaults so a stale
// or hand-edited state tree cannot wedge the app.
func NormalizeSettings(s Settings) Settings {
	if !IsValidScanDirection(s.ScanDirection) {
		s.ScanDirection = ScanForward
	}
	if !IsValidSplitMode(s.SplitMode) {
		s.SplitMode = SplitReplace
	}
	s.Theme = strings.TrimSpace(s.Theme)
	if s.Theme == "" {
		s.Theme = "dark"
	}
	return s
}

// GuideStepCount is the length of the guided cycle: build, scan, act,
// maintain, reflect.
const GuideStepCount = 5

// GuideProgress tracks where the user is in the guided five-step cycle.
type GuideProgress struct {
	Started     bool `json:"started"`
	ActiveIndex int  `json:"active_index"`
}

// Metrics are lifetime counters kept alongside the daily ledger.
type Metrics struct {
	TotalScans int `json:"total_scans"`
}
