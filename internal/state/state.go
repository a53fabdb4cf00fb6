// Package state persists what the last runs did, for the status command.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scorecast/scorecast/internal/config"
)

const DefaultPath = "~/.scorecast/state.yaml"

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunPartial   = "partial"
	RunFailed    = "failed"
)

// State holds the most recent run, verification and prediction.
type State struct {
	LastUpdated      time.Time         `yaml:"last_updated"`
	LastRun          *Run              `yaml:"last_run,omitempty"`
	LastVerification *VerificationInfo `yaml:"last_verification,omitempty"`
	LastPrediction   *PredictionInfo   `yaml:"last_prediction,omitempty"`
	LastReset        time.Time         `yaml:"last_reset,omitempty"`
}

// Run records one load run.
type Run struct {
	RunID       string         `yaml:"run_id"`
	Status      string         `yaml:"status"`
	StartedAt   time.Time      `yaml:"started_at"`
	CompletedAt time.Time      `yaml:"completed_at,omitempty"`
	ReportPath  string         `yaml:"report_path,omitempty"`
	Counts      map[string]int `yaml:"counts,omitempty"`
}

// VerificationInfo records the outcome of the last verification.
type VerificationInfo struct {
	Status          string    `yaml:"status"`
	Issues          int       `yaml:"issues"`
	RangeViolations int       `yaml:"range_violations"`
	CheckedAt       time.Time `yaml:"checked_at"`
}

// PredictionInfo records the last prediction run.
type PredictionInfo struct {
	ModelVersion string    `yaml:"model_version"`
	Scored       int       `yaml:"scored"`
	Failed       int       `yaml:"failed"`
	RanAt        time.Time `yaml:"ran_at"`
}

// Load reads the state from disk. A missing file yields an empty State.
func Load(path string) (*State, error) {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	s := &State{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	return s, nil
}

// Save writes the state to disk.
func (s *State) Save(path string) error {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	s.LastUpdated = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// New creates an empty state.
func New() *State {
	return &State{LastUpdated: time.Now()}
}

// StartRun records a run in progress.
func (s *State) StartRun(runID string) {
	s.LastRun = &Run{RunID: runID, Status: RunRunning, StartedAt: time.Now()}
}

// FinishRun closes the current run.
func (s *State) FinishRun(status, reportPath string, counts map[string]int) {
	if s.LastRun == nil {
		s.LastRun = &Run{StartedAt: time.Now()}
	}
	s.LastRun.Status = status
	s.LastRun.CompletedAt = time.Now()
	s.LastRun.ReportPath = reportPath
	s.LastRun.Counts = counts
}

// Interrupted reports whether the last run never finished.
func (s *State) Interrupted() bool {
	return s.LastRun != nil && s.LastRun.Status == RunRunning
}
