// Package checkpoint persists the progress of a full run so an interrupted
// pipeline can resume at the first stage that did not complete.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/moby/sys/atomicwriter"
)

// Version is the checkpoint format version.
const Version = 1

// Stage statuses.
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// State is the persisted progress of one pipeline.
type State struct {
	Version   int       `json:"version"`
	Input       string    `json:"input"`
	InputDigest string    `json:"input_digest,omitempty"`
	BundleID    string    `json:"bundle_id"`
	OutputDir   string    `json:"output_dir"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Stages      []*Stage  `json:"stages"`
}

// Stage is the record of one pipeline stage.
type Stage struct {
	Name         string     `json:"name"`
	Input        string     `json:"input,omitempty"`
	Output       string     `json:"output,omitempty"`
	SubmissionID string     `json:"submission_id,omitempty"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
	Digest       string     `json:"digest,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// New returns a state with a pending record for every named stage.
func New(input, bundleID, outputDir string, stages []string, now time.Time) *State {
	s := &State{
		Version:   Version,
		Input:     input,
		BundleID:  bundleID,
		OutputDir: outputDir,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, name := range stages {
		s.Stages = append(s.Stages, &Stage{Name: name, Status: StatusPending})
	}
	return s
}

// Stage returns the record for name, adding a pending one when absent.
func (s *State) Stage(name string) *Stage {
	for _, st := range s.Stages {
		if st.Name == name {
			return st
		}
	}
	st := &Stage{Name: name, Status: StatusPending}
	s.Stages = append(s.Stages, st)
	return st
}

// FirstIncomplete returns the first stage that is not complete, or nil.
func (s *State) FirstIncomplete() *Stage {
	for _, st := range s.Stages {
		if st.Status != StatusComplete {
			return st
		}
	}
	return nil
}

// Matches reports whether the state belongs to the given input and bundle.
// Inputs are compared as absolute paths.
func (s *State) Matches(input, bundleID string) bool {
	return absPath(s.Input) == absPath(input) && s.BundleID == bundleID
}

// InputChanged reports whether the input archive's digest differs from the
// one recorded when the state was created. States without a recorded
// digest never report a change.
func (s *State) InputChanged(digest string) bool {
	return s.InputDigest != "" && s.InputDigest != digest
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// Validate checks the fields a resumed run relies on.
func (s *State) Validate() error {
	if s.Version != Version {
		return fmt.Errorf("unsupported checkpoint version %d (expected %d)", s.Version, Version)
	}
	if s.Input == "" || s.BundleID == "" {
		return errors.New("checkpoint is missing input or bundle_id")
	}
	for _, st := range s.Stages {
		switch st.Status {
		case StatusPending, StatusRunning, StatusComplete, StatusFailed:
		default:
			return fmt.Errorf("stage %s has unknown status %q", st.Name, st.Status)
		}
		if st.SubmissionID != "" {
			if _, err := uuid.Parse(st.SubmissionID); err != nil {
				return fmt.Errorf("stage %s has invalid submission_id %q", st.Name, st.SubmissionID)
			}
		}
	}
	return nil
}

// Start marks the stage running and clears any previous result.
func (st *Stage) Start(input string) {
	st.Status = StatusRunning
	st.Input = input
	st.Error = ""
	st.Digest = ""
	st.CompletedAt = nil
}

// Complete marks the stage complete with its output and digest.
func (st *Stage) Complete(output, digest string, now time.Time) {
	st.Status = StatusComplete
	st.Output = output
	st.Digest = digest
	st.Error = ""
	st.CompletedAt = &now
}

// Fail marks the stage failed with err.
func (st *Stage) Fail(err error) {
	st.Status = StatusFailed
	st.Error = err.Error()
}

// Reset returns the stage to pending, forgetting everything it recorded.
func (st *Stage) Reset() {
	*st = Stage{Name: st.Name, Status: StatusPending}
}

// Submitted records a notarization submission.
func (st *Stage) Submitted(id string, at time.Time) {
	st.SubmissionID = id
	st.SubmittedAt = &at
}

// Load reads a checkpoint. A missing file returns an error satisfying
// errors.Is(err, fs.ErrNotExist).
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid checkpoint %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the state atomically with owner-only permissions.
func Save(path string, s *State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	data = append(data, '\n')
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
	}
	if err := atomicwriter.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", path, err)
	}
	return nil
}

// Store saves a state to Path, stamping UpdatedAt. A zero Store saves
// nothing, for runs without a checkpoint file.
type Store struct {
	Path string
}

// Save persists s when the store has a path.
func (st Store) Save(s *State, now time.Time) error {
	if st.Path == "" || s == nil {
		return nil
	}
	s.UpdatedAt = now
	return Save(st.Path, s)
}
