package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Stage names, also used as log attributes and manifest keys.
const (
	StageRepositories = "repositories"
	StageBranches     = "branches"
	StageCommits      = "commits"
	StageTags         = "tags"
	StageWorkflows    = "workflows"
)

// Stages lists every stage in execution order.
func Stages() []string {
	return []string{StageRepositories, StageBranches, StageCommits, StageTags, StageWorkflows}
}

// UnitFailure records a unit of work that was excluded from a stage's output.
type UnitFailure struct {
	Unit  string `json:"unit"`
	Error string `json:"error"`
}

// StageSummary describes the outcome of one stage run.
type StageSummary struct {
	Stage      string        `json:"stage"`
	Units      int           `json:"units"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Failures   []UnitFailure `json:"failures"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// RunManifest is written next to the record files after every CLI invocation.
type RunManifest struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Stages     []StageSummary `json:"stages"`
}

// Record stores s, replacing an earlier summary of the same stage, and keeps
// the stages in execution order.
func (m *RunManifest) Record(s StageSummary) {
	if s.Failures == nil {
		s.Failures = []UnitFailure{}
	}
	kept := m.Stages[:0:0]
	for _, existing := range m.Stages {
		if existing.Stage != s.Stage {
			kept = append(kept, existing)
		}
	}
	kept = append(kept, s)

	order := make(map[string]int, len(Stages()))
	for i, name := range Stages() {
		order[name] = i
	}
	slices.SortStableFunc(kept, func(a, b StageSummary) int {
		return order[a.Stage] - order[b.Stage]
	})
	m.Stages = kept
}

// Stage returns the summary recorded for name.
func (m RunManifest) Stage(name string) (StageSummary, bool) {
	for _, s := range m.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageSummary{}, false
}

// Validate checks the manifest read back from disk.
func (m *RunManifest) Validate() error {
	if m.RunID == "" {
		return errors.New("run manifest has no run_id")
	}
	known := make(map[string]bool)
	for _, name := range Stages() {
		known[name] = true
	}
	for _, s := range m.Stages {
		if !known[s.Stage] {
			return fmt.Errorf("run manifest has unknown stage %q", s.Stage)
		}
		if s.Succeeded+s.Failed != s.Units || s.Failed != len(s.Failures) {
			return fmt.Errorf("run manifest stage %s counts do not add up", s.Stage)
		}
	}
	return nil
}
