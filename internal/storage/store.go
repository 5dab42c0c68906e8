// Package storage persists the audit records that stages hand to each other
// as JSON files in the data directory.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

// Record file names inside the data directory.
const (
	FileRepositories = "repos_output.json"
	FileBranches     = "branches_comparison.json"
	FileCommits      = "commits_comparison.json"
	FileTags         = "tags_comparison.json"
	FileWorkflows    = "workflows_check.json"
	FileManifest     = "run_manifest.json"

	SchemaDir = "schema"
)

// ErrRecordNotFound is returned when a stage input has not been produced yet.
var ErrRecordNotFound = errors.New("record not found")

// Store reads and writes record files under one directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates dir if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute location of a record file.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) SaveRepositoryReport(report *models.RepositoryReport) error {
	if report == nil {
		return errors.New("repository report is nil")
	}
	if err := report.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid repository report: %w", err)
	}
	return s.write(FileRepositories, report)
}

// LoadRepositoryReport reads the repos stage output. It is the input of
// every later stage.
func (s *Store) LoadRepositoryReport() (*models.RepositoryReport, error) {
	var report models.RepositoryReport
	if err := s.read(FileRepositories, &report); err != nil {
		return nil, err
	}
	if err := report.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", FileRepositories, err)
	}
	return &report, nil
}

func (s *Store) SaveBranchComparisons(records []models.BranchComparison) error {
	return saveList(s, FileBranches, records)
}

func (s *Store) LoadBranchComparisons() ([]models.BranchComparison, error) {
	return loadList[models.BranchComparison](s, FileBranches)
}

func (s *Store) SaveCommitComparisons(records []models.CommitComparison) error {
	return saveList(s, FileCommits, records)
}

func (s *Store) LoadCommitComparisons() ([]models.CommitComparison, error) {
	return loadList[models.CommitComparison](s, FileCommits)
}

func (s *Store) SaveTagComparisons(records []models.TagComparison) error {
	return saveList(s, FileTags, records)
}

func (s *Store) LoadTagComparisons() ([]models.TagComparison, error) {
	return loadList[models.TagComparison](s, FileTags)
}

func (s *Store) SaveWorkflowChecks(records []models.WorkflowCheck) error {
	return saveList(s, FileWorkflows, records)
}

func (s *Store) LoadWorkflowChecks() ([]models.WorkflowCheck, error) {
	return loadList[models.WorkflowCheck](s, FileWorkflows)
}

func (s *Store) SaveManifest(m *models.RunManifest) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid run manifest: %w", err)
	}
	return s.write(FileManifest, m)
}

func (s *Store) LoadManifest() (*models.RunManifest, error) {
	var m models.RunManifest
	if err := s.read(FileManifest, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", FileManifest, err)
	}
	return &m, nil
}

type validator interface {
	Validate() error
}

func saveList[T validator](s *Store, name string, records []T) error {
	if records == nil {
		records = []T{}
	}
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("refusing to save %s: record %d: %w", name, i, err)
		}
	}
	return s.write(name, records)
}

func loadList[T validator](s *Store, name string) ([]T, error) {
	var records []T
	if err := s.read(name, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []T{}
	}
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", name, i, err)
		}
	}
	return records, nil
}

// write replaces name atomically so a reader never sees a partial file.
func (s *Store) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.Path(name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}

	s.logger.Debug("Record saved", "file", name, "bytes", len(data))
	return nil
}

// read decodes name strictly; unknown fields and trailing data are errors.
func (s *Store) read(name string, v any) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w (run the stage that produces it first)", name, ErrRecordNotFound)
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode %s: unexpected data after record", name)
	}
	return nil
}
