package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

// schemaTargets maps each record file to the Go value it holds.
var schemaTargets = []struct {
	file  string
	value any
}{
	{FileRepositories, &models.RepositoryReport{}},
	{FileBranches, &[]models.BranchComparison{}},
	{FileCommits, &[]models.CommitComparison{}},
	{FileTags, &[]models.TagComparison{}},
	{FileWorkflows, &[]models.WorkflowCheck{}},
	{FileManifest, &models.RunManifest{}},
}

// Schema returns the JSON Schema of a record file. Fields without
// omitempty are required and unknown properties are rejected.
func Schema(file string) (*jsonschema.Schema, error) {
	for _, target := range schemaTargets {
		if target.file == file {
			r := &jsonschema.Reflector{}
			schema := r.Reflect(target.value)
			schema.Title = file
			return schema, nil
		}
	}
	return nil, fmt.Errorf("no schema for %s", file)
}

// SchemaFileName returns "<record>.schema.json" for a record file name.
func SchemaFileName(file string) string {
	return strings.TrimSuffix(file, ".json") + ".schema.json"
}

// WriteSchemas writes one schema per record file into <dir>/schema.
func (s *Store) WriteSchemas() error {
	dir := filepath.Join(s.dir, SchemaDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create schema directory: %w", err)
	}

	for _, target := range schemaTargets {
		schema, err := Schema(target.file)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode schema for %s: %w", target.file, err)
		}
		path := filepath.Join(dir, SchemaFileName(target.file))
		if err := os.WriteFile(path, append(data, '\n'), 0o640); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	s.logger.Debug("Record schemas written", "dir", dir, "count", len(schemaTargets))
	return nil
}
