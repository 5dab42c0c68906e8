package audit

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/kuhlman-labs/migration-auditor/internal/compare"
	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

// DefaultWorkflowPath is where GitHub Actions looks for workflow files.
const DefaultWorkflowPath = ".github/workflows"

// RunWorkflows checks every matched GitHub repository for the required
// workflow files and saves workflows_check.json.
func (s *Service) RunWorkflows(ctx context.Context) ([]models.WorkflowCheck, error) {
	matched, err := s.loadMatched()
	if err != nil {
		return nil, err
	}

	dir := s.opts.WorkflowPath
	if dir == "" {
		dir = DefaultWorkflowPath
	}

	records := runUnits(ctx, s, models.StageWorkflows, matched, models.MatchedRepository.Name,
		func(ctx context.Context, m models.MatchedRepository) (models.WorkflowCheck, error) {
			return s.checkWorkflows(ctx, m.GitHub, dir)
		})
	sortByRepo(records, func(r models.WorkflowCheck) string { return r.Repo })

	if err := s.store.SaveWorkflowChecks(records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) checkWorkflows(ctx context.Context, repo models.TargetRepository, dir string) (models.WorkflowCheck, error) {
	present, exists, err := s.target.ListWorkflowFiles(ctx, repo.Owner, repo.Repo, dir)
	if err != nil {
		return models.WorkflowCheck{}, fmt.Errorf("workflow listing: %w", err)
	}

	var invalid []string
	if s.opts.ValidateWorkflows {
		for _, name := range s.opts.RequiredWorkflows {
			if !slices.Contains(present, name) {
				continue
			}
			content, err := s.target.GetFileContent(ctx, repo.Owner, repo.Repo, path.Join(dir, name))
			if err != nil {
				return models.WorkflowCheck{}, fmt.Errorf("workflow %s: %w", name, err)
			}
			if err := ValidateWorkflow(content); err != nil {
				s.logger.Warn("Invalid workflow file",
					"repo", repo.FullName(),
					"file", name,
					"error", err)
				invalid = append(invalid, name)
			}
		}
	}

	return compare.Workflows(repo.Owner, repo.Repo, exists, s.opts.RequiredWorkflows, present, invalid), nil
}

// ValidateWorkflow checks that content is a YAML mapping with the "on" and
// "jobs" keys every Actions workflow needs.
func ValidateWorkflow(content []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return errors.New("workflow is not a YAML mapping")
	}

	root := doc.Content[0]
	keys := make(map[string]bool, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keys[root.Content[i].Value] = true
	}
	for _, required := range []string{"on", "jobs"} {
		if !keys[required] {
			return fmt.Errorf("workflow has no %q key", required)
		}
	}
	return nil
}
