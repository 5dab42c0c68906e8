package models

import (
	"errors"
	"fmt"
)

// SourceRepository identifies a Git repository on the Azure DevOps (source) side.
type SourceRepository struct {
	RepoID   string `json:"repo_id"`
	RepoName string `json:"repo_name"`
	Org      string `json:"org"`
	Project  string `json:"project"`
}

// TargetRepository identifies a repository on the GitHub (target) side.
type TargetRepository struct {
	Repo  string `json:"repo"`
	Owner string `json:"owner"`
}

// FullName returns owner/repo.
func (r TargetRepository) FullName() string {
	return r.Owner + "/" + r.Repo
}

// MatchedRepository pairs the two sides of a repository whose names are equal
// under case-insensitive comparison.
type MatchedRepository struct {
	Azure  SourceRepository `json:"azure"`
	GitHub TargetRepository `json:"github"`
}

// RepoIdentity is the flattened identity every downstream stage keys on.
type RepoIdentity struct {
	SourceID    string
	SourceName  string
	TargetOwner string
	TargetName  string
}

// Identity flattens the pair.
func (m MatchedRepository) Identity() RepoIdentity {
	return RepoIdentity{
		SourceID:    m.Azure.RepoID,
		SourceName:  m.Azure.RepoName,
		TargetOwner: m.GitHub.Owner,
		TargetName:  m.GitHub.Repo,
	}
}

// Name returns the name used as the record key in every comparison file.
// It is the source-side name, matching what the report renderer indexes on.
func (m MatchedRepository) Name() string {
	return m.Azure.RepoName
}

// RepositoryReport is the output of the repository matcher (repos_output.json).
type RepositoryReport struct {
	Matched      []MatchedRepository `json:"matched"`
	OnlyInAzure  []SourceRepository  `json:"only_in_azure"`
	OnlyInGitHub []TargetRepository  `json:"only_in_github"`
}

// Validate checks the invariants the later stages depend on.
func (r *RepositoryReport) Validate() error {
	if r.Matched == nil || r.OnlyInAzure == nil || r.OnlyInGitHub == nil {
		return errors.New("repository report is missing one of matched, only_in_azure, only_in_github")
	}
	seen := make(map[string]bool, len(r.Matched))
	for _, m := range r.Matched {
		if m.Azure.RepoID == "" || m.Azure.RepoName == "" {
			return fmt.Errorf("matched entry has empty azure repo_id or repo_name: %+v", m.Azure)
		}
		if m.GitHub.Repo == "" || m.GitHub.Owner == "" {
			return fmt.Errorf("matched entry %q has empty github repo or owner", m.Azure.RepoName)
		}
		if seen[m.Azure.RepoName] {
			return fmt.Errorf("duplicate matched repository %q", m.Azure.RepoName)
		}
		seen[m.Azure.RepoName] = true
	}
	return nil
}
