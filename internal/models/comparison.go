package models

import (
	"errors"
	"fmt"
)

// BranchPair links a source branch to the target branch it was migrated to.
// Label is the bare name for exact pairs and "source → target" for renames.
type BranchPair struct {
	Azure  string `json:"azure"`
	GitHub string `json:"github"`
	Label  string `json:"label"`
}

// IsRename reports whether the pair crosses an alias.
func (p BranchPair) IsRename() bool {
	return p.Azure != p.GitHub
}

// BranchComparison is one entry of branches_comparison.json.
//
// SharedBranches is the exact-name intersection; OnlyInAzure and OnlyInGitHub
// are alias-aware, so "master" on Azure is not reported missing when GitHub has "main".
type BranchComparison struct {
	Repo           string       `json:"repo"`
	AzureBranches  []string     `json:"azure_branches"`
	GitHubBranches []string     `json:"github_branches"`
	SharedBranches []string     `json:"shared_branches"`
	OnlyInAzure    []string     `json:"only_in_azure"`
	OnlyInGitHub   []string     `json:"only_in_github"`
	BranchPairs    []BranchPair `json:"branch_pairs"`
}

// Complete reports whether no branch is missing or extra.
func (b BranchComparison) Complete() bool {
	return len(b.OnlyInAzure) == 0 && len(b.OnlyInGitHub) == 0
}

// Validate checks required fields.
func (b BranchComparison) Validate() error {
	if b.Repo == "" {
		return errors.New("branch comparison has empty repo")
	}
	for _, p := range b.BranchPairs {
		if p.Azure == "" || p.GitHub == "" {
			return fmt.Errorf("branch comparison %q has an incomplete branch pair %+v", b.Repo, p)
		}
	}
	return nil
}

// BranchCommits is the commit partition of one branch pair.
type BranchCommits struct {
	Branch          string   `json:"branch"`
	AzureBranch     string   `json:"azure_branch"`
	GitHubBranch    string   `json:"github_branch"`
	SharedCommits   []string `json:"shared_commits"`
	MissingInGitHub []string `json:"missing_in_github"`
	ExtraInGitHub   []string `json:"extra_in_github"`
}

// Matches reports whether the two histories hold the same commits.
func (b BranchCommits) Matches() bool {
	return len(b.MissingInGitHub) == 0 && len(b.ExtraInGitHub) == 0
}

// CommitComparison is one entry of commits_comparison.json.
type CommitComparison struct {
	Repo     string          `json:"repo"`
	Branches []BranchCommits `json:"branches"`
}

// Matches reports whether every compared branch matches.
func (c CommitComparison) Matches() bool {
	for _, b := range c.Branches {
		if !b.Matches() {
			return false
		}
	}
	return true
}

// Validate checks required fields.
func (c CommitComparison) Validate() error {
	if c.Repo == "" {
		return errors.New("commit comparison has empty repo")
	}
	for _, b := range c.Branches {
		if b.Branch == "" {
			return fmt.Errorf("commit comparison %q has a branch entry without label", c.Repo)
		}
	}
	return nil
}

// TagComparison is one entry of tags_comparison.json. Tags are compared by exact name.
type TagComparison struct {
	Repo         string   `json:"repo"`
	AzureTags    []string `json:"azure_tags"`
	GitHubTags   []string `json:"github_tags"`
	SharedTags   []string `json:"shared_tags"`
	OnlyInAzure  []string `json:"only_in_azure"`
	OnlyInGitHub []string `json:"only_in_github"`
}

// Complete reports whether both hosts hold the same tags.
func (t TagComparison) Complete() bool {
	return len(t.OnlyInAzure) == 0 && len(t.OnlyInGitHub) == 0
}

// Validate checks required fields.
func (t TagComparison) Validate() error {
	if t.Repo == "" {
		return errors.New("tag comparison has empty repo")
	}
	return nil
}

// WorkflowCheck is one entry of workflows_check.json.
type WorkflowCheck struct {
	Repo              string   `json:"repo"`
	Owner             string   `json:"owner"`
	WorkflowDirExists bool     `json:"workflow_dir_exists"`
	PresentFiles      []string `json:"present_files"`
	RequiredFiles     []string `json:"required_files"`
	MissingFiles      []string `json:"missing_files"`
	InvalidFiles      []string `json:"invalid_files,omitempty"`
	OK                bool     `json:"ok"`
}

// Validate checks required fields and that OK agrees with the missing and invalid sets.
func (w WorkflowCheck) Validate() error {
	if w.Repo == "" || w.Owner == "" {
		return errors.New("workflow check has empty repo or owner")
	}
	if w.OK != (len(w.MissingFiles) == 0 && len(w.InvalidFiles) == 0) {
		return fmt.Errorf("workflow check %s/%s: ok=%t contradicts missing/invalid files", w.Owner, w.Repo, w.OK)
	}
	return nil
}
