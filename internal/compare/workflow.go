package compare

import (
	"slices"

	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

// MissingWorkflows returns the required files that are not present, in the
// order they were required.
func MissingWorkflows(required, present []string) []string {
	have := toSet(present)
	missing := []string{}
	for _, name := range required {
		if _, ok := have[name]; !ok && !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Workflows builds the workflow check for one repository. invalid lists
// required files that are present but failed validation; it may be nil when
// validation is disabled.
func Workflows(owner, repo string, dirExists bool, required, present, invalid []string) models.WorkflowCheck {
	missing := MissingWorkflows(required, present)

	var inv []string
	if len(invalid) > 0 {
		inv = SortedUnique(invalid)
	}

	return models.WorkflowCheck{
		Repo:              repo,
		Owner:             owner,
		WorkflowDirExists: dirExists,
		PresentFiles:      SortedUnique(present),
		RequiredFiles:     append([]string{}, required...),
		MissingFiles:      missing,
		InvalidFiles:      inv,
		OK:                len(missing) == 0 && len(inv) == 0,
	}
}
