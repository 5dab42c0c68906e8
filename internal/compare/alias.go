// Package compare reconciles what the source and target hosts report for a
// migrated repository: repository matching, alias-aware branch partitioning,
// exact commit and tag set algebra, and required workflow presence.
package compare

import (
	"slices"
	"strings"
)

// Default branch names that a migration commonly renames between.
const (
	BranchMaster = "master"
	BranchMain   = "main"
)

// Aliases is a symmetric, non-transitive equivalence over branch names.
// A name that belongs to no group is only equivalent to itself.
type Aliases struct {
	groups map[string][][]string
}

// DefaultAliases returns the single master/main group.
func DefaultAliases() Aliases {
	return NewAliases([]string{BranchMaster, BranchMain})
}

// NewAliases builds an alias relation from independent groups. Groups that
// share a member are not merged: "a" aliased to "b" and "b" aliased to "c"
// does not make "a" equivalent to "c". Blank names and groups with fewer than
// two distinct names are ignored.
func NewAliases(groups ...[]string) Aliases {
	a := Aliases{groups: make(map[string][][]string)}
	for _, g := range groups {
		clean := make([]string, 0, len(g))
		for _, name := range g {
			name = strings.TrimSpace(name)
			if name != "" && !slices.Contains(clean, name) {
				clean = append(clean, name)
			}
		}
		if len(clean) < 2 {
			continue
		}
		slices.Sort(clean)
		for _, name := range clean {
			a.groups[name] = append(a.groups[name], clean)
		}
	}
	return a
}

// Of returns every name equivalent to name, always including name itself.
// The result is sorted.
func (a Aliases) Of(name string) []string {
	out := []string{name}
	for _, g := range a.groups[name] {
		for _, alias := range g {
			if !slices.Contains(out, alias) {
				out = append(out, alias)
			}
		}
	}
	slices.Sort(out)
	return out
}

// IsCoveredBy reports whether any alias of name is present in set.
func (a Aliases) IsCoveredBy(name string, set map[string]struct{}) bool {
	if _, ok := set[name]; ok {
		return true
	}
	for _, g := range a.groups[name] {
		for _, alias := range g {
			if _, ok := set[alias]; ok {
				return true
			}
		}
	}
	return false
}

// Groups returns a copy of the configured groups, sorted, for logging.
func (a Aliases) Groups() [][]string {
	seen := make(map[string]bool)
	var out [][]string
	for _, gs := range a.groups {
		for _, g := range gs {
			key := strings.Join(g, "\x00")
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, slices.Clone(g))
		}
	}
	slices.SortFunc(out, func(x, y []string) int {
		return strings.Compare(strings.Join(x, ","), strings.Join(y, ","))
	})
	return out
}
