package compare

import (
	"slices"
	"strings"

	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

// Partition splits the union of two name sets into three disjoint sorted lists.
type Partition struct {
	Shared     []string
	OnlySource []string
	OnlyTarget []string
}

// Exact partitions by exact name. Used for commits and tags.
func Exact(source, target []string) Partition {
	src := toSet(source)
	dst := toSet(target)

	p := newPartition()
	for name := range src {
		if _, ok := dst[name]; ok {
			p.Shared = append(p.Shared, name)
		} else {
			p.OnlySource = append(p.OnlySource, name)
		}
	}
	for name := range dst {
		if _, ok := src[name]; !ok {
			p.OnlyTarget = append(p.OnlyTarget, name)
		}
	}
	p.sort()
	return p
}

// Branches partitions branch names. Shared is the exact intersection while
// OnlySource and OnlyTarget are alias-aware: a source branch is missing only
// when none of its aliases exist on the target, and a target branch is extra
// only when it is not an alias of any source branch.
//
// Because of that, a renamed default branch (master on the source, main on
// the target) appears in neither Shared nor the only-lists; PairBranches
// reports it.
func Branches(source, target []string, aliases Aliases) Partition {
	src := toSet(source)
	dst := toSet(target)

	p := newPartition()
	for name := range src {
		if _, ok := dst[name]; ok {
			p.Shared = append(p.Shared, name)
		}
		if !aliases.IsCoveredBy(name, dst) {
			p.OnlySource = append(p.OnlySource, name)
		}
	}
	for name := range dst {
		if !aliases.IsCoveredBy(name, src) {
			p.OnlyTarget = append(p.OnlyTarget, name)
		}
	}
	p.sort()
	return p
}

// PairBranches pairs source branches with the target branch their commits
// should be compared against. Exact-name pairs are made first; each remaining
// source branch then takes the first unpaired target alias in sorted order.
// A target branch is used by at most one pair. The result is sorted by label.
func PairBranches(source, target []string, aliases Aliases) []models.BranchPair {
	src := SortedUnique(source)
	dst := toSet(target)
	used := make(map[string]bool, len(dst))

	pairs := make([]models.BranchPair, 0, len(src))
	var pending []string
	for _, name := range src {
		if _, ok := dst[name]; ok {
			pairs = append(pairs, models.BranchPair{Azure: name, GitHub: name, Label: name})
			used[name] = true
			continue
		}
		pending = append(pending, name)
	}

	for _, name := range pending {
		for _, alias := range aliases.Of(name) {
			if alias == name || used[alias] {
				continue
			}
			if _, ok := dst[alias]; !ok {
				continue
			}
			pairs = append(pairs, models.BranchPair{Azure: name, GitHub: alias, Label: RenameLabel(name, alias)})
			used[alias] = true
			break
		}
	}

	slices.SortFunc(pairs, func(a, b models.BranchPair) int {
		return strings.Compare(a.Label, b.Label)
	})
	return pairs
}

// RenameLabel formats the label of a pair whose names differ.
func RenameLabel(source, target string) string {
	if source == target {
		return source
	}
	return source + " → " + target
}

func newPartition() Partition {
	return Partition{Shared: []string{}, OnlySource: []string{}, OnlyTarget: []string{}}
}

func (p *Partition) sort() {
	slices.Sort(p.Shared)
	slices.Sort(p.OnlySource)
	slices.Sort(p.OnlyTarget)
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// SortedUnique returns a sorted, de-duplicated, non-nil copy of names.
func SortedUnique(names []string) []string {
	out := make([]string, 0, len(names))
	out = append(out, names...)
	slices.Sort(out)
	return slices.Compact(out)
}
