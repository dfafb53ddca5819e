// Package changeset computes which leaf paths of a base-language tree need
// (re)translation into a target tree, using a three-way comparison against
// the base snapshot taken at the last successful commit.
//
// A path from the base is included (with the base's text as the value to
// translate) when the target is missing it, the target's value is empty,
// the base text changed since the snapshot, or the target still carries the
// untranslated base text verbatim. Paths present only in the target are
// emitted as null tombstones so the merge can remove them.
package changeset

import (
	"github.com/loctree/loctree/tree"
)

// Calculate returns the ordered set of work items for one run.
//
// Additions and modifications come first, in the base tree's traversal
// order; tombstones for target-only paths follow, in the target's order.
// snapshot may be nil (first run: everything untranslated is included).
// Each path appears at most once regardless of how many conditions match.
func Calculate(base, target, snapshot *tree.Tree) *tree.FlatMap {
	baseFlat := tree.Flatten(base)
	targetFlat := tree.Flatten(target)

	var snapFlat *tree.FlatMap
	if snapshot != nil {
		snapFlat = tree.Flatten(snapshot)
	}

	out := tree.NewFlatMap()

	for _, path := range baseFlat.Paths() {
		bv, _ := baseFlat.Get(path)
		if bv.Kind != tree.KindString {
			// Tombstones in the base file itself are not translatable.
			continue
		}
		if needsTranslation(path, bv.Str, targetFlat, snapFlat) {
			out.Set(path, bv)
		}
	}

	for _, path := range targetFlat.Paths() {
		if _, ok := baseFlat.Get(path); !ok {
			out.Set(path, tree.Null())
		}
	}

	return out
}

// needsTranslation applies the inclusion conditions for a single base path.
func needsTranslation(path, baseText string, targetFlat, snapFlat *tree.FlatMap) bool {
	tv, ok := targetFlat.Get(path)
	if !ok {
		return true // never set
	}
	if tv.Kind != tree.KindString || tv.Str == "" {
		return true // empty or tombstoned in target
	}
	if tv.Str == baseText {
		return true // target still carries the untranslated base text
	}
	if snapFlat != nil {
		if sv, ok := snapFlat.Get(path); ok && sv.Kind == tree.KindString && sv.Str != baseText {
			return true // base text changed upstream since last commit
		}
	}
	return false
}
