// Package normalize repairs translator responses back into the canonical
// shape of the paths that were requested.
//
// The translator is schema-free and has three observed habits: returning a
// tree nested exactly like the request, returning one level deeper with the
// full dotted path repeated as a grouping key, or re-grouping several
// levels deep:
//
//	requested: {"root": {"sub": {"leaf": "value"}}}
//	returned:  {"root": {"root.sub": {"root.sub.leaf": "value"}}}
//
// Normalization strips the self-referential grouping keys, collapses any
// repeated prefix runs the re-grouping introduced, and keeps only paths
// that were actually requested. Requested paths missing from the response
// are omitted — never fabricated and never back-filled with source text.
package normalize

import (
	"strings"

	"github.com/loctree/loctree/tree"
)

// Normalize maps a translator response onto the requested chunk. The result
// contains an entry for every requested path the response covered, in the
// requested chunk's order. An empty result means the response carried no
// usable data; callers treat that as a failed chunk, not an empty success.
func Normalize(response *tree.Tree, requested *tree.FlatMap) *tree.FlatMap {
	if response == nil {
		return tree.NewFlatMap()
	}

	found := make(map[string]string)

	for _, rootKey := range rootKeys(requested) {
		rv, ok := response.Get(rootKey)
		if !ok {
			continue
		}

		// A single-segment requested path may come back as a direct leaf.
		if rv.Kind == tree.KindString {
			if _, want := requested.Get(rootKey); want {
				found[rootKey] = rv.Str
			}
			continue
		}
		if rv.Kind != tree.KindNode {
			continue
		}

		collectGroup(rv.Node, rootKey, requested, found)
	}

	out := tree.NewFlatMap()
	for _, path := range requested.Paths() {
		if text, ok := found[path]; ok {
			out.Set(path, tree.String(text))
		}
	}
	return out
}

// collectGroup walks the children of response[rootKey]. Each child key may
// be a plain segment, or a grouping key: a dotted path, possibly prefixed
// redundantly with rootKey one or more times.
func collectGroup(group *tree.Tree, rootKey string, requested *tree.FlatMap, found map[string]string) {
	for _, g := range group.Keys() {
		gv, _ := group.Get(g)

		// True relative position of this group under rootKey.
		rel := strings.TrimPrefix(g, rootKey+".")

		switch gv.Kind {
		case tree.KindString:
			record(join(rootKey, rel), gv.Str, requested, found)

		case tree.KindNode:
			sub := tree.Flatten(gv.Node)
			for _, p := range sub.Paths() {
				sv, _ := sub.Get(p)
				if sv.Kind != tree.KindString {
					continue
				}
				// Undo one layer of self-referential grouping: leaves inside
				// a grouping key often repeat the group's own dotted path.
				cleaned := strings.TrimPrefix(p, g+".")
				if cleaned == g {
					cleaned = ""
				}
				record(join(rootKey, join(rel, cleaned)), sv.Str, requested, found)
			}
		}
	}
}

// record stores a candidate translation after collapsing any repeated
// prefix runs, keeping only requested paths. First value wins if the
// response duplicated a path.
func record(path, text string, requested *tree.FlatMap, found map[string]string) {
	if _, want := requested.Get(path); !want {
		// Paths like "nav.nav.title" are only collapsed when the literal
		// path was not requested, so keys that genuinely repeat their
		// parent's name survive intact.
		path = CollapseRepeats(path)
		if _, want := requested.Get(path); !want {
			return
		}
	}
	if _, dup := found[path]; dup {
		return
	}
	found[path] = text
}

// CollapseRepeats removes immediately-repeated prefix runs from a dotted
// path: "a.a.b.title" → "a.b.title", and multi-segment runs like
// "a.b.c.a.b.c.title" → "a.b.c.title". Collapsing applies only at the
// front of the path (prefix boundaries, never mid-leaf) and repeats until
// the path is stable, since double-grouping can stack runs.
func CollapseRepeats(path string) string {
	segs := strings.Split(path, ".")
	for {
		collapsed := false
		for n := 1; 2*n <= len(segs); n++ {
			if equalRun(segs[:n], segs[n:2*n]) {
				segs = segs[n:]
				collapsed = true
				break
			}
		}
		if !collapsed {
			return strings.Join(segs, ".")
		}
	}
}

func equalRun(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// rootKeys returns the distinct first segments of the requested paths,
// in first-appearance order.
func rootKeys(requested *tree.FlatMap) []string {
	seen := make(map[string]bool)
	var roots []string
	for _, p := range requested.Paths() {
		root := p
		if i := strings.IndexByte(p, '.'); i >= 0 {
			root = p[:i]
		}
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	return roots
}

func join(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "." + b
}
