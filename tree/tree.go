// Package tree implements the hierarchical key/value model used by all
// translation stages: a nested Tree of string leaves, and the flat
// dot-path representation (FlatMap) used for diffing, chunking, and merging.
//
// A locale file is a JSON object whose values are strings, explicit nulls,
// or nested objects:
//
//	{
//	    "nav": {
//	        "home": "Home",
//	        "about": "About"
//	    },
//	    "greeting": "Hello"
//	}
//
// A null leaf is a deletion tombstone: it marks a path for removal during
// merge and is omitted when a tree is materialized. Arrays and non-string
// scalars are rejected — the format is deliberately narrow.
//
// Flattening loses empty subtrees (an object with no leaves produces no
// paths). This is accepted: locale files do not carry meaningful empty
// groups, and the round-trip law materialize(flatten(T)) == T holds for
// trees without them.
package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Value union
// ---------------------------------------------------------------------------

// Kind discriminates the Value union.
type Kind int

const (
	// KindString is a translatable string leaf.
	KindString Kind = iota
	// KindNull is a deletion tombstone.
	KindNull
	// KindNode is a nested subtree.
	KindNode
)

// Value is a tagged union: a string leaf, a null tombstone, or a subtree.
type Value struct {
	Kind Kind
	Str  string // valid when Kind == KindString
	Node *Tree  // valid when Kind == KindNode
}

// String returns a string leaf value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Null returns a tombstone value.
func Null() Value { return Value{Kind: KindNull} }

// Subtree returns a node value wrapping t.
func Subtree(t *Tree) Value { return Value{Kind: KindNode, Node: t} }

// ---------------------------------------------------------------------------
// Tree (ordered map of key → Value)
// ---------------------------------------------------------------------------

// Tree is a nested mapping from key to Value. Key order is insertion order
// and is preserved through parse/marshal round-trips; it is not semantically
// significant.
type Tree struct {
	keys   []string
	values map[string]Value
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{values: make(map[string]Value)}
}

// Len returns the number of direct children.
func (t *Tree) Len() int { return len(t.keys) }

// Keys returns the direct child keys in insertion order.
func (t *Tree) Keys() []string { return t.keys }

// Get returns the value for key.
func (t *Tree) Get(key string) (Value, bool) {
	v, ok := t.values[key]
	return v, ok
}

// Set inserts or replaces the value for key, preserving insertion order
// for existing keys.
func (t *Tree) Set(key string, v Value) {
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = v
}

// Delete removes key and its value.
func (t *Tree) Delete(key string) {
	if _, ok := t.values[key]; !ok {
		return
	}
	delete(t.values, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
}

// Equal reports whether two trees have the same structure and values.
// Key order is ignored.
func (t *Tree) Equal(o *Tree) bool {
	if t.Len() != o.Len() {
		return false
	}
	for _, k := range t.keys {
		av := t.values[k]
		bv, ok := o.values[k]
		if !ok || av.Kind != bv.Kind {
			return false
		}
		switch av.Kind {
		case KindString:
			if av.Str != bv.Str {
				return false
			}
		case KindNode:
			if !av.Node.Equal(bv.Node) {
				return false
			}
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// ConflictingPathError reports a path that addresses an existing leaf as if
// it were an internal node (or vice versa). The operation that hit it must
// fail rather than silently overwrite.
type ConflictingPathError struct {
	Path string
}

func (e *ConflictingPathError) Error() string {
	return fmt.Sprintf("path %q conflicts with an existing leaf", e.Path)
}

// ---------------------------------------------------------------------------
// Parsing (ordered)
// ---------------------------------------------------------------------------

// Parse decodes JSON data into a Tree, preserving key order. The root must
// be an object; values must be strings, nulls, or nested objects. Arrays,
// numbers, and booleans are rejected with an error naming the path.
func Parse(data []byte) (*Tree, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("locale root must be a JSON object, got %v", tok)
	}

	t, err := parseObject(dec, "")
	if err != nil {
		return nil, err
	}

	// Trailing garbage after the root object is an error.
	if _, err := dec.Token(); err == nil {
		return nil, fmt.Errorf("unexpected data after root object")
	}
	return t, nil
}

// parseObject consumes tokens after an opening '{' up to the matching '}'.
func parseObject(dec *json.Decoder, prefix string) (*Tree, error) {
	t := New()
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key at %q, got %T", prefix, kt)
		}
		path := joinPath(prefix, key)

		vt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch v := vt.(type) {
		case string:
			t.Set(key, String(v))
		case nil:
			t.Set(key, Null())
		case json.Delim:
			if v != '{' {
				return nil, fmt.Errorf("value at %q must be a string, null, or object (arrays are not supported)", path)
			}
			sub, err := parseObject(dec, path)
			if err != nil {
				return nil, err
			}
			t.Set(key, Subtree(sub))
			continue // closing '}' consumed by recursion
		default:
			return nil, fmt.Errorf("value at %q must be a string, null, or object, got %T", path, vt)
		}
	}
	// Consume the closing '}'.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return t, nil
}

// FromAny converts a generically decoded JSON value (map[string]any) into a
// Tree, tolerating junk: arrays, numbers, and booleans are skipped instead
// of rejected. Keys are sorted for determinism since Go maps lose order.
// Used for uncontrolled translator responses, where Parse is too strict.
func FromAny(v any) *Tree {
	m, ok := v.(map[string]any)
	if !ok {
		return New()
	}
	t := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch val := m[k].(type) {
		case string:
			t.Set(k, String(val))
		case nil:
			t.Set(k, Null())
		case map[string]any:
			t.Set(k, Subtree(FromAny(val)))
		}
	}
	return t
}

// ---------------------------------------------------------------------------
// Marshaling
// ---------------------------------------------------------------------------

// MarshalIndent serialises the tree as JSON with 4-space indentation,
// preserving key order.
func (t *Tree) MarshalIndent() ([]byte, error) {
	var b strings.Builder
	if err := writeTree(&b, t, 1); err != nil {
		return nil, err
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func writeTree(b *strings.Builder, t *Tree, depth int) error {
	if t.Len() == 0 {
		b.WriteString("{}")
		return nil
	}
	indent := strings.Repeat("    ", depth)
	b.WriteString("{\n")
	for i, k := range t.keys {
		b.WriteString(indent)
		b.WriteString(jsonString(k))
		b.WriteString(": ")
		v := t.values[k]
		switch v.Kind {
		case KindString:
			b.WriteString(jsonString(v.Str))
		case KindNull:
			b.WriteString("null")
		case KindNode:
			if err := writeTree(b, v.Node, depth+1); err != nil {
				return err
			}
		}
		if i < len(t.keys)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(strings.Repeat("    ", depth-1))
	b.WriteByte('}')
	return nil
}

// jsonString returns a JSON-encoded string value (with proper escaping).
func jsonString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

// ---------------------------------------------------------------------------
// FlatMap (ordered path → leaf)
// ---------------------------------------------------------------------------

// FlatMap maps dot-joined paths to leaf values (strings or tombstones).
// Path order is insertion order; it carries the traversal order of the
// tree the map was derived from.
type FlatMap struct {
	paths  []string
	values map[string]Value
}

// NewFlatMap returns an empty FlatMap.
func NewFlatMap() *FlatMap {
	return &FlatMap{values: make(map[string]Value)}
}

// Len returns the number of paths.
func (f *FlatMap) Len() int { return len(f.paths) }

// Paths returns all paths in insertion order.
func (f *FlatMap) Paths() []string { return f.paths }

// Get returns the leaf value for path.
func (f *FlatMap) Get(path string) (Value, bool) {
	v, ok := f.values[path]
	return v, ok
}

// Set inserts or replaces the leaf at path. Only string and null values
// are meaningful in a FlatMap; node values are a programming error and
// are ignored.
func (f *FlatMap) Set(path string, v Value) {
	if v.Kind == KindNode {
		return
	}
	if _, ok := f.values[path]; !ok {
		f.paths = append(f.paths, path)
	}
	f.values[path] = v
}

// Clone returns an independent copy.
func (f *FlatMap) Clone() *FlatMap {
	c := NewFlatMap()
	for _, p := range f.paths {
		c.Set(p, f.values[p])
	}
	return c
}

// Delete removes path from the map.
func (f *FlatMap) Delete(path string) {
	if _, ok := f.values[path]; !ok {
		return
	}
	delete(f.values, path)
	for i, p := range f.paths {
		if p == path {
			f.paths = append(f.paths[:i], f.paths[i+1:]...)
			break
		}
	}
}

// ---------------------------------------------------------------------------
// Codec: flatten / materialize
// ---------------------------------------------------------------------------

// Flatten converts a tree to its flat dot-path form via depth-first
// traversal in key order. Empty subtrees produce no paths and are lost.
func Flatten(t *Tree) *FlatMap {
	f := NewFlatMap()
	flattenInto(t, "", f)
	return f
}

func flattenInto(t *Tree, prefix string, f *FlatMap) {
	if t == nil {
		return
	}
	for _, k := range t.keys {
		path := joinPath(prefix, k)
		v := t.values[k]
		if v.Kind == KindNode {
			flattenInto(v.Node, path, f)
			continue
		}
		f.Set(path, v)
	}
}

// Materialize rebuilds a nested tree from a flat map, creating intermediate
// nodes as needed. Tombstones are omitted from the result. A path that
// would turn an existing leaf into an internal node (or land on an existing
// subtree) fails with ConflictingPathError.
func Materialize(f *FlatMap) (*Tree, error) {
	root := New()
	for _, path := range f.paths {
		v := f.values[path]
		if v.Kind == KindNull {
			continue
		}
		if err := setPath(root, path, v); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// setPath inserts a leaf at a dot-joined path, creating intermediate nodes.
func setPath(root *Tree, path string, v Value) error {
	segs := strings.Split(path, ".")
	cur := root
	for i, seg := range segs[:len(segs)-1] {
		existing, ok := cur.Get(seg)
		if !ok {
			sub := New()
			cur.Set(seg, Subtree(sub))
			cur = sub
			continue
		}
		if existing.Kind != KindNode {
			return &ConflictingPathError{Path: strings.Join(segs[:i+1], ".")}
		}
		cur = existing.Node
	}
	last := segs[len(segs)-1]
	if existing, ok := cur.Get(last); ok && existing.Kind == KindNode {
		return &ConflictingPathError{Path: path}
	}
	cur.Set(last, v)
	return nil
}

// joinPath appends a key to a dot-joined prefix.
func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
