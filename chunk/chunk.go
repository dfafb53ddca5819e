// Package chunk partitions a flat change set into ordered, size-bounded
// units, each small enough to send to the translator in one request.
//
// Packing is greedy: entries are taken in change-set order and appended to
// the running chunk until the next entry would push its serialized size
// over the budget, at which point a new chunk starts. A single entry whose
// own size already exceeds the budget ships alone in an oversized chunk —
// entries are never split, duplicated, or dropped.
package chunk

import (
	"encoding/json"

	"github.com/loctree/loctree/tree"
)

// envelopeSize is the serialized overhead of one chunk ("{" and "}").
const envelopeSize = 2

// DefaultBudget is the serialized-size budget used when none is configured.
const DefaultBudget = 4096

// EntrySize returns the deterministic serialized contribution of one
// change-set entry: the JSON-encoded path and value plus the key/value
// separator, as the pair would appear in the request payload.
func EntrySize(path string, v tree.Value) int {
	n := len(jsonEncoded(path)) + len(": ")
	if v.Kind == tree.KindNull {
		return n + len("null")
	}
	return n + len(jsonEncoded(v.Str))
}

// Size returns the serialized size of a whole chunk, including the object
// envelope and inter-entry separators.
func Size(fm *tree.FlatMap) int {
	total := envelopeSize
	for i, p := range fm.Paths() {
		v, _ := fm.Get(p)
		total += EntrySize(p, v)
		if i > 0 {
			total += len(", ")
		}
	}
	return total
}

// Split partitions the change set into chunks whose serialized size stays
// within budget. Guarantees: every non-empty input yields at least one
// chunk; the union of all chunks' paths equals the input exactly; chunk
// order follows input order. A budget <= 0 selects DefaultBudget.
func Split(fm *tree.FlatMap, budget int) []*tree.FlatMap {
	if fm.Len() == 0 {
		return nil
	}
	if budget <= 0 {
		budget = DefaultBudget
	}

	var chunks []*tree.FlatMap
	cur := tree.NewFlatMap()
	curSize := envelopeSize

	for _, path := range fm.Paths() {
		v, _ := fm.Get(path)
		cost := EntrySize(path, v)
		if cur.Len() > 0 {
			cost += len(", ")
		}

		if cur.Len() > 0 && curSize+cost > budget {
			chunks = append(chunks, cur)
			cur = tree.NewFlatMap()
			curSize = envelopeSize
			cost = EntrySize(path, v)
		}

		cur.Set(path, v)
		curSize += cost
	}

	if cur.Len() > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

func jsonEncoded(s string) []byte {
	data, _ := json.Marshal(s)
	return data
}
