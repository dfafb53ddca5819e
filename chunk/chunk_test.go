package chunk

import (
	"testing"

	"github.com/loctree/loctree/tree"
)

func flat(pairs ...string) *tree.FlatMap {
	f := tree.NewFlatMap()
	for i := 0; i+1 < len(pairs); i += 2 {
		f.Set(pairs[i], tree.String(pairs[i+1]))
	}
	return f
}

func TestEmptyInputNoChunks(t *testing.T) {
	if got := Split(tree.NewFlatMap(), 100); got != nil {
		t.Fatalf("got %d chunks, want none", len(got))
	}
}

func TestSingleChunkWhenEverythingFits(t *testing.T) {
	f := flat("a", "1", "b", "2", "c", "3")
	chunks := Split(f, 10_000)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Len() != 3 {
		t.Fatalf("chunk size = %d, want 3", chunks[0].Len())
	}
}

func TestBudgetForcesSecondChunk(t *testing.T) {
	// "a" → "1111111111": EntrySize = 3 + 2 + 12 = 17
	// "b" → "22":         EntrySize = 3 + 2 + 4  = 9
	// "c" → "333":        EntrySize = 3 + 2 + 5  = 10
	// Chunk {a, b}: 2 + 17 + 2 + 9 = 30 ≤ budget 32.
	// Adding c (2 + 10) would reach 42 > 32 → c opens a second chunk.
	f := flat("a", "1111111111", "b", "22", "c", "333")

	chunks := Split(f, 32)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Len() != 2 || chunks[1].Len() != 1 {
		t.Fatalf("chunk sizes = %d/%d, want 2/1", chunks[0].Len(), chunks[1].Len())
	}
	if _, ok := chunks[1].Get("c"); !ok {
		t.Fatal("c should be in the second chunk")
	}
}

func TestOversizedEntryShipsAlone(t *testing.T) {
	big := make([]byte, 500)
	for i := range big {
		big[i] = 'x'
	}
	f := flat("small", "s", "huge", string(big), "tail", "t")

	chunks := Split(f, 64)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if chunks[1].Len() != 1 {
		t.Fatalf("oversized entry should be alone, chunk has %d entries", chunks[1].Len())
	}
	if Size(chunks[1]) <= 64 {
		t.Fatal("middle chunk should exceed the budget")
	}
}

func TestCoverageNoDuplicatesNoLoss(t *testing.T) {
	f := flat("a", "1", "b", "22", "c", "333", "d", "4444", "e", "55555")
	chunks := Split(f, 20)

	seen := make(map[string]int)
	var order []string
	for _, c := range chunks {
		for _, p := range c.Paths() {
			seen[p]++
			order = append(order, p)
		}
	}

	for _, p := range f.Paths() {
		if seen[p] != 1 {
			t.Errorf("path %q appears %d times, want exactly 1", p, seen[p])
		}
	}
	if len(order) != f.Len() {
		t.Fatalf("total entries = %d, want %d", len(order), f.Len())
	}
	for i, p := range f.Paths() {
		if order[i] != p {
			t.Fatalf("order = %v, want input order %v", order, f.Paths())
		}
	}
}

func TestChunkBoundHolds(t *testing.T) {
	f := flat("a", "1", "b", "22", "c", "333", "d", "4444")
	const budget = 24
	for _, c := range Split(f, budget) {
		if c.Len() > 1 && Size(c) > budget {
			t.Errorf("chunk %v size %d exceeds budget %d", c.Paths(), Size(c), budget)
		}
	}
}

func TestTombstonesAreChunkedToo(t *testing.T) {
	f := tree.NewFlatMap()
	f.Set("keep", tree.String("v"))
	f.Set("drop", tree.Null())

	chunks := Split(f, 10_000)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	v, ok := chunks[0].Get("drop")
	if !ok || v.Kind != tree.KindNull {
		t.Fatal("tombstone lost during chunking")
	}
}
