package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loctree/loctree/locfile"
	"github.com/loctree/loctree/tree"
)

func mustParse(t *testing.T, src string) *tree.Tree {
	t.Helper()
	tr, err := tree.Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return tr
}

// prefixTranslator "translates" by prefixing every leaf, and counts calls.
// Safe for concurrent use.
type prefixTranslator struct {
	prefix string
	calls  atomic.Int64
	fail   func(chunk *tree.Tree) error
}

func (p *prefixTranslator) Translate(_ context.Context, chunk *tree.Tree, _ string) (*Result, error) {
	p.calls.Add(1)
	if p.fail != nil {
		if err := p.fail(chunk); err != nil {
			return nil, err
		}
	}
	flat := tree.Flatten(chunk)
	out := tree.NewFlatMap()
	for _, path := range flat.Paths() {
		v, _ := flat.Get(path)
		out.Set(path, tree.String(p.prefix+v.Str))
	}
	translated, err := tree.Materialize(out)
	if err != nil {
		return nil, err
	}
	return &Result{Translated: translated, Cost: Cost{InputUnits: 10, OutputUnits: 20}}, nil
}

type recordingPresenter struct {
	previews int
	confirms int
	accept   bool
}

func (r *recordingPresenter) Preview(_, _ *tree.Tree, _ string) { r.previews++ }
func (r *recordingPresenter) Confirm(_, _ *tree.Tree) (bool, error) {
	r.confirms++
	return r.accept, nil
}

func leafText(t *testing.T, tr *tree.Tree, path string) string {
	t.Helper()
	flat := tree.Flatten(tr)
	v, ok := flat.Get(path)
	if !ok {
		t.Fatalf("path %q missing from tree %v", path, flat.Paths())
	}
	return v.Str
}

func TestFirstTimeTranslation(t *testing.T) {
	base := mustParse(t, `{"nav": {"title": "Home", "home": "House"}, "footer": "About"}`)
	target := mustParse(t, `{}`)
	tr := &prefixTranslator{prefix: "fr:"}
	e := &Engine{Translator: tr}

	out, err := e.Run(context.Background(), base, target, nil, "fr")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Accepted {
		t.Fatal("run without a presenter should auto-accept")
	}
	if got := leafText(t, out.Updated, "nav.title"); got != "fr:Home" {
		t.Fatalf("nav.title = %q", got)
	}
	if got := leafText(t, out.Updated, "footer"); got != "fr:About" {
		t.Fatalf("footer = %q", got)
	}
	if out.Summary.PathsRequested != 3 || out.Summary.PathsTranslated != 3 {
		t.Fatalf("summary = %+v", out.Summary)
	}
	if out.Summary.Cost.InputUnits == 0 || out.Summary.Cost.OutputUnits == 0 {
		t.Fatalf("cost not accumulated: %+v", out.Summary.Cost)
	}
	if e.State() != StateCommitted {
		t.Fatalf("state = %v", e.State())
	}
}

func TestDeletionsNeedNoTranslator(t *testing.T) {
	base := mustParse(t, `{"a": "Alpha"}`)
	target := mustParse(t, `{"a": "Alpha-fr", "old": "Orphan"}`)
	snapshot := mustParse(t, `{"a": "Alpha"}`)
	tr := &prefixTranslator{prefix: "fr:"}
	e := &Engine{Translator: tr}

	out, err := e.Run(context.Background(), base, target, snapshot, "fr")
	if err != nil {
		t.Fatal(err)
	}
	if tr.calls.Load() != 0 {
		t.Fatalf("translator called %d times for a pure-deletion run", tr.calls.Load())
	}
	flat := tree.Flatten(out.Updated)
	if _, ok := flat.Get("old"); ok {
		t.Fatal("orphan key survived the run")
	}
	if got := leafText(t, out.Updated, "a"); got != "Alpha-fr" {
		t.Fatalf("existing translation changed: %q", got)
	}
	if out.Summary.Deletions != 1 {
		t.Fatalf("summary = %+v", out.Summary)
	}
}

func TestFailedChunkIsSkippedRunContinues(t *testing.T) {
	base := mustParse(t, `{"a": "AAAA", "b": "BBBB"}`)
	target := mustParse(t, `{}`)
	tr := &prefixTranslator{
		prefix: "fr:",
		fail: func(chunk *tree.Tree) error {
			if _, ok := chunk.Get("b"); ok {
				return errors.New("provider hiccup")
			}
			return nil
		},
	}
	// Budget fits exactly one entry per chunk.
	e := &Engine{Translator: tr, Budget: 13}

	out, err := e.Run(context.Background(), base, target, nil, "fr")
	if err != nil {
		t.Fatal(err)
	}
	if out.Summary.ChunksTotal != 2 || out.Summary.ChunksFailed != 1 {
		t.Fatalf("summary = %+v", out.Summary)
	}
	flat := tree.Flatten(out.Updated)
	if _, ok := flat.Get("b"); ok {
		t.Fatal("failed chunk's path appeared in the result")
	}
	if got := leafText(t, out.Updated, "a"); got != "fr:AAAA" {
		t.Fatalf("a = %q", got)
	}
}

// regroupTranslator answers in the self-referential grouped shape some
// providers produce; the engine must repair it before merging.
type regroupTranslator struct{}

func (regroupTranslator) Translate(_ context.Context, chunk *tree.Tree, _ string) (*Result, error) {
	flat := tree.Flatten(chunk)
	grouped := tree.NewFlatMap()
	for _, path := range flat.Paths() {
		v, _ := flat.Get(path)
		root := path
		if i := strings.IndexByte(path, '.'); i >= 0 {
			root = path[:i]
		}
		grouped.Set(root+"."+path, tree.String("fr:"+v.Str))
	}
	translated, err := tree.Materialize(grouped)
	if err != nil {
		return nil, err
	}
	return &Result{Translated: translated}, nil
}

func TestRegroupedResponseIsRepaired(t *testing.T) {
	base := mustParse(t, `{"nav": {"title": "Home"}}`)
	target := mustParse(t, `{}`)
	e := &Engine{Translator: regroupTranslator{}}

	out, err := e.Run(context.Background(), base, target, nil, "fr")
	if err != nil {
		t.Fatal(err)
	}
	if got := leafText(t, out.Updated, "nav.title"); got != "fr:Home" {
		t.Fatalf("nav.title = %q", got)
	}
}

func TestRejectionDiscardsEverything(t *testing.T) {
	base := mustParse(t, `{"a": "Alpha"}`)
	target := mustParse(t, `{}`)
	p := &recordingPresenter{accept: false}
	e := &Engine{Translator: &prefixTranslator{prefix: "fr:"}, Presenter: p}

	out, err := e.Run(context.Background(), base, target, nil, "fr")
	if err != nil {
		t.Fatal(err)
	}
	if out.Accepted || out.Updated != nil {
		t.Fatalf("rejected run returned %+v", out)
	}
	if p.confirms != 1 {
		t.Fatalf("confirm called %d times", p.confirms)
	}
	if e.State() != StateCancelled {
		t.Fatalf("state = %v", e.State())
	}
}

func TestNoChanges(t *testing.T) {
	base := mustParse(t, `{"a": "Hello"}`)
	target := mustParse(t, `{"a": "Bonjour"}`)
	snapshot := mustParse(t, `{"a": "Hello"}`)
	e := &Engine{Translator: &prefixTranslator{prefix: "fr:"}}

	_, err := e.Run(context.Background(), base, target, snapshot, "fr")
	if !errors.Is(err, ErrNoChanges) {
		t.Fatalf("err = %v, want ErrNoChanges", err)
	}
}

func TestAllChunksFailed(t *testing.T) {
	base := mustParse(t, `{"a": "Alpha"}`)
	target := mustParse(t, `{}`)
	tr := &prefixTranslator{fail: func(*tree.Tree) error { return errors.New("down") }}
	e := &Engine{Translator: tr}

	_, err := e.Run(context.Background(), base, target, nil, "fr")
	if !errors.Is(err, ErrNothingTranslated) {
		t.Fatalf("err = %v, want ErrNothingTranslated", err)
	}
}

func TestBulkMatchesSequential(t *testing.T) {
	base := mustParse(t, `{"a": "AAAA", "b": "BBBB", "c": "CCCC", "d": "DDDD"}`)
	target := mustParse(t, `{}`)

	seq := &Engine{Translator: &prefixTranslator{prefix: "fr:"}, Budget: 13}
	seqOut, err := seq.Run(context.Background(), base, target, nil, "fr")
	if err != nil {
		t.Fatal(err)
	}

	bulk := &Engine{Translator: &prefixTranslator{prefix: "fr:"}, Budget: 13, Parallel: 4}
	bulkOut, err := bulk.Run(context.Background(), base, target, nil, "fr")
	if err != nil {
		t.Fatal(err)
	}

	if !seqOut.Updated.Equal(bulkOut.Updated) {
		t.Fatal("bulk and sequential runs disagree")
	}
	if bulkOut.Summary.ChunksTotal != 4 {
		t.Fatalf("summary = %+v", bulkOut.Summary)
	}
}

// cancelAfterFirst cancels the run after its first successful chunk.
type cancelAfterFirst struct {
	inner  Translator
	cancel context.CancelFunc
	done   atomic.Bool
}

func (c *cancelAfterFirst) Translate(ctx context.Context, chunk *tree.Tree, lang string) (*Result, error) {
	res, err := c.inner.Translate(ctx, chunk, lang)
	if c.done.CompareAndSwap(false, true) {
		c.cancel()
	}
	return res, err
}

func TestCancellationKeepsPartialResults(t *testing.T) {
	base := mustParse(t, `{"a": "AAAA", "b": "BBBB", "c": "CCCC"}`)
	target := mustParse(t, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &cancelAfterFirst{inner: &prefixTranslator{prefix: "fr:"}, cancel: cancel}
	e := &Engine{Translator: tr, Budget: 13}

	out, err := e.Run(ctx, base, target, nil, "fr")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Summary.Interrupted {
		t.Fatalf("summary = %+v, want Interrupted", out.Summary)
	}
	if got := leafText(t, out.Updated, "a"); got != "fr:AAAA" {
		t.Fatalf("a = %q", got)
	}
	flat := tree.Flatten(out.Updated)
	if flat.Len() != 1 {
		t.Fatalf("partial run kept %d paths, want 1: %v", flat.Len(), flat.Paths())
	}
}

// ctxSensitiveTranslator fails once its ctx ends, the way an HTTP client
// does. It signals when a call is underway and waits to be released, so a
// test can cancel the run mid-call.
type ctxSensitiveTranslator struct {
	inner   Translator
	started chan struct{}
	resume  chan struct{}
}

func (c *ctxSensitiveTranslator) Translate(ctx context.Context, chunk *tree.Tree, lang string) (*Result, error) {
	close(c.started)
	<-c.resume
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.inner.Translate(ctx, chunk, lang)
}

func TestInFlightChunkFinishesOnCancellation(t *testing.T) {
	base := mustParse(t, `{"a": "Alpha"}`)
	target := mustParse(t, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &ctxSensitiveTranslator{
		inner:   &prefixTranslator{prefix: "fr:"},
		started: make(chan struct{}),
		resume:  make(chan struct{}),
	}
	go func() {
		<-tr.started
		cancel()
		close(tr.resume)
	}()
	e := &Engine{Translator: tr}

	out, err := e.Run(ctx, base, target, nil, "fr")
	if err != nil {
		t.Fatalf("in-flight chunk was aborted: %v", err)
	}
	if got := leafText(t, out.Updated, "a"); got != "fr:Alpha" {
		t.Fatalf("a = %q", got)
	}
}

func TestDeadlineKeepsPartialResults(t *testing.T) {
	base := mustParse(t, `{"a": "AAAA", "b": "BBBB"}`)
	target := mustParse(t, `{}`)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	// The first chunk outlives the deadline; the second must not start.
	tr := &slowTranslator{inner: &prefixTranslator{prefix: "fr:"}, delay: 50 * time.Millisecond}
	e := &Engine{Translator: tr, Budget: 13}

	out, err := e.Run(ctx, base, target, nil, "fr")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Summary.Interrupted {
		t.Fatalf("summary = %+v, want Interrupted", out.Summary)
	}
	if got := leafText(t, out.Updated, "a"); got != "fr:AAAA" {
		t.Fatalf("a = %q", got)
	}
	flat := tree.Flatten(out.Updated)
	if flat.Len() != 1 {
		t.Fatalf("partial run kept %d paths, want 1: %v", flat.Len(), flat.Paths())
	}
}

type slowTranslator struct {
	inner Translator
	delay time.Duration
}

func (s *slowTranslator) Translate(ctx context.Context, chunk *tree.Tree, lang string) (*Result, error) {
	time.Sleep(s.delay)
	return s.inner.Translate(ctx, chunk, lang)
}

func TestMergeOrderDoesNotMatter(t *testing.T) {
	chunks := make([]*tree.FlatMap, 3)
	chunks[0] = tree.NewFlatMap()
	chunks[0].Set("a.x", tree.String("one"))
	chunks[0].Set("a.y", tree.String("two"))
	chunks[1] = tree.NewFlatMap()
	chunks[1].Set("b.x", tree.String("three"))
	chunks[2] = tree.NewFlatMap()
	chunks[2].Set("c", tree.String("four"))

	forward := newAccumulator()
	for _, c := range chunks {
		if err := forward.merge(c); err != nil {
			t.Fatal(err)
		}
	}
	reverse := newAccumulator()
	for i := len(chunks) - 1; i >= 0; i-- {
		if err := reverse.merge(chunks[i]); err != nil {
			t.Fatal(err)
		}
	}
	forward.markDeleted("old")
	reverse.markDeleted("old")

	target := mustParse(t, `{"old": "Gone", "kept": "Stays"}`)
	f, err := forward.apply(target)
	if err != nil {
		t.Fatal(err)
	}
	r, err := reverse.apply(target)
	if err != nil {
		t.Fatal(err)
	}
	if !f.Equal(r) {
		t.Fatal("merge order changed the final tree")
	}
	if got := leafText(t, f, "a.x"); got != "one" {
		t.Fatalf("a.x = %q", got)
	}
	if flat := tree.Flatten(f); flat.Len() != 5 {
		t.Fatalf("final tree has %d paths, want 5: %v", flat.Len(), flat.Paths())
	}
}

func TestAccumulatorRejectsDuplicatePath(t *testing.T) {
	acc := newAccumulator()
	first := tree.NewFlatMap()
	first.Set("a.b", tree.String("one"))
	if err := acc.merge(first); err != nil {
		t.Fatal(err)
	}
	second := tree.NewFlatMap()
	second.Set("a.b", tree.String("two"))
	if err := acc.merge(second); err == nil {
		t.Fatal("duplicate path merged without error")
	}
	v, _ := acc.merged.Get("a.b")
	if v.Str != "one" {
		t.Fatalf("first value was overwritten: %q", v.Str)
	}
}

func TestCommitWritesTargetAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "en.json")
	targetPath := filepath.Join(dir, "fr.json")
	baseRaw := []byte("{\n    \"a\": \"Alpha\"\n}\n")
	if err := os.WriteFile(basePath, baseRaw, 0o644); err != nil {
		t.Fatal(err)
	}

	updated := mustParse(t, `{"a": "Alpha-fr"}`)
	out := &Outcome{Updated: updated, Accepted: true}
	if err := Commit(targetPath, basePath, out); err != nil {
		t.Fatal(err)
	}

	got, err := locfile.ParseFile(targetPath)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(updated) {
		t.Fatal("written target does not match the accepted tree")
	}
	snapRaw, err := os.ReadFile(locfile.SnapshotPath(targetPath))
	if err != nil {
		t.Fatal(err)
	}
	if string(snapRaw) != string(baseRaw) {
		t.Fatal("snapshot is not a verbatim copy of the base file")
	}
}

func TestCommitRefusesRejectedRun(t *testing.T) {
	if err := Commit("x.json", "en.json", &Outcome{Accepted: false}); err == nil {
		t.Fatal("commit accepted a rejected outcome")
	}
}
