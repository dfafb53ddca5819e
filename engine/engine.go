// Package engine drives an incremental translation run: it computes what
// changed since the last sync, splits the work into size-bounded chunks,
// sends each chunk to a translator, repairs and merges the responses, and
// finally asks for a single accept-or-discard decision before anything is
// written to disk.
package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/loctree/loctree/changeset"
	"github.com/loctree/loctree/chunk"
	"github.com/loctree/loctree/normalize"
	"github.com/loctree/loctree/tree"
)

// ErrNoChanges is returned by Run when the target is already in sync with
// the base file and there is nothing to translate or delete.
var ErrNoChanges = errors.New("target is up to date")

// ErrNothingTranslated is returned when a run produced changes to send but
// every chunk failed, leaving nothing to merge and no deletions to apply.
var ErrNothingTranslated = errors.New("no chunk produced usable translations")

// Cost counts the tokens a run consumed, as reported by the provider.
type Cost struct {
	InputUnits  int
	OutputUnits int
}

// Add accumulates another cost into c.
func (c *Cost) Add(other Cost) {
	c.InputUnits += other.InputUnits
	c.OutputUnits += other.OutputUnits
}

// Result is what a translator returns for one chunk.
type Result struct {
	Translated *tree.Tree
	Cost       Cost
}

// Translator turns a chunk of source-language strings into the target
// language. The chunk arrives as a nested tree; implementations may return
// the translation in any of the shapes the normalizer understands.
type Translator interface {
	Translate(ctx context.Context, chunk *tree.Tree, targetLang string) (*Result, error)
}

// DiffPresenter shows the user what a run is about to change. Preview is
// called with the cumulative result as chunks merge; Confirm is the final
// gate before committing.
type DiffPresenter interface {
	Preview(original, updated *tree.Tree, label string)
	Confirm(original, updated *tree.Tree) (bool, error)
}

// State names the phase a run is in.
type State int

const (
	StateIdle State = iota
	StateComputing
	StateChunking
	StateTranslating
	StateAwaitingDecision
	StateCommitted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComputing:
		return "computing"
	case StateChunking:
		return "chunking"
	case StateTranslating:
		return "translating"
	case StateAwaitingDecision:
		return "awaiting decision"
	case StateCommitted:
		return "committed"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Summary reports what a finished run did.
type Summary struct {
	ChunksTotal     int
	ChunksFailed    int
	PathsRequested  int
	PathsTranslated int
	Deletions       int
	Cost            Cost
	Interrupted     bool
}

// Outcome is the product of a run: the candidate tree and whether the user
// accepted it. Updated is nil when the run was rejected.
type Outcome struct {
	Updated  *tree.Tree
	Accepted bool
	Summary  Summary
}

// Engine holds the collaborators and knobs for a run. Zero values fall
// back to sensible defaults: DefaultBudget-sized chunks, sequential
// translation, silent logging, auto-accept with no presenter.
type Engine struct {
	Translator Translator
	Presenter  DiffPresenter
	Budget     int
	Parallel   int
	Logf       func(format string, args ...any)

	state State
}

// State reports the engine's current phase. Runs are single-goroutine from
// the caller's view; bulk translation fans out internally but state only
// advances on the run goroutine.
func (e *Engine) State() State { return e.state }

func (e *Engine) logf(format string, args ...any) {
	if e.Logf != nil {
		e.Logf(format, args...)
	}
}

// isInterruption reports whether err means the run ctx ended, by cancel
// or by deadline. Either way the merged partial result is still reviewed.
func isInterruption(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Run performs one incremental translation of target against base.
// snapshot may be nil for a first-time translation. Cancellation via ctx
// stops new chunks from being sent; whatever already merged is still
// offered for the final decision.
func (e *Engine) Run(ctx context.Context, base, target, snapshot *tree.Tree, targetLang string) (*Outcome, error) {
	e.state = StateComputing
	changes := changeset.Calculate(base, target, snapshot)
	if changes.Len() == 0 {
		e.state = StateIdle
		return nil, ErrNoChanges
	}

	acc := newAccumulator()
	additions := tree.NewFlatMap()
	for _, p := range changes.Paths() {
		v, _ := changes.Get(p)
		if v.Kind == tree.KindNull {
			acc.markDeleted(p)
		} else {
			additions.Set(p, v)
		}
	}

	e.state = StateChunking
	chunks := chunk.Split(additions, e.Budget)

	summary := Summary{
		ChunksTotal:    len(chunks),
		PathsRequested: additions.Len(),
		Deletions:      len(acc.deleted),
	}
	e.logf("%d paths to translate in %d chunks, %d deletions", additions.Len(), len(chunks), len(acc.deleted))

	e.state = StateTranslating
	var runErr error
	if e.Parallel > 1 {
		runErr = e.translateBulk(ctx, chunks, targetLang, acc, &summary)
	} else {
		runErr = e.translateSequential(ctx, chunks, target, targetLang, acc, &summary)
	}
	if runErr != nil && !isInterruption(runErr) {
		e.state = StateIdle
		return nil, runErr
	}
	summary.Interrupted = isInterruption(runErr)
	summary.PathsTranslated = acc.merged.Len()

	if acc.merged.Len() == 0 && len(acc.deleted) == 0 {
		e.state = StateIdle
		return nil, ErrNothingTranslated
	}

	e.state = StateAwaitingDecision
	updated, err := acc.apply(target)
	if err != nil {
		e.state = StateIdle
		return nil, fmt.Errorf("assembling updated tree: %w", err)
	}

	accepted := true
	if e.Presenter != nil {
		accepted, err = e.Presenter.Confirm(target, updated)
		if err != nil {
			e.state = StateIdle
			return nil, fmt.Errorf("confirming changes: %w", err)
		}
	}
	if !accepted {
		e.state = StateCancelled
		return &Outcome{Accepted: false, Summary: summary}, nil
	}
	e.state = StateCommitted
	return &Outcome{Updated: updated, Accepted: true, Summary: summary}, nil
}

// translateSequential sends chunks one at a time, merging each response as
// it arrives and previewing the cumulative result.
func (e *Engine) translateSequential(ctx context.Context, chunks []*tree.FlatMap, target *tree.Tree, targetLang string, acc *accumulator, summary *Summary) error {
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			e.logf("interrupted, %d of %d chunks sent", i, len(chunks))
			return err
		}
		merged, cost, err := e.translateChunk(ctx, c, targetLang)
		summary.Cost.Add(cost)
		if err != nil {
			summary.ChunksFailed++
			e.logf("chunk %d/%d failed: %v", i+1, len(chunks), err)
			continue
		}
		if err := acc.merge(merged); err != nil {
			summary.ChunksFailed++
			e.logf("chunk %d/%d rejected: %v", i+1, len(chunks), err)
			continue
		}
		e.logf("chunk %d/%d merged, %d paths", i+1, len(chunks), merged.Len())
		if e.Presenter != nil {
			if updated, err := acc.apply(target); err == nil {
				e.Presenter.Preview(target, updated, fmt.Sprintf("chunk %d/%d", i+1, len(chunks)))
			}
		}
	}
	return nil
}

// translateBulk fans chunks out to Parallel workers and merges all results
// in chunk order once every worker has finished. Order of merging does not
// affect the result since chunks are disjoint, but deterministic merging
// keeps logs and duplicate reports stable.
func (e *Engine) translateBulk(ctx context.Context, chunks []*tree.FlatMap, targetLang string, acc *accumulator, summary *Summary) error {
	results := make([]*tree.FlatMap, len(chunks))
	chunkErrs := make([]error, len(chunks))
	costs := make([]Cost, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Parallel)
	for i, c := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				chunkErrs[i] = err
				return nil
			}
			results[i], costs[i], chunkErrs[i] = e.translateChunk(gctx, c, targetLang)
			return nil
		})
	}
	_ = g.Wait() // workers report per-chunk errors via chunkErrs

	var ctxErr error
	for i := range chunks {
		summary.Cost.Add(costs[i])
		if err := chunkErrs[i]; err != nil {
			if isInterruption(err) {
				ctxErr = err
				continue
			}
			summary.ChunksFailed++
			e.logf("chunk %d/%d failed: %v", i+1, len(chunks), err)
			continue
		}
		if err := acc.merge(results[i]); err != nil {
			summary.ChunksFailed++
			e.logf("chunk %d/%d rejected: %v", i+1, len(chunks), err)
			continue
		}
		e.logf("chunk %d/%d merged, %d paths", i+1, len(chunks), results[i].Len())
	}
	return ctxErr
}

// translateChunk sends one chunk and repairs the response. A response that
// covers none of the requested paths counts as a failure, not an empty
// success. Cancellation is honored between chunks only: a call already in
// flight runs to completion so its token cost ends up in a recorded result.
// The provider timeout still bounds the call.
func (e *Engine) translateChunk(ctx context.Context, c *tree.FlatMap, targetLang string) (*tree.FlatMap, Cost, error) {
	payload, err := tree.Materialize(c)
	if err != nil {
		return nil, Cost{}, fmt.Errorf("building chunk payload: %w", err)
	}
	res, err := e.Translator.Translate(context.WithoutCancel(ctx), payload, targetLang)
	if err != nil {
		return nil, Cost{}, err
	}
	merged := normalize.Normalize(res.Translated, c)
	if merged.Len() == 0 {
		return nil, res.Cost, errors.New("response covered none of the requested paths")
	}
	return merged, res.Cost, nil
}

// accumulator collects merged translations and pending deletions across a
// run. Each path may be set at most once; chunks are disjoint, so a
// duplicate means a response strayed outside its chunk.
type accumulator struct {
	merged  *tree.FlatMap
	deleted []string
}

func newAccumulator() *accumulator {
	return &accumulator{merged: tree.NewFlatMap()}
}

func (a *accumulator) markDeleted(path string) {
	a.deleted = append(a.deleted, path)
}

func (a *accumulator) merge(fm *tree.FlatMap) error {
	for _, p := range fm.Paths() {
		if _, exists := a.merged.Get(p); exists {
			return fmt.Errorf("path %q already merged from an earlier chunk", p)
		}
	}
	for _, p := range fm.Paths() {
		v, _ := fm.Get(p)
		a.merged.Set(p, v)
	}
	return nil
}

// apply overlays the accumulated translations onto target and drops the
// deleted paths, producing the candidate tree. New paths land after
// existing ones, in changeset order.
func (a *accumulator) apply(target *tree.Tree) (*tree.Tree, error) {
	flat := tree.Flatten(target)
	for _, p := range a.deleted {
		flat.Delete(p)
	}
	for _, p := range a.merged.Paths() {
		v, _ := a.merged.Get(p)
		flat.Set(p, v)
	}
	return tree.Materialize(flat)
}
