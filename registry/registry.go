// Package registry keeps one compiled IR per active scenario and
// mediates all mutations: a scenario must load and compile cleanly
// before it is persisted, and updates swap the compiled IR atomically
// so concurrent evaluations never observe a half-updated scenario.
package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/caretide/scenario"
	"github.com/caretide/scenario/compiler"
	"github.com/caretide/scenario/eval"
	"github.com/caretide/scenario/loader"
	"github.com/caretide/scenario/store"
)

// CompileError carries the full diagnostic report of a failed load or
// compile so callers can show every problem at once.
type CompileError struct {
	Diagnostics []scenario.Diagnostic
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("scenario failed to compile with %d diagnostic(s)", len(e.Diagnostics))
}

// CompileSource loads and compiles raw document text. Loader and
// compiler diagnostics are merged into one report; the IR is nil when
// the document does not even load.
func CompileSource(source []byte) (*compiler.IR, []scenario.Diagnostic, error) {
	doc, diags, err := loader.Load(source)
	if err != nil {
		return nil, nil, err
	}
	if scenario.HasErrors(diags) {
		return nil, diags, &CompileError{Diagnostics: diags}
	}
	ir := compiler.Compile(doc)
	all := append(diags, ir.Diagnostics.Items...)
	if !ir.Diagnostics.Success {
		return ir, all, &CompileError{Diagnostics: all}
	}
	return ir, all, nil
}

// Registry manages compiled scenarios backed by a store.
type Registry struct {
	store store.ScenarioStore
	cache store.ScenarioCache
	irs   map[string]*compiler.IR
	mu    sync.RWMutex
}

// New creates a registry and compiles every active scenario from the
// store.
func New(st store.ScenarioStore) (*Registry, error) {
	r := &Registry{
		store: st,
		cache: store.NewInMemoryScenarioCache(store.DefaultCacheConfig()),
		irs:   make(map[string]*compiler.IR),
	}
	if err := r.LoadAll(); err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}
	return r, nil
}

// LoadAll compiles all active scenarios from the store and populates
// the cache.
func (r *Registry) LoadAll() error {
	records, err := r.store.ListActive()
	if err != nil {
		return err
	}

	for _, rec := range records {
		ir, _, err := CompileSource([]byte(rec.Source))
		if err != nil {
			return fmt.Errorf("failed to compile scenario %s: %w", rec.ID, err)
		}
		r.mu.Lock()
		r.irs[rec.ID] = ir
		r.mu.Unlock()
	}

	r.cache.Set(records)
	return nil
}

// Add validates, compiles, and stores a new scenario. The compiled IR
// is registered only if the store accepts the record.
func (r *Registry) Add(name string, source string, active bool) (*store.Record, *compiler.IR, error) {
	ir, _, err := CompileSource([]byte(source))
	if err != nil {
		return nil, ir, fmt.Errorf("scenario validation failed: %w", err)
	}

	rec := &store.Record{
		ID:     uuid.NewString(),
		Name:   name,
		Source: source,
		Active: active,
	}
	if err := r.store.Add(rec); err != nil {
		return nil, nil, err
	}

	if active {
		r.mu.Lock()
		r.irs[rec.ID] = ir
		r.mu.Unlock()
	}
	r.cache.Invalidate()

	return rec, ir, nil
}

// Update recompiles a scenario and atomically swaps its IR.
func (r *Registry) Update(id, name, source string, active bool) (*store.Record, *compiler.IR, error) {
	ir, _, err := CompileSource([]byte(source))
	if err != nil {
		return nil, ir, fmt.Errorf("scenario validation failed: %w", err)
	}

	rec := &store.Record{
		ID:     id,
		Name:   name,
		Source: source,
		Active: active,
	}
	if err := r.store.Update(rec); err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	if active {
		r.irs[id] = ir
	} else {
		delete(r.irs, id)
	}
	r.mu.Unlock()
	r.cache.Invalidate()

	return rec, ir, nil
}

// Delete removes a scenario from the store and the compiled set.
func (r *Registry) Delete(id string) error {
	if err := r.store.Delete(id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.irs, id)
	r.mu.Unlock()
	r.cache.Invalidate()

	return nil
}

// Get retrieves the stored record for a scenario.
func (r *Registry) Get(id string) (*store.Record, error) {
	return r.store.Get(id)
}

// IR retrieves the compiled IR for a scenario.
func (r *Registry) IR(id string) (*compiler.IR, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ir, exists := r.irs[id]
	if !exists {
		return nil, fmt.Errorf("scenario %s is not compiled", id)
	}
	return ir, nil
}

// Evaluate runs one evaluation pass against a compiled scenario.
func (r *Registry) Evaluate(id string, req eval.Request) (*scenario.EvaluationResult, error) {
	ir, err := r.IR(id)
	if err != nil {
		return nil, err
	}
	return eval.Evaluate(ir, req)
}

// List returns the IDs of all compiled scenarios.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.irs))
	for id := range r.irs {
		ids = append(ids, id)
	}
	return ids
}

// ListActive returns active scenario records, served from cache when
// possible.
func (r *Registry) ListActive() ([]*store.Record, error) {
	if records := r.cache.Get(); records != nil {
		return records, nil
	}
	records, err := r.store.ListActive()
	if err != nil {
		return nil, err
	}
	r.cache.Set(records)
	return records, nil
}
