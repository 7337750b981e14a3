// Package datasource resolves the semantic references declared by a
// scenario's signals into time-series data. Scenarios never name
// tables or columns; the source owns the physical mapping.
package datasource

import (
	"context"
	"sync"
	"time"

	"github.com/caretide/scenario"
)

// Source fetches observations for one patient. Implementations return
// a map keyed by semantic reference; signals with no data map to an
// empty slice or are simply absent.
type Source interface {
	// Fetch returns all observations for the given semantic references
	// in the interval [from, to], ordered by observation time.
	Fetch(ctx context.Context, patientID string, refs []string, from, to time.Time) (map[string][]scenario.DataPoint, error)
}

// SignalData gathers the series a scenario's signals need, keyed by
// signal name rather than semantic reference, ready to hand to the
// evaluator.
func SignalData(ctx context.Context, src Source, patientID string, signals []scenario.Signal, from, to time.Time) (map[string][]scenario.DataPoint, error) {
	refs := make([]string, 0, len(signals))
	for _, sig := range signals {
		refs = append(refs, sig.SemanticRef)
	}
	byRef, err := src.Fetch(ctx, patientID, refs, from, to)
	if err != nil {
		return nil, err
	}
	byName := make(map[string][]scenario.DataPoint, len(signals))
	for _, sig := range signals {
		byName[sig.Name] = byRef[sig.SemanticRef]
	}
	return byName, nil
}

// Static is an in-memory Source, used in tests and by the CLI when
// evaluating against a data file.
type Static struct {
	mu   sync.RWMutex
	data map[string]map[string][]scenario.DataPoint // patientID -> ref -> points
}

// NewStatic creates an empty static source.
func NewStatic() *Static {
	return &Static{data: make(map[string]map[string][]scenario.DataPoint)}
}

// Put appends observations for one patient and semantic reference.
func (s *Static) Put(patientID, ref string, points ...scenario.DataPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data[patientID] == nil {
		s.data[patientID] = make(map[string][]scenario.DataPoint)
	}
	s.data[patientID][ref] = append(s.data[patientID][ref], points...)
}

// Fetch returns the stored observations within [from, to].
func (s *Static) Fetch(_ context.Context, patientID string, refs []string, from, to time.Time) (map[string][]scenario.DataPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]scenario.DataPoint, len(refs))
	series := s.data[patientID]
	for _, ref := range refs {
		for _, p := range series[ref] {
			if p.Timestamp.Before(from) || p.Timestamp.After(to) {
				continue
			}
			out[ref] = append(out[ref], p)
		}
	}
	return out, nil
}
