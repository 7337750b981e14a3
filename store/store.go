// Package store persists scenario documents. The engine compiles from
// the stored YAML source; compiled IRs live in the registry, not here.
package store

import (
	"fmt"
	"sync"
	"time"
)

// Record is one stored scenario document.
type Record struct {
	ID        string
	Name      string
	Source    string // raw YAML document text
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScenarioStore manages scenario persistence and retrieval.
type ScenarioStore interface {
	// Add a new scenario
	Add(rec *Record) error

	// Get a scenario by ID
	Get(id string) (*Record, error)

	// List all active scenarios
	ListActive() ([]*Record, error)

	// Update an existing scenario
	Update(rec *Record) error

	// Delete a scenario
	Delete(id string) error
}

// InMemoryScenarioStore implements ScenarioStore using an in-memory
// map. Thread-safe with RWMutex.
type InMemoryScenarioStore struct {
	records map[string]*Record
	mu      sync.RWMutex
}

// NewInMemoryScenarioStore creates a new in-memory scenario store.
func NewInMemoryScenarioStore() *InMemoryScenarioStore {
	return &InMemoryScenarioStore{
		records: make(map[string]*Record),
	}
}

// Add adds a new scenario to the store, enforcing unique IDs.
func (s *InMemoryScenarioStore) Add(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("scenario with ID %s already exists", rec.ID)
	}

	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.records[rec.ID] = rec
	return nil
}

// Get retrieves a scenario by ID.
func (s *InMemoryScenarioStore) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, fmt.Errorf("scenario with ID %s not found", id)
	}
	return rec, nil
}

// ListActive returns all active scenarios.
func (s *InMemoryScenarioStore) ListActive() ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Record
	for _, rec := range s.records {
		if rec.Active {
			active = append(active, rec)
		}
	}
	return active, nil
}

// Update updates an existing scenario, preserving CreatedAt.
func (s *InMemoryScenarioStore) Update(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.records[rec.ID]
	if !exists {
		return fmt.Errorf("scenario with ID %s not found", rec.ID)
	}

	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now()
	s.records[rec.ID] = rec
	return nil
}

// Delete removes a scenario from the store.
func (s *InMemoryScenarioStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("scenario with ID %s not found", id)
	}

	delete(s.records, id)
	return nil
}
