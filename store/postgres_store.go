package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresScenarioStore implements ScenarioStore backed by PostgreSQL.
type PostgresScenarioStore struct {
	db *sql.DB
}

// NewPostgresScenarioStore creates a new PostgreSQL-backed ScenarioStore.
func NewPostgresScenarioStore(db *sql.DB) *PostgresScenarioStore {
	return &PostgresScenarioStore{db: db}
}

// Add inserts a new scenario into the database.
func (s *PostgresScenarioStore) Add(rec *Record) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM scenarios WHERE id = $1)
	`, rec.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check scenario existence: %w", err)
	}
	if exists {
		return fmt.Errorf("scenario with ID %s already exists", rec.ID)
	}

	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO scenarios (id, name, source, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.Name, rec.Source, rec.Active, rec.CreatedAt, rec.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert scenario: %w", err)
	}

	return nil
}

// Get retrieves a scenario by ID.
func (s *PostgresScenarioStore) Get(id string) (*Record, error) {
	var rec Record
	err := s.db.QueryRow(`
		SELECT id, name, source, active, created_at, updated_at
		FROM scenarios
		WHERE id = $1
	`, id).Scan(
		&rec.ID,
		&rec.Name,
		&rec.Source,
		&rec.Active,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scenario %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scenario: %w", err)
	}

	return &rec, nil
}

// ListActive returns all active scenarios in creation order.
func (s *PostgresScenarioStore) ListActive() ([]*Record, error) {
	rows, err := s.db.Query(`
		SELECT id, name, source, active, created_at, updated_at
		FROM scenarios
		WHERE active = true
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active scenarios: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Name, &r.Source, &r.Active,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scenarios: %w", err)
	}

	return records, nil
}

// Update modifies an existing scenario.
func (s *PostgresScenarioStore) Update(rec *Record) error {
	_, err := s.Get(rec.ID)
	if err != nil {
		return err
	}

	rec.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE scenarios
		SET name = $1, source = $2, active = $3, updated_at = $4
		WHERE id = $5
	`, rec.Name, rec.Source, rec.Active, rec.UpdatedAt, rec.ID)

	if err != nil {
		return fmt.Errorf("failed to update scenario: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("scenario %s not found", rec.ID)
	}

	return nil
}

// Delete removes a scenario from the database.
func (s *PostgresScenarioStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM scenarios
		WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to delete scenario: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("scenario %s not found", id)
	}

	return nil
}
