package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/caretide/scenario"
)

// Postgres is a Source backed by the observations table. One row per
// measurement: (patient_id, signal_ref, observed_at, value), value
// nullable for recorded-but-unknown observations.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres-backed observation source.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Fetch returns observations for the given semantic references in
// [from, to], ordered by observation time.
func (s *Postgres) Fetch(ctx context.Context, patientID string, refs []string, from, to time.Time) (map[string][]scenario.DataPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT signal_ref, observed_at, value
		FROM observations
		WHERE patient_id = $1
		  AND signal_ref = ANY($2)
		  AND observed_at BETWEEN $3 AND $4
		ORDER BY observed_at ASC
	`, patientID, pq.Array(refs), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]scenario.DataPoint, len(refs))
	for rows.Next() {
		var (
			ref        string
			observedAt time.Time
			value      sql.NullFloat64
		)
		if err := rows.Scan(&ref, &observedAt, &value); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		p := scenario.DataPoint{Timestamp: observedAt}
		if value.Valid {
			v := value.Float64
			p.Value = &v
		}
		out[ref] = append(out[ref], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}

	return out, nil
}
