//go:build integration

package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const akiScenario = `
scenario: aki-detection
version: "1.0.0"
signals:
  creatinine: loinc:2160-0
trends:
  cr_rise: delta(creatinine, 48h)
logic:
  aki_stage_1: cr_rise >= 0.3
audit:
  intent: Detect stage 1 AKI early in admitted adults.
  rationale: KDIGO criteria define stage 1 as a 0.3 mg/dL rise in 48 hours.
  provenance: Nephrology working group, reviewed 2026-01.
`

// setupTestDB starts a PostgreSQL testcontainer and applies the
// migrations.
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	for _, file := range []string{
		"../../migrations/000001_create_scenarios.up.sql",
		"../../migrations/000002_create_observations.up.sql",
	} {
		migrationSQL, err := os.ReadFile(file)
		if err != nil {
			t.Fatalf("Failed to read migration file: %v", err)
		}
		if _, err := db.Exec(string(migrationSQL)); err != nil {
			t.Fatalf("Failed to run migration %s: %v", file, err)
		}
	}

	cleanup := func() {
		db.Close()
		postgres.Terminate(ctx)
	}
	return db, cleanup
}

func startServer(t *testing.T, db *sql.DB) *httptest.Server {
	server, err := NewServerWithDB(db)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	return ts
}

// TestEndToEnd_CreateAndEvaluateScenario walks the full workflow:
// create a scenario, read back its artifact, evaluate it with inline
// observations in both the triggering and non-triggering case.
func TestEndToEnd_CreateAndEvaluateScenario(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ts := startServer(t, db)
	baseURL := ts.URL + "/api/v1"

	t.Log("Creating scenario...")
	createResp := makeRequest(t, "POST", baseURL+"/scenarios", map[string]any{
		"name":   "AKI Detection",
		"source": akiScenario,
		"active": true,
	})
	scenarioID := createResp["id"].(string)
	if createResp["irHash"] == "" {
		t.Error("expected IR hash on the created scenario")
	}

	t.Log("Fetching artifact...")
	artifact := makeRequestNoBody(t, "GET", baseURL+"/scenarios/"+scenarioID+"/artifact")
	if artifact["success"] != true {
		t.Errorf("expected successful artifact, got %v", artifact)
	}
	if artifact["irHash"] != createResp["irHash"] {
		t.Error("artifact IR hash must match the stored scenario")
	}

	ref := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rising := []map[string]any{
		{"timestamp": ref.Add(-48 * time.Hour), "value": 1.0},
		{"timestamp": ref, "value": 1.5},
	}

	t.Log("Evaluating rising creatinine (should trigger)...")
	evalResp := makeRequest(t, "POST", baseURL+"/evaluate", map[string]any{
		"scenarioId":    scenarioID,
		"patientId":     "patient-1",
		"referenceTime": ref,
		"signals":       map[string]any{"creatinine": rising},
	})
	result := evalResp["result"].(map[string]any)
	if result["triggered"] != true {
		t.Errorf("expected trigger, got %v", result)
	}

	t.Log("Evaluating flat creatinine (should not trigger)...")
	flat := []map[string]any{
		{"timestamp": ref.Add(-48 * time.Hour), "value": 1.0},
		{"timestamp": ref, "value": 1.05},
	}
	evalResp = makeRequest(t, "POST", baseURL+"/evaluate", map[string]any{
		"scenarioId":    scenarioID,
		"patientId":     "patient-1",
		"referenceTime": ref,
		"signals":       map[string]any{"creatinine": flat},
	})
	result = evalResp["result"].(map[string]any)
	if result["triggered"] != false {
		t.Errorf("expected no trigger, got %v", result)
	}

	t.Log("Listing scenarios...")
	listResp := makeRequestNoBody(t, "GET", baseURL+"/scenarios")
	scenarios := listResp["scenarios"].([]any)
	if len(scenarios) != 1 {
		t.Errorf("expected 1 scenario, got %v", listResp)
	}
}

// TestEndToEnd_EvaluateFromObservations exercises the database-backed
// data source: observations are inserted directly and the evaluate
// request omits inline signals.
func TestEndToEnd_EvaluateFromObservations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ts := startServer(t, db)
	baseURL := ts.URL + "/api/v1"

	createResp := makeRequest(t, "POST", baseURL+"/scenarios", map[string]any{
		"name":   "AKI Detection",
		"source": akiScenario,
		"active": true,
	})
	scenarioID := createResp["id"].(string)

	ref := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for _, row := range []struct {
		at    time.Time
		value float64
	}{
		{ref.Add(-48 * time.Hour), 1.0},
		{ref.Add(-24 * time.Hour), 1.2},
		{ref, 1.5},
	} {
		_, err := db.Exec(`
			INSERT INTO observations (patient_id, signal_ref, observed_at, value)
			VALUES ($1, $2, $3, $4)
		`, "patient-1", "loinc:2160-0", row.at, row.value)
		if err != nil {
			t.Fatalf("Failed to insert observation: %v", err)
		}
	}

	evalResp := makeRequest(t, "POST", baseURL+"/evaluate", map[string]any{
		"scenarioId":    scenarioID,
		"patientId":     "patient-1",
		"referenceTime": ref,
	})
	result := evalResp["result"].(map[string]any)
	if result["triggered"] != true {
		t.Errorf("expected trigger from stored observations, got %v", result)
	}
}

// TestEndToEnd_RejectsBadScenario verifies that an invalid document is
// rejected with diagnostics and never persisted.
func TestEndToEnd_RejectsBadScenario(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ts := startServer(t, db)
	baseURL := ts.URL + "/api/v1"

	bad := map[string]any{
		"name": "Broken",
		// Comparison inside a trend expression is a compile error.
		"source": `
scenario: broken
version: "1.0.0"
signals:
  creatinine: loinc:2160-0
trends:
  cr_rise: delta(creatinine, 48h) >= 0.3
logic:
  alert: cr_rise >= 0.3
audit:
  intent: Intentionally invalid trend expression.
  rationale: The trend carries a comparison, which is rejected.
  provenance: Authoring tests, written 2026-01.
`,
		"active": true,
	}

	resp, err := makeHTTPRequest("POST", baseURL+"/scenarios", bad)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 Bad Request, got %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	diags, ok := body["diagnostics"].([]any)
	if !ok || len(diags) == 0 {
		t.Fatalf("Expected diagnostics in response, got %v", body)
	}

	listResp := makeRequestNoBody(t, "GET", baseURL+"/scenarios")
	if scenarios := listResp["scenarios"].([]any); len(scenarios) != 0 {
		t.Errorf("bad scenario must not be persisted, got %v", scenarios)
	}
}

// TestEndToEnd_UpdateAndDelete covers the remaining lifecycle.
func TestEndToEnd_UpdateAndDelete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ts := startServer(t, db)
	baseURL := ts.URL + "/api/v1"

	createResp := makeRequest(t, "POST", baseURL+"/scenarios", map[string]any{
		"name":   "AKI Detection",
		"source": akiScenario,
		"active": true,
	})
	scenarioID := createResp["id"].(string)

	updateResp := makeRequest(t, "PUT", baseURL+"/scenarios/"+scenarioID, map[string]any{
		"name":   "AKI Detection v2",
		"source": akiScenario + "description: tightened for ICU\n",
		"active": true,
	})
	if updateResp["specHash"] == createResp["specHash"] {
		t.Error("updated source must change the spec hash")
	}

	resp, err := makeHTTPRequest("DELETE", baseURL+"/scenarios/"+scenarioID, nil)
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}

	resp, err = makeHTTPRequest("GET", baseURL+"/scenarios/"+scenarioID, nil)
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", resp.StatusCode)
	}
}

// Helper functions for HTTP requests.

func makeRequest(t *testing.T, method, url string, body any) map[string]any {
	resp, err := makeHTTPRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to make %s request to %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("Request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return result
}

func makeRequestNoBody(t *testing.T, method, url string) map[string]any {
	return makeRequest(t, method, url, nil)
}

func makeHTTPRequest(method, url string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}
