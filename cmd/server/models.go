package main

import (
	"time"

	"github.com/caretide/scenario"
	"github.com/caretide/scenario/compiler"
)

// API request and response models.

// CreateScenarioRequest is the body for creating a scenario.
type CreateScenarioRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Active bool   `json:"active"`
}

// UpdateScenarioRequest is the body for updating a scenario.
type UpdateScenarioRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Active bool   `json:"active"`
}

// ScenarioResponse is one scenario in API responses.
type ScenarioResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Source    string    `json:"source,omitempty"`
	Active    bool      `json:"active"`
	SpecHash  string    `json:"specHash,omitempty"`
	IRHash    string    `json:"irHash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ScenariosListResponse is the body for listing scenarios.
type ScenariosListResponse struct {
	Scenarios []ScenarioResponse `json:"scenarios"`
}

// DiagnosticsResponse reports a failed load or compile.
type DiagnosticsResponse struct {
	Error       string                `json:"error"`
	Diagnostics []scenario.Diagnostic `json:"diagnostics,omitempty"`
}

// ObservationInput is one data point in an evaluate request. A null
// value is an observation recorded with no usable measurement.
type ObservationInput struct {
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"`
}

// EvaluateRequest is the body for evaluating a scenario against one
// patient. Signals may be supplied inline; when omitted, the server
// fetches observations from its data source over the scenario's
// maximum lookback window.
type EvaluateRequest struct {
	ScenarioID    string                        `json:"scenarioId"`
	PatientID     string                        `json:"patientId"`
	ReferenceTime time.Time                     `json:"referenceTime"`
	Signals       map[string][]ObservationInput `json:"signals,omitempty"`
	Attributes    map[string]any                `json:"attributes,omitempty"`
	PreviousState string                        `json:"previousState,omitempty"`
}

// EvaluateResponse wraps an evaluation result with timing.
type EvaluateResponse struct {
	Result         *scenario.EvaluationResult `json:"result"`
	IRHash         string                     `json:"irHash"`
	EvaluationTime string                     `json:"evaluationTime"`
}

// ArtifactResponse is the audit export of a compiled scenario.
type ArtifactResponse = compiler.Artifact

// HealthResponse is the health check body.
type HealthResponse struct {
	Status          string `json:"status"`
	ScenariosLoaded int    `json:"scenariosLoaded"`
}
