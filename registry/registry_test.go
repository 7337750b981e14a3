package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretide/scenario"
	"github.com/caretide/scenario/eval"
	"github.com/caretide/scenario/store"
)

const validSource = `
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

const badSource = `
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
`

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(store.NewInMemoryScenarioStore())
	require.NoError(t, err)
	return reg
}

func TestCompileSourceDiagnostics(t *testing.T) {
	ir, diags, err := CompileSource([]byte(validSource))
	require.NoError(t, err)
	require.NotNil(t, ir)
	assert.True(t, ir.Diagnostics.Success)
	assert.Empty(t, diags)

	_, diags, err = CompileSource([]byte(badSource))
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.True(t, scenario.HasErrors(diags))
}

func TestRegistryAdd(t *testing.T) {
	reg := newRegistry(t)

	rec, ir, err := reg.Add("AKI Detection", validSource, true)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.True(t, ir.Diagnostics.Success)

	got, err := reg.IR(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.IRHash, got.IRHash)
}

func TestRegistryAddRejectsBadSource(t *testing.T) {
	reg := newRegistry(t)

	_, ir, err := reg.Add("Broken", badSource, true)
	require.Error(t, err)
	var ce *CompileError
	assert.True(t, errors.As(err, &ce))
	// The partial IR is returned so callers can surface diagnostics.
	require.NotNil(t, ir)
	assert.False(t, ir.Diagnostics.Success)

	// Nothing was persisted.
	records, err := reg.ListActive()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRegistryInactiveNotCompiled(t *testing.T) {
	reg := newRegistry(t)

	rec, _, err := reg.Add("AKI Detection", validSource, false)
	require.NoError(t, err)

	_, err = reg.IR(rec.ID)
	assert.Error(t, err, "inactive scenarios are not held compiled")

	// Activating through update compiles it.
	_, _, err = reg.Update(rec.ID, rec.Name, validSource, true)
	require.NoError(t, err)
	_, err = reg.IR(rec.ID)
	assert.NoError(t, err)
}

func TestRegistryUpdateSwapsIR(t *testing.T) {
	reg := newRegistry(t)

	rec, ir1, err := reg.Add("AKI Detection", validSource, true)
	require.NoError(t, err)

	changed := validSource + "description: updated\n"
	_, ir2, err := reg.Update(rec.ID, rec.Name, changed, true)
	require.NoError(t, err)
	assert.NotEqual(t, ir1.SpecHash, ir2.SpecHash)

	got, err := reg.IR(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, ir2.SpecHash, got.SpecHash)
}

func TestRegistryUpdateRejectsBadSource(t *testing.T) {
	reg := newRegistry(t)

	rec, ir1, err := reg.Add("AKI Detection", validSource, true)
	require.NoError(t, err)

	_, _, err = reg.Update(rec.ID, rec.Name, badSource, true)
	require.Error(t, err)

	// The previous IR stays live.
	got, err := reg.IR(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, ir1.IRHash, got.IRHash)
}

func TestRegistryDelete(t *testing.T) {
	reg := newRegistry(t)

	rec, _, err := reg.Add("AKI Detection", validSource, true)
	require.NoError(t, err)

	require.NoError(t, reg.Delete(rec.ID))
	_, err = reg.IR(rec.ID)
	assert.Error(t, err)
	assert.Error(t, reg.Delete(rec.ID))
}

func TestRegistryLoadAll(t *testing.T) {
	st := store.NewInMemoryScenarioStore()
	require.NoError(t, st.Add(&store.Record{
		ID: "pre-seeded", Name: "AKI Detection", Source: validSource, Active: true,
	}))

	reg, err := New(st)
	require.NoError(t, err)
	_, err = reg.IR("pre-seeded")
	assert.NoError(t, err)
}

func TestRegistryEvaluate(t *testing.T) {
	reg := newRegistry(t)
	rec, _, err := reg.Add("AKI Detection", validSource, true)
	require.NoError(t, err)

	ref := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	res, err := reg.Evaluate(rec.ID, eval.Request{
		PatientID:     "patient-1",
		ReferenceTime: ref,
		Signals: map[string][]scenario.DataPoint{
			"creatinine": {
				scenario.NewPoint(ref.Add(-48*time.Hour), 1.0),
				scenario.NewPoint(ref, 1.5),
			},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.Equal(t, []string{"aki_stage_1"}, res.TriggeredLogic)
}
