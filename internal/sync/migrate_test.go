package sync

import (
	"encoding/json"
	"testing"
)

func TestMigrateEnvelopeV1ToCurrent(t *testing.T) {
	raw := []byte(`{
		"project": {"name": "Tower", "land_area": 10000, "efficiency_factor": 0.82},
		"floors": {
			"1": {"id": "f-1", "floor_number": "1"},
			"2": {"id": "f-2", "floor_number": "junk"}
		},
		"cost_lines": {
			"c-1": {"id": "c-1", "cost_type": "shell"},
			"c-2": {"id": "c-2", "cost_category": "ti", "method": {"calculation_method": ""}}
		}
	}`)
	migrated, from, err := MigrateEnvelope(raw)
	if err != nil {
		t.Fatalf("MigrateEnvelope: %v", err)
	}
	if from != 1 {
		t.Fatalf("missing state_version should read as v1, got %d", from)
	}

	var envelope map[string]any
	if err := json.Unmarshal(migrated, &envelope); err != nil {
		t.Fatalf("decode migrated envelope: %v", err)
	}
	if v := envelope["state_version"].(float64); int(v) != CurrentStateVersion {
		t.Fatalf("migrated version = %v, want %d", v, CurrentStateVersion)
	}

	project := envelope["project"].(map[string]any)
	if _, ok := project["efficiency_factor"]; ok {
		t.Fatalf("v2 should drop the stored efficiency_factor")
	}

	floors := envelope["floors"].(map[string]any)
	floor1 := floors["1"].(map[string]any)
	if n, ok := floor1["floor_number"].(float64); !ok || int(n) != 1 {
		t.Fatalf("string floor number should coerce to 1, got %v", floor1["floor_number"])
	}
	if _, ok := floors["2"]; ok {
		t.Fatalf("floor with unparsable number should be dropped")
	}

	lines := envelope["cost_lines"].(map[string]any)
	line1 := lines["c-1"].(map[string]any)
	if line1["cost_category"] != "shell" {
		t.Fatalf("cost_type should rename to cost_category, got %v", line1["cost_category"])
	}
	if _, ok := line1["cost_type"]; ok {
		t.Fatalf("legacy cost_type key should be removed")
	}
	method1 := line1["method"].(map[string]any)
	if method1["calculation_method"] != "area_based_category" {
		t.Fatalf("absent method should default, got %v", method1["calculation_method"])
	}
	line2 := lines["c-2"].(map[string]any)
	method2 := line2["method"].(map[string]any)
	if method2["calculation_method"] != "area_based_category" {
		t.Fatalf("empty method should default, got %v", method2["calculation_method"])
	}
	if line2["cost_category"] != "ti" {
		t.Fatalf("existing cost_category should survive, got %v", line2["cost_category"])
	}
}

func TestMigrateEnvelopeCurrentIsNoOp(t *testing.T) {
	raw := []byte(`{"state_version": 3, "project": {"name": "Tower"}, "cost_lines": {"c-1": {"cost_type": "legacy"}}}`)
	migrated, from, err := MigrateEnvelope(raw)
	if err != nil {
		t.Fatalf("MigrateEnvelope: %v", err)
	}
	if from != CurrentStateVersion {
		t.Fatalf("from = %d, want %d", from, CurrentStateVersion)
	}
	var envelope map[string]any
	if err := json.Unmarshal(migrated, &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// No migration step runs at the current version, even over legacy-shaped fields.
	line := envelope["cost_lines"].(map[string]any)["c-1"].(map[string]any)
	if _, ok := line["cost_type"]; !ok {
		t.Fatalf("current envelope must pass through untouched")
	}
}

func TestMigrateEnvelopeNewerVersionRejected(t *testing.T) {
	_, from, err := MigrateEnvelope([]byte(`{"state_version": 99}`))
	if err == nil {
		t.Fatalf("expected rejection of newer envelope")
	}
	if from != 99 {
		t.Fatalf("from = %d, want 99", from)
	}
}

func TestMigrateEnvelopeMalformed(t *testing.T) {
	if _, _, err := MigrateEnvelope([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
