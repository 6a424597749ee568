package sync

import (
	"encoding/json"
	"fmt"
	"strconv"

	"buildcore/internal/observability"
)

// CurrentStateVersion is the schema version written by this build. Envelopes
// from older builds are migrated step by step on load.
const CurrentStateVersion = 3

// MigrateEnvelope upgrades a serialized snapshot envelope to
// CurrentStateVersion. It returns the upgraded payload and the version it
// started from. Envelopes without a state_version field are treated as v1.
// Migrating an already-current envelope is a no-op.
func MigrateEnvelope(raw []byte) ([]byte, int, error) {
	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, 0, fmt.Errorf("decode envelope: %w", err)
	}
	version := 1
	if v, ok := envelope["state_version"].(float64); ok && int(v) > 0 {
		version = int(v)
	}
	if version > CurrentStateVersion {
		return nil, version, fmt.Errorf("envelope version %d is newer than supported %d", version, CurrentStateVersion)
	}
	started := version
	for version < CurrentStateVersion {
		switch version {
		case 1:
			migrateV1toV2(envelope)
		case 2:
			migrateV2toV3(envelope)
		}
		observability.MigrationsTotal.WithLabelValues(strconv.Itoa(version), strconv.Itoa(version+1)).Inc()
		version++
	}
	envelope["state_version"] = version
	out, err := json.Marshal(envelope)
	if err != nil {
		return nil, started, fmt.Errorf("encode envelope: %w", err)
	}
	return out, started, nil
}

// v1 stored a derived efficiency_factor on the project and allowed
// string-typed floor numbers. v2 drops the stored derivation and normalizes
// floor numbers to integers.
func migrateV1toV2(envelope map[string]any) {
	if project, ok := envelope["project"].(map[string]any); ok {
		delete(project, "efficiency_factor")
	}
	if floors, ok := envelope["floors"].(map[string]any); ok {
		for key, value := range floors {
			floor, ok := value.(map[string]any)
			if !ok {
				continue
			}
			if s, ok := floor["floor_number"].(string); ok {
				if n, err := strconv.Atoi(s); err == nil {
					floor["floor_number"] = n
				} else {
					delete(floors, key)
				}
			}
		}
	}
}

// v2 named the cost grouping field cost_type and allowed cost lines without
// a calculation method. v3 renames the field and defaults the method to
// area_based_category.
func migrateV2toV3(envelope map[string]any) {
	lines, ok := envelope["cost_lines"].(map[string]any)
	if !ok {
		return
	}
	for _, value := range lines {
		line, ok := value.(map[string]any)
		if !ok {
			continue
		}
		if legacy, ok := line["cost_type"]; ok {
			if _, exists := line["cost_category"]; !exists {
				line["cost_category"] = legacy
			}
			delete(line, "cost_type")
		}
		method, ok := line["method"].(map[string]any)
		if !ok {
			line["method"] = map[string]any{"calculation_method": "area_based_category"}
			continue
		}
		if kind, ok := method["calculation_method"].(string); !ok || kind == "" {
			method["calculation_method"] = "area_based_category"
		}
	}
}
