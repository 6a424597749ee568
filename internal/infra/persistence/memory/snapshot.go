package memory

import (
	"sort"

	"buildcore/pkg/domain"
)

// Snapshot captures a point-in-time clone of the store state. It is the unit
// of exchange between the engine, the local cache, the remote store loader,
// and the archive backend.
type Snapshot struct {
	StateVersion int                        `json:"state_version"`
	Project      Project                    `json:"project"`
	Templates    map[string]FloorTemplate   `json:"floor_templates"`
	Floors       map[int]Floor              `json:"floors"`
	UnitTypes    map[string]UnitType        `json:"unit_types"`
	Allocations  map[string]UnitAllocation  `json:"unit_allocations"`
	CostLines    map[string]CostLine        `json:"cost_lines"`
	NonRentable  map[string]NonRentableType `json:"non_rentable_types"`
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot after
// normalizing it. Referential noise (dangling template, unit type, or floor
// references) is repaired rather than rejected so a stale cache can never
// leave the engine unusable.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(normalizeSnapshot(snapshot))
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	snap := Snapshot{
		Project:     cloneProject(state.project),
		Templates:   make(map[string]FloorTemplate, len(state.templates)),
		Floors:      make(map[int]Floor, len(state.floors)),
		UnitTypes:   make(map[string]UnitType, len(state.unitTypes)),
		Allocations: make(map[string]UnitAllocation, len(state.allocations)),
		CostLines:   make(map[string]CostLine, len(state.costLines)),
		NonRentable: make(map[string]NonRentableType, len(state.nonRentable)),
	}
	for k, v := range state.templates {
		snap.Templates[k] = cloneTemplate(v)
	}
	for k, v := range state.floors {
		snap.Floors[k] = cloneFloor(v)
	}
	for k, v := range state.unitTypes {
		snap.UnitTypes[k] = cloneUnitType(v)
	}
	for k, v := range state.allocations {
		snap.Allocations[k] = cloneAllocation(v)
	}
	for k, v := range state.costLines {
		snap.CostLines[k] = cloneCostLine(v)
	}
	for k, v := range state.nonRentable {
		snap.NonRentable[k] = cloneNonRentable(v)
	}
	return snap
}

func memoryStateFromSnapshot(snap Snapshot) memoryState {
	state := newMemoryState()
	state.project = cloneProject(snap.Project)
	maxSeq := 0
	for k, v := range snap.Templates {
		state.templates[k] = cloneTemplate(v)
		if v.Sequence > maxSeq {
			maxSeq = v.Sequence
		}
	}
	state.templateSeq = maxSeq
	for k, v := range snap.Floors {
		state.floors[k] = cloneFloor(v)
	}
	for k, v := range snap.UnitTypes {
		state.unitTypes[k] = cloneUnitType(v)
	}
	for k, v := range snap.Allocations {
		state.allocations[k] = cloneAllocation(v)
	}
	for k, v := range snap.CostLines {
		state.costLines[k] = cloneCostLine(v)
	}
	for k, v := range snap.NonRentable {
		state.nonRentable[k] = cloneNonRentable(v)
	}
	return state
}

func normalizeSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Templates == nil {
		snapshot.Templates = map[string]FloorTemplate{}
	}
	if snapshot.Floors == nil {
		snapshot.Floors = map[int]Floor{}
	}
	if snapshot.UnitTypes == nil {
		snapshot.UnitTypes = map[string]UnitType{}
	}
	if snapshot.Allocations == nil {
		snapshot.Allocations = map[string]UnitAllocation{}
	}
	if snapshot.CostLines == nil {
		snapshot.CostLines = map[string]CostLine{}
	}
	if snapshot.NonRentable == nil {
		snapshot.NonRentable = map[string]NonRentableType{}
	}

	// Re-sequence templates that predate the sequence field so fallback
	// ordering stays deterministic.
	needSeq := false
	for _, tpl := range snapshot.Templates {
		if tpl.Sequence == 0 {
			needSeq = true
			break
		}
	}
	if needSeq {
		ids := make([]string, 0, len(snapshot.Templates))
		for id := range snapshot.Templates {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for i, id := range ids {
			tpl := snapshot.Templates[id]
			tpl.Sequence = i + 1
			snapshot.Templates[id] = tpl
		}
	}

	fallback, hasFallback := lowestSequenceTemplate(snapshot.Templates)

	for num, floor := range snapshot.Floors {
		floor.FloorNumber = num
		if floor.TemplateID != nil {
			if _, ok := snapshot.Templates[*floor.TemplateID]; !ok {
				if hasFallback {
					id := fallback
					floor.TemplateID = &id
				} else {
					floor.TemplateID = nil
				}
			}
		}
		snapshot.Floors[num] = floor
	}

	for id, alloc := range snapshot.Allocations {
		if _, ok := snapshot.UnitTypes[alloc.UnitTypeID]; !ok {
			delete(snapshot.Allocations, id)
			continue
		}
		if _, ok := snapshot.Floors[alloc.FloorNumber]; !ok {
			delete(snapshot.Allocations, id)
		}
	}

	for id, line := range snapshot.CostLines {
		if unitTypeID, ok := line.Method.UnitTypeID(); ok {
			if _, exists := snapshot.UnitTypes[unitTypeID]; !exists {
				// Downgrade to the category-wide analog of the dangling method.
				if line.Method.Kind() == domain.MethodUnitBasedUnitType {
					line.Method = domain.UnitBasedCategory()
				} else {
					line.Method = domain.AreaBasedCategory()
				}
				snapshot.CostLines[id] = line
			}
		}
	}
	return snapshot
}

func lowestSequenceTemplate(templates map[string]FloorTemplate) (string, bool) {
	best := ""
	bestSeq := 0
	for id, tpl := range templates {
		if best == "" || tpl.Sequence < bestSeq || (tpl.Sequence == bestSeq && id < best) {
			best = id
			bestSeq = tpl.Sequence
		}
	}
	return best, best != ""
}
