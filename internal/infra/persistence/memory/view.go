package memory

import "buildcore/pkg/domain"

type transactionView struct {
	state *memoryState
}

var _ domain.TransactionView = transactionView{}

// Project returns the project settings record.
func (v transactionView) Project() Project {
	return cloneProject(v.state.project)
}

// ListFloorTemplates returns all templates in the snapshot.
func (v transactionView) ListFloorTemplates() []FloorTemplate {
	out := make([]FloorTemplate, 0, len(v.state.templates))
	for _, t := range v.state.templates {
		out = append(out, cloneTemplate(t))
	}
	return out
}

// ListFloors returns all floors in the snapshot.
func (v transactionView) ListFloors() []Floor {
	out := make([]Floor, 0, len(v.state.floors))
	for _, f := range v.state.floors {
		out = append(out, cloneFloor(f))
	}
	return out
}

// ListUnitTypes returns all unit types in the snapshot.
func (v transactionView) ListUnitTypes() []UnitType {
	out := make([]UnitType, 0, len(v.state.unitTypes))
	for _, u := range v.state.unitTypes {
		out = append(out, cloneUnitType(u))
	}
	return out
}

// ListUnitAllocations returns all unit allocations in the snapshot.
func (v transactionView) ListUnitAllocations() []UnitAllocation {
	out := make([]UnitAllocation, 0, len(v.state.allocations))
	for _, a := range v.state.allocations {
		out = append(out, cloneAllocation(a))
	}
	return out
}

// ListCostLines returns all cost lines in the snapshot.
func (v transactionView) ListCostLines() []CostLine {
	out := make([]CostLine, 0, len(v.state.costLines))
	for _, c := range v.state.costLines {
		out = append(out, cloneCostLine(c))
	}
	return out
}

// ListNonRentableTypes returns all non-rentable space types in the snapshot.
func (v transactionView) ListNonRentableTypes() []NonRentableType {
	out := make([]NonRentableType, 0, len(v.state.nonRentable))
	for _, n := range v.state.nonRentable {
		out = append(out, cloneNonRentable(n))
	}
	return out
}

// FindFloorTemplate retrieves a template by ID from the snapshot.
func (v transactionView) FindFloorTemplate(id string) (FloorTemplate, bool) {
	t, ok := v.state.templates[id]
	if !ok {
		return FloorTemplate{}, false
	}
	return cloneTemplate(t), true
}

// FindFloor retrieves a floor by number from the snapshot.
func (v transactionView) FindFloor(number int) (Floor, bool) {
	f, ok := v.state.floors[number]
	if !ok {
		return Floor{}, false
	}
	return cloneFloor(f), true
}

// FindUnitType retrieves a unit type by ID from the snapshot.
func (v transactionView) FindUnitType(id string) (UnitType, bool) {
	u, ok := v.state.unitTypes[id]
	if !ok {
		return UnitType{}, false
	}
	return cloneUnitType(u), true
}

// FindCostLine retrieves a cost line by ID from the snapshot.
func (v transactionView) FindCostLine(id string) (CostLine, bool) {
	c, ok := v.state.costLines[id]
	if !ok {
		return CostLine{}, false
	}
	return cloneCostLine(c), true
}

// Read helpers ---------------------------------------------------------------

// Project returns the project settings from committed state.
func (s *Store) Project() Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProject(s.state.project)
}

// ListFloorTemplates returns all templates from committed state.
func (s *Store) ListFloorTemplates() []FloorTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.ListFloorTemplates()
}

// ListFloors returns all floors from committed state.
func (s *Store) ListFloors() []Floor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.ListFloors()
}

// ListUnitTypes returns all unit types from committed state.
func (s *Store) ListUnitTypes() []UnitType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.ListUnitTypes()
}

// ListUnitAllocations returns all unit allocations from committed state.
func (s *Store) ListUnitAllocations() []UnitAllocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.ListUnitAllocations()
}

// ListCostLines returns all cost lines from committed state.
func (s *Store) ListCostLines() []CostLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.ListCostLines()
}

// ListNonRentableTypes returns all non-rentable space types from committed state.
func (s *Store) ListNonRentableTypes() []NonRentableType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.ListNonRentableTypes()
}
