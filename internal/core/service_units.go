package core

import (
	"context"
	"sort"
	"strings"

	"buildcore/pkg/domain"
)

// AddUnitType persists a new unit-type inventory record. When width and
// length are supplied without an explicit area, the area is their product.
func (s *Service) AddUnitType(ctx context.Context, unit UnitType) (UnitType, Result, error) {
	if strings.TrimSpace(unit.Name) == "" {
		return UnitType{}, Result{}, ValidationError{Field: "name", Reason: "required"}
	}
	if unit.Category == "" {
		return UnitType{}, Result{}, ValidationError{Field: "category", Reason: "required"}
	}
	if unit.Area == 0 && unit.Width != nil && unit.Length != nil {
		unit.Area = *unit.Width * *unit.Length
	}
	if unit.Area < 0 {
		return UnitType{}, Result{}, ValidationError{Field: "area", Reason: "must be non-negative"}
	}
	if unit.Units < 0 {
		return UnitType{}, Result{}, ValidationError{Field: "units", Reason: "must be non-negative"}
	}

	var created UnitType
	res, err := s.run(ctx, "add_unit_type", func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateUnitType(unit)
		return err
	})
	return created, res, err
}

// UnitTypeUpdate is a partial update to a unit type.
type UnitTypeUpdate struct {
	Name   *string
	Area   *float64
	Units  *int
	Width  *float64
	Length *float64
}

// UpdateUnitType applies a partial update. Dimension edits recompute the area
// unless the caller overrides it in the same call.
func (s *Service) UpdateUnitType(ctx context.Context, id string, update UnitTypeUpdate) (UnitType, Result, error) {
	if update.Area != nil && *update.Area < 0 {
		return UnitType{}, Result{}, ValidationError{Field: "area", Reason: "must be non-negative"}
	}
	if update.Units != nil && *update.Units < 0 {
		return UnitType{}, Result{}, ValidationError{Field: "units", Reason: "must be non-negative"}
	}
	var updated UnitType
	res, err := s.run(ctx, "update_unit_type", func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateUnitType(id, func(u *UnitType) error {
			dimsChanged := false
			if update.Name != nil {
				u.Name = *update.Name
			}
			if update.Units != nil {
				u.Units = *update.Units
			}
			if update.Width != nil {
				u.Width = update.Width
				dimsChanged = true
			}
			if update.Length != nil {
				u.Length = update.Length
				dimsChanged = true
			}
			switch {
			case update.Area != nil:
				u.Area = *update.Area
			case dimsChanged && u.Width != nil && u.Length != nil:
				u.Area = *u.Width * *u.Length
			}
			return nil
		})
		return err
	})
	return updated, res, err
}

// RemoveUnitType deletes a unit type. Allocations referencing it are removed
// and cost lines scoped to it are downgraded to the category-wide analog of
// their method in the same transaction.
func (s *Service) RemoveUnitType(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "remove_unit_type", func(tx domain.Transaction) error {
		if err := tx.DeleteUnitType(id); err != nil {
			return err
		}
		for _, line := range tx.Snapshot().ListCostLines() {
			unitTypeID, scoped := line.Method.UnitTypeID()
			if !scoped || unitTypeID != id {
				continue
			}
			downgraded := domain.AreaBasedCategory()
			if line.Method.Kind() == MethodUnitBasedUnitType {
				downgraded = domain.UnitBasedCategory()
			}
			if _, err := tx.UpdateCostLine(line.ID, func(c *CostLine) error {
				c.Method = downgraded
				recomputeCostLineTotal(c, tx.Snapshot())
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// AllocateUnits places a quantity of one unit type on a floor.
func (s *Service) AllocateUnits(ctx context.Context, floorNumber int, unitTypeID string, quantity int) (UnitAllocation, Result, error) {
	if quantity < 0 {
		return UnitAllocation{}, Result{}, ValidationError{Field: "quantity", Reason: "must be non-negative"}
	}
	var created UnitAllocation
	res, err := s.run(ctx, "allocate_units", func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateUnitAllocation(UnitAllocation{
			FloorNumber: floorNumber,
			UnitTypeID:  unitTypeID,
			Quantity:    quantity,
		})
		return err
	})
	return created, res, err
}

// UpdateAllocation changes the quantity of one allocation.
func (s *Service) UpdateAllocation(ctx context.Context, id string, quantity int) (UnitAllocation, Result, error) {
	if quantity < 0 {
		return UnitAllocation{}, Result{}, ValidationError{Field: "quantity", Reason: "must be non-negative"}
	}
	var updated UnitAllocation
	res, err := s.run(ctx, "update_allocation", func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateUnitAllocation(id, func(a *UnitAllocation) error {
			a.Quantity = quantity
			return nil
		})
		return err
	})
	return updated, res, err
}

// RemoveAllocation deletes one allocation.
func (s *Service) RemoveAllocation(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "remove_allocation", func(tx domain.Transaction) error {
		return tx.DeleteUnitAllocation(id)
	})
}

// PropertyAreas aggregates area times units per category across the inventory.
func (s *Service) PropertyAreas() map[PropertyCategory]float64 {
	out := make(map[PropertyCategory]float64)
	for _, u := range s.store.ListUnitTypes() {
		out[u.Category] += u.Area * float64(u.Units)
	}
	return out
}

// PropertyUnits aggregates unit counts per category across the inventory.
func (s *Service) PropertyUnits() map[PropertyCategory]int {
	out := make(map[PropertyCategory]int)
	for _, u := range s.store.ListUnitTypes() {
		out[u.Category] += u.Units
	}
	return out
}

// AllocatedUnits sums the placed quantity for one unit type across floors.
func (s *Service) AllocatedUnits(unitTypeID string) int {
	total := 0
	for _, a := range s.store.ListUnitAllocations() {
		if a.UnitTypeID == unitTypeID {
			total += a.Quantity
		}
	}
	return total
}

// UnitTypes returns the inventory sorted by category then name.
func (s *Service) UnitTypes() []UnitType {
	units := s.store.ListUnitTypes()
	sort.Slice(units, func(i, j int) bool {
		if units[i].Category != units[j].Category {
			return units[i].Category < units[j].Category
		}
		return units[i].Name < units[j].Name
	})
	return units
}

// AddNonRentableType persists a non-rentable space type.
func (s *Service) AddNonRentableType(ctx context.Context, nr NonRentableType) (NonRentableType, Result, error) {
	if strings.TrimSpace(nr.Name) == "" {
		return NonRentableType{}, Result{}, ValidationError{Field: "name", Reason: "required"}
	}
	if nr.SquareFootage < 0 {
		return NonRentableType{}, Result{}, ValidationError{Field: "square_footage", Reason: "must be non-negative"}
	}
	if nr.AllocationMethod == "" {
		nr.AllocationMethod = domain.AllocationUniform
	}
	var created NonRentableType
	res, err := s.run(ctx, "add_non_rentable_type", func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateNonRentableType(nr)
		return err
	})
	return created, res, err
}

// UpdateNonRentableType mutates a non-rentable space type via the mutator.
func (s *Service) UpdateNonRentableType(ctx context.Context, id string, mutator func(*NonRentableType) error) (NonRentableType, Result, error) {
	var updated NonRentableType
	res, err := s.run(ctx, "update_non_rentable_type", func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateNonRentableType(id, mutator)
		return err
	})
	return updated, res, err
}

// RemoveNonRentableType deletes a non-rentable space type.
func (s *Service) RemoveNonRentableType(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "remove_non_rentable_type", func(tx domain.Transaction) error {
		return tx.DeleteNonRentableType(id)
	})
}

// TotalNonRentableArea sums the square footage across all non-rentable types.
func (s *Service) TotalNonRentableArea() float64 {
	total := 0.0
	for _, nr := range s.store.ListNonRentableTypes() {
		total += nr.SquareFootage
	}
	return total
}
