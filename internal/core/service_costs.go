package core

import (
	"context"
	"sort"
	"strings"

	"buildcore/pkg/domain"
)

// AddCostLine creates a cost line for a property type. With a unit type the
// line starts as area_based_unit_type; otherwise area_based_category. Rate
// and total start null.
func (s *Service) AddCostLine(ctx context.Context, propertyType PropertyCategory, costCategory string, unitTypeID *string) (CostLine, Result, error) {
	if propertyType == "" {
		return CostLine{}, Result{}, ValidationError{Field: "property_type", Reason: "required"}
	}
	if strings.TrimSpace(costCategory) == "" {
		return CostLine{}, Result{}, ValidationError{Field: "cost_category", Reason: "required"}
	}
	method := domain.AreaBasedCategory()
	if unitTypeID != nil {
		unit, ok := s.findUnitType(*unitTypeID)
		if !ok {
			return CostLine{}, Result{}, ErrNotFound{Entity: EntityUnitType, ID: *unitTypeID}
		}
		if unit.Category != propertyType {
			return CostLine{}, Result{}, ValidationError{Field: "unit_type_id", Reason: "unit type belongs to a different property type"}
		}
		m, err := domain.AreaBasedUnitType(*unitTypeID)
		if err != nil {
			return CostLine{}, Result{}, err
		}
		method = m
	}

	var created CostLine
	res, err := s.run(ctx, "add_cost_line", func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateCostLine(CostLine{
			PropertyType: propertyType,
			CostCategory: costCategory,
			Method:       method,
		})
		return err
	})
	return created, res, err
}

// CostLineUpdate is a partial update to a cost line. Switching Method fixes
// up the unit-type reference atomically: entering a unit-type method without
// UnitTypeID picks the property type's default unit type; leaving clears it.
type CostLineUpdate struct {
	CostCategory *string
	Method       *CalculationMethod
	UnitTypeID   *string
	Rate         *float64
	ClearRate    bool
	Total        *float64
	Notes        *string
}

// UpdateCostLine applies a partial update and rederives the total whenever
// the rate or method changed and the resulting method is not custom. A null
// rate always yields a null total for derived methods.
func (s *Service) UpdateCostLine(ctx context.Context, id string, update CostLineUpdate) (CostLine, Result, error) {
	var updated CostLine
	res, err := s.run(ctx, "update_cost_line", func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateCostLine(id, func(c *CostLine) error {
			recompute := false
			if update.CostCategory != nil {
				c.CostCategory = *update.CostCategory
			}
			if update.Notes != nil {
				c.Notes = update.Notes
			}
			if update.ClearRate {
				c.Rate = nil
				recompute = true
			} else if update.Rate != nil {
				c.Rate = update.Rate
				recompute = true
			}
			if update.Method != nil && *update.Method != c.Method.Kind() {
				method, err := s.resolveMethodSwitch(tx.Snapshot(), c, *update.Method, update.UnitTypeID)
				if err != nil {
					return err
				}
				c.Method = method
				recompute = true
			} else if update.UnitTypeID != nil && c.Method.UsesUnitType() {
				method, err := s.resolveMethodSwitch(tx.Snapshot(), c, c.Method.Kind(), update.UnitTypeID)
				if err != nil {
					return err
				}
				c.Method = method
				recompute = true
			}
			if c.Method.Kind() == MethodCustom {
				if update.Total != nil {
					c.Total = update.Total
				}
				return nil
			}
			if recompute {
				recomputeCostLineTotal(c, tx.Snapshot())
			}
			return nil
		})
		return err
	})
	return updated, res, err
}

// DeleteCostLine removes a cost line unconditionally.
func (s *Service) DeleteCostLine(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_cost_line", func(tx domain.Transaction) error {
		return tx.DeleteCostLine(id)
	})
}

// resolveMethodSwitch builds the new method value for a method change,
// assigning a default unit type when entering a unit-type method with none
// selected and clearing the reference when leaving.
func (s *Service) resolveMethodSwitch(view domain.TransactionView, line *CostLine, kind CalculationMethod, explicitUnitType *string) (CostMethod, error) {
	if !kind.Valid() {
		return CostMethod{}, ValidationError{Field: "calculation_method", Reason: "unknown method"}
	}
	if !kind.UsesUnitType() {
		return domain.NewCostMethod(kind, "")
	}
	unitTypeID := ""
	if explicitUnitType != nil {
		unitTypeID = *explicitUnitType
	} else if current, ok := line.Method.UnitTypeID(); ok {
		unitTypeID = current
	} else if def, ok := defaultUnitTypeFor(view, line.PropertyType); ok {
		unitTypeID = def
	}
	if unitTypeID == "" {
		return CostMethod{}, ValidationError{Field: "unit_type_id", Reason: "no unit type available for property type"}
	}
	unit, ok := view.FindUnitType(unitTypeID)
	if !ok {
		return CostMethod{}, ErrNotFound{Entity: EntityUnitType, ID: unitTypeID}
	}
	if unit.Category != line.PropertyType {
		return CostMethod{}, ValidationError{Field: "unit_type_id", Reason: "unit type belongs to a different property type"}
	}
	return domain.NewCostMethod(kind, unitTypeID)
}

// defaultUnitTypeFor picks the deterministic default unit type for a property
// type: lowest name, ties broken by ID.
func defaultUnitTypeFor(view domain.TransactionView, category PropertyCategory) (string, bool) {
	candidates := make([]UnitType, 0)
	for _, u := range view.ListUnitTypes() {
		if u.Category == category {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Name != candidates[j].Name {
			return candidates[i].Name < candidates[j].Name
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0].ID, true
}

// recomputeCostLineTotal rederives a non-custom line's total from its method
// and rate against the current inventory aggregates.
func recomputeCostLineTotal(line *CostLine, view domain.TransactionView) {
	if line.Method.Kind() == MethodCustom {
		return
	}
	if line.Rate == nil {
		line.Total = nil
		return
	}
	rate := *line.Rate
	var total float64
	switch line.Method.Kind() {
	case MethodAreaBasedCategory:
		total = rate * categoryArea(view, line.PropertyType)
	case MethodUnitBasedCategory:
		total = rate * float64(categoryUnits(view, line.PropertyType))
	case MethodAreaBasedUnitType:
		if unit, ok := lineUnitType(view, line); ok {
			total = rate * unit.Area * float64(unit.Units)
		}
	case MethodUnitBasedUnitType:
		if unit, ok := lineUnitType(view, line); ok {
			total = rate * float64(unit.Units)
		}
	case MethodLumpSum:
		total = rate
	}
	line.Total = &total
}

func lineUnitType(view domain.TransactionView, line *CostLine) (UnitType, bool) {
	id, ok := line.Method.UnitTypeID()
	if !ok {
		return UnitType{}, false
	}
	return view.FindUnitType(id)
}

func categoryArea(view domain.TransactionView, category PropertyCategory) float64 {
	total := 0.0
	for _, u := range view.ListUnitTypes() {
		if u.Category == category {
			total += u.Area * float64(u.Units)
		}
	}
	return total
}

func categoryUnits(view domain.TransactionView, category PropertyCategory) int {
	total := 0
	for _, u := range view.ListUnitTypes() {
		if u.Category == category {
			total += u.Units
		}
	}
	return total
}

// Subtotal sums the totals of every cost line under one property type,
// including unit-type-scoped lines.
func (s *Service) Subtotal(propertyType PropertyCategory) float64 {
	total := 0.0
	for _, line := range s.store.ListCostLines() {
		if line.PropertyType == propertyType && line.Total != nil {
			total += *line.Total
		}
	}
	return total
}

// GrandTotal sums the totals across all cost lines.
func (s *Service) GrandTotal() float64 {
	total := 0.0
	for _, line := range s.store.ListCostLines() {
		if line.Total != nil {
			total += *line.Total
		}
	}
	return total
}

// CostPerGrossSF divides the grand total by the total inventory area across
// all property types; zero when there is no area.
func (s *Service) CostPerGrossSF() float64 {
	area := 0.0
	for _, units := range s.PropertyAreas() {
		area += units
	}
	if area <= 0 {
		return 0
	}
	return s.GrandTotal() / area
}

// CostSplit expresses shell, tenant-improvement, and other cost shares as
// percentages of the grand total.
type CostSplit struct {
	ShellPercent float64 `json:"shell_percent"`
	TIPercent    float64 `json:"ti_percent"`
	OtherPercent float64 `json:"other_percent"`
}

// ShellVsTI partitions cost lines by cost category, matching "shell" and
// "ti" case-insensitively and bucketing the remainder as other. All shares
// are zero when the grand total is zero.
func (s *Service) ShellVsTI() CostSplit {
	grand := s.GrandTotal()
	if grand == 0 {
		return CostSplit{}
	}
	var shell, ti, other float64
	for _, line := range s.store.ListCostLines() {
		if line.Total == nil {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(line.CostCategory)) {
		case "shell":
			shell += *line.Total
		case "ti":
			ti += *line.Total
		default:
			other += *line.Total
		}
	}
	return CostSplit{
		ShellPercent: shell / grand * 100,
		TIPercent:    ti / grand * 100,
		OtherPercent: other / grand * 100,
	}
}

// CostLines returns all cost lines sorted by property type then category.
func (s *Service) CostLines() []CostLine {
	lines := s.store.ListCostLines()
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].PropertyType != lines[j].PropertyType {
			return lines[i].PropertyType < lines[j].PropertyType
		}
		if lines[i].CostCategory != lines[j].CostCategory {
			return lines[i].CostCategory < lines[j].CostCategory
		}
		return lines[i].ID < lines[j].ID
	})
	return lines
}

func (s *Service) findUnitType(id string) (UnitType, bool) {
	for _, u := range s.store.ListUnitTypes() {
		if u.ID == id {
			return u, true
		}
	}
	return UnitType{}, false
}
