package domain

import (
	"encoding/json"
	"fmt"
)

// CalculationMethod enumerates the supported cost calculation formulas.
type CalculationMethod string

// Supported calculation method identifiers. The two *_unit_type methods scope
// a cost line to a single unit type; the others operate on whole categories.
const (
	MethodAreaBasedCategory CalculationMethod = "area_based_category"
	MethodUnitBasedCategory CalculationMethod = "unit_based_category"
	MethodAreaBasedUnitType CalculationMethod = "area_based_unit_type"
	MethodUnitBasedUnitType CalculationMethod = "unit_based_unit_type"
	MethodLumpSum           CalculationMethod = "lump_sum"
	MethodCustom            CalculationMethod = "custom"
)

// UsesUnitType reports whether the method requires a unit-type reference.
func (m CalculationMethod) UsesUnitType() bool {
	return m == MethodAreaBasedUnitType || m == MethodUnitBasedUnitType
}

// Valid reports whether the identifier is one of the six supported methods.
func (m CalculationMethod) Valid() bool {
	switch m {
	case MethodAreaBasedCategory, MethodUnitBasedCategory,
		MethodAreaBasedUnitType, MethodUnitBasedUnitType,
		MethodLumpSum, MethodCustom:
		return true
	}
	return false
}

// CostMethod pairs a calculation method with the unit-type reference the
// unit-type-scoped methods need. The constructors below are the only way to
// build one, so a category-level method can never carry a unit-type ID and a
// unit-type method can never lack one.
type CostMethod struct {
	kind       CalculationMethod
	unitTypeID string
}

// AreaBasedCategory prices against the category's total area.
func AreaBasedCategory() CostMethod { return CostMethod{kind: MethodAreaBasedCategory} }

// UnitBasedCategory prices against the category's total unit count.
func UnitBasedCategory() CostMethod { return CostMethod{kind: MethodUnitBasedCategory} }

// LumpSum prices as a flat amount equal to the rate.
func LumpSum() CostMethod { return CostMethod{kind: MethodLumpSum} }

// Custom leaves the total as a caller-supplied free input.
func Custom() CostMethod { return CostMethod{kind: MethodCustom} }

// AreaBasedUnitType prices against one unit type's area times its unit count.
func AreaBasedUnitType(unitTypeID string) (CostMethod, error) {
	if unitTypeID == "" {
		return CostMethod{}, fmt.Errorf("area_based_unit_type requires a unit type")
	}
	return CostMethod{kind: MethodAreaBasedUnitType, unitTypeID: unitTypeID}, nil
}

// UnitBasedUnitType prices against one unit type's unit count.
func UnitBasedUnitType(unitTypeID string) (CostMethod, error) {
	if unitTypeID == "" {
		return CostMethod{}, fmt.Errorf("unit_based_unit_type requires a unit type")
	}
	return CostMethod{kind: MethodUnitBasedUnitType, unitTypeID: unitTypeID}, nil
}

// NewCostMethod builds a method from its wire identifier and optional unit
// type, enforcing the coupling between the two.
func NewCostMethod(kind CalculationMethod, unitTypeID string) (CostMethod, error) {
	if !kind.Valid() {
		return CostMethod{}, fmt.Errorf("unknown calculation method %q", kind)
	}
	if kind.UsesUnitType() {
		if unitTypeID == "" {
			return CostMethod{}, fmt.Errorf("calculation method %s requires a unit type", kind)
		}
		return CostMethod{kind: kind, unitTypeID: unitTypeID}, nil
	}
	return CostMethod{kind: kind}, nil
}

// Kind returns the wire identifier of the method.
func (m CostMethod) Kind() CalculationMethod { return m.kind }

// UnitTypeID returns the unit-type reference and whether one is present.
func (m CostMethod) UnitTypeID() (string, bool) {
	return m.unitTypeID, m.unitTypeID != ""
}

// UsesUnitType reports whether the method is scoped to a unit type.
func (m CostMethod) UsesUnitType() bool { return m.kind.UsesUnitType() }

// IsZero reports whether the method has not been initialised.
func (m CostMethod) IsZero() bool { return m.kind == "" }

type costMethodJSON struct {
	Method     CalculationMethod `json:"calculation_method"`
	UnitTypeID *string           `json:"unit_type_id,omitempty"`
}

// MarshalJSON serialises the method as its identifier plus the unit-type
// reference when one is carried.
func (m CostMethod) MarshalJSON() ([]byte, error) {
	out := costMethodJSON{Method: m.kind}
	if m.unitTypeID != "" {
		id := m.unitTypeID
		out.UnitTypeID = &id
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and re-validates through NewCostMethod. An empty
// method defaults to area_based_category; a unit-type ID on a category-level
// method is dropped rather than rejected.
func (m *CostMethod) UnmarshalJSON(data []byte) error {
	var aux costMethodJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Method == "" {
		aux.Method = MethodAreaBasedCategory
	}
	id := ""
	if aux.UnitTypeID != nil {
		id = *aux.UnitTypeID
	}
	if !aux.Method.UsesUnitType() {
		id = ""
	}
	parsed, err := NewCostMethod(aux.Method, id)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
