// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by buildcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProject identifies the project settings record.
	EntityProject EntityType = "project"
	// EntityFloorTemplate identifies a reusable floor-plate template record.
	EntityFloorTemplate EntityType = "floor_template"
	// EntityFloor identifies a floor instance record.
	EntityFloor EntityType = "floor"
	// EntityUnitType identifies a unit-type inventory record.
	EntityUnitType EntityType = "unit_type"
	// EntityUnitAllocation identifies a per-floor unit allocation record.
	EntityUnitAllocation EntityType = "unit_allocation"
	// EntityCostLine identifies a hard-cost line record.
	EntityCostLine EntityType = "cost_line"
	// EntityNonRentableType identifies a non-rentable space type record.
	EntityNonRentableType EntityType = "non_rentable_type"
)

// PropertyCategory classifies unit inventory and cost lines (e.g. residential, office).
type PropertyCategory string

// FloorType distinguishes ordinary floors from special-purpose plates.
type FloorType string

// Canonical floor types recognised by the sequencer.
const (
	FloorTypeStandard   FloorType = "standard"
	FloorTypeMechanical FloorType = "mechanical"
	FloorTypePodium     FloorType = "podium"
	FloorTypeParking    FloorType = "parking"
)

// AllocationMethod describes how a non-rentable space type is spread across floors.
type AllocationMethod string

// Supported non-rentable allocation methods.
const (
	AllocationUniform    AllocationMethod = "uniform"
	AllocationPercentage AllocationMethod = "percentage"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project captures the development-wide inputs every derived metric depends on.
type Project struct {
	Base
	Name      string   `json:"name"`
	LandArea  float64  `json:"land_area"`
	TargetFAR *float64 `json:"target_far,omitempty"`
	MaxHeight *float64 `json:"max_height,omitempty"`
}

// FloorTemplate is a reusable named floor-plate definition referenced by floors.
// GrossArea is always present and non-negative. When both Width and Length are
// set the engine keeps GrossArea equal to their product unless the caller has
// supplied an explicit override in the same update.
type FloorTemplate struct {
	Base
	Name      string   `json:"name"`
	GrossArea float64  `json:"gross_area"`
	Width     *float64 `json:"width,omitempty"`
	Length    *float64 `json:"length,omitempty"`
	// Sequence is the monotonic creation order used to pick a deterministic
	// fallback when a referenced template is deleted.
	Sequence int `json:"sequence"`
}

// FloorSpace is a named sub-area carved out of a floor plate.
type FloorSpace struct {
	Name string  `json:"name"`
	Area float64 `json:"area"`
}

// Floor is one numbered level of the building. FloorNumber is the primary
// identity and ordering key: positive numbers are above grade, zero and
// negative numbers below grade. CustomArea, when set, overrides the
// template-derived area for this floor only.
type Floor struct {
	Base
	FloorNumber     int          `json:"floor_number"`
	Label           string       `json:"label"`
	IsUnderground   bool         `json:"is_underground"`
	FloorType       FloorType    `json:"floor_type"`
	TemplateID      *string      `json:"template_id"`
	CustomArea      *float64     `json:"custom_area,omitempty"`
	Height          *float64     `json:"height,omitempty"`
	CorePercent     *float64     `json:"core_percent,omitempty"`
	PrimaryUse      string       `json:"primary_use"`
	SecondaryUse    *string      `json:"secondary_use,omitempty"`
	Spaces          []FloorSpace `json:"spaces"`
	BuildingSystems []string     `json:"building_systems"`
}

// UnitType is a per-category unit inventory record. The inventory aggregates
// Area*Units per category for area-based cost methods and Units per category
// for unit-based ones.
type UnitType struct {
	Base
	Name     string           `json:"name"`
	Category PropertyCategory `json:"category"`
	Area     float64          `json:"area"`
	Units    int              `json:"units"`
	Width    *float64         `json:"width,omitempty"`
	Length   *float64         `json:"length,omitempty"`
}

// UnitAllocation places a quantity of one unit type on one floor.
type UnitAllocation struct {
	Base
	FloorNumber int    `json:"floor_number"`
	UnitTypeID  string `json:"unit_type_id"`
	Quantity    int    `json:"quantity"`
}

// CostLine is one hard-cost record scoped to a property type and optionally
// to a single unit type via its CostMethod. Total is derived from Method and
// Rate except under the custom method, where it is a free input.
type CostLine struct {
	Base
	PropertyType PropertyCategory `json:"property_type"`
	CostCategory string           `json:"cost_category"`
	Method       CostMethod       `json:"method"`
	Rate         *float64         `json:"rate"`
	Total        *float64         `json:"total"`
	Notes        *string          `json:"notes,omitempty"`
}

// NonRentableType models lobby/mechanical/circulation space deducted from
// rentable area.
type NonRentableType struct {
	Base
	Name             string           `json:"name"`
	SquareFootage    float64          `json:"square_footage"`
	AllocationMethod AllocationMethod `json:"allocation_method"`
	Percentage       *float64         `json:"percentage,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine along with the change
// records the committed transaction produced.
type Result struct {
	Violations []Violation
	Changes    []Change
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
