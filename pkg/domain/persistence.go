package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Floors are addressed by floor number,
// their primary identity; all other entities by opaque ID.
type Transaction interface {
	Snapshot() TransactionView
	SetProject(Project) (Project, error)
	UpdateProject(mutator func(*Project) error) (Project, error)
	CreateFloorTemplate(FloorTemplate) (FloorTemplate, error)
	UpdateFloorTemplate(id string, mutator func(*FloorTemplate) error) (FloorTemplate, error)
	DeleteFloorTemplate(id string) error
	CreateFloor(Floor) (Floor, error)
	UpdateFloor(number int, mutator func(*Floor) error) (Floor, error)
	DeleteFloor(number int) error
	SwapFloorNumbers(a, b int) error
	CreateUnitType(UnitType) (UnitType, error)
	UpdateUnitType(id string, mutator func(*UnitType) error) (UnitType, error)
	DeleteUnitType(id string) error
	CreateUnitAllocation(UnitAllocation) (UnitAllocation, error)
	UpdateUnitAllocation(id string, mutator func(*UnitAllocation) error) (UnitAllocation, error)
	DeleteUnitAllocation(id string) error
	CreateCostLine(CostLine) (CostLine, error)
	UpdateCostLine(id string, mutator func(*CostLine) error) (CostLine, error)
	DeleteCostLine(id string) error
	CreateNonRentableType(NonRentableType) (NonRentableType, error)
	UpdateNonRentableType(id string, mutator func(*NonRentableType) error) (NonRentableType, error)
	DeleteNonRentableType(id string) error
}

// TransactionView provides read-only access to snapshot data for rules and
// derived computation.
type TransactionView interface {
	Project() Project
	ListFloorTemplates() []FloorTemplate
	ListFloors() []Floor
	ListUnitTypes() []UnitType
	ListUnitAllocations() []UnitAllocation
	ListCostLines() []CostLine
	ListNonRentableTypes() []NonRentableType
	FindFloorTemplate(id string) (FloorTemplate, bool)
	FindFloor(number int) (Floor, bool)
	FindUnitType(id string) (UnitType, bool)
	FindCostLine(id string) (CostLine, bool)
}

// EngineStore is the single state owner behind the engine service. All
// mutations are serialized through RunInTransaction.
type EngineStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Project() Project
	ListFloorTemplates() []FloorTemplate
	ListFloors() []Floor
	ListUnitTypes() []UnitType
	ListUnitAllocations() []UnitAllocation
	ListCostLines() []CostLine
	ListNonRentableTypes() []NonRentableType
}
