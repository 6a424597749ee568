package core

import "buildcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	PropertyCategory   = domain.PropertyCategory
	FloorType          = domain.FloorType
	AllocationMethod   = domain.AllocationMethod
	Severity           = domain.Severity
	Base               = domain.Base
	Project            = domain.Project
	FloorTemplate      = domain.FloorTemplate
	Floor              = domain.Floor
	FloorSpace         = domain.FloorSpace
	UnitType           = domain.UnitType
	UnitAllocation     = domain.UnitAllocation
	CostLine           = domain.CostLine
	NonRentableType    = domain.NonRentableType
	CostMethod         = domain.CostMethod
	CalculationMethod  = domain.CalculationMethod
	DerivedMetrics     = domain.DerivedMetrics
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
)

const (
	EntityProject         = domain.EntityProject
	EntityFloorTemplate   = domain.EntityFloorTemplate
	EntityFloor           = domain.EntityFloor
	EntityUnitType        = domain.EntityUnitType
	EntityUnitAllocation  = domain.EntityUnitAllocation
	EntityCostLine        = domain.EntityCostLine
	EntityNonRentableType = domain.EntityNonRentableType
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

const (
	MethodAreaBasedCategory = domain.MethodAreaBasedCategory
	MethodUnitBasedCategory = domain.MethodUnitBasedCategory
	MethodAreaBasedUnitType = domain.MethodAreaBasedUnitType
	MethodUnitBasedUnitType = domain.MethodUnitBasedUnitType
	MethodLumpSum           = domain.MethodLumpSum
	MethodCustom            = domain.MethodCustom
)
