package core

import (
	"context"
	"fmt"

	"buildcore/pkg/domain"
)

// NewDefaultRulesEngine wires the invariant rules every service instance
// evaluates before commit.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(costMethodCouplingRule{})
	engine.Register(templateReferenceRule{})
	engine.Register(nonNegativeAreaRule{})
	return engine
}

// costMethodCouplingRule blocks cost lines whose method and unit-type
// reference disagree: unit-type methods require a reference to an existing
// unit type, category methods must not carry one.
type costMethodCouplingRule struct{}

func (costMethodCouplingRule) Name() string { return "cost_method_coupling" }

func (costMethodCouplingRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, line := range view.ListCostLines() {
		id, hasRef := line.Method.UnitTypeID()
		if line.Method.UsesUnitType() {
			if !hasRef {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "cost_method_coupling",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("cost line %s uses method %s without a unit type", line.ID, line.Method.Kind()),
					Entity:   domain.EntityCostLine,
					EntityID: line.ID,
				})
				continue
			}
			if _, ok := view.FindUnitType(id); !ok {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "cost_method_coupling",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("cost line %s references missing unit type %s", line.ID, id),
					Entity:   domain.EntityCostLine,
					EntityID: line.ID,
				})
			}
			continue
		}
		if hasRef {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "cost_method_coupling",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cost line %s carries a unit type under category method %s", line.ID, line.Method.Kind()),
				Entity:   domain.EntityCostLine,
				EntityID: line.ID,
			})
		}
	}
	return res, nil
}

// templateReferenceRule warns about floors pointing at templates that no
// longer exist. Derived area treats these floors as zero, so the state is
// usable but worth surfacing.
type templateReferenceRule struct{}

func (templateReferenceRule) Name() string { return "template_reference" }

func (templateReferenceRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, floor := range view.ListFloors() {
		if floor.TemplateID == nil {
			continue
		}
		if _, ok := view.FindFloorTemplate(*floor.TemplateID); !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "template_reference",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("floor %d references missing template %s", floor.FloorNumber, *floor.TemplateID),
				Entity:   domain.EntityFloor,
				EntityID: floor.ID,
			})
		}
	}
	return res, nil
}

// nonNegativeAreaRule blocks negative areas anywhere in the model.
type nonNegativeAreaRule struct{}

func (nonNegativeAreaRule) Name() string { return "non_negative_area" }

func (nonNegativeAreaRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	block := func(entity domain.EntityType, id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "non_negative_area",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   entity,
			EntityID: id,
		})
	}
	for _, tpl := range view.ListFloorTemplates() {
		if tpl.GrossArea < 0 {
			block(domain.EntityFloorTemplate, tpl.ID, fmt.Sprintf("template %q has negative gross area", tpl.Name))
		}
	}
	for _, floor := range view.ListFloors() {
		if floor.CustomArea != nil && *floor.CustomArea < 0 {
			block(domain.EntityFloor, floor.ID, fmt.Sprintf("floor %d has negative custom area", floor.FloorNumber))
		}
	}
	for _, unit := range view.ListUnitTypes() {
		if unit.Area < 0 {
			block(domain.EntityUnitType, unit.ID, fmt.Sprintf("unit type %q has negative area", unit.Name))
		}
		if unit.Units < 0 {
			block(domain.EntityUnitType, unit.ID, fmt.Sprintf("unit type %q has negative unit count", unit.Name))
		}
	}
	for _, nr := range view.ListNonRentableTypes() {
		if nr.SquareFootage < 0 {
			block(domain.EntityNonRentableType, nr.ID, fmt.Sprintf("non-rentable type %q has negative area", nr.Name))
		}
	}
	return res, nil
}
