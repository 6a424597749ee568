package core

import (
	"context"
	"strconv"
	"strings"
)

// The UI hands us raw string form input. Required numeric fields coerce
// leniently: empty or non-numeric parses to 0. Optional fields map empty or
// non-numeric input to null so they fall back to derived values.

func coerceFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

func coerceOptionalFloat(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func coerceInt(raw string) int {
	raw = strings.TrimSpace(raw)
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return int(v)
	}
	return 0
}

// TemplateForm is a floor template submission with raw string numerics.
type TemplateForm struct {
	Name      string
	GrossArea string
	Width     string
	Length    string
}

// AddFloorTemplateForm coerces a raw form submission and creates the
// template.
func (s *Service) AddFloorTemplateForm(ctx context.Context, form TemplateForm) (FloorTemplate, Result, error) {
	return s.AddFloorTemplate(ctx, FloorTemplate{
		Name:      form.Name,
		GrossArea: coerceFloat(form.GrossArea),
		Width:     coerceOptionalFloat(form.Width),
		Length:    coerceOptionalFloat(form.Length),
	})
}

// UnitTypeForm is a unit type submission with raw string numerics.
type UnitTypeForm struct {
	Name     string
	Category PropertyCategory
	Area     string
	Units    string
	Width    string
	Length   string
}

// AddUnitTypeForm coerces a raw form submission and creates the unit type.
func (s *Service) AddUnitTypeForm(ctx context.Context, form UnitTypeForm) (UnitType, Result, error) {
	return s.AddUnitType(ctx, UnitType{
		Name:     form.Name,
		Category: form.Category,
		Area:     coerceFloat(form.Area),
		Units:    coerceInt(form.Units),
		Width:    coerceOptionalFloat(form.Width),
		Length:   coerceOptionalFloat(form.Length),
	})
}

// CostLineRateForm updates a cost line's rate from raw input. An empty field
// clears the rate, which nulls the derived total.
func (s *Service) CostLineRateForm(ctx context.Context, id string, raw string) (CostLine, Result, error) {
	rate := coerceOptionalFloat(raw)
	if rate == nil {
		return s.UpdateCostLine(ctx, id, CostLineUpdate{ClearRate: true})
	}
	return s.UpdateCostLine(ctx, id, CostLineUpdate{Rate: rate})
}

// FloorAreaForm updates a floor's custom area override from raw input. An
// empty or unparsable field clears the override so the template area applies.
func (s *Service) FloorAreaForm(ctx context.Context, floorNumber int, raw string) (Floor, Result, error) {
	area := coerceOptionalFloat(raw)
	if area == nil {
		return s.UpdateFloor(ctx, floorNumber, FloorUpdate{ClearCustomArea: true})
	}
	return s.UpdateFloor(ctx, floorNumber, FloorUpdate{CustomArea: area})
}
