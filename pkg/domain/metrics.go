package domain

import (
	"fmt"
	"sort"
)

// DerivedMetrics holds the buildable-area and FAR values computed from the
// floor and template collections. The struct is never persisted; it is
// recomputed from source records whenever any of them change.
type DerivedMetrics struct {
	TotalAboveGroundArea float64  `json:"total_above_ground_area"`
	TotalBelowGroundArea float64  `json:"total_below_ground_area"`
	TotalBuildableArea   float64  `json:"total_buildable_area"`
	ActualFAR            float64  `json:"actual_far"`
	FARUtilization       float64  `json:"far_utilization"`
	Warnings             []string `json:"warnings,omitempty"`
}

// FloorArea resolves the effective gross area of one floor: the custom
// override when set, else the referenced template's gross area, else zero.
// A dangling template reference contributes zero rather than failing.
func FloorArea(f Floor, templates map[string]FloorTemplate) float64 {
	if f.CustomArea != nil {
		return *f.CustomArea
	}
	if f.TemplateID != nil {
		if tpl, ok := templates[*f.TemplateID]; ok {
			return tpl.GrossArea
		}
	}
	return 0
}

// ComputeDerivedMetrics recomputes all derived quantities as a pure function
// of the project inputs, floors, and templates. It never fails: missing
// templates count as zero area and a non-positive land area yields a zero FAR.
func ComputeDerivedMetrics(project Project, floors []Floor, templates map[string]FloorTemplate) DerivedMetrics {
	var m DerivedMetrics
	for _, f := range floors {
		area := FloorArea(f, templates)
		if f.TemplateID != nil && f.CustomArea == nil {
			if _, ok := templates[*f.TemplateID]; !ok {
				m.Warnings = append(m.Warnings, fmt.Sprintf("floor %d references missing template %s", f.FloorNumber, *f.TemplateID))
			}
		}
		if f.IsUnderground {
			m.TotalBelowGroundArea += area
		} else {
			m.TotalAboveGroundArea += area
		}
	}
	m.TotalBuildableArea = m.TotalAboveGroundArea + m.TotalBelowGroundArea
	if project.LandArea > 0 {
		m.ActualFAR = m.TotalAboveGroundArea / project.LandArea
	}
	if project.TargetFAR != nil && *project.TargetFAR > 0 {
		m.FARUtilization = m.ActualFAR / *project.TargetFAR
		if m.ActualFAR > *project.TargetFAR {
			m.Warnings = append(m.Warnings, fmt.Sprintf("actual FAR %.2f exceeds target %.2f", m.ActualFAR, *project.TargetFAR))
		}
	}
	return m
}

// SortFloorsDescending orders floors highest number first, the canonical
// ordering for all positional sequencer logic.
func SortFloorsDescending(floors []Floor) {
	sort.Slice(floors, func(i, j int) bool {
		return floors[i].FloorNumber > floors[j].FloorNumber
	})
}
