package domain

import (
	"strings"
	"testing"
)

func fptr(v float64) *float64 { return &v }
func sptr(s string) *string   { return &s }

func TestFloorAreaPrecedence(t *testing.T) {
	templates := map[string]FloorTemplate{
		"tpl": {Base: Base{ID: "tpl"}, Name: "Tower", GrossArea: 12000},
	}
	cases := []struct {
		name  string
		floor Floor
		want  float64
	}{
		{"custom override wins", Floor{TemplateID: sptr("tpl"), CustomArea: fptr(9500)}, 9500},
		{"template area", Floor{TemplateID: sptr("tpl")}, 12000},
		{"dangling template", Floor{TemplateID: sptr("gone")}, 0},
		{"no template", Floor{}, 0},
	}
	for _, tc := range cases {
		if got := FloorArea(tc.floor, templates); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestComputeDerivedMetrics(t *testing.T) {
	templates := map[string]FloorTemplate{
		"tpl": {Base: Base{ID: "tpl"}, GrossArea: 10000},
	}
	project := Project{LandArea: 20000, TargetFAR: fptr(2.0)}
	floors := []Floor{
		{FloorNumber: 1, TemplateID: sptr("tpl")},
		{FloorNumber: 2, TemplateID: sptr("tpl")},
		{FloorNumber: -1, IsUnderground: true, CustomArea: fptr(8000)},
	}
	m := ComputeDerivedMetrics(project, floors, templates)
	if m.TotalAboveGroundArea != 20000 {
		t.Fatalf("above ground: got %v", m.TotalAboveGroundArea)
	}
	if m.TotalBelowGroundArea != 8000 {
		t.Fatalf("below ground: got %v", m.TotalBelowGroundArea)
	}
	if m.TotalBuildableArea != 28000 {
		t.Fatalf("buildable: got %v", m.TotalBuildableArea)
	}
	if m.ActualFAR != 1.0 {
		t.Fatalf("FAR: got %v", m.ActualFAR)
	}
	if m.FARUtilization != 0.5 {
		t.Fatalf("FAR utilization: got %v", m.FARUtilization)
	}
	if len(m.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", m.Warnings)
	}
}

func TestComputeDerivedMetricsZeroLandArea(t *testing.T) {
	m := ComputeDerivedMetrics(Project{}, []Floor{{FloorNumber: 1, CustomArea: fptr(5000)}}, nil)
	if m.ActualFAR != 0 {
		t.Fatalf("zero land area must yield zero FAR, got %v", m.ActualFAR)
	}
	if m.TotalAboveGroundArea != 5000 {
		t.Fatalf("above ground: got %v", m.TotalAboveGroundArea)
	}
}

func TestComputeDerivedMetricsWarnings(t *testing.T) {
	project := Project{LandArea: 1000, TargetFAR: fptr(1.0)}
	floors := []Floor{
		{FloorNumber: 1, CustomArea: fptr(2000)},
		{FloorNumber: 2, TemplateID: sptr("missing")},
	}
	m := ComputeDerivedMetrics(project, floors, nil)
	if len(m.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", m.Warnings)
	}
	var missingRef, overFAR bool
	for _, w := range m.Warnings {
		if strings.Contains(w, "missing template") {
			missingRef = true
		}
		if strings.Contains(w, "exceeds target") {
			overFAR = true
		}
	}
	if !missingRef || !overFAR {
		t.Fatalf("warnings missing expected entries: %v", m.Warnings)
	}
}

func TestSortFloorsDescending(t *testing.T) {
	floors := []Floor{{FloorNumber: -1}, {FloorNumber: 3}, {FloorNumber: 1}}
	SortFloorsDescending(floors)
	want := []int{3, 1, -1}
	for i, f := range floors {
		if f.FloorNumber != want[i] {
			t.Fatalf("position %d: got %d want %d", i, f.FloorNumber, want[i])
		}
	}
}
