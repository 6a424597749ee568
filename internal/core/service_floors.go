package core

import (
	"context"
	"fmt"

	"buildcore/pkg/domain"
)

// FloorPosition selects where bulk-added floors land relative to the
// existing stack.
type FloorPosition string

// Supported bulk-insertion positions.
const (
	PositionTop      FloorPosition = "top"      // above all above-ground floors
	PositionBottom   FloorPosition = "bottom"   // below all below-ground floors
	PositionSpecific FloorPosition = "specific" // numbering starts at an explicit floor number
)

// NumberingPattern selects how bulk-added floors are numbered from the start.
type NumberingPattern string

// Supported numbering patterns.
const (
	NumberingConsecutive NumberingPattern = "consecutive" // start, start+1, ...
	NumberingSkip        NumberingPattern = "skip"        // start, start+2, ...
	NumberingCustom      NumberingPattern = "custom"      // caller-supplied numbers
)

// ReorderDirection moves a floor toward higher or lower numbers.
type ReorderDirection string

// Reorder directions relative to the canonical descending ordering.
const (
	ReorderUp   ReorderDirection = "up"
	ReorderDown ReorderDirection = "down"
)

// BulkAddRequest describes one bulk floor insertion.
type BulkAddRequest struct {
	Count            int
	IsUnderground    bool
	TemplateID       *string
	Position         FloorPosition
	SpecificPosition *int
	Pattern          NumberingPattern
	// CustomNumbers supplies explicit floor numbers per index under
	// NumberingCustom; indices beyond its length fall back to consecutive.
	CustomNumbers []int
}

// AddFloor appends one floor one past the current extreme on the requested
// side: above grade max+1 (default 1), below grade min-1 (default -1).
func (s *Service) AddFloor(ctx context.Context, isUnderground bool) (Floor, Result, error) {
	number := s.nextFloorNumber(isUnderground)
	floor := s.defaultFloor(number, isUnderground)

	var created Floor
	res, err := s.run(ctx, "add_floor", func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateFloor(floor)
		return err
	})
	return created, res, err
}

// AddFloors splices count new floors into the stack under the requested
// positioning and numbering policies. A collision with an existing floor or
// between generated numbers rejects the whole insertion and leaves state
// unchanged.
func (s *Service) AddFloors(ctx context.Context, req BulkAddRequest) ([]Floor, Result, error) {
	if req.Count < 1 {
		return nil, Result{}, ValidationError{Field: "count", Reason: "must be at least 1"}
	}
	switch req.Position {
	case PositionTop:
		if req.IsUnderground {
			return nil, Result{}, ValidationError{Field: "position", Reason: "top insertion requires above-ground floors"}
		}
	case PositionBottom:
		if !req.IsUnderground {
			return nil, Result{}, ValidationError{Field: "position", Reason: "bottom insertion requires below-ground floors"}
		}
	case PositionSpecific:
		if req.SpecificPosition == nil {
			return nil, Result{}, ValidationError{Field: "specific_position", Reason: "required for specific positioning"}
		}
	default:
		return nil, Result{}, ValidationError{Field: "position", Reason: fmt.Sprintf("unknown position %q", req.Position)}
	}

	start := s.nextFloorNumber(req.IsUnderground)
	if req.Position == PositionSpecific {
		start = *req.SpecificPosition
	}
	numbers := generateFloorNumbers(start, req.Count, req.Pattern, req.CustomNumbers, req.IsUnderground)

	templateID := req.TemplateID
	if templateID == nil {
		if id, ok := lowestSequenceTemplateID(s.store.ListFloorTemplates()); ok {
			templateID = &id
		}
	}

	created := make([]Floor, 0, req.Count)
	res, err := s.run(ctx, "add_floors", func(tx domain.Transaction) error {
		for _, number := range numbers {
			f, err := tx.CreateFloor(newFloor(number, req.IsUnderground, templateID))
			if err != nil {
				return err
			}
			created = append(created, f)
		}
		return nil
	})
	if err != nil {
		return nil, res, err
	}
	return created, res, nil
}

// RemoveFloors deletes every listed floor that exists. When the removal
// empties the collection, exactly one default floor is synthesized so the
// stack is never empty.
func (s *Service) RemoveFloors(ctx context.Context, floorNumbers []int) (Result, error) {
	return s.run(ctx, "remove_floors", func(tx domain.Transaction) error {
		view := tx.Snapshot()
		for _, number := range floorNumbers {
			if _, ok := view.FindFloor(number); !ok {
				continue
			}
			if err := tx.DeleteFloor(number); err != nil {
				return err
			}
		}
		if len(tx.Snapshot().ListFloors()) == 0 {
			var templateID *string
			if id, ok := lowestSequenceTemplateID(tx.Snapshot().ListFloorTemplates()); ok {
				templateID = &id
			}
			if _, err := tx.CreateFloor(newFloor(1, false, templateID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReorderFloor swaps the target floor's number with its neighbor in the
// canonical descending ordering. At either boundary the call is a no-op.
func (s *Service) ReorderFloor(ctx context.Context, floorNumber int, direction ReorderDirection) (Result, error) {
	floors := s.store.ListFloors()
	domain.SortFloorsDescending(floors)
	idx := -1
	for i, f := range floors {
		if f.FloorNumber == floorNumber {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Result{}, ErrNotFound{Entity: EntityFloor, ID: fmt.Sprintf("%d", floorNumber)}
	}

	var neighbor int
	switch direction {
	case ReorderUp:
		if idx == 0 {
			return Result{}, nil
		}
		neighbor = floors[idx-1].FloorNumber
	case ReorderDown:
		if idx == len(floors)-1 {
			return Result{}, nil
		}
		neighbor = floors[idx+1].FloorNumber
	default:
		return Result{}, ValidationError{Field: "direction", Reason: fmt.Sprintf("unknown direction %q", direction)}
	}

	return s.run(ctx, "reorder_floor", func(tx domain.Transaction) error {
		return tx.SwapFloorNumbers(floorNumber, neighbor)
	})
}

// CopyFloor overwrites every mutable plate attribute on each target floor
// with the source floor's values, leaving floor numbers untouched. Missing
// targets are skipped.
func (s *Service) CopyFloor(ctx context.Context, sourceFloorNumber int, targetFloorNumbers []int) (Result, error) {
	source, ok := s.findFloor(sourceFloorNumber)
	if !ok {
		return Result{}, ErrNotFound{Entity: EntityFloor, ID: fmt.Sprintf("%d", sourceFloorNumber)}
	}

	return s.run(ctx, "copy_floor", func(tx domain.Transaction) error {
		view := tx.Snapshot()
		for _, target := range targetFloorNumbers {
			if target == sourceFloorNumber {
				continue
			}
			if _, exists := view.FindFloor(target); !exists {
				continue
			}
			if _, err := tx.UpdateFloor(target, func(f *Floor) error {
				f.TemplateID = source.TemplateID
				f.CustomArea = source.CustomArea
				f.Height = source.Height
				f.CorePercent = source.CorePercent
				f.PrimaryUse = source.PrimaryUse
				f.SecondaryUse = source.SecondaryUse
				f.Spaces = append([]FloorSpace(nil), source.Spaces...)
				f.BuildingSystems = append([]string(nil), source.BuildingSystems...)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// FloorUpdate is a partial update to one floor. Nil fields are left alone;
// ClearCustomArea and ClearTemplate reset their optional fields.
type FloorUpdate struct {
	Label           *string
	FloorType       *FloorType
	TemplateID      *string
	ClearTemplate   bool
	CustomArea      *float64
	ClearCustomArea bool
	Height          *float64
	CorePercent     *float64
	PrimaryUse      *string
	SecondaryUse    *string
	Spaces          []FloorSpace
	BuildingSystems []string
}

// UpdateFloor applies a partial update to the floor with the given number.
func (s *Service) UpdateFloor(ctx context.Context, floorNumber int, update FloorUpdate) (Floor, Result, error) {
	if update.TemplateID != nil {
		if _, ok := s.findTemplate(*update.TemplateID); !ok {
			return Floor{}, Result{}, ErrNotFound{Entity: EntityFloorTemplate, ID: *update.TemplateID}
		}
	}
	var updated Floor
	res, err := s.run(ctx, "update_floor", func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateFloor(floorNumber, func(f *Floor) error {
			if update.Label != nil {
				f.Label = *update.Label
			}
			if update.FloorType != nil {
				f.FloorType = *update.FloorType
			}
			if update.ClearTemplate {
				f.TemplateID = nil
			} else if update.TemplateID != nil {
				f.TemplateID = update.TemplateID
			}
			if update.ClearCustomArea {
				f.CustomArea = nil
			} else if update.CustomArea != nil {
				f.CustomArea = update.CustomArea
			}
			if update.Height != nil {
				f.Height = update.Height
			}
			if update.CorePercent != nil {
				f.CorePercent = update.CorePercent
			}
			if update.PrimaryUse != nil {
				f.PrimaryUse = *update.PrimaryUse
			}
			if update.SecondaryUse != nil {
				f.SecondaryUse = update.SecondaryUse
			}
			if update.Spaces != nil {
				f.Spaces = append([]FloorSpace(nil), update.Spaces...)
			}
			if update.BuildingSystems != nil {
				f.BuildingSystems = append([]string(nil), update.BuildingSystems...)
			}
			return nil
		})
		return err
	})
	return updated, res, err
}

// Floors returns all floors in canonical descending order.
func (s *Service) Floors() []Floor {
	floors := s.store.ListFloors()
	domain.SortFloorsDescending(floors)
	return floors
}

func (s *Service) findFloor(number int) (Floor, bool) {
	for _, f := range s.store.ListFloors() {
		if f.FloorNumber == number {
			return f, true
		}
	}
	return Floor{}, false
}

func (s *Service) findTemplate(id string) (FloorTemplate, bool) {
	for _, t := range s.store.ListFloorTemplates() {
		if t.ID == id {
			return t, true
		}
	}
	return FloorTemplate{}, false
}

// nextFloorNumber computes the single-add numbering rule for one side of
// grade: one past the extreme, defaulting to 1 above and -1 below.
func (s *Service) nextFloorNumber(isUnderground bool) int {
	if isUnderground {
		min := 0
		for _, f := range s.store.ListFloors() {
			if f.FloorNumber < min {
				min = f.FloorNumber
			}
		}
		return min - 1
	}
	max := 0
	for _, f := range s.store.ListFloors() {
		if f.FloorNumber > max {
			max = f.FloorNumber
		}
	}
	return max + 1
}

// defaultFloor resolves the default template against the live store. It must
// not be called inside a transaction; use newFloor with a pre-resolved
// template there.
func (s *Service) defaultFloor(number int, isUnderground bool) Floor {
	var templateID *string
	if id, ok := lowestSequenceTemplateID(s.store.ListFloorTemplates()); ok {
		templateID = &id
	}
	return newFloor(number, isUnderground, templateID)
}

func newFloor(number int, isUnderground bool, templateID *string) Floor {
	return Floor{
		FloorNumber:   number,
		Label:         floorLabel(number),
		IsUnderground: isUnderground,
		FloorType:     domain.FloorTypeStandard,
		TemplateID:    templateID,
	}
}

func floorLabel(number int) string {
	if number < 0 {
		return fmt.Sprintf("Basement %d", -number)
	}
	return fmt.Sprintf("Level %d", number)
}

// generateFloorNumbers expands the numbering pattern from the start value.
// Below grade the series descends instead of ascending.
func generateFloorNumbers(start, count int, pattern NumberingPattern, custom []int, isUnderground bool) []int {
	step := 1
	if isUnderground {
		step = -1
	}
	numbers := make([]int, count)
	for i := 0; i < count; i++ {
		switch pattern {
		case NumberingSkip:
			numbers[i] = start + 2*i*step
		case NumberingCustom:
			if i < len(custom) {
				numbers[i] = custom[i]
			} else {
				numbers[i] = start + i*step
			}
		default:
			numbers[i] = start + i*step
		}
	}
	return numbers
}
