package core

import (
	"context"
	"strings"

	"buildcore/pkg/domain"
)

// TemplateUpdate is a partial update to a floor template. Nil fields are left
// untouched. Supplying GrossArea explicitly overrides the width-times-length
// recomputation for this update.
type TemplateUpdate struct {
	Name      *string
	GrossArea *float64
	Width     *float64
	Length    *float64
}

// AddFloorTemplate persists a new floor-plate template. When width and length
// are supplied without an explicit gross area, the area is their product.
func (s *Service) AddFloorTemplate(ctx context.Context, tpl FloorTemplate) (FloorTemplate, Result, error) {
	if strings.TrimSpace(tpl.Name) == "" {
		return FloorTemplate{}, Result{}, ValidationError{Field: "name", Reason: "required"}
	}
	for _, existing := range s.store.ListFloorTemplates() {
		if strings.EqualFold(existing.Name, tpl.Name) {
			return FloorTemplate{}, Result{}, ValidationError{Field: "name", Reason: "duplicate template name"}
		}
	}
	if tpl.GrossArea == 0 && tpl.Width != nil && tpl.Length != nil {
		tpl.GrossArea = *tpl.Width * *tpl.Length
	}
	if tpl.GrossArea < 0 {
		return FloorTemplate{}, Result{}, ValidationError{Field: "gross_area", Reason: "must be non-negative"}
	}

	var created FloorTemplate
	res, err := s.run(ctx, "add_floor_template", func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateFloorTemplate(tpl)
		return err
	})
	return created, res, err
}

// UpdateFloorTemplate applies a partial update. When both dimensions are
// present after the update and the caller did not override the gross area in
// the same call, the area is recomputed as width times length.
func (s *Service) UpdateFloorTemplate(ctx context.Context, id string, update TemplateUpdate) (FloorTemplate, Result, error) {
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return FloorTemplate{}, Result{}, ValidationError{Field: "name", Reason: "required"}
		}
		for _, existing := range s.store.ListFloorTemplates() {
			if existing.ID != id && strings.EqualFold(existing.Name, name) {
				return FloorTemplate{}, Result{}, ValidationError{Field: "name", Reason: "duplicate template name"}
			}
		}
	}
	if update.GrossArea != nil && *update.GrossArea < 0 {
		return FloorTemplate{}, Result{}, ValidationError{Field: "gross_area", Reason: "must be non-negative"}
	}

	var updated FloorTemplate
	res, err := s.run(ctx, "update_floor_template", func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateFloorTemplate(id, func(t *FloorTemplate) error {
			dimsChanged := false
			if update.Name != nil {
				t.Name = strings.TrimSpace(*update.Name)
			}
			if update.Width != nil {
				t.Width = update.Width
				dimsChanged = true
			}
			if update.Length != nil {
				t.Length = update.Length
				dimsChanged = true
			}
			switch {
			case update.GrossArea != nil:
				t.GrossArea = *update.GrossArea
			case dimsChanged && t.Width != nil && t.Length != nil:
				t.GrossArea = *t.Width * *t.Length
			}
			return nil
		})
		return err
	})
	return updated, res, err
}

// RemoveFloorTemplate deletes a template. Removing the sole remaining
// template is a no-op. Floors referencing the deleted template fall back to
// the remaining template with the lowest creation order, or nil if none.
func (s *Service) RemoveFloorTemplate(ctx context.Context, id string) (Result, error) {
	templates := s.store.ListFloorTemplates()
	if len(templates) <= 1 {
		return Result{}, nil
	}

	return s.run(ctx, "remove_floor_template", func(tx domain.Transaction) error {
		if err := tx.DeleteFloorTemplate(id); err != nil {
			return err
		}
		view := tx.Snapshot()
		fallback, ok := lowestSequenceTemplateID(view.ListFloorTemplates())
		for _, floor := range view.ListFloors() {
			if floor.TemplateID == nil || *floor.TemplateID != id {
				continue
			}
			if _, err := tx.UpdateFloor(floor.FloorNumber, func(f *Floor) error {
				if ok {
					next := fallback
					f.TemplateID = &next
				} else {
					f.TemplateID = nil
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func lowestSequenceTemplateID(templates []FloorTemplate) (string, bool) {
	best := ""
	bestSeq := 0
	for _, tpl := range templates {
		if best == "" || tpl.Sequence < bestSeq || (tpl.Sequence == bestSeq && tpl.ID < best) {
			best = tpl.ID
			bestSeq = tpl.Sequence
		}
	}
	return best, best != ""
}
