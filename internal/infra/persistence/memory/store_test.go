package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"buildcore/pkg/domain"
)

func newTestStore() *Store {
	return NewStore(domain.NewRulesEngine())
}

func mustCreateFloor(t *testing.T, store *Store, floor Floor) Floor {
	t.Helper()
	var created Floor
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateFloor(floor)
		return err
	})
	if err != nil {
		t.Fatalf("create floor %d: %v", floor.FloorNumber, err)
	}
	return created
}

func TestCreateFloorRejectsDuplicateNumber(t *testing.T) {
	store := newTestStore()
	mustCreateFloor(t, store, Floor{FloorNumber: 3})
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateFloor(Floor{FloorNumber: 3})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected duplicate floor error, got %v", err)
	}
	if got := len(store.ListFloors()); got != 1 {
		t.Fatalf("failed transaction must not commit, have %d floors", got)
	}
}

func TestTransactionRollbackOnError(t *testing.T) {
	store := newTestStore()
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateFloor(Floor{FloorNumber: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := len(store.ListFloors()); got != 0 {
		t.Fatalf("rolled-back transaction leaked %d floors", got)
	}
}

func TestResultCarriesChangeRecords(t *testing.T) {
	store := newTestStore()
	res, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateFloor(Floor{FloorNumber: 1}); err != nil {
			return err
		}
		_, err := tx.CreateFloor(Floor{FloorNumber: 2})
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Changes) != 2 {
		t.Fatalf("expected 2 change records, got %d", len(res.Changes))
	}
	if res.Changes[0].Entity != domain.EntityFloor || res.Changes[0].Action != domain.ActionCreate {
		t.Fatalf("unexpected change record: %+v", res.Changes[0])
	}
}

type blockAllRule struct{}

func (blockAllRule) Name() string { return "block_all" }
func (blockAllRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{
		Rule:     "block_all",
		Severity: domain.SeverityBlock,
		Message:  "blocked",
	}}}, nil
}

func TestBlockingViolationAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAllRule{})
	store := NewStore(engine)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateFloor(Floor{FloorNumber: 1})
		return err
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if got := len(store.ListFloors()); got != 0 {
		t.Fatalf("blocked transaction leaked %d floors", got)
	}
}

func TestSwapFloorNumbersKeepsIdentity(t *testing.T) {
	store := newTestStore()
	a := mustCreateFloor(t, store, Floor{FloorNumber: 1, Label: "Level 1"})
	b := mustCreateFloor(t, store, Floor{FloorNumber: 2, Label: "Level 2"})
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.SwapFloorNumbers(1, 2)
	})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	err = store.View(context.Background(), func(view TransactionView) error {
		f1, ok := view.FindFloor(1)
		if !ok {
			t.Fatalf("floor 1 missing after swap")
		}
		f2, ok := view.FindFloor(2)
		if !ok {
			t.Fatalf("floor 2 missing after swap")
		}
		if f1.ID != b.ID || f2.ID != a.ID {
			t.Fatalf("swap must move identities: got %s at 1, %s at 2", f1.ID, f2.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestUpdateFloorRenumberRemapsAllocations(t *testing.T) {
	store := newTestStore()
	mustCreateFloor(t, store, Floor{FloorNumber: 1})
	var unit UnitType
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		unit, err = tx.CreateUnitType(UnitType{Name: "Studio", Category: "residential", Area: 500, Units: 10})
		if err != nil {
			return err
		}
		_, err = tx.CreateUnitAllocation(UnitAllocation{FloorNumber: 1, UnitTypeID: unit.ID, Quantity: 4})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateFloor(1, func(f *Floor) error {
			f.FloorNumber = 5
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("renumber: %v", err)
	}
	allocs := store.ListUnitAllocations()
	if len(allocs) != 1 || allocs[0].FloorNumber != 5 {
		t.Fatalf("allocation should follow the floor, got %+v", allocs)
	}
}

func TestDeleteUnitTypeCascadesAllocations(t *testing.T) {
	store := newTestStore()
	mustCreateFloor(t, store, Floor{FloorNumber: 1})
	var unit UnitType
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		unit, err = tx.CreateUnitType(UnitType{Name: "Loft", Category: "residential", Area: 900, Units: 5})
		if err != nil {
			return err
		}
		_, err = tx.CreateUnitAllocation(UnitAllocation{FloorNumber: 1, UnitTypeID: unit.ID, Quantity: 2})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteUnitType(unit.ID)
	})
	if err != nil {
		t.Fatalf("delete unit type: %v", err)
	}
	if got := len(store.ListUnitAllocations()); got != 0 {
		t.Fatalf("expected allocations cascade, have %d", got)
	}
}

func TestCreateAllocationValidatesReferences(t *testing.T) {
	store := newTestStore()
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateUnitAllocation(UnitAllocation{FloorNumber: 7, UnitTypeID: "missing", Quantity: 1})
		return err
	})
	if err == nil {
		t.Fatalf("expected error for dangling allocation references")
	}
}

func TestTemplateSequenceAssignment(t *testing.T) {
	store := newTestStore()
	var first, second FloorTemplate
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		first, err = tx.CreateFloorTemplate(FloorTemplate{Name: "Podium", GrossArea: 20000})
		if err != nil {
			return err
		}
		second, err = tx.CreateFloorTemplate(FloorTemplate{Name: "Tower", GrossArea: 12000})
		return err
	})
	if err != nil {
		t.Fatalf("create templates: %v", err)
	}
	if first.Sequence >= second.Sequence {
		t.Fatalf("sequences must be monotonic: %d then %d", first.Sequence, second.Sequence)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateFloorTemplate(first.ID, func(tpl *FloorTemplate) error {
			tpl.Sequence = 999
			tpl.Name = "Podium B"
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update template: %v", err)
	}
	for _, tpl := range store.ListFloorTemplates() {
		if tpl.ID == first.ID && tpl.Sequence != first.Sequence {
			t.Fatalf("sequence must be immutable, got %d", tpl.Sequence)
		}
	}
}
