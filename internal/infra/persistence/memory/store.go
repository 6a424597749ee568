// Package memory provides the in-memory transactional store that owns all
// engine state. Every mutation runs against a copy-on-write clone of the
// state; registered rules are evaluated before the clone is committed.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"buildcore/pkg/domain"

	"github.com/google/uuid"
)

type (
	Project         = domain.Project
	FloorTemplate   = domain.FloorTemplate
	Floor           = domain.Floor
	UnitType        = domain.UnitType
	UnitAllocation  = domain.UnitAllocation
	CostLine        = domain.CostLine
	NonRentableType = domain.NonRentableType
	Change          = domain.Change
	Result          = domain.Result
	RulesEngine     = domain.RulesEngine
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.EngineStore = (*Store)(nil)

type memoryState struct {
	project     Project
	templates   map[string]FloorTemplate
	floors      map[int]Floor
	unitTypes   map[string]UnitType
	allocations map[string]UnitAllocation
	costLines   map[string]CostLine
	nonRentable map[string]NonRentableType
	templateSeq int
}

func newMemoryState() memoryState {
	return memoryState{
		templates:   make(map[string]FloorTemplate),
		floors:      make(map[int]Floor),
		unitTypes:   make(map[string]UnitType),
		allocations: make(map[string]UnitAllocation),
		costLines:   make(map[string]CostLine),
		nonRentable: make(map[string]NonRentableType),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	cloned.project = cloneProject(s.project)
	cloned.templateSeq = s.templateSeq
	for k, v := range s.templates {
		cloned.templates[k] = cloneTemplate(v)
	}
	for k, v := range s.floors {
		cloned.floors[k] = cloneFloor(v)
	}
	for k, v := range s.unitTypes {
		cloned.unitTypes[k] = cloneUnitType(v)
	}
	for k, v := range s.allocations {
		cloned.allocations[k] = cloneAllocation(v)
	}
	for k, v := range s.costLines {
		cloned.costLines[k] = cloneCostLine(v)
	}
	for k, v := range s.nonRentable {
		cloned.nonRentable[k] = cloneNonRentable(v)
	}
	return cloned
}

func cloneProject(p Project) Project {
	cp := p
	cp.TargetFAR = cloneFloatPtr(p.TargetFAR)
	cp.MaxHeight = cloneFloatPtr(p.MaxHeight)
	return cp
}

func cloneTemplate(t FloorTemplate) FloorTemplate {
	cp := t
	cp.Width = cloneFloatPtr(t.Width)
	cp.Length = cloneFloatPtr(t.Length)
	return cp
}

func cloneFloor(f Floor) Floor {
	cp := f
	cp.TemplateID = cloneStringPtr(f.TemplateID)
	cp.CustomArea = cloneFloatPtr(f.CustomArea)
	cp.Height = cloneFloatPtr(f.Height)
	cp.CorePercent = cloneFloatPtr(f.CorePercent)
	cp.SecondaryUse = cloneStringPtr(f.SecondaryUse)
	cp.Spaces = append([]domain.FloorSpace(nil), f.Spaces...)
	cp.BuildingSystems = append([]string(nil), f.BuildingSystems...)
	return cp
}

func cloneUnitType(u UnitType) UnitType {
	cp := u
	cp.Width = cloneFloatPtr(u.Width)
	cp.Length = cloneFloatPtr(u.Length)
	return cp
}

func cloneAllocation(a UnitAllocation) UnitAllocation { return a }

func cloneCostLine(c CostLine) CostLine {
	cp := c
	cp.Rate = cloneFloatPtr(c.Rate)
	cp.Total = cloneFloatPtr(c.Total)
	cp.Notes = cloneStringPtr(c.Notes)
	return cp
}

func cloneNonRentable(n NonRentableType) NonRentableType {
	cp := n
	cp.Percentage = cloneFloatPtr(n.Percentage)
	return cp
}

func cloneFloatPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// Store provides the in-memory transactional store for the engine domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the transaction timestamp source, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = now
}

func newID() string { return uuid.NewString() }

type transaction struct {
	state   *memoryState
	changes []Change
	now     time.Time
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Rules are evaluated against the mutated clone; blocking violations discard
// the clone and surface a RuleViolationError.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	tx := &transaction{state: &next, now: s.nowFn()}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := transactionView{state: &next}
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = next
	result.Changes = tx.changes
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(transactionView{state: &snapshot})
}

// Changes returns the change records accumulated by a transaction; used by
// the service to publish configuration-changed events after commit.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return transactionView{state: tx.state}
}

// SetProject replaces the project settings record.
func (tx *transaction) SetProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = tx.now
	}
	p.UpdatedAt = tx.now
	before := cloneProject(tx.state.project)
	tx.state.project = cloneProject(p)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: cloneProject(p)})
	return cloneProject(p), nil
}

// UpdateProject mutates the project settings record in place.
func (tx *transaction) UpdateProject(mutator func(*Project) error) (Project, error) {
	current := cloneProject(tx.state.project)
	before := cloneProject(current)
	if err := mutator(&current); err != nil {
		return Project{}, err
	}
	current.ID = tx.state.project.ID
	if current.ID == "" {
		current.ID = newID()
	}
	current.UpdatedAt = tx.now
	tx.state.project = cloneProject(current)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: cloneProject(current)})
	return cloneProject(current), nil
}

// CreateFloorTemplate stores a new template and assigns its creation sequence.
func (tx *transaction) CreateFloorTemplate(t FloorTemplate) (FloorTemplate, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	if _, exists := tx.state.templates[t.ID]; exists {
		return FloorTemplate{}, fmt.Errorf("floor template %q already exists", t.ID)
	}
	tx.state.templateSeq++
	t.Sequence = tx.state.templateSeq
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.templates[t.ID] = cloneTemplate(t)
	tx.recordChange(Change{Entity: domain.EntityFloorTemplate, Action: domain.ActionCreate, After: cloneTemplate(t)})
	return cloneTemplate(t), nil
}

// UpdateFloorTemplate mutates a template using the provided mutator.
func (tx *transaction) UpdateFloorTemplate(id string, mutator func(*FloorTemplate) error) (FloorTemplate, error) {
	current, ok := tx.state.templates[id]
	if !ok {
		return FloorTemplate{}, fmt.Errorf("floor template %q not found", id)
	}
	before := cloneTemplate(current)
	if err := mutator(&current); err != nil {
		return FloorTemplate{}, err
	}
	current.ID = id
	current.Sequence = before.Sequence
	current.UpdatedAt = tx.now
	tx.state.templates[id] = cloneTemplate(current)
	tx.recordChange(Change{Entity: domain.EntityFloorTemplate, Action: domain.ActionUpdate, Before: before, After: cloneTemplate(current)})
	return cloneTemplate(current), nil
}

// DeleteFloorTemplate removes a template from state.
func (tx *transaction) DeleteFloorTemplate(id string) error {
	current, ok := tx.state.templates[id]
	if !ok {
		return fmt.Errorf("floor template %q not found", id)
	}
	delete(tx.state.templates, id)
	tx.recordChange(Change{Entity: domain.EntityFloorTemplate, Action: domain.ActionDelete, Before: cloneTemplate(current)})
	return nil
}

// CreateFloor stores a new floor keyed by its floor number.
func (tx *transaction) CreateFloor(f Floor) (Floor, error) {
	if f.ID == "" {
		f.ID = newID()
	}
	if _, exists := tx.state.floors[f.FloorNumber]; exists {
		return Floor{}, fmt.Errorf("floor %d already exists", f.FloorNumber)
	}
	f.CreatedAt = tx.now
	f.UpdatedAt = tx.now
	tx.state.floors[f.FloorNumber] = cloneFloor(f)
	tx.recordChange(Change{Entity: domain.EntityFloor, Action: domain.ActionCreate, After: cloneFloor(f)})
	return cloneFloor(f), nil
}

// UpdateFloor mutates the floor with the given number. Renumbering is
// permitted when the target number is free; unit allocations referencing the
// old number follow the floor.
func (tx *transaction) UpdateFloor(number int, mutator func(*Floor) error) (Floor, error) {
	current, ok := tx.state.floors[number]
	if !ok {
		return Floor{}, fmt.Errorf("floor %d not found", number)
	}
	before := cloneFloor(current)
	if err := mutator(&current); err != nil {
		return Floor{}, err
	}
	current.ID = before.ID
	current.UpdatedAt = tx.now
	if current.FloorNumber != number {
		if _, occupied := tx.state.floors[current.FloorNumber]; occupied {
			return Floor{}, fmt.Errorf("floor %d already exists", current.FloorNumber)
		}
		delete(tx.state.floors, number)
		tx.remapAllocations(number, current.FloorNumber)
	}
	tx.state.floors[current.FloorNumber] = cloneFloor(current)
	tx.recordChange(Change{Entity: domain.EntityFloor, Action: domain.ActionUpdate, Before: before, After: cloneFloor(current)})
	return cloneFloor(current), nil
}

// DeleteFloor removes a floor and any unit allocations placed on it.
func (tx *transaction) DeleteFloor(number int) error {
	current, ok := tx.state.floors[number]
	if !ok {
		return fmt.Errorf("floor %d not found", number)
	}
	delete(tx.state.floors, number)
	for id, alloc := range tx.state.allocations {
		if alloc.FloorNumber == number {
			delete(tx.state.allocations, id)
			tx.recordChange(Change{Entity: domain.EntityUnitAllocation, Action: domain.ActionDelete, Before: cloneAllocation(alloc)})
		}
	}
	tx.recordChange(Change{Entity: domain.EntityFloor, Action: domain.ActionDelete, Before: cloneFloor(current)})
	return nil
}

// SwapFloorNumbers exchanges the floor numbers of two floors while keeping
// each record's identity. Used by the sequencer's reorder operation.
func (tx *transaction) SwapFloorNumbers(a, b int) error {
	fa, ok := tx.state.floors[a]
	if !ok {
		return fmt.Errorf("floor %d not found", a)
	}
	fb, ok := tx.state.floors[b]
	if !ok {
		return fmt.Errorf("floor %d not found", b)
	}
	beforeA, beforeB := cloneFloor(fa), cloneFloor(fb)
	fa.FloorNumber, fb.FloorNumber = b, a
	fa.UpdatedAt = tx.now
	fb.UpdatedAt = tx.now
	tx.state.floors[b] = cloneFloor(fa)
	tx.state.floors[a] = cloneFloor(fb)
	tx.recordChange(Change{Entity: domain.EntityFloor, Action: domain.ActionUpdate, Before: beforeA, After: cloneFloor(fa)})
	tx.recordChange(Change{Entity: domain.EntityFloor, Action: domain.ActionUpdate, Before: beforeB, After: cloneFloor(fb)})
	return nil
}

func (tx *transaction) remapAllocations(from, to int) {
	for id, alloc := range tx.state.allocations {
		if alloc.FloorNumber == from {
			alloc.FloorNumber = to
			tx.state.allocations[id] = alloc
		}
	}
}

// CreateUnitType stores a new unit-type inventory record.
func (tx *transaction) CreateUnitType(u UnitType) (UnitType, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	if _, exists := tx.state.unitTypes[u.ID]; exists {
		return UnitType{}, fmt.Errorf("unit type %q already exists", u.ID)
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.unitTypes[u.ID] = cloneUnitType(u)
	tx.recordChange(Change{Entity: domain.EntityUnitType, Action: domain.ActionCreate, After: cloneUnitType(u)})
	return cloneUnitType(u), nil
}

// UpdateUnitType mutates a unit type.
func (tx *transaction) UpdateUnitType(id string, mutator func(*UnitType) error) (UnitType, error) {
	current, ok := tx.state.unitTypes[id]
	if !ok {
		return UnitType{}, fmt.Errorf("unit type %q not found", id)
	}
	before := cloneUnitType(current)
	if err := mutator(&current); err != nil {
		return UnitType{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.unitTypes[id] = cloneUnitType(current)
	tx.recordChange(Change{Entity: domain.EntityUnitType, Action: domain.ActionUpdate, Before: before, After: cloneUnitType(current)})
	return cloneUnitType(current), nil
}

// DeleteUnitType removes a unit type and cascades to its allocations.
func (tx *transaction) DeleteUnitType(id string) error {
	current, ok := tx.state.unitTypes[id]
	if !ok {
		return fmt.Errorf("unit type %q not found", id)
	}
	delete(tx.state.unitTypes, id)
	for allocID, alloc := range tx.state.allocations {
		if alloc.UnitTypeID == id {
			delete(tx.state.allocations, allocID)
			tx.recordChange(Change{Entity: domain.EntityUnitAllocation, Action: domain.ActionDelete, Before: cloneAllocation(alloc)})
		}
	}
	tx.recordChange(Change{Entity: domain.EntityUnitType, Action: domain.ActionDelete, Before: cloneUnitType(current)})
	return nil
}

// CreateUnitAllocation stores a new per-floor unit allocation.
func (tx *transaction) CreateUnitAllocation(a UnitAllocation) (UnitAllocation, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if _, exists := tx.state.allocations[a.ID]; exists {
		return UnitAllocation{}, fmt.Errorf("unit allocation %q already exists", a.ID)
	}
	if _, ok := tx.state.unitTypes[a.UnitTypeID]; !ok {
		return UnitAllocation{}, fmt.Errorf("unit type %q not found", a.UnitTypeID)
	}
	if _, ok := tx.state.floors[a.FloorNumber]; !ok {
		return UnitAllocation{}, fmt.Errorf("floor %d not found", a.FloorNumber)
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.allocations[a.ID] = cloneAllocation(a)
	tx.recordChange(Change{Entity: domain.EntityUnitAllocation, Action: domain.ActionCreate, After: cloneAllocation(a)})
	return cloneAllocation(a), nil
}

// UpdateUnitAllocation mutates an allocation.
func (tx *transaction) UpdateUnitAllocation(id string, mutator func(*UnitAllocation) error) (UnitAllocation, error) {
	current, ok := tx.state.allocations[id]
	if !ok {
		return UnitAllocation{}, fmt.Errorf("unit allocation %q not found", id)
	}
	before := cloneAllocation(current)
	if err := mutator(&current); err != nil {
		return UnitAllocation{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.allocations[id] = cloneAllocation(current)
	tx.recordChange(Change{Entity: domain.EntityUnitAllocation, Action: domain.ActionUpdate, Before: before, After: cloneAllocation(current)})
	return cloneAllocation(current), nil
}

// DeleteUnitAllocation removes an allocation.
func (tx *transaction) DeleteUnitAllocation(id string) error {
	current, ok := tx.state.allocations[id]
	if !ok {
		return fmt.Errorf("unit allocation %q not found", id)
	}
	delete(tx.state.allocations, id)
	tx.recordChange(Change{Entity: domain.EntityUnitAllocation, Action: domain.ActionDelete, Before: cloneAllocation(current)})
	return nil
}

// CreateCostLine stores a new cost line record.
func (tx *transaction) CreateCostLine(c CostLine) (CostLine, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := tx.state.costLines[c.ID]; exists {
		return CostLine{}, fmt.Errorf("cost line %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.costLines[c.ID] = cloneCostLine(c)
	tx.recordChange(Change{Entity: domain.EntityCostLine, Action: domain.ActionCreate, After: cloneCostLine(c)})
	return cloneCostLine(c), nil
}

// UpdateCostLine mutates a cost line.
func (tx *transaction) UpdateCostLine(id string, mutator func(*CostLine) error) (CostLine, error) {
	current, ok := tx.state.costLines[id]
	if !ok {
		return CostLine{}, fmt.Errorf("cost line %q not found", id)
	}
	before := cloneCostLine(current)
	if err := mutator(&current); err != nil {
		return CostLine{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.costLines[id] = cloneCostLine(current)
	tx.recordChange(Change{Entity: domain.EntityCostLine, Action: domain.ActionUpdate, Before: before, After: cloneCostLine(current)})
	return cloneCostLine(current), nil
}

// DeleteCostLine removes a cost line.
func (tx *transaction) DeleteCostLine(id string) error {
	current, ok := tx.state.costLines[id]
	if !ok {
		return fmt.Errorf("cost line %q not found", id)
	}
	delete(tx.state.costLines, id)
	tx.recordChange(Change{Entity: domain.EntityCostLine, Action: domain.ActionDelete, Before: cloneCostLine(current)})
	return nil
}

// CreateNonRentableType stores a new non-rentable space type.
func (tx *transaction) CreateNonRentableType(n NonRentableType) (NonRentableType, error) {
	if n.ID == "" {
		n.ID = newID()
	}
	if _, exists := tx.state.nonRentable[n.ID]; exists {
		return NonRentableType{}, fmt.Errorf("non-rentable type %q already exists", n.ID)
	}
	n.CreatedAt = tx.now
	n.UpdatedAt = tx.now
	tx.state.nonRentable[n.ID] = cloneNonRentable(n)
	tx.recordChange(Change{Entity: domain.EntityNonRentableType, Action: domain.ActionCreate, After: cloneNonRentable(n)})
	return cloneNonRentable(n), nil
}

// UpdateNonRentableType mutates a non-rentable space type.
func (tx *transaction) UpdateNonRentableType(id string, mutator func(*NonRentableType) error) (NonRentableType, error) {
	current, ok := tx.state.nonRentable[id]
	if !ok {
		return NonRentableType{}, fmt.Errorf("non-rentable type %q not found", id)
	}
	before := cloneNonRentable(current)
	if err := mutator(&current); err != nil {
		return NonRentableType{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.nonRentable[id] = cloneNonRentable(current)
	tx.recordChange(Change{Entity: domain.EntityNonRentableType, Action: domain.ActionUpdate, Before: before, After: cloneNonRentable(current)})
	return cloneNonRentable(current), nil
}

// DeleteNonRentableType removes a non-rentable space type.
func (tx *transaction) DeleteNonRentableType(id string) error {
	current, ok := tx.state.nonRentable[id]
	if !ok {
		return fmt.Errorf("non-rentable type %q not found", id)
	}
	delete(tx.state.nonRentable, id)
	tx.recordChange(Change{Entity: domain.EntityNonRentableType, Action: domain.ActionDelete, Before: cloneNonRentable(current)})
	return nil
}
