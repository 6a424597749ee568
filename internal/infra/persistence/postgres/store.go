// Package postgres provides the remote store. Entities are persisted one row
// per record, scoped by project, so several workstations can share a database
// without clobbering each other's projects.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"buildcore/internal/infra/persistence/memory"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/buildcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store mirrors project state into relational tables keyed by project ID.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN) and applies the schema.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		state_version INTEGER NOT NULL,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS floor_plate_templates (
		id TEXT NOT NULL,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		payload JSONB NOT NULL,
		PRIMARY KEY (project_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS floors (
		floor_number INTEGER NOT NULL,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		payload JSONB NOT NULL,
		PRIMARY KEY (project_id, floor_number)
	)`,
	`CREATE TABLE IF NOT EXISTS unit_types (
		id TEXT NOT NULL,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		payload JSONB NOT NULL,
		PRIMARY KEY (project_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS unit_allocations (
		id TEXT NOT NULL,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		payload JSONB NOT NULL,
		PRIMARY KEY (project_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS hard_costs (
		id TEXT NOT NULL,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		payload JSONB NOT NULL,
		PRIMARY KEY (project_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS non_rentable_types (
		id TEXT NOT NULL,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		payload JSONB NOT NULL,
		PRIMARY KEY (project_id, id)
	)`,
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// SaveSnapshot replaces the stored rows for projectID with the snapshot's
// entities in a single transaction.
func (s *Store) SaveSnapshot(ctx context.Context, projectID string, snapshot memory.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	projectPayload, err := json.Marshal(snapshot.Project)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO projects(id,state_version,payload) VALUES($1,$2,$3)
		 ON CONFLICT(id) DO UPDATE SET state_version=EXCLUDED.state_version, payload=EXCLUDED.payload, updated_at=now()`,
		projectID, snapshot.StateVersion, projectPayload); err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	childTables := []string{"floor_plate_templates", "floors", "unit_types", "unit_allocations", "hard_costs", "non_rentable_types"}
	for _, table := range childTables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE project_id = $1`, table), projectID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	insertKeyed := func(table, id string, entity any) error {
		payload, err := json.Marshal(entity)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", table, id, err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s(id,project_id,payload) VALUES($1,$2,$3)`, table),
			id, projectID, payload); err != nil {
			return fmt.Errorf("insert %s %s: %w", table, id, err)
		}
		return nil
	}
	for id, tpl := range snapshot.Templates {
		if err := insertKeyed("floor_plate_templates", id, tpl); err != nil {
			return err
		}
	}
	for number, floor := range snapshot.Floors {
		payload, err := json.Marshal(floor)
		if err != nil {
			return fmt.Errorf("encode floor %d: %w", number, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO floors(floor_number,project_id,payload) VALUES($1,$2,$3)`,
			number, projectID, payload); err != nil {
			return fmt.Errorf("insert floor %d: %w", number, err)
		}
	}
	for id, unit := range snapshot.UnitTypes {
		if err := insertKeyed("unit_types", id, unit); err != nil {
			return err
		}
	}
	for id, alloc := range snapshot.Allocations {
		if err := insertKeyed("unit_allocations", id, alloc); err != nil {
			return err
		}
	}
	for id, line := range snapshot.CostLines {
		if err := insertKeyed("hard_costs", id, line); err != nil {
			return err
		}
	}
	for id, nr := range snapshot.NonRentable {
		if err := insertKeyed("non_rentable_types", id, nr); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// LoadProject reassembles a snapshot from the stored rows. The second return
// is false when the project has never been saved.
func (s *Store) LoadProject(ctx context.Context, projectID string) (memory.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snapshot memory.Snapshot
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state_version, payload FROM projects WHERE id = $1`, projectID).
		Scan(&snapshot.StateVersion, &payload)
	if err == sql.ErrNoRows {
		return memory.Snapshot{}, false, nil
	}
	if err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("select project: %w", err)
	}
	if err := json.Unmarshal(payload, &snapshot.Project); err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("decode project: %w", err)
	}
	snapshot.Templates = map[string]memory.FloorTemplate{}
	if err := s.loadKeyed(ctx, "floor_plate_templates", projectID, func(id string, payload []byte) error {
		var tpl memory.FloorTemplate
		if err := json.Unmarshal(payload, &tpl); err != nil {
			return err
		}
		snapshot.Templates[id] = tpl
		return nil
	}); err != nil {
		return memory.Snapshot{}, false, err
	}
	snapshot.Floors = map[int]memory.Floor{}
	rows, err := s.db.QueryContext(ctx,
		`SELECT floor_number, payload FROM floors WHERE project_id = $1`, projectID)
	if err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("select floors: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var number int
		var body []byte
		if err := rows.Scan(&number, &body); err != nil {
			return memory.Snapshot{}, false, fmt.Errorf("scan floor: %w", err)
		}
		var floor memory.Floor
		if err := json.Unmarshal(body, &floor); err != nil {
			return memory.Snapshot{}, false, fmt.Errorf("decode floor %d: %w", number, err)
		}
		snapshot.Floors[number] = floor
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("iterate floors: %w", err)
	}
	snapshot.UnitTypes = map[string]memory.UnitType{}
	if err := s.loadKeyed(ctx, "unit_types", projectID, func(id string, payload []byte) error {
		var unit memory.UnitType
		if err := json.Unmarshal(payload, &unit); err != nil {
			return err
		}
		snapshot.UnitTypes[id] = unit
		return nil
	}); err != nil {
		return memory.Snapshot{}, false, err
	}
	snapshot.Allocations = map[string]memory.UnitAllocation{}
	if err := s.loadKeyed(ctx, "unit_allocations", projectID, func(id string, payload []byte) error {
		var alloc memory.UnitAllocation
		if err := json.Unmarshal(payload, &alloc); err != nil {
			return err
		}
		snapshot.Allocations[id] = alloc
		return nil
	}); err != nil {
		return memory.Snapshot{}, false, err
	}
	snapshot.CostLines = map[string]memory.CostLine{}
	if err := s.loadKeyed(ctx, "hard_costs", projectID, func(id string, payload []byte) error {
		var line memory.CostLine
		if err := json.Unmarshal(payload, &line); err != nil {
			return err
		}
		snapshot.CostLines[id] = line
		return nil
	}); err != nil {
		return memory.Snapshot{}, false, err
	}
	snapshot.NonRentable = map[string]memory.NonRentableType{}
	if err := s.loadKeyed(ctx, "non_rentable_types", projectID, func(id string, payload []byte) error {
		var nr memory.NonRentableType
		if err := json.Unmarshal(payload, &nr); err != nil {
			return err
		}
		snapshot.NonRentable[id] = nr
		return nil
	}); err != nil {
		return memory.Snapshot{}, false, err
	}
	return snapshot, true, nil
}

func (s *Store) loadKeyed(ctx context.Context, table, projectID string, apply func(id string, payload []byte) error) error {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, payload FROM %s WHERE project_id = $1`, table), projectID)
	if err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		if err := apply(id, payload); err != nil {
			return fmt.Errorf("decode %s %s: %w", table, id, err)
		}
	}
	return rows.Err()
}

// ListProjects returns the IDs of every stored project in save order.
func (s *Store) ListProjects(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM projects ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("select projects: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteProject removes a project and, through the schema's cascades, all of
// its child rows.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
