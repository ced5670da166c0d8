package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/fieldstock/internal/db"
	"github.com/sells-group/fieldstock/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection. The
// reconciliation path reads one assignment per vehicle and commits one
// deduction per row, so these run far more often than anything else.
var preparedStatements = map[string]string{
	"fetch_assignment": `SELECT p.name, a.product_id, a.quantity FROM assignments a JOIN products p ON p.id = a.product_id WHERE a.vehicle_id = $1 AND a.quantity > 0 ORDER BY a.product_id`,
	"product_name":     `SELECT name FROM products WHERE id = $1`,
	"ensure_vehicle":   `INSERT INTO vehicles (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
	"insert_movement":  `INSERT INTO movements (id, product_id, kind, quantity, vehicle_id, package_tag, note, event_at, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"adjust_assignment": `INSERT INTO assignments (vehicle_id, product_id, quantity, updated_at) VALUES ($1, $2, $3, $4) ` +
		`ON CONFLICT (vehicle_id, product_id) DO UPDATE SET quantity = assignments.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS vehicles (
	id         TEXT PRIMARY KEY,
	active     BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS assignments (
	vehicle_id TEXT NOT NULL REFERENCES vehicles(id),
	product_id TEXT NOT NULL REFERENCES products(id),
	quantity   BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (vehicle_id, product_id)
);

CREATE TABLE IF NOT EXISTS movements (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_id  TEXT NOT NULL REFERENCES products(id),
	kind        TEXT NOT NULL,
	quantity    BIGINT NOT NULL,
	vehicle_id  TEXT NOT NULL,
	package_tag TEXT,
	note        TEXT NOT NULL DEFAULT '',
	event_at    TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_movements_vehicle ON movements(vehicle_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_assignments_vehicle ON assignments(vehicle_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *PostgresStore) UpsertProduct(ctx context.Context, id, name string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, name) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		id, name,
	)
	return eris.Wrapf(err, "postgres: upsert product %s", id)
}

func (s *PostgresStore) UpsertVehicle(ctx context.Context, id string, active bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO vehicles (id, active) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET active = EXCLUDED.active`,
		id, active,
	)
	return eris.Wrapf(err, "postgres: upsert vehicle %s", id)
}

func (s *PostgresStore) SetAssignment(ctx context.Context, vehicle, productID string, quantity int64) error {
	if _, err := s.pool.Exec(ctx, `INSERT INTO vehicles (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, vehicle); err != nil {
		return eris.Wrapf(err, "postgres: ensure vehicle %s", vehicle)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assignments (vehicle_id, product_id, quantity, updated_at) VALUES ($1, $2, $3, $4) `+
			`ON CONFLICT (vehicle_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
		vehicle, productID, quantity, s.clock(),
	)
	return eris.Wrapf(err, "postgres: assign %s to %s", productID, vehicle)
}

// LoadAssignments stages vehicles and assignments through COPY. Rows sharing
// a (vehicle, product) key are merged first because one ON CONFLICT statement
// cannot touch the same target row twice.
func (s *PostgresStore) LoadAssignments(ctx context.Context, rows []model.AssignmentRow, accumulate bool) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	merged := mergeAssignments(rows, accumulate)

	seen := make(map[string]bool)
	var vehicles [][]any
	for _, r := range merged {
		if !seen[r.Vehicle] {
			seen[r.Vehicle] = true
			vehicles = append(vehicles, []any{r.Vehicle})
		}
	}
	if _, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "vehicles",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	}, vehicles); err != nil {
		return 0, eris.Wrap(err, "postgres: load vehicles")
	}

	data := make([][]any, len(merged))
	for i, r := range merged {
		data[i] = []any{r.Vehicle, r.ProductID, r.Quantity}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "assignments",
		Columns:      []string{"vehicle_id", "product_id", "quantity"},
		ConflictKeys: []string{"vehicle_id", "product_id"},
		Accumulate:   accumulate,
	}, data)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: load assignments")
	}
	return n, nil
}

// mergeAssignments collapses duplicate keys: summed when accumulating, last
// one wins otherwise. Output is ordered by vehicle then product.
func mergeAssignments(rows []model.AssignmentRow, accumulate bool) []model.AssignmentRow {
	type key struct{ vehicle, product string }
	byKey := make(map[key]*model.AssignmentRow, len(rows))
	for _, r := range rows {
		k := key{r.Vehicle, r.ProductID}
		if cur, ok := byKey[k]; ok {
			if accumulate {
				cur.Quantity += r.Quantity
			} else {
				cur.Quantity = r.Quantity
			}
			continue
		}
		cp := r
		byKey[k] = &cp
	}
	out := make([]model.AssignmentRow, 0, len(byKey))
	for _, r := range byKey {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Vehicle != out[j].Vehicle {
			return out[i].Vehicle < out[j].Vehicle
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

func (s *PostgresStore) FetchAssignment(ctx context.Context, vehicle string) ([]model.AssignmentRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.name, a.product_id, a.quantity FROM assignments a JOIN products p ON p.id = a.product_id WHERE a.vehicle_id = $1 AND a.quantity > 0 ORDER BY a.product_id`,
		vehicle,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: fetch assignment %s", vehicle)
	}
	defer rows.Close()

	var out []model.AssignmentRow
	for rows.Next() {
		a := model.AssignmentRow{Vehicle: vehicle}
		if err := rows.Scan(&a.ProductName, &a.ProductID, &a.Quantity); err != nil {
			return nil, eris.Wrap(err, "postgres: scan assignment")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate assignments")
}

func (s *PostgresStore) ApplyDeduction(ctx context.Context, d model.Deduction) (bool, string, error) {
	if msg := validateDeduction(d); msg != "" {
		return false, msg, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, "", eris.Wrap(err, "postgres: begin deduction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var name string
	err = tx.QueryRow(ctx, `SELECT name FROM products WHERE id = $1`, d.ProductID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, msgUnknownProduct, nil
	}
	if err != nil {
		return false, "", eris.Wrapf(err, "postgres: lookup product %s", d.ProductID)
	}

	now := s.clock()
	if _, err := tx.Exec(ctx, `INSERT INTO vehicles (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, d.Vehicle); err != nil {
		return false, "", eris.Wrapf(err, "postgres: ensure vehicle %s", d.Vehicle)
	}

	var tag *string
	if t := strings.TrimSpace(d.PackageTag); t != "" {
		tag = &t
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO movements (id, product_id, kind, quantity, vehicle_id, package_tag, note, event_at, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New().String(), d.ProductID, string(d.Kind), d.Quantity, d.Vehicle, tag, d.Note, d.EventAt.UTC(), now,
	); err != nil {
		return false, "", eris.Wrap(err, "postgres: insert movement")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO assignments (vehicle_id, product_id, quantity, updated_at) VALUES ($1, $2, $3, $4) `+
			`ON CONFLICT (vehicle_id, product_id) DO UPDATE SET quantity = assignments.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
		d.Vehicle, d.ProductID, -d.Quantity, now,
	); err != nil {
		return false, "", eris.Wrap(err, "postgres: decrement assignment")
	}

	if err := tx.Commit(ctx); err != nil {
		return false, "", eris.Wrap(err, "postgres: commit deduction")
	}
	return true, "", nil
}

func (s *PostgresStore) ListVehicles(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM vehicles WHERE active ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list vehicles")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vehicle")
		}
		out = append(out, id)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate vehicles")
}

func (s *PostgresStore) Catalog(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, id FROM products`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: catalog")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		out[name] = id
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate products")
}

func (s *PostgresStore) Movements(ctx context.Context, vehicle string, limit int) ([]model.Movement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, kind, quantity, vehicle_id, COALESCE(package_tag, ''), note, event_at, created_at
		 FROM movements WHERE vehicle_id = $1 ORDER BY created_at DESC, id LIMIT $2`,
		vehicle, movementsLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: movements %s", vehicle)
	}
	defer rows.Close()

	var out []model.Movement
	for rows.Next() {
		var m model.Movement
		var kind string
		if err := rows.Scan(&m.ID, &m.ProductID, &kind, &m.Quantity, &m.Vehicle, &m.PackageTag, &m.Note, &m.EventAt, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan movement")
		}
		m.Kind = model.MovementKind(kind)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate movements")
}
