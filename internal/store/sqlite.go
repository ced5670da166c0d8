package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/fieldstock/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS vehicles (
	id         TEXT PRIMARY KEY,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS assignments (
	vehicle_id TEXT NOT NULL REFERENCES vehicles(id),
	product_id TEXT NOT NULL REFERENCES products(id),
	quantity   INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (vehicle_id, product_id)
);

CREATE TABLE IF NOT EXISTS movements (
	id          TEXT PRIMARY KEY,
	product_id  TEXT NOT NULL REFERENCES products(id),
	kind        TEXT NOT NULL,
	quantity    INTEGER NOT NULL,
	vehicle_id  TEXT NOT NULL,
	package_tag TEXT,
	note        TEXT NOT NULL DEFAULT '',
	event_at    DATETIME NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_movements_vehicle ON movements(vehicle_id, created_at);
CREATE INDEX IF NOT EXISTS idx_assignments_vehicle ON assignments(vehicle_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertProduct(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, name) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		id, name,
	)
	return eris.Wrapf(err, "sqlite: upsert product %s", id)
}

func (s *SQLiteStore) UpsertVehicle(ctx context.Context, id string, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vehicles (id, active) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET active = excluded.active`,
		id, active,
	)
	return eris.Wrapf(err, "sqlite: upsert vehicle %s", id)
}

func (s *SQLiteStore) SetAssignment(ctx context.Context, vehicle, productID string, quantity int64) error {
	_, err := s.LoadAssignments(ctx, []model.AssignmentRow{{Vehicle: vehicle, ProductID: productID, Quantity: quantity}}, false)
	return err
}

func (s *SQLiteStore) LoadAssignments(ctx context.Context, rows []model.AssignmentRow, accumulate bool) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin load assignments")
	}
	defer tx.Rollback() //nolint:errcheck

	merge := `quantity = excluded.quantity`
	if accumulate {
		merge = `quantity = assignments.quantity + excluded.quantity`
	}
	stmt := `INSERT INTO assignments (vehicle_id, product_id, quantity, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (vehicle_id, product_id) DO UPDATE SET ` + merge + `, updated_at = excluded.updated_at`

	now := s.now().UTC()
	var n int64
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, `INSERT INTO vehicles (id) VALUES (?) ON CONFLICT (id) DO NOTHING`, r.Vehicle); err != nil {
			return n, eris.Wrapf(err, "sqlite: ensure vehicle %s", r.Vehicle)
		}
		if _, err := tx.ExecContext(ctx, stmt, r.Vehicle, r.ProductID, r.Quantity, now); err != nil {
			return n, eris.Wrapf(err, "sqlite: assign %s to %s", r.ProductID, r.Vehicle)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit load assignments")
	}
	return n, nil
}

func (s *SQLiteStore) FetchAssignment(ctx context.Context, vehicle string) ([]model.AssignmentRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.name, a.product_id, a.quantity
		 FROM assignments a JOIN products p ON p.id = a.product_id
		 WHERE a.vehicle_id = ? AND a.quantity > 0
		 ORDER BY a.product_id`,
		vehicle,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: fetch assignment %s", vehicle)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AssignmentRow
	for rows.Next() {
		a := model.AssignmentRow{Vehicle: vehicle}
		if err := rows.Scan(&a.ProductName, &a.ProductID, &a.Quantity); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assignment")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate assignments")
}

// ApplyDeduction records a movement and decrements the vehicle assignment in
// one transaction. A deduction larger than the assignment drives it negative;
// FetchAssignment hides non-positive rows.
func (s *SQLiteStore) ApplyDeduction(ctx context.Context, d model.Deduction) (bool, string, error) {
	if msg := validateDeduction(d); msg != "" {
		return false, msg, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, "", eris.Wrap(err, "sqlite: begin deduction")
	}
	defer tx.Rollback() //nolint:errcheck

	var name string
	err = tx.QueryRowContext(ctx, `SELECT name FROM products WHERE id = ?`, d.ProductID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, msgUnknownProduct, nil
	}
	if err != nil {
		return false, "", eris.Wrapf(err, "sqlite: lookup product %s", d.ProductID)
	}

	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx, `INSERT INTO vehicles (id) VALUES (?) ON CONFLICT (id) DO NOTHING`, d.Vehicle); err != nil {
		return false, "", eris.Wrapf(err, "sqlite: ensure vehicle %s", d.Vehicle)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO movements (id, product_id, kind, quantity, vehicle_id, package_tag, note, event_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), d.ProductID, string(d.Kind), d.Quantity, d.Vehicle,
		nullString(d.PackageTag), d.Note, d.EventAt.UTC(), now,
	); err != nil {
		return false, "", eris.Wrap(err, "sqlite: insert movement")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO assignments (vehicle_id, product_id, quantity, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (vehicle_id, product_id) DO UPDATE SET quantity = assignments.quantity + excluded.quantity, updated_at = excluded.updated_at`,
		d.Vehicle, d.ProductID, -d.Quantity, now,
	); err != nil {
		return false, "", eris.Wrap(err, "sqlite: decrement assignment")
	}

	if err := tx.Commit(); err != nil {
		return false, "", eris.Wrap(err, "sqlite: commit deduction")
	}
	return true, "", nil
}

func (s *SQLiteStore) ListVehicles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM vehicles WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list vehicles")
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vehicle")
		}
		out = append(out, id)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate vehicles")
}

func (s *SQLiteStore) Catalog(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, id FROM products`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: catalog")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]string)
	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		out[name] = id
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate products")
}

func (s *SQLiteStore) Movements(ctx context.Context, vehicle string, limit int) ([]model.Movement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, kind, quantity, vehicle_id, package_tag, note, event_at, created_at
		 FROM movements WHERE vehicle_id = ?
		 ORDER BY created_at DESC, id LIMIT ?`,
		vehicle, movementsLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: movements %s", vehicle)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Movement
	for rows.Next() {
		var m model.Movement
		var kind string
		var tag sql.NullString
		if err := rows.Scan(&m.ID, &m.ProductID, &kind, &m.Quantity, &m.Vehicle, &tag, &m.Note, &m.EventAt, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan movement")
		}
		m.Kind = model.MovementKind(kind)
		m.PackageTag = tag.String
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate movements")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
