package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fieldstock/internal/model"
)

var _ Store = (*PostgresStore)(nil)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	fixed := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	s := &PostgresStore{pool: mock, now: func() time.Time { return fixed }}
	return s, mock
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS products`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FetchAssignment(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT p.name, a.product_id, a.quantity FROM assignments a`).
		WithArgs("Movil 201").
		WillReturnRows(pgxmock.NewRows([]string{"name", "product_id", "quantity"}).
			AddRow("FIBUNHILO", "1-2-16", int64(4)).
			AddRow("COLILLA", "2-7-11", int64(10)))

	rows, err := s.FetchAssignment(context.Background(), "Movil 201")
	require.NoError(t, err)
	assert.Equal(t, []model.AssignmentRow{
		{Vehicle: "Movil 201", ProductName: "FIBUNHILO", ProductID: "1-2-16", Quantity: 4},
		{Vehicle: "Movil 201", ProductName: "COLILLA", ProductID: "2-7-11", Quantity: 10},
	}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FetchAssignment_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM assignments`).
		WithArgs("Movil 201").
		WillReturnError(errors.New("connection reset"))

	_, err := s.FetchAssignment(context.Background(), "Movil 201")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch assignment Movil 201")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyDeduction(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	eventAt := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT name FROM products WHERE id = \$1`).
		WithArgs("2-7-11").
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("COLILLA"))
	mock.ExpectExec(`INSERT INTO vehicles`).
		WithArgs("Movil 201").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(`INSERT INTO movements`).
		WithArgs(pgxmock.AnyArg(), "2-7-11", "vehicle_consumption", int64(7), "Movil 201",
			pgxmock.AnyArg(), "bulk consumption reconciliation", eventAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO assignments .* quantity = assignments.quantity \+ EXCLUDED.quantity`).
		WithArgs("Movil 201", "2-7-11", int64(-7), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ok, msg, err := s.ApplyDeduction(context.Background(), model.Deduction{
		ProductID: "2-7-11",
		Kind:      model.MovementVehicleConsumption,
		Quantity:  7,
		Vehicle:   "Movil 201",
		EventAt:   eventAt,
		Note:      "bulk consumption reconciliation",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, msg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyDeduction_UnknownProduct(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT name FROM products`).
		WithArgs("9-9-99").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	ok, msg, err := s.ApplyDeduction(context.Background(), model.Deduction{
		ProductID: "9-9-99", Quantity: 1, Vehicle: "Movil 201",
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, msgUnknownProduct, msg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyDeduction_InsertFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT name FROM products`).
		WithArgs("2-7-11").
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("COLILLA"))
	mock.ExpectExec(`INSERT INTO vehicles`).
		WithArgs("Movil 201").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO movements`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	ok, _, err := s.ApplyDeduction(context.Background(), model.Deduction{
		ProductID: "2-7-11", Quantity: 1, Vehicle: "Movil 201",
	})
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "insert movement")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyDeduction_RejectsWithoutQuery(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	ok, msg, err := s.ApplyDeduction(context.Background(), model.Deduction{
		ProductID: "2-7-11", Quantity: -1, Vehicle: "Movil 201",
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, msgNonPositiveQty, msg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadAssignments(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_vehicles"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_vehicles"}, []string{"id"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "vehicles" .* DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_assignments"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_assignments"}, []string{"vehicle_id", "product_id", "quantity"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "assignments" .* "quantity" = "assignments"."quantity" \+ EXCLUDED."quantity"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.LoadAssignments(context.Background(), []model.AssignmentRow{
		{Vehicle: "Movil 201", ProductID: "2-7-11", Quantity: 5},
		{Vehicle: "Movil 201", ProductID: "2-7-11", Quantity: 2},
		{Vehicle: "Movil 305", ProductID: "3-1-45", Quantity: 20},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadAssignments_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.LoadAssignments(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeAssignments(t *testing.T) {
	rows := []model.AssignmentRow{
		{Vehicle: "Movil 305", ProductID: "3-1-45", Quantity: 1},
		{Vehicle: "Movil 201", ProductID: "2-7-11", Quantity: 5},
		{Vehicle: "Movil 201", ProductID: "2-7-11", Quantity: 2},
	}

	acc := mergeAssignments(rows, true)
	require.Len(t, acc, 2)
	assert.Equal(t, "Movil 201", acc[0].Vehicle)
	assert.Equal(t, int64(7), acc[0].Quantity)

	last := mergeAssignments(rows, false)
	require.Len(t, last, 2)
	assert.Equal(t, int64(2), last[0].Quantity)
	assert.Equal(t, "Movil 305", last[1].Vehicle)
}

func TestPostgresStore_ListVehicles(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM vehicles WHERE active ORDER BY id`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("Movil 201").AddRow("Movil 305"))

	vehicles, err := s.ListVehicles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Movil 201", "Movil 305"}, vehicles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Catalog(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT name, id FROM products`).
		WillReturnRows(pgxmock.NewRows([]string{"name", "id"}).
			AddRow("COLILLA", "2-7-11").
			AddRow("FIBUNHILO", "1-2-16"))

	catalog, err := s.Catalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"COLILLA": "2-7-11", "FIBUNHILO": "1-2-16"}, catalog)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Movements(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM movements WHERE vehicle_id = \$1`).
		WithArgs("Movil 201", defaultMovementsCap).
		WillReturnRows(pgxmock.NewRows([]string{"id", "product_id", "kind", "quantity", "vehicle_id", "package_tag", "note", "event_at", "created_at"}).
			AddRow("m-1", "2-7-11", "vehicle_consumption", int64(7), "Movil 201", "", "bulk consumption reconciliation", at, at))

	moves, err := s.Movements(context.Background(), "Movil 201", 0)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, "m-1", moves[0].ID)
	assert.Equal(t, model.MovementVehicleConsumption, moves[0].Kind)
	assert.Equal(t, int64(7), moves[0].Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetAssignment(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO vehicles`).
		WithArgs("Movil 201").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO assignments .* quantity = EXCLUDED.quantity`).
		WithArgs("Movil 201", "2-7-11", int64(10), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SetAssignment(context.Background(), "Movil 201", "2-7-11", 10))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	called := false
	s := &PostgresStore{closeFn: func() { called = true }}
	require.NoError(t, s.Close())
	assert.True(t, called)
}
