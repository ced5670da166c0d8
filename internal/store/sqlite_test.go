package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fieldstock/internal/model"
	"github.com/sells-group/fieldstock/internal/reconcile"
)

var _ Store = (*SQLiteStore)(nil)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// seed loads a small catalog and one vehicle holding two products.
func seed(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertProduct(ctx, "2-7-11", "COLILLA"))
	require.NoError(t, st.UpsertProduct(ctx, "1-2-16", "FIBUNHILO"))
	require.NoError(t, st.UpsertProduct(ctx, "3-1-45", "CONECTOR RJ45"))
	require.NoError(t, st.SetAssignment(ctx, "Movil 201", "2-7-11", 10))
	require.NoError(t, st.SetAssignment(ctx, "Movil 201", "1-2-16", 4))
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_FetchAssignment(t *testing.T) {
	st := newTestSQLiteStore(t)
	seed(t, st)

	rows, err := st.FetchAssignment(context.Background(), "Movil 201")
	require.NoError(t, err)
	assert.Equal(t, []model.AssignmentRow{
		{Vehicle: "Movil 201", ProductName: "FIBUNHILO", ProductID: "1-2-16", Quantity: 4},
		{Vehicle: "Movil 201", ProductName: "COLILLA", ProductID: "2-7-11", Quantity: 10},
	}, rows)

	empty, err := st.FetchAssignment(context.Background(), "Movil 999")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLite_SetAssignmentReplaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	seed(t, st)
	ctx := context.Background()

	require.NoError(t, st.SetAssignment(ctx, "Movil 201", "2-7-11", 3))
	rows, err := st.FetchAssignment(ctx, "Movil 201")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[1].Quantity)
}

func TestSQLite_LoadAssignmentsAccumulate(t *testing.T) {
	st := newTestSQLiteStore(t)
	seed(t, st)
	ctx := context.Background()

	n, err := st.LoadAssignments(ctx, []model.AssignmentRow{
		{Vehicle: "Movil 201", ProductID: "2-7-11", Quantity: 5},
		{Vehicle: "Movil 305", ProductID: "3-1-45", Quantity: 20},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := st.FetchAssignment(ctx, "Movil 201")
	require.NoError(t, err)
	assert.Equal(t, int64(15), rows[1].Quantity)

	vehicles, err := st.ListVehicles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Movil 201", "Movil 305"}, vehicles)
}

func TestSQLite_ListVehiclesSkipsInactive(t *testing.T) {
	st := newTestSQLiteStore(t)
	seed(t, st)
	ctx := context.Background()

	require.NoError(t, st.UpsertVehicle(ctx, "Movil 100", false))
	require.NoError(t, st.UpsertVehicle(ctx, "Movil 050", true))

	vehicles, err := st.ListVehicles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Movil 050", "Movil 201"}, vehicles)
}

func TestSQLite_Catalog(t *testing.T) {
	st := newTestSQLiteStore(t)
	seed(t, st)
	ctx := context.Background()

	require.NoError(t, st.UpsertProduct(ctx, "2-7-11", "Colilla UTP"))
	catalog, err := st.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Colilla UTP":   "2-7-11",
		"FIBUNHILO":     "1-2-16",
		"CONECTOR RJ45": "3-1-45",
	}, catalog)
}

func TestSQLite_ApplyDeduction(t *testing.T) {
	st := newTestSQLiteStore(t)
	seed(t, st)
	ctx := context.Background()
	eventAt := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	ok, msg, err := st.ApplyDeduction(ctx, model.Deduction{
		ProductID:  "2-7-11",
		Kind:       model.MovementVehicleConsumption,
		Quantity:   7,
		Vehicle:    "Movil 201",
		EventAt:    eventAt,
		PackageTag: "PKG-1",
		Note:       reconcile.DefaultCommitNote,
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, msg)

	rows, err := st.FetchAssignment(ctx, "Movil 201")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows[1].Quantity)

	moves, err := st.Movements(ctx, "Movil 201", 0)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	m := moves[0]
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "2-7-11", m.ProductID)
	assert.Equal(t, model.MovementVehicleConsumption, m.Kind)
	assert.Equal(t, int64(7), m.Quantity)
	assert.Equal(t, "PKG-1", m.PackageTag)
	assert.Equal(t, reconcile.DefaultCommitNote, m.Note)
	assert.True(t, m.EventAt.Equal(eventAt))
}

func TestSQLite_ApplyDeductionOverdrawHidesRow(t *testing.T) {
	st := newTestSQLiteStore(t)
	seed(t, st)
	ctx := context.Background()

	ok, _, err := st.ApplyDeduction(ctx, model.Deduction{
		ProductID: "1-2-16", Kind: model.MovementVehicleConsumption,
		Quantity: 6, Vehicle: "Movil 201", EventAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	rows, err := st.FetchAssignment(ctx, "Movil 201")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2-7-11", rows[0].ProductID)
}

func TestSQLite_ApplyDeductionUnassignedProduct(t *testing.T) {
	st := newTestSQLiteStore(t)
	seed(t, st)
	ctx := context.Background()

	ok, _, err := st.ApplyDeduction(ctx, model.Deduction{
		ProductID: "3-1-45", Kind: model.MovementVehicleConsumption,
		Quantity: 2, Vehicle: "Movil 777", EventAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	vehicles, err := st.ListVehicles(ctx)
	require.NoError(t, err)
	assert.Contains(t, vehicles, "Movil 777")

	rows, err := st.FetchAssignment(ctx, "Movil 777")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLite_ApplyDeductionRejections(t *testing.T) {
	st := newTestSQLiteStore(t)
	seed(t, st)
	ctx := context.Background()

	tests := []struct {
		name string
		d    model.Deduction
		msg  string
	}{
		{"unknown product", model.Deduction{ProductID: "9-9-99", Quantity: 1, Vehicle: "Movil 201"}, msgUnknownProduct},
		{"zero quantity", model.Deduction{ProductID: "2-7-11", Quantity: 0, Vehicle: "Movil 201"}, msgNonPositiveQty},
		{"blank vehicle", model.Deduction{ProductID: "2-7-11", Quantity: 1, Vehicle: "  "}, msgVehicleRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, msg, err := st.ApplyDeduction(ctx, tt.d)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, tt.msg, msg)
		})
	}

	moves, err := st.Movements(ctx, "Movil 201", 10)
	require.NoError(t, err)
	assert.Empty(t, moves)
}

func TestSQLite_MovementsNewestFirst(t *testing.T) {
	st := newTestSQLiteStore(t)
	seed(t, st)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	tick := 0
	st.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, id := range []string{"2-7-11", "1-2-16", "2-7-11"} {
		ok, _, err := st.ApplyDeduction(ctx, model.Deduction{
			ProductID: id, Kind: model.MovementVehicleConsumption,
			Quantity: 1, Vehicle: "Movil 201", EventAt: base,
		})
		require.NoError(t, err)
		require.True(t, ok)
	}

	moves, err := st.Movements(ctx, "Movil 201", 2)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, "2-7-11", moves[0].ProductID)
	assert.Equal(t, "1-2-16", moves[1].ProductID)
	assert.True(t, moves[0].CreatedAt.After(moves[1].CreatedAt))
}

func TestSQLite_EngineRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	seed(t, st)
	ctx := context.Background()

	eng := reconcile.NewEngine(st, reconcile.Config{})
	table := &model.Table{
		Source:  "report.csv",
		Headers: []string{"fecha", "movil", "producto", "cantidad"},
		Rows: [][]string{
			{"2025-01-10", "Movil 201", "2-7-11", "7"},
			{"2025-01-10", "Movil 201", "3-1-45", "2"},
		},
	}
	res, err := eng.Reconcile(ctx, table, "")
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	byID := map[string]model.ReconciledRow{}
	for _, r := range res.Rows {
		byID[r.ProductID] = r
	}
	assert.Equal(t, model.StatusNoConsumption, byID["1-2-16"].Status)
	assert.Equal(t, model.StatusMatch, byID["2-7-11"].Status)
	assert.Equal(t, int64(3), byID["2-7-11"].TheoreticalBalance)
	assert.Equal(t, model.StatusUnassignedConsumption, byID["3-1-45"].Status)
	assert.Equal(t, "CONECTOR RJ45", byID["3-1-45"].ProductName)

	result, err := eng.Commit(ctx, res.Rows, "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempted)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Skipped)

	after, err := st.FetchAssignment(ctx, "Movil 201")
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, int64(3), after[1].Quantity)
}
