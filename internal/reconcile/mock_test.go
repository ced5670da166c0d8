package reconcile

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/fieldstock/internal/model"
)

// testCatalog is the product catalog shared by the scenario tests.
func testCatalog() map[string]string {
	return map[string]string{
		"FIBUNHILO":       "1-2-16",
		"C_UTP_CAT6":      "1-3-06",
		"COLILLA":         "2-7-11",
		"CONECTOR RJ45":   "3-1-45",
		"Cinta aisladora": "4-0-01",
	}
}

// --- In-memory ledger ---

type fakeLedger struct {
	assignments map[string][]model.AssignmentRow
	catalog     map[string]string
	vehicles    []string
	fetchErr    error
	catalogErr  error

	fetched    []string
	deductions []model.Deduction
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		assignments: make(map[string][]model.AssignmentRow),
		catalog:     testCatalog(),
	}
}

func (f *fakeLedger) assign(vehicle, name, id string, qty int64) {
	f.assignments[vehicle] = append(f.assignments[vehicle], model.AssignmentRow{
		Vehicle:     vehicle,
		ProductName: name,
		ProductID:   id,
		Quantity:    qty,
	})
}

func (f *fakeLedger) FetchAssignment(_ context.Context, vehicle string) ([]model.AssignmentRow, error) {
	f.fetched = append(f.fetched, vehicle)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]model.AssignmentRow(nil), f.assignments[vehicle]...), nil
}

func (f *fakeLedger) ApplyDeduction(_ context.Context, d model.Deduction) (bool, string, error) {
	f.deductions = append(f.deductions, d)
	return true, "", nil
}

func (f *fakeLedger) ListVehicles(_ context.Context) ([]string, error) {
	return f.vehicles, nil
}

func (f *fakeLedger) Catalog(_ context.Context) (map[string]string, error) {
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	return f.catalog, nil
}

// --- Deduction sink mock ---

type mockSink struct {
	mock.Mock
}

func (m *mockSink) ApplyDeduction(ctx context.Context, d model.Deduction) (bool, string, error) {
	args := m.Called(ctx, d)
	return args.Bool(0), args.String(1), args.Error(2)
}

func forProduct(id string) interface{} {
	return mock.MatchedBy(func(d model.Deduction) bool { return d.ProductID == id })
}

func table(headers []string, rows ...[]string) *model.Table {
	return &model.Table{Source: "test.csv", Headers: headers, Rows: rows}
}
