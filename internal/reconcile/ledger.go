package reconcile

import "context"

// Ledger is the inventory system the engine reconciles against. The engine
// only reads through FetchAssignment, ListVehicles and Catalog, and only
// writes through ApplyDeduction.
type Ledger interface {
	AssignmentSource
	DeductionSink

	ListVehicles(ctx context.Context) ([]string, error)

	// Catalog returns product display name -> product id.
	Catalog(ctx context.Context) (map[string]string, error)
}
