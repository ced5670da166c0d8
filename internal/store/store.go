// Package store implements the reference inventory ledger on SQLite and
// Postgres.
package store

import (
	"context"
	"strings"

	"github.com/sells-group/fieldstock/internal/model"
	"github.com/sells-group/fieldstock/internal/reconcile"
)

// Rejection messages returned by ApplyDeduction with ok=false.
const (
	msgUnknownProduct   = "unknown product"
	msgNonPositiveQty   = "quantity must be positive"
	msgVehicleRequired  = "vehicle is required"
	defaultMovementsCap = 100
)

// Store is the ledger the reconciliation engine reads from and commits to,
// plus the administration needed to seed it.
type Store interface {
	reconcile.Ledger

	// Reference data
	UpsertProduct(ctx context.Context, id, name string) error
	UpsertVehicle(ctx context.Context, id string, active bool) error
	SetAssignment(ctx context.Context, vehicle, productID string, quantity int64) error
	// LoadAssignments writes many assignments at once. With accumulate the
	// quantities are added to existing ones; otherwise they replace them.
	LoadAssignments(ctx context.Context, rows []model.AssignmentRow, accumulate bool) (int64, error)

	// Movements lists the most recent deductions for a vehicle, newest first.
	Movements(ctx context.Context, vehicle string, limit int) ([]model.Movement, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// validateDeduction returns a rejection message for deductions the ledger
// refuses before touching the database, or "".
func validateDeduction(d model.Deduction) string {
	switch {
	case strings.TrimSpace(d.Vehicle) == "":
		return msgVehicleRequired
	case d.Quantity <= 0:
		return msgNonPositiveQty
	}
	return ""
}

func movementsLimit(limit int) int {
	if limit <= 0 {
		return defaultMovementsCap
	}
	return limit
}
