package model

import (
	"fmt"
	"strings"
	"time"
)

// Status classifies one reconciled (vehicle, product) pair.
type Status string

const (
	StatusUnassignedConsumption Status = "unassigned-consumption"
	StatusNoConsumption         Status = "no-consumption-reported"
	StatusNegativeBalance       Status = "negative-balance"
	StatusMatch                 Status = "match"
	StatusPendingReport         Status = "assigned-pending-report"
)

// ParseStatus converts a status name into a Status.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.TrimSpace(strings.ToLower(s))) {
	case StatusUnassignedConsumption:
		return StatusUnassignedConsumption, true
	case StatusNoConsumption:
		return StatusNoConsumption, true
	case StatusNegativeBalance:
		return StatusNegativeBalance, true
	case StatusMatch:
		return StatusMatch, true
	case StatusPendingReport:
		return StatusPendingReport, true
	}
	return "", false
}

// AssignmentRow is the ledger's current belief of stock held by a vehicle.
type AssignmentRow struct {
	Vehicle     string `json:"vehicle"`
	ProductName string `json:"product_name"`
	ProductID   string `json:"product_id"`
	Quantity    int64  `json:"quantity"`
}

// ReconciledRow is one line of the reconciliation result.
type ReconciledRow struct {
	Date               time.Time `json:"date"`
	Vehicle            string    `json:"vehicle"`
	ProductName        string    `json:"product_name"`
	ProductID          string    `json:"product_id"`
	ReportedQuantity   int64     `json:"reported_quantity"`
	SystemQuantity     int64     `json:"system_quantity"`
	TheoreticalBalance int64     `json:"theoretical_balance"`
	Status             Status    `json:"status"`
}

// MovementKind labels a ledger movement.
type MovementKind string

// MovementVehicleConsumption is stock consumed from a vehicle in the field.
const MovementVehicleConsumption MovementKind = "vehicle_consumption"

// Deduction is a single stock-deducting ledger transaction.
type Deduction struct {
	ProductID  string       `json:"product_id"`
	Kind       MovementKind `json:"kind"`
	Quantity   int64        `json:"quantity"`
	Vehicle    string       `json:"vehicle"`
	EventAt    time.Time    `json:"event_at"`
	PackageTag string       `json:"package_tag,omitempty"`
	Note       string       `json:"note"`
}

// Movement is a deduction as recorded by the ledger.
type Movement struct {
	ID string `json:"id"`
	Deduction
	CreatedAt time.Time `json:"created_at"`
}

// CommitError describes one deduction the ledger did not apply.
type CommitError struct {
	Vehicle     string `json:"vehicle"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Message     string `json:"message"`
}

// CommitResult tallies a commit batch.
type CommitResult struct {
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Skipped   int           `json:"skipped"`
	Errors    []CommitError `json:"errors,omitempty"`
}

// Summary renders "succeeded/attempted" plus at most maxErrors failed products.
// Longer error lists end with a "(+N more)" marker.
func (r CommitResult) Summary(maxErrors int) string {
	s := fmt.Sprintf("%d/%d deductions applied", r.Succeeded, r.Attempted)
	if len(r.Errors) == 0 {
		return s
	}
	if maxErrors <= 0 {
		maxErrors = 1
	}
	shown := r.Errors
	if len(shown) > maxErrors {
		shown = shown[:maxErrors]
	}
	parts := make([]string, 0, len(shown))
	for _, e := range shown {
		name := e.ProductName
		if name == "" {
			name = e.ProductID
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, e.Message))
	}
	s += "; failed: " + strings.Join(parts, ", ")
	if extra := len(r.Errors) - len(shown); extra > 0 {
		s += fmt.Sprintf(" (+%d more)", extra)
	}
	return s
}
