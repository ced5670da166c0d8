package reconcile

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/fieldstock/internal/model"
)

// AssignmentSource reads the stock currently held by a vehicle.
type AssignmentSource interface {
	FetchAssignment(ctx context.Context, vehicle string) ([]model.AssignmentRow, error)
}

// Classify applies the status precedence to one joined pair and returns the
// status with its theoretical balance.
func Classify(system, reported int64) (model.Status, int64) {
	balance := system - reported
	switch {
	case system == 0 && reported > 0:
		return model.StatusUnassignedConsumption, -reported
	case system > 0 && reported == 0:
		return model.StatusNoConsumption, balance
	case balance < 0:
		return model.StatusNegativeBalance, balance
	default:
		return model.StatusMatch, balance
	}
}

// FilterVehicle restricts rows to one vehicle. When the vehicle never appears
// and the rows carry at most one distinct vehicle value, the whole file is
// taken to be that vehicle's report and every row is reassigned to it.
func FilterVehicle(rows []model.NormalizedRow, vehicle string) []model.NormalizedRow {
	vehicle = CleanLabel(vehicle)
	if vehicle == "" {
		return rows
	}

	distinct := make(map[string]struct{})
	present := false
	for _, r := range rows {
		distinct[strings.ToLower(r.Vehicle)] = struct{}{}
		if strings.EqualFold(r.Vehicle, vehicle) {
			present = true
		}
	}

	out := make([]model.NormalizedRow, 0, len(rows))
	reassign := !present && len(distinct) <= 1
	for _, r := range rows {
		if reassign || strings.EqualFold(r.Vehicle, vehicle) {
			r.Vehicle = vehicle
			out = append(out, r)
		}
	}
	return out
}

type pairKey struct {
	vehicle string
	product string
}

type reported struct {
	quantity int64
	latest   time.Time
}

// Reconcile aggregates report rows per (vehicle, product), joins them with the
// ledger assignment of every vehicle involved, and classifies each pair. The
// result is sorted by vehicle then product id, so identical inputs always
// produce identical output.
func Reconcile(ctx context.Context, src AssignmentSource, rows []model.NormalizedRow, vehicle string, cat *Catalog) ([]model.ReconciledRow, error) {
	rows = FilterVehicle(rows, vehicle)

	agg := make(map[pairKey]*reported)
	spelling := make(map[string]string) // lower-cased vehicle -> first spelling seen
	for _, r := range rows {
		v, ok := spelling[strings.ToLower(r.Vehicle)]
		if !ok {
			v = r.Vehicle
			spelling[strings.ToLower(r.Vehicle)] = v
		}
		k := pairKey{vehicle: v, product: r.Product}
		a, ok := agg[k]
		if !ok {
			a = &reported{}
			agg[k] = a
		}
		a.quantity += r.Quantity
		if r.Date.After(a.latest) {
			a.latest = r.Date
		}
	}

	vehicles := make([]string, 0, len(spelling))
	for _, v := range spelling {
		vehicles = append(vehicles, v)
	}
	sort.Strings(vehicles)

	var out []model.ReconciledRow
	for _, v := range vehicles {
		assigned := make(map[string]model.AssignmentRow)
		if v != "" {
			rows, err := src.FetchAssignment(ctx, v)
			if err != nil {
				return nil, ledgerErr("fetch assignment "+v, err)
			}
			for _, a := range rows {
				if prev, ok := assigned[a.ProductID]; ok {
					prev.Quantity += a.Quantity
					assigned[a.ProductID] = prev
					continue
				}
				assigned[a.ProductID] = a
			}
		}

		products := make(map[string]struct{})
		for k := range agg {
			if k.vehicle == v {
				products[k.product] = struct{}{}
			}
		}
		for id := range assigned {
			products[id] = struct{}{}
		}

		for _, id := range sortedKeys(products) {
			row := model.ReconciledRow{Vehicle: v, ProductID: id}
			if a, ok := agg[pairKey{vehicle: v, product: id}]; ok {
				row.ReportedQuantity = a.quantity
				row.Date = a.latest
			}
			if a, ok := assigned[id]; ok {
				row.SystemQuantity = a.Quantity
				row.ProductName = a.ProductName
			}
			if row.ProductName == "" {
				row.ProductName = cat.Name(id)
			}
			if row.ProductName == "" {
				row.ProductName = id
			}
			row.Status, row.TheoreticalBalance = Classify(row.SystemQuantity, row.ReportedQuantity)
			out = append(out, row)
		}
	}
	return out, nil
}

// Inspect lists a vehicle's current assignment without any report: every row
// carries reported 0 and the pending-report status.
func Inspect(ctx context.Context, src AssignmentSource, vehicle string) ([]model.ReconciledRow, error) {
	vehicle = CleanLabel(vehicle)
	if vehicle == "" {
		return nil, ErrVehicleRequired
	}
	assigned, err := src.FetchAssignment(ctx, vehicle)
	if err != nil {
		return nil, ledgerErr("fetch assignment "+vehicle, err)
	}

	out := make([]model.ReconciledRow, 0, len(assigned))
	for _, a := range assigned {
		out = append(out, model.ReconciledRow{
			Vehicle:            vehicle,
			ProductName:        a.ProductName,
			ProductID:          a.ProductID,
			SystemQuantity:     a.Quantity,
			TheoreticalBalance: a.Quantity,
			Status:             model.StatusPendingReport,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
