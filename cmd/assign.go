package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fieldstock/internal/fetcher"
	"github.com/sells-group/fieldstock/internal/model"
	"github.com/sells-group/fieldstock/internal/reconcile"
)

var assignCmd = &cobra.Command{
	Use:   "assign [<vehicle> <product-id> <quantity>]",
	Short: "Set vehicle stock assignments",
	Long: "Sets one assignment from arguments, or loads many from a CSV/XLSX file with " +
		"vehicle, product_id and quantity columns. --add accumulates onto existing quantities.",
	Args: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(3)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")
		add, _ := cmd.Flags().GetBool("add")

		var rows []model.AssignmentRow
		if file != "" {
			table, err := fetcher.LoadFile(file, file, fetcher.LoadOptions{})
			if err != nil {
				return eris.Wrap(err, "assign: load file")
			}
			rows, err = assignmentRows(table)
			if err != nil {
				return err
			}
		} else {
			qty, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil || qty < 0 {
				return eris.Errorf("assign: invalid quantity %q", args[2])
			}
			rows = []model.AssignmentRow{{Vehicle: reconcile.CleanLabel(args[0]), ProductID: strings.TrimSpace(args[1]), Quantity: qty}}
		}

		st, err := initLedger(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.LoadAssignments(ctx, rows, add)
		if err != nil {
			return eris.Wrap(err, "assign")
		}
		zap.L().Info("assignments loaded", zap.Int64("rows", n), zap.Bool("accumulate", add))
		fmt.Fprintf(os.Stderr, "%d assignments written.\n", n)
		return nil
	},
}

// assignmentRows reads vehicle/product_id/quantity columns by header name.
func assignmentRows(t *model.Table) ([]model.AssignmentRow, error) {
	idx := map[string]int{"vehicle": -1, "product_id": -1, "quantity": -1}
	for i, h := range t.Headers {
		key := strings.ToLower(strings.TrimSpace(h))
		if j, ok := idx[key]; ok && j < 0 {
			idx[key] = i
		}
	}
	var missing []string
	for _, k := range []string{"vehicle", "product_id", "quantity"} {
		if idx[k] < 0 {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("assign: %s: missing columns %s", t.Source, strings.Join(missing, ", "))
	}

	rows := make([]model.AssignmentRow, 0, len(t.Rows))
	for n, rec := range t.Rows {
		vehicle := reconcile.CleanLabel(rec[idx["vehicle"]])
		product := strings.TrimSpace(rec[idx["product_id"]])
		if vehicle == "" || product == "" {
			continue
		}
		qty, coerced := reconcile.ParseQuantity(rec[idx["quantity"]])
		if coerced {
			return nil, eris.Errorf("assign: %s row %d: invalid quantity %q", t.Source, n+1, rec[idx["quantity"]])
		}
		rows = append(rows, model.AssignmentRow{Vehicle: vehicle, ProductID: product, Quantity: qty})
	}
	return rows, nil
}

// -- catalog set --

var catalogSetCmd = &cobra.Command{
	Use:   "set <product-id> <name>",
	Short: "Add or rename a catalog product",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return st.UpsertProduct(ctx, strings.TrimSpace(args[0]), strings.TrimSpace(args[1]))
	},
}

// -- vehicles set --

var vehiclesSetCmd = &cobra.Command{
	Use:   "set <vehicle>",
	Short: "Register a vehicle or change whether it is active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		active, _ := cmd.Flags().GetBool("active")

		st, err := initLedger(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return st.UpsertVehicle(ctx, reconcile.CleanLabel(args[0]), active)
	},
}

func init() {
	assignCmd.Flags().String("file", "", "CSV or XLSX file with vehicle, product_id and quantity columns")
	assignCmd.Flags().Bool("add", false, "add quantities to existing assignments instead of replacing them")
	vehiclesSetCmd.Flags().Bool("active", true, "whether the vehicle is active")

	catalogCmd.AddCommand(catalogSetCmd)
	vehiclesCmd.AddCommand(vehiclesSetCmd)
	rootCmd.AddCommand(assignCmd)
}
