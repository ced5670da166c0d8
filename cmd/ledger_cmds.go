package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/fieldstock/internal/model"
)

// -- vehicles --

var vehiclesCmd = &cobra.Command{
	Use:   "vehicles",
	Short: "List active vehicles in the ledger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		vehicles, err := st.ListVehicles(ctx)
		if err != nil {
			return eris.Wrap(err, "vehicles")
		}
		if len(vehicles) == 0 {
			fmt.Fprintln(os.Stderr, "No vehicles found.")
			return nil
		}
		for _, v := range vehicles {
			fmt.Fprintln(os.Stdout, v)
		}
		return nil
	},
}

// -- catalog --

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the product catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		products, err := st.Catalog(ctx)
		if err != nil {
			return eris.Wrap(err, "catalog")
		}
		formatCatalog(os.Stdout, products)
		return nil
	},
}

func formatCatalog(out io.Writer, products map[string]string) {
	names := make([]string, 0, len(products))
	for name := range products {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if products[names[i]] != products[names[j]] {
			return products[names[i]] < products[names[j]]
		}
		return names[i] < names[j]
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME")
	_, _ = fmt.Fprintln(w, "--\t----")
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", products[name], name)
	}
	_ = w.Flush()
}

// -- movements --

var movementsCmd = &cobra.Command{
	Use:   "movements <vehicle>",
	Short: "Show recent deductions recorded for a vehicle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		moves, err := st.Movements(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "movements")
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(moves)
		}
		if len(moves) == 0 {
			fmt.Fprintln(os.Stderr, "No movements found.")
			return nil
		}
		formatMovements(os.Stdout, moves)
		return nil
	},
}

func formatMovements(out io.Writer, moves []model.Movement) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tEVENT\tPRODUCT\tQTY\tPACKAGE\tRECORDED")
	_, _ = fmt.Fprintln(w, "--\t-----\t-------\t---\t-------\t--------")
	for _, m := range moves {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(m.ID),
			m.EventAt.Format("2006-01-02"),
			m.ProductID,
			m.Quantity,
			m.PackageTag,
			m.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID shortens a UUID for table display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// -- migrate --

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the ledger schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := initLedger(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		fmt.Fprintf(os.Stderr, "Ledger schema up to date (%s).\n", cfg.Ledger.Driver)
		return nil
	},
}

func init() {
	movementsCmd.Flags().Int("limit", 20, "max number of movements to display")
	movementsCmd.Flags().String("output", "table", "output format: table or json")

	rootCmd.AddCommand(vehiclesCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(movementsCmd)
	rootCmd.AddCommand(migrateCmd)
}
