package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/fieldstock/internal/fetcher"
	"github.com/sells-group/fieldstock/internal/model"
	"github.com/sells-group/fieldstock/internal/reconcile"
)

// maxSummaryErrors caps the failed products listed in a commit summary.
const maxSummaryErrors = 5

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a consumption report against vehicle assignments",
	Long: "Loads a consumption report (CSV, TSV or XLSX; local path, http(s):// or ftp:// URL), " +
		"reconciles it against the ledger and optionally commits the reported consumption as deductions.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("reconcile"); err != nil {
			return err
		}

		file, _ := cmd.Flags().GetString("file")
		sheet, _ := cmd.Flags().GetString("sheet")
		vehicle, _ := cmd.Flags().GetString("vehicle")
		commit, _ := cmd.Flags().GetBool("commit")
		statusNames, _ := cmd.Flags().GetStringSlice("commit-status")
		packageTag, _ := cmd.Flags().GetString("package-tag")
		output, _ := cmd.Flags().GetString("output")

		if sheet == "" {
			sheet = cfg.Reconcile.Sheet
		}
		statuses, err := parseStatuses(statusNames)
		if err != nil {
			return err
		}

		table, err := newLoader(cfg).Load(ctx, file, fetcher.LoadOptions{Sheet: sheet})
		if err != nil {
			return eris.Wrap(err, "reconcile: load report")
		}

		st, err := initLedger(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng, err := newEngine(st, cfg)
		if err != nil {
			return err
		}

		res, err := eng.Reconcile(ctx, table, vehicle)
		if err != nil {
			return err
		}
		if err := writeResult(os.Stdout, res, output); err != nil {
			return err
		}
		formatDiagnostics(os.Stderr, res)

		if !commit {
			return nil
		}
		rows := reconcile.Select(res.Rows, statuses...)
		result, err := eng.Commit(ctx, rows, packageTag)
		fmt.Fprintln(os.Stderr, result.Summary(maxSummaryErrors))
		return err
	},
}

// parseStatuses converts --commit-status values; an empty list selects all.
func parseStatuses(names []string) ([]model.Status, error) {
	var out []model.Status
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		s, ok := model.ParseStatus(n)
		if !ok {
			return nil, eris.Errorf("unknown status %q", n)
		}
		out = append(out, s)
	}
	return out, nil
}

func writeResult(out io.Writer, res *reconcile.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "table", "":
		formatReconciled(out, res.Rows)
		return nil
	default:
		return eris.Errorf("unknown output format %q (json or table)", format)
	}
}

func formatReconciled(out io.Writer, rows []model.ReconciledRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tVEHICLE\tPRODUCT\tID\tREPORTED\tSYSTEM\tBALANCE\tSTATUS")
	_, _ = fmt.Fprintln(w, "----\t-------\t-------\t--\t--------\t------\t-------\t------")

	for _, r := range rows {
		date := ""
		if !r.Date.IsZero() {
			date = r.Date.Format("2006-01-02")
		}
		name := r.ProductName
		if runes := []rune(name); len(runes) > 30 {
			name = string(runes[:27]) + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			date,
			r.Vehicle,
			name,
			r.ProductID,
			r.ReportedQuantity,
			r.SystemQuantity,
			r.TheoreticalBalance,
			r.Status,
		)
	}
	_ = w.Flush()
}

// formatDiagnostics prints how the report was interpreted.
func formatDiagnostics(out io.Writer, res *reconcile.Result) {
	_, _ = fmt.Fprintf(out, "layout: %s\n", res.Layout)
	if len(res.Mapping) > 0 {
		_, _ = fmt.Fprintf(out, "mapping: %s\n", res.Mapping)
	}
	for _, m := range res.Matches {
		_, _ = fmt.Fprintf(out, "  %q -> %s (%s, %.2f)\n", m.SourceColumn, m.ProductID, m.Tier, m.Score)
	}
	if len(res.Unmapped) > 0 {
		_, _ = fmt.Fprintf(out, "unmapped columns: %s\n", strings.Join(res.Unmapped, ", "))
	}
	if res.Dropped > 0 || res.Coerced > 0 {
		_, _ = fmt.Fprintf(out, "dropped rows: %d, coerced values: %d\n", res.Dropped, res.Coerced)
	}

	counts := res.Counts()
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		parts = append(parts, fmt.Sprintf("%s=%d", s, counts[model.Status(s)]))
	}
	_, _ = fmt.Fprintf(out, "rows: %d (%s)\n", len(res.Rows), strings.Join(parts, ", "))
}

func init() {
	reconcileCmd.Flags().String("file", "", "report path or http(s)/ftp URL")
	reconcileCmd.Flags().String("sheet", "", "worksheet name for XLSX reports (default first sheet)")
	reconcileCmd.Flags().String("vehicle", "", "restrict to one vehicle; required when the report has no vehicle column")
	reconcileCmd.Flags().Bool("commit", false, "apply reported consumption as ledger deductions")
	reconcileCmd.Flags().StringSlice("commit-status", nil, "only commit rows with these statuses (default all)")
	reconcileCmd.Flags().String("package-tag", "", "optional package tag recorded on each deduction")
	reconcileCmd.Flags().String("output", "table", "output format: table or json")
	_ = reconcileCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(reconcileCmd)
}
