package reconcile

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/fieldstock/internal/model"
)

// Config holds the engine's tunables.
type Config struct {
	Keywords       Keywords
	FuzzyThreshold float64
	CommitNote     string
	// CommitRate caps deductions per second; 0 disables pacing.
	CommitRate float64
}

// Engine runs reconciliation passes against a ledger. It holds no state
// between passes: every call re-reads the catalog and re-derives the column
// mapping from the table it is given.
type Engine struct {
	ledger Ledger
	cfg    Config
}

// NewEngine creates an engine over ledger.
func NewEngine(ledger Ledger, cfg Config) *Engine {
	if cfg.Keywords.Date == nil {
		cfg.Keywords = DefaultKeywords()
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if cfg.CommitNote == "" {
		cfg.CommitNote = DefaultCommitNote
	}
	return &Engine{ledger: ledger, cfg: cfg}
}

// Result is the outcome of one reconciliation pass plus its diagnostics.
type Result struct {
	Vehicle  string                `json:"vehicle,omitempty"`
	Layout   LayoutKind            `json:"layout"`
	Mapping  model.FieldMapping    `json:"-"`
	Matches  []model.ProductMatch  `json:"matches,omitempty"`
	Unmapped []string              `json:"unmapped,omitempty"`
	Dropped  int                   `json:"dropped"`
	Coerced  int                   `json:"coerced"`
	Rows     []model.ReconciledRow `json:"rows"`
}

// Counts tallies result rows by status.
func (r *Result) Counts() map[model.Status]int {
	out := make(map[model.Status]int)
	for _, row := range r.Rows {
		out[row.Status]++
	}
	return out
}

// Catalog snapshots the ledger's product catalog.
func (e *Engine) Catalog(ctx context.Context) (*Catalog, error) {
	products, err := e.ledger.Catalog(ctx)
	if err != nil {
		return nil, ledgerErr("catalog", err)
	}
	return NewCatalog(products), nil
}

// Vehicles lists the vehicles known to the ledger.
func (e *Engine) Vehicles(ctx context.Context) ([]string, error) {
	vs, err := e.ledger.ListVehicles(ctx)
	if err != nil {
		return nil, ledgerErr("list vehicles", err)
	}
	return vs, nil
}

// Reconcile runs the full pipeline over one report table: column mapping,
// layout detection, normalization, aggregation and classification. vehicle
// may be empty when the report carries its own vehicle column.
func (e *Engine) Reconcile(ctx context.Context, t *model.Table, vehicle string) (*Result, error) {
	if t == nil || len(t.Headers) == 0 {
		return nil, newFormatError("empty report", nil)
	}
	vehicle = CleanLabel(vehicle)

	cat, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	resolver := NewResolver(cat, e.cfg.FuzzyThreshold)

	mapping := MapColumns(t.Headers, e.cfg.Keywords)
	norm, err := DetectAndNormalize(t, mapping, resolver, e.cfg.Keywords)
	if err != nil {
		zap.L().Warn("reconcile: unrecognized report",
			zap.String("source", t.Source),
			zap.Strings("headers", t.Headers),
			zap.Error(err),
		)
		return nil, err
	}
	if !norm.Layout.HasVehicle() && vehicle == "" {
		return nil, ErrVehicleRequired
	}

	res := &Result{
		Vehicle: vehicle,
		Layout:  norm.Layout.Kind(),
		Mapping: mapping,
		Dropped: norm.Dropped,
		Coerced: norm.Coerced,
	}
	switch l := norm.Layout.(type) {
	case *LongLayout:
		res.Mapping = l.Mapping
		canonicalizeProducts(norm.Rows, cat, resolver)
	case *WideLayout:
		res.Matches = l.Matches()
		res.Unmapped = l.Unmapped
	}

	rows, err := Reconcile(ctx, e.ledger, norm.Rows, vehicle, cat)
	if err != nil {
		return nil, err
	}
	res.Rows = rows

	zap.L().Info("reconcile: pass complete",
		zap.String("source", t.Source),
		zap.String("vehicle", vehicle),
		zap.String("layout", string(res.Layout)),
		zap.Int("input_rows", t.Len()),
		zap.Int("dropped", res.Dropped),
		zap.Int("coerced", res.Coerced),
		zap.Int("result_rows", len(rows)),
	)
	return res, nil
}

// canonicalizeProducts rewrites long-format product cells that are not
// catalog ids but name a catalog product. Fuzzy matches are not trusted here;
// unresolved cells are kept as-is and surface as unassigned consumption.
func canonicalizeProducts(rows []model.NormalizedRow, cat *Catalog, r *Resolver) {
	cache := make(map[string]string)
	for i := range rows {
		p := rows[i].Product
		if p == "" || cat.Has(p) {
			continue
		}
		id, ok := cache[p]
		if !ok {
			id = p
			if m, found := r.Resolve(p); found && m.Tier != model.TierFuzzy {
				id = m.ProductID
			}
			cache[p] = id
		}
		rows[i].Product = id
	}
}

// Inspect lists a vehicle's assignment without a report.
func (e *Engine) Inspect(ctx context.Context, vehicle string) (*Result, error) {
	rows, err := Inspect(ctx, e.ledger, vehicle)
	if err != nil {
		return nil, err
	}
	return &Result{Vehicle: CleanLabel(vehicle), Rows: rows}, nil
}

// Commit applies the reported consumption of rows as ledger deductions.
func (e *Engine) Commit(ctx context.Context, rows []model.ReconciledRow, packageTag string) (model.CommitResult, error) {
	opts := CommitOptions{Note: e.cfg.CommitNote, PackageTag: packageTag}
	if e.cfg.CommitRate > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(e.cfg.CommitRate), 1)
	}
	res, err := Commit(ctx, e.ledger, rows, opts)
	zap.L().Info("reconcile: commit finished",
		zap.Int("attempted", res.Attempted),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", len(res.Errors)),
	)
	return res, err
}

// Select returns the rows whose status is in statuses, or all rows when
// statuses is empty.
func Select(rows []model.ReconciledRow, statuses ...model.Status) []model.ReconciledRow {
	if len(statuses) == 0 {
		return rows
	}
	want := make(map[model.Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []model.ReconciledRow
	for _, r := range rows {
		if want[r.Status] {
			out = append(out, r)
		}
	}
	return out
}
