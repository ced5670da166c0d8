package reconcile

import (
	"go.uber.org/zap"

	"github.com/sells-group/fieldstock/internal/model"
)

// LayoutKind names the shape of an input report.
type LayoutKind string

const (
	LayoutLong LayoutKind = "long"
	LayoutWide LayoutKind = "wide"
)

// Layout is the detector's verdict: either *LongLayout or *WideLayout. Both
// stage rows into the same shape so the aggregator never inspects columns.
type Layout interface {
	Kind() LayoutKind
	HasVehicle() bool
	stage(t *model.Table) []stagedRow
	dated() bool
}

// LongLayout is one row per (date, vehicle, product, quantity).
type LongLayout struct {
	Mapping model.FieldMapping
}

func (l *LongLayout) Kind() LayoutKind { return LayoutLong }
func (l *LongLayout) HasVehicle() bool { return true }
func (l *LongLayout) dated() bool      { return true }

func (l *LongLayout) stage(t *model.Table) []stagedRow {
	date := l.Mapping[model.FieldDate].Index
	vehicle := l.Mapping[model.FieldVehicle].Index
	product := l.Mapping[model.FieldProduct].Index
	qty := l.Mapping[model.FieldQuantity].Index

	out := make([]stagedRow, 0, t.Len())
	for i := range t.Rows {
		out = append(out, stagedRow{
			date:     t.Cell(i, date),
			vehicle:  t.Cell(i, vehicle),
			product:  t.Cell(i, product),
			quantity: t.Cell(i, qty),
		})
	}
	return out
}

// ProductColumn is a wide-format column that resolved to a catalog product.
type ProductColumn struct {
	Column model.Column
	Match  model.ProductMatch
}

// WideLayout is one row per (date, vehicle) with one column per product.
// Date or Vehicle may be nil, but never both.
type WideLayout struct {
	Date     *model.Column
	Vehicle  *model.Column
	Products []ProductColumn
	Unmapped []string
}

func (w *WideLayout) Kind() LayoutKind { return LayoutWide }
func (w *WideLayout) HasVehicle() bool { return w.Vehicle != nil }
func (w *WideLayout) dated() bool      { return w.Date != nil }

// Matches returns the product resolutions in column order.
func (w *WideLayout) Matches() []model.ProductMatch {
	out := make([]model.ProductMatch, len(w.Products))
	for i, p := range w.Products {
		out[i] = p.Match
	}
	return out
}

// stage melts the table: one staged row per (row, resolved product column).
func (w *WideLayout) stage(t *model.Table) []stagedRow {
	out := make([]stagedRow, 0, t.Len()*len(w.Products))
	for i := range t.Rows {
		var date, vehicle string
		if w.Date != nil {
			date = t.Cell(i, w.Date.Index)
		}
		if w.Vehicle != nil {
			vehicle = t.Cell(i, w.Vehicle.Index)
		}
		for _, p := range w.Products {
			out = append(out, stagedRow{
				date:     date,
				vehicle:  vehicle,
				product:  p.Match.ProductID,
				quantity: t.Cell(i, p.Column.Index),
			})
		}
	}
	return out
}

// Detect chooses the layout for a table. A complete mapping selects the long
// path; anything else is treated as wide and every unmapped column is offered
// to the resolver as a candidate product.
func Detect(t *model.Table, m model.FieldMapping, r *Resolver, kw Keywords) (Layout, error) {
	if m.Complete() {
		return &LongLayout{Mapping: m}, nil
	}

	w := &WideLayout{}
	bound := make(model.FieldMapping, len(m))
	for f, c := range m {
		bound[f] = c
	}

	if c, ok := m[model.FieldDate]; ok {
		w.Date = &c
	} else if c, ok := findFallback(t.Headers, kw.DateFallback, bound); ok {
		w.Date = &c
		bound[model.FieldDate] = c
	}
	if c, ok := m[model.FieldVehicle]; ok {
		w.Vehicle = &c
	} else if c, ok := findFallback(t.Headers, kw.VehicleFallback, bound); ok {
		w.Vehicle = &c
		bound[model.FieldVehicle] = c
	}

	if w.Date == nil && w.Vehicle == nil {
		return nil, newFormatError("no date or vehicle column recognized", t.Headers)
	}

	for i, h := range t.Headers {
		if bound.Consumes(i) || headerKey(h) == "" {
			continue
		}
		match, ok := r.Resolve(h)
		if !ok {
			w.Unmapped = append(w.Unmapped, h)
			continue
		}
		zap.L().Debug("reconcile: product column resolved",
			zap.String("column", h),
			zap.String("product_id", match.ProductID),
			zap.String("tier", string(match.Tier)),
			zap.Float64("score", match.Score),
		)
		w.Products = append(w.Products, ProductColumn{
			Column: model.Column{Name: h, Index: i},
			Match:  match,
		})
	}

	if len(w.Products) == 0 {
		return nil, newFormatError("no product columns matched the catalog", w.Unmapped)
	}
	return w, nil
}

// Normalized is the Layout Detector + Normalizer output for one file.
type Normalized struct {
	Layout  Layout
	Rows    []model.NormalizedRow
	Dropped int // observations without a parseable date
	Coerced int // quantity cells forced to 0
}

// DetectAndNormalize runs layout detection and type normalization.
func DetectAndNormalize(t *model.Table, m model.FieldMapping, r *Resolver, kw Keywords) (*Normalized, error) {
	layout, err := Detect(t, m, r, kw)
	if err != nil {
		return nil, err
	}
	rows, dropped, coerced := normalizeRows(layout.stage(t), layout.dated())
	return &Normalized{
		Layout:  layout,
		Rows:    rows,
		Dropped: dropped,
		Coerced: coerced,
	}, nil
}
