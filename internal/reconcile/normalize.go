package reconcile

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/fieldstock/internal/model"
)

// dateLayouts are tried in order. Day-first forms only; workbook date cells
// are rendered as ISO dates by the fetcher. The timestamp forms cover text
// cells that carry a time component.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// maxQuantity is the largest quantity that fits the ledger's integer column.
var maxQuantity = decimal.NewFromInt(math.MaxInt64)

// excelEpoch is day zero of the 1900 spreadsheet date system.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// Serial day numbers outside this window are not treated as dates.
const (
	minExcelSerial = 20000 // 1954-10-03
	maxExcelSerial = 80000 // 2119-01-10
)

// blankTokens are quantity cells that mean "nothing reported".
var blankTokens = map[string]bool{
	"":     true,
	"no":   true,
	"nan":  true,
	"none": true,
}

// ParseDate parses a report date against the supported layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	if serial, err := decimal.NewFromString(s); err == nil {
		serial = serial.Truncate(0)
		if serial.GreaterThanOrEqual(decimal.NewFromInt(minExcelSerial)) && serial.LessThanOrEqual(decimal.NewFromInt(maxExcelSerial)) {
			return excelEpoch.AddDate(0, 0, int(serial.IntPart())), true
		}
	}
	return time.Time{}, false
}

// ParseQuantity coerces a quantity cell to a non-negative integer. It never
// fails: blank-like tokens give 0, and unreadable or negative values give 0
// with coerced set, as do values too large for an int64. Fractions truncate
// toward zero ("7.0" -> 7).
func ParseQuantity(s string) (qty int64, coerced bool) {
	s = strings.TrimSpace(s)
	if blankTokens[strings.ToLower(s)] {
		return 0, false
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, true
	}
	if d.IsNegative() {
		return 0, true
	}
	d = d.Truncate(0)
	if d.GreaterThan(maxQuantity) {
		return 0, true
	}
	return d.IntPart(), false
}

// stagedRow is a report observation after layout handling, before types are
// coerced.
type stagedRow struct {
	date     string
	vehicle  string
	product  string
	quantity string
}

// normalizeRows converts staged rows into NormalizedRows. When dated is false
// the layout had no date column and rows are kept unscoped; otherwise a row
// with an unparseable date is dropped.
func normalizeRows(staged []stagedRow, dated bool) (rows []model.NormalizedRow, dropped, coerced int) {
	rows = make([]model.NormalizedRow, 0, len(staged))
	for _, s := range staged {
		var day time.Time
		if dated {
			d, ok := ParseDate(s.date)
			if !ok {
				dropped++
				continue
			}
			day = d
		}
		qty, bad := ParseQuantity(s.quantity)
		if bad {
			coerced++
		}
		rows = append(rows, model.NormalizedRow{
			Date:     day,
			Vehicle:  CleanLabel(s.vehicle),
			Product:  CleanLabel(s.product),
			Quantity: qty,
			Coerced:  bad,
		})
	}
	return rows, dropped, coerced
}
