package reconcile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fieldstock/internal/model"
)

func detect(t *testing.T, tbl *model.Table) (Layout, error) {
	t.Helper()
	kw := DefaultKeywords()
	r := NewResolver(NewCatalog(testCatalog()), 0)
	return Detect(tbl, MapColumns(tbl.Headers, kw), r, kw)
}

func TestDetect_Long(t *testing.T) {
	t.Parallel()
	tbl := table([]string{"fecha", "movil", "sku", "cantidad"},
		[]string{"2025-01-10", "Movil 200", "2-7-11", "7"},
	)

	layout, err := detect(t, tbl)
	require.NoError(t, err)
	assert.Equal(t, LayoutLong, layout.Kind())
	assert.True(t, layout.HasVehicle())
	_, ok := layout.(*LongLayout)
	assert.True(t, ok)
}

func TestDetect_WideWithoutVehicle(t *testing.T) {
	t.Parallel()
	tbl := table([]string{"fecha", "FIBUNHILO", "C_UTP_CAT6", "Observaciones"},
		[]string{"2025-01-10", "2", "3", "ok"},
	)

	layout, err := detect(t, tbl)
	require.NoError(t, err)
	w, ok := layout.(*WideLayout)
	require.True(t, ok)
	assert.Equal(t, LayoutWide, w.Kind())
	assert.False(t, w.HasVehicle())
	require.NotNil(t, w.Date)
	assert.Equal(t, 0, w.Date.Index)

	matches := w.Matches()
	require.Len(t, matches, 2)
	assert.Equal(t, "1-2-16", matches[0].ProductID)
	assert.Equal(t, "1-3-06", matches[1].ProductID)
	assert.Equal(t, []string{"Observaciones"}, w.Unmapped)
}

func TestDetect_WideFallbackColumns(t *testing.T) {
	t.Parallel()
	tbl := table([]string{"Fecha de Cierre", "Móvil Asignado", "COLILLA"},
		[]string{"2025-01-10", "Movil 7", "4"},
	)

	layout, err := detect(t, tbl)
	require.NoError(t, err)
	w := layout.(*WideLayout)
	require.NotNil(t, w.Date)
	require.NotNil(t, w.Vehicle)
	assert.Equal(t, "Fecha de Cierre", w.Date.Name)
	assert.Equal(t, "Móvil Asignado", w.Vehicle.Name)
	require.Len(t, w.Products, 1)
	assert.Equal(t, "2-7-11", w.Products[0].Match.ProductID)
}

func TestDetect_NoDateOrVehicle(t *testing.T) {
	t.Parallel()
	_, err := detect(t, table([]string{"Observaciones", "Total"}))

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "no date or vehicle column recognized", fe.Reason)
	assert.Equal(t, []string{"Observaciones", "Total"}, fe.Headers)
}

func TestDetect_NoProductColumns(t *testing.T) {
	t.Parallel()
	_, err := detect(t, table([]string{"fecha", "zzz qq"}))

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "no product columns matched the catalog", fe.Reason)
	assert.Equal(t, []string{"zzz qq"}, fe.Headers)
}

func TestFormatError_SampleCapped(t *testing.T) {
	t.Parallel()
	headers := make([]string, 13)
	for i := range headers {
		headers[i] = string(rune('a' + i))
	}
	fe := newFormatError("bad", headers)

	assert.Len(t, fe.Headers, 10)
	assert.Equal(t, 13, fe.Total)
	assert.Contains(t, fe.Error(), "+3 more")
	assert.Equal(t, "format: bad", newFormatError("bad", nil).Error())
}

func TestDetectAndNormalize_WideMelt(t *testing.T) {
	t.Parallel()
	tbl := table([]string{"fecha", "FIBUNHILO", "C_UTP_CAT6"},
		[]string{"2025-01-10", "2", "1"},
		[]string{"2025-01-11", "3", "no"},
		[]string{"not a date", "1", "1"},
	)
	kw := DefaultKeywords()
	r := NewResolver(NewCatalog(testCatalog()), 0)

	n, err := DetectAndNormalize(tbl, MapColumns(tbl.Headers, kw), r, kw)
	require.NoError(t, err)
	assert.Equal(t, LayoutWide, n.Layout.Kind())
	require.Len(t, n.Rows, 4)
	assert.Equal(t, 2, n.Dropped)
	assert.Zero(t, n.Coerced)

	assert.Equal(t, "1-2-16", n.Rows[0].Product)
	assert.Equal(t, int64(2), n.Rows[0].Quantity)
	assert.Equal(t, "1-3-06", n.Rows[3].Product)
	assert.Equal(t, int64(0), n.Rows[3].Quantity)
	for _, row := range n.Rows {
		assert.Empty(t, row.Vehicle)
	}
}
