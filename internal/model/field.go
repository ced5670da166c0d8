package model

import "strings"

// Field is a canonical column meaning the reconciliation engine understands.
type Field string

const (
	FieldDate     Field = "date"
	FieldVehicle  Field = "vehicle"
	FieldProduct  Field = "product"
	FieldQuantity Field = "quantity"
)

// Fields lists the canonical fields in mapping order.
var Fields = []Field{FieldDate, FieldVehicle, FieldProduct, FieldQuantity}

// Column identifies one column of a Table by header text and position.
type Column struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// FieldMapping maps canonical fields to the external column deduced for each.
// Partial mappings are legal; callers must check Has before use.
type FieldMapping map[Field]Column

// Has reports whether the field was mapped to a column.
func (m FieldMapping) Has(f Field) bool {
	_, ok := m[f]
	return ok
}

// Complete reports whether all four canonical fields are mapped, which is
// what qualifies a report for the long-format path.
func (m FieldMapping) Complete() bool {
	for _, f := range Fields {
		if !m.Has(f) {
			return false
		}
	}
	return true
}

// Consumes reports whether the column at idx is already bound to a field.
func (m FieldMapping) Consumes(idx int) bool {
	for _, c := range m {
		if c.Index == idx {
			return true
		}
	}
	return false
}

// String renders the mapping as "date=fecha vehicle=movil ..." in field order.
func (m FieldMapping) String() string {
	var parts []string
	for _, f := range Fields {
		if c, ok := m[f]; ok {
			parts = append(parts, string(f)+"="+c.Name)
		}
	}
	return strings.Join(parts, " ")
}
