package reconcile

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fieldstock/internal/model"
)

// Keywords holds the header dictionaries used by the Column Mapper. Primary
// lists match exactly; fallback lists match by containment and only apply on
// the wide-format path when the primary mapper found nothing.
type Keywords struct {
	Date     []string `yaml:"date"`
	Vehicle  []string `yaml:"vehicle"`
	Product  []string `yaml:"product"`
	Quantity []string `yaml:"quantity"`

	DateFallback    []string `yaml:"date_fallback"`
	VehicleFallback []string `yaml:"vehicle_fallback"`
}

// DefaultKeywords returns the built-in Spanish/English dictionaries.
func DefaultKeywords() Keywords {
	return Keywords{
		Date:     []string{"fecha", "date", "dia", "fecha consumo", "fecha_consumo"},
		Vehicle:  []string{"movil", "vehiculo", "vehicle", "mobile", "unidad", "patente", "camioneta"},
		Product:  []string{"sku", "codigo", "code", "producto", "product", "material", "item", "articulo"},
		Quantity: []string{"cantidad", "cant", "qty", "quantity", "consumo", "unidades"},

		DateFallback:    []string{"fecha_cierre", "fecha cierre", "fecha de cierre", "closure date", "date", "fecha"},
		VehicleFallback: []string{"movil", "vehiculo", "vehicle", "unidad", "patente"},
	}
}

// LoadKeywords reads dictionaries from a YAML file with a top-level
// "keywords" key. Lists present in the file replace the defaults; absent
// lists keep them.
func LoadKeywords(path string) (Keywords, error) {
	kw := DefaultKeywords()
	if path == "" {
		return kw, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return kw, eris.Wrapf(err, "keywords: read %s", path)
	}

	var wrapper struct {
		Keywords Keywords `yaml:"keywords"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return kw, eris.Wrap(err, "keywords: parse")
	}

	o := wrapper.Keywords
	override := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = lowerAll(src)
		}
	}
	override(&kw.Date, o.Date)
	override(&kw.Vehicle, o.Vehicle)
	override(&kw.Product, o.Product)
	override(&kw.Quantity, o.Quantity)
	override(&kw.DateFallback, o.DateFallback)
	override(&kw.VehicleFallback, o.VehicleFallback)
	return kw, nil
}

// ForField returns the primary dictionary for a canonical field.
func (k Keywords) ForField(f model.Field) []string {
	switch f {
	case model.FieldDate:
		return k.Date
	case model.FieldVehicle:
		return k.Vehicle
	case model.FieldProduct:
		return k.Product
	case model.FieldQuantity:
		return k.Quantity
	}
	return nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
