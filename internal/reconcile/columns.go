package reconcile

import (
	"strings"

	"github.com/sells-group/fieldstock/internal/model"
)

// MapColumns deduces which headers carry date, vehicle, product and quantity.
// Fields are assigned in canonical order; for each, the first header (in file
// order) whose normalized text equals one of the field's keywords wins. A
// header bound to one field is never reused for another. Missing fields are
// simply absent from the result.
func MapColumns(headers []string, kw Keywords) model.FieldMapping {
	m := make(model.FieldMapping, len(model.Fields))
	for _, f := range model.Fields {
		dict := kw.ForField(f)
		for i, h := range headers {
			if m.Consumes(i) {
				continue
			}
			if matchesExact(h, dict) {
				m[f] = model.Column{Name: h, Index: i}
				break
			}
		}
	}
	return m
}

func matchesExact(header string, dict []string) bool {
	key := headerKey(header)
	if key == "" {
		return false
	}
	folded := foldAccents(key)
	for _, kw := range dict {
		if key == kw || folded == foldAccents(kw) {
			return true
		}
	}
	return false
}

// findFallback returns the first unconsumed header whose normalized text
// contains one of the aliases.
func findFallback(headers []string, aliases []string, m model.FieldMapping) (model.Column, bool) {
	for i, h := range headers {
		if m.Consumes(i) {
			continue
		}
		key := foldAccents(headerKey(h))
		if key == "" {
			continue
		}
		for _, a := range aliases {
			if a = foldAccents(strings.ToLower(a)); a != "" && strings.Contains(key, a) {
				return model.Column{Name: h, Index: i}, true
			}
		}
	}
	return model.Column{}, false
}
