package reconcile

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/sells-group/fieldstock/internal/model"
)

// DefaultFuzzyThreshold is the similarity a fuzzy match must exceed.
const DefaultFuzzyThreshold = 0.60

// CatalogEntry is one product name known to the ledger.
type CatalogEntry struct {
	Name string // display name as provided by the ledger
	ID   string

	clean  string
	tokens map[string]struct{}
}

// Catalog is an immutable snapshot of the product catalog in a fixed order
// (product id, then name), so tie-breaks never depend on map iteration.
type Catalog struct {
	entries []CatalogEntry
	names   map[string]string // id -> display name of the first entry
}

// NewCatalog builds a catalog snapshot from display name -> product id.
// Entries with a blank name or id are ignored.
func NewCatalog(products map[string]string) *Catalog {
	c := &Catalog{names: make(map[string]string, len(products))}
	for name, id := range products {
		name, id = CleanLabel(name), strings.TrimSpace(id)
		if name == "" || id == "" {
			continue
		}
		clean := cleanName(name)
		c.entries = append(c.entries, CatalogEntry{
			Name:   name,
			ID:     id,
			clean:  clean,
			tokens: tokenSet(clean),
		})
	}
	sort.Slice(c.entries, func(i, j int) bool {
		if c.entries[i].ID != c.entries[j].ID {
			return c.entries[i].ID < c.entries[j].ID
		}
		return c.entries[i].clean < c.entries[j].clean
	})
	for _, e := range c.entries {
		if _, ok := c.names[e.ID]; !ok {
			c.names[e.ID] = e.Name
		}
	}
	return c
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Entries returns the entries in catalog order.
func (c *Catalog) Entries() []CatalogEntry {
	return append([]CatalogEntry(nil), c.entries...)
}

// Name returns the display name for a product id, or "" when unknown.
func (c *Catalog) Name(id string) string {
	if c == nil {
		return ""
	}
	return c.names[id]
}

// Has reports whether id is a catalog product id.
func (c *Catalog) Has(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.names[id]
	return ok
}

// Resolver maps free-form product headers to catalog ids.
type Resolver struct {
	catalog   *Catalog
	threshold float64
}

// NewResolver creates a resolver over a catalog snapshot. A non-positive
// threshold selects DefaultFuzzyThreshold.
func NewResolver(c *Catalog, threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	return &Resolver{catalog: c, threshold: threshold}
}

// Resolve tries, in order: exact, substring, token subset, fuzzy. Each tier
// scans the whole catalog before the next one is tried, and within a tier the
// first entry in catalog order wins.
func (r *Resolver) Resolve(column string) (model.ProductMatch, bool) {
	cand := cleanName(column)
	if cand == "" || r.catalog == nil || r.catalog.Len() == 0 {
		return model.ProductMatch{}, false
	}
	entries := r.catalog.entries
	match := func(e CatalogEntry, tier model.MatchTier, score float64) (model.ProductMatch, bool) {
		return model.ProductMatch{
			SourceColumn: column,
			ProductID:    e.ID,
			ProductName:  e.Name,
			Tier:         tier,
			Score:        score,
		}, true
	}

	trimmed := strings.TrimSpace(column)
	for _, e := range entries {
		if cand == e.clean || strings.EqualFold(trimmed, e.ID) {
			return match(e, model.TierExact, 1)
		}
	}

	if utf8.RuneCountInString(cand) > 2 {
		for _, e := range entries {
			if utf8.RuneCountInString(e.clean) <= 2 {
				continue
			}
			if strings.Contains(cand, e.clean) || strings.Contains(e.clean, cand) {
				return match(e, model.TierSubstring, similarity(cand, e.clean))
			}
		}
	}

	candTokens := tokenSet(cand)
	if len(candTokens) > 0 {
		for _, e := range entries {
			if isSubset(candTokens, e.tokens) {
				return match(e, model.TierToken, similarity(cand, e.clean))
			}
		}
	}

	best, bestScore := -1, 0.0
	for i, e := range entries {
		if s := similarity(cand, e.clean); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best >= 0 && bestScore > r.threshold {
		return match(entries[best], model.TierFuzzy, bestScore)
	}
	return model.ProductMatch{}, false
}

// similarity returns 2*LCS/(len(a)+len(b)) in [0,1]. With a substitution cost
// of 2 the Levenshtein distance counts only insertions and deletions, which
// makes the library ratio exactly the LCS ratio.
func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func isSubset(sub, super map[string]struct{}) bool {
	if len(sub) == 0 {
		return false
	}
	for k := range sub {
		if _, ok := super[k]; !ok {
			return false
		}
	}
	return true
}
