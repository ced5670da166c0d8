package model

import "time"

// MatchTier is the confidence tier at which a product header was resolved.
type MatchTier string

const (
	TierExact     MatchTier = "exact"
	TierSubstring MatchTier = "substring"
	TierToken     MatchTier = "token"
	TierFuzzy     MatchTier = "fuzzy"
)

// ProductMatch records how one wide-format column resolved to a catalog product.
type ProductMatch struct {
	SourceColumn string    `json:"source_column"`
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name"`
	Tier         MatchTier `json:"tier"`
	Score        float64   `json:"score"`
}

// NormalizedRow is one consumption observation in canonical form.
type NormalizedRow struct {
	Date     time.Time `json:"date"` // zero when the report carries no date column
	Vehicle  string    `json:"vehicle"`
	Product  string    `json:"product"`
	Quantity int64     `json:"quantity"`
	Coerced  bool      `json:"coerced,omitempty"` // quantity was unreadable and forced to 0
}

// Scoped reports whether the row carries a calendar date.
func (r NormalizedRow) Scoped() bool {
	return !r.Date.IsZero()
}

// DateLabel renders the row date as YYYY-MM-DD, or "unscoped".
func DateLabel(t time.Time) string {
	if t.IsZero() {
		return "unscoped"
	}
	return t.Format("2006-01-02")
}
