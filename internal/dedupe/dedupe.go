// Package dedupe folds raw crawl items into a uniqueness-keyed, ordered,
// quota-capped lead set. Both operations are pure and deterministic.
package dedupe

import (
	"github.com/growthsignal/leadscout/internal/leadgen"
)

// Normalize derives one Lead per raw item, echoing the request context.
// Absent string fields become the literal placeholder; absent numeric
// fields become zero.
func Normalize(items []leadgen.RawItem, params leadgen.RunParameters, query string) []leadgen.Lead {
	leads := make([]leadgen.Lead, 0, len(items))
	for _, item := range items {
		leads = append(leads, leadgen.Lead{
			Name:        item.Str("title"),
			Sector:      params.Sector,
			Keyword:     params.Keyword,
			City:        params.City,
			Phone:       item.Str("phone"),
			Email:       item.Str("email"),
			Website:     item.Str("website"),
			Address:     item.Str("address"),
			Rating:      item.Float("totalScore"),
			ReviewCount: item.Int("reviewsCount"),
			MapsURL:     item.Str("url"),
			Category:    item.Str("categoryName"),
			SearchQuery: query,
		})
	}
	return leads
}

// Dedupe keeps the first occurrence per uniqueness key, preserves first-seen
// order, and truncates the result to quota. Keys compare exact-match with no
// case or whitespace normalization, so two records differing only in casing
// stay distinct. Idempotent: Dedupe(Dedupe(x, q), q) == Dedupe(x, q).
func Dedupe(leads []leadgen.Lead, quota int) []leadgen.Lead {
	capacity := len(leads)
	if quota >= 0 && quota < capacity {
		capacity = quota
	}
	seen := make(map[string]struct{}, len(leads))
	out := make([]leadgen.Lead, 0, capacity)
	for _, lead := range leads {
		if quota >= 0 && len(out) >= quota {
			break
		}
		key := lead.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, lead)
	}
	return out
}
