// Package search implements the search index pipeline of spec.md §4.9/4.10:
// a single-writer command queue applied against an embedded full-text
// index, plus query validation and guild reconciliation. The batch-drain
// writer loop is modeled on the teacher's Kafka consumer drain pattern
// (internal/shared/kafka/consumer.go); the index itself uses
// github.com/blevesearch/bleve/v2, adopted from the broader retrieval pack
// (no full-text library appears in the teacher's own go.mod — see
// DESIGN.md) since it is the nearest embedded, writer/reader-snapshot
// engine to spec.md §5's "reader.searcher() is lock-free relative to
// writers" description.
package search

import (
	"strings"

	"github.com/filament/gateway/internal/gatewayerr"
)

// Validation limits not exposed as configuration: spec.md §4.10 names these
// as fixed constants (MAX_SEARCH_TERMS, MAX_SEARCH_WILDCARDS,
// MAX_SEARCH_FUZZY) distinct from the configurable max_query_chars and
// max_result_limit.
const (
	MaxSearchTerms     = 32
	MaxSearchWildcards = 8
	MaxSearchFuzzy     = 4
)

// ValidateQuery runs spec.md §4.10's rejection rules against a trimmed raw
// query and the requested result limit, returning an InvalidRequest
// gatewayerr.Error describing the first violated rule, or nil if the query
// is admitted. It is a pure function: no index access, no side effects.
func ValidateQuery(trimmedQuery string, limit int, maxQueryChars int, maxResultLimit int) error {
	switch {
	case trimmedQuery == "" || len(trimmedQuery) > maxQueryChars:
		return gatewayerr.New(gatewayerr.InvalidRequest).WithReason("search_query_length")
	case limit == 0 || limit > maxResultLimit:
		return gatewayerr.New(gatewayerr.InvalidRequest).WithReason("search_result_limit")
	case countWhitespaceTokens(trimmedQuery) > MaxSearchTerms:
		return gatewayerr.New(gatewayerr.InvalidRequest).WithReason("search_too_many_terms")
	case strings.Count(trimmedQuery, "*")+strings.Count(trimmedQuery, "?") > MaxSearchWildcards:
		return gatewayerr.New(gatewayerr.InvalidRequest).WithReason("search_too_many_wildcards")
	case strings.Count(trimmedQuery, "~") > MaxSearchFuzzy:
		return gatewayerr.New(gatewayerr.InvalidRequest).WithReason("search_too_many_fuzzy")
	case strings.Contains(trimmedQuery, ":"):
		return gatewayerr.New(gatewayerr.InvalidRequest).WithReason("search_field_scoping_not_allowed")
	default:
		return nil
	}
}

func countWhitespaceTokens(s string) int {
	return len(strings.Fields(s))
}
