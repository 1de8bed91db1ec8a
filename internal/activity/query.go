// Package activity stores the audit trail of account mutations, indexed by
// the entities each event touched.
package activity

import "time"

// Weights in increasing order of severity.
var weightOrder = map[string]int{
	"info":  0,
	"minor": 1,
	"major": 2,
}

// IsAtLeastWeight reports whether weight is at least min. Unknown weights
// rank as info.
func IsAtLeastWeight(weight, min string) bool {
	return weightOrder[weight] >= weightOrder[min]
}

// weightsAtLeast lists every known weight ranked at or above min.
func weightsAtLeast(min string) []string {
	var out []string
	for w, rank := range weightOrder {
		if rank >= weightOrder[min] {
			out = append(out, w)
		}
	}
	return out
}

// QueryOptions controls filtering and pagination for entity activity queries.
type QueryOptions struct {
	Since      *time.Time
	Until      *time.Time
	Categories []string
	MinWeight  string // default: "info"
	Actor      string
	Limit      int    // default: 100, max: 500
	Cursor     string // occurred_at of the last entry of the previous page
}

// SearchOptions controls filtering for summary search.
type SearchOptions struct {
	EntityType string
	Since      *time.Time
	Categories []string
	Limit      int // default: 20
}

// DefaultQueryOptions returns QueryOptions covering the last six months.
func DefaultQueryOptions() QueryOptions {
	sixMonthsAgo := time.Now().AddDate(0, -6, 0)
	return QueryOptions{
		Since:     &sixMonthsAgo,
		MinWeight: "info",
		Limit:     100,
	}
}

func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Limit: 20}
}

func (o QueryOptions) limit() int {
	if o.Limit <= 0 || o.Limit > 500 {
		return 100
	}
	return o.Limit
}

func (o SearchOptions) limit() int {
	if o.Limit <= 0 {
		return 20
	}
	return o.Limit
}

func encodeCursor(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func decodeCursor(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, err == nil
}
