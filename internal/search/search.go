// Package search filters a cached account list by a free-text term.
package search

import (
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/matthewbaird/accountdesk/internal/directory"
)

// MinTermLength is the shortest accepted search term, in characters.
const MinTermLength = 2

// ErrTermTooShort rejects terms below MinTermLength.
var ErrTermTooShort = errors.New("search: term must be at least 2 characters")

// ValidateTerm trims the term and checks its length.
func ValidateTerm(term string) (string, error) {
	term = strings.TrimSpace(term)
	if utf8.RuneCountInString(term) < MinTermLength {
		return "", ErrTermTooShort
	}
	return term, nil
}

// Search returns the accounts whose username, description, email, tag,
// short id, id or telegram id contain term, ignoring case. Results are
// deduplicated by id (first wins) and sorted by username, ignoring case,
// with empty usernames first. Accounts without an id cannot be acted on
// and are left out. The input is not modified.
func Search(term string, accounts []directory.Entity) []directory.Entity {
	needle := strings.ToLower(term)
	seen := make(map[string]struct{}, len(accounts))
	var out []directory.Entity
	for i := range accounts {
		e := &accounts[i]
		if e.UUID == "" {
			continue
		}
		if _, dup := seen[e.UUID]; dup {
			continue
		}
		if !matches(e, needle) {
			continue
		}
		seen[e.UUID] = struct{}{}
		out = append(out, *e.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	return out
}

func matches(e *directory.Entity, needle string) bool {
	for _, v := range e.SearchableValues() {
		if v == "" {
			continue
		}
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}
