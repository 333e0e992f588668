// Package selection turns user choices into plain values the export core
// understands: a store and a set of folder indices.
package selection

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dhcgn/mailbox-export/model"
)

var (
	// ErrEmpty is returned when no folder was chosen.
	ErrEmpty = errors.New("no folders selected")
	// ErrNoStores is returned when the session has no mailbox to choose from.
	ErrNoStores = errors.New("no mailboxes found")
)

// Selection is a set of folders chosen from an enumerated list. Indices are
// zero-based and kept in the order they were given.
type Selection struct {
	All     bool
	Indices []int
}

// Parse reads "all" or a comma-separated list of 1-based folder numbers.
func Parse(input string, count int) (Selection, error) {
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "all") {
		return Selection{All: true}, nil
	}
	if input == "" {
		return Selection{}, ErrEmpty
	}

	var sel Selection
	for _, field := range strings.Split(input, ",") {
		field = strings.TrimSpace(field)
		n, err := strconv.Atoi(field)
		if err != nil {
			return Selection{}, fmt.Errorf("invalid folder number %q: enter numbers separated by commas, or 'all'", field)
		}
		if n < 1 || n > count {
			return Selection{}, fmt.Errorf("invalid folder number: %d (1-%d)", n, count)
		}
		sel.Indices = append(sel.Indices, n-1)
	}
	return sel, nil
}

// Apply returns the chosen entries. Out-of-range indices are ignored.
func (s Selection) Apply(entries []model.DisplayEntry) []model.DisplayEntry {
	if s.All {
		return entries
	}
	chosen := make([]model.DisplayEntry, 0, len(s.Indices))
	for _, i := range s.Indices {
		if i >= 0 && i < len(entries) {
			chosen = append(chosen, entries[i])
		}
	}
	return chosen
}

// ResolveStore finds a store by 1-based number or by case-insensitive name.
func ResolveStore(stores []model.Store, choice string) (model.Store, error) {
	if len(stores) == 0 {
		return nil, ErrNoStores
	}
	choice = strings.TrimSpace(choice)
	if n, err := strconv.Atoi(choice); err == nil {
		if n < 1 || n > len(stores) {
			return nil, fmt.Errorf("invalid mailbox number: %d (1-%d)", n, len(stores))
		}
		return stores[n-1], nil
	}
	for _, s := range stores {
		if strings.EqualFold(s.Name(), choice) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("mailbox %q not found", choice)
}
