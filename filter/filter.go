package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dhcgn/mailbox-export/model"
)

// Options captures the filtering configuration.
type Options struct {
	Include []string
	Exclude []string
}

// Filter holds compiled regex patterns matched against folder display names.
type Filter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	include, err := compilePatterns(opts.Include)
	if err != nil {
		return nil, fmt.Errorf("compile include-folder pattern: %w", err)
	}
	exclude, err := compilePatterns(opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-folder pattern: %w", err)
	}

	if len(include) > 0 && len(exclude) > 0 {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	return &Filter{include: include, exclude: exclude}, nil
}

// Active reports whether any pattern is configured.
func (f *Filter) Active() bool {
	return len(f.include) > 0 || len(f.exclude) > 0
}

// Allows returns true if the display name passes the filter criteria.
func (f *Filter) Allows(displayName string) bool {
	if len(f.include) > 0 {
		return matchAny(f.include, displayName)
	}
	if len(f.exclude) > 0 {
		return !matchAny(f.exclude, displayName)
	}
	return true
}

// Apply keeps the entries whose display names are allowed, in order.
func (f *Filter) Apply(entries []model.DisplayEntry) []model.DisplayEntry {
	if !f.Active() {
		return entries
	}
	kept := make([]model.DisplayEntry, 0, len(entries))
	for _, e := range entries {
		if f.Allows(e.DisplayName) {
			kept = append(kept, e)
		}
	}
	return kept
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
