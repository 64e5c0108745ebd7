package dump

import (
	"fmt"
	"regexp"

	"github.com/fgeck/gorestic-backup/internal/models"
)

// Filter selects objects by name. Patterns are regular expressions anchored
// at the start of the name; either include or exclude patterns may be set.
type Filter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewFilter compiles the patterns. Setting both include and exclude is a validation error.
func NewFilter(include, exclude []string) (*Filter, error) {
	if len(include) > 0 && len(exclude) > 0 {
		return nil, fmt.Errorf("%w: either include or exclude patterns are allowed, not both", models.ErrValidation)
	}

	f := &Filter{}
	var err error
	if f.include, err = compile(include); err != nil {
		return nil, err
	}
	if f.exclude, err = compile(exclude); err != nil {
		return nil, err
	}
	return f, nil
}

func compile(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`^(?:` + p + `)`)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid pattern %q: %v", models.ErrValidation, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Match reports whether name should be dumped.
func (f *Filter) Match(name string) bool {
	if len(f.include) > 0 {
		return matchAny(f.include, name)
	}
	return !matchAny(f.exclude, name)
}

// Apply splits names into selected and skipped, preserving order.
func (f *Filter) Apply(names []string) (selected, skipped []string) {
	for _, n := range names {
		if f.Match(n) {
			selected = append(selected, n)
		} else {
			skipped = append(skipped, n)
		}
	}
	return selected, skipped
}

func matchAny(res []*regexp.Regexp, name string) bool {
	for _, re := range res {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}
