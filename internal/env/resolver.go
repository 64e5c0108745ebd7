// Package env resolves $(KEY) placeholders against the process environment.
package env

import (
	"os"
	"regexp"
)

// MaxRounds bounds the number of substitution passes so that cyclic references terminate.
const MaxRounds = 10

var placeholder = regexp.MustCompile(`\$\(([a-zA-Z0-9_-]+)\)`)

// LookupFunc returns the raw value of an environment variable.
type LookupFunc func(key string) (string, bool)

// Resolver expands $(KEY) placeholders. A placeholder whose key is not set is left verbatim.
type Resolver struct {
	lookup LookupFunc
}

// New creates a resolver backed by os.LookupEnv.
func New() *Resolver {
	return &Resolver{lookup: os.LookupEnv}
}

// NewWithLookup creates a resolver with a custom lookup function (for testing).
func NewWithLookup(lookup LookupFunc) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve replaces every $(KEY) whose KEY is set, repeating up to MaxRounds times
// so that a value may itself reference another variable.
func (r *Resolver) Resolve(template string) string {
	for round := 0; round < MaxRounds; round++ {
		changed := false
		template = placeholder.ReplaceAllStringFunc(template, func(match string) string {
			key := placeholder.FindStringSubmatch(match)[1]
			value, ok := r.lookup(key)
			if !ok {
				return match
			}
			changed = true
			return value
		})
		if !changed {
			break
		}
	}
	return template
}

// Lookup returns the resolved value of the variable name.
func (r *Resolver) Lookup(name string) (string, bool) {
	value, ok := r.lookup(name)
	if !ok {
		return "", false
	}
	return r.Resolve(value), true
}

// Get returns the resolved value of name, or def when it is not set.
func (r *Resolver) Get(name, def string) string {
	if value, ok := r.Lookup(name); ok {
		return value
	}
	return def
}
