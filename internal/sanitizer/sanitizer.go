// Package sanitizer strips markup from user-supplied text fields before they
// are persisted or rendered.
package sanitizer

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer reduces user input to plain text
type Sanitizer struct {
	policy *bluemonday.Policy
}

// New creates a sanitizer with a strict strip-everything policy
func New() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// PlainText removes all HTML from the input and trims surrounding whitespace
func (s *Sanitizer) PlainText(input string) string {
	return strings.TrimSpace(s.policy.Sanitize(input))
}
