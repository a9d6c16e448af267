// Package whitelist loads and tests the Clean-Descriptors whitelist: a
// per-tag set of allowed normalized values, consulted by the Attribute
// Transformer (§4.5, §6) before a descriptive attribute is removed
// under the Clean profile.
package whitelist

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"

	"github.com/codeninja55/dicom-anon/dicom/tag"
)

// caser performs Unicode-correct case folding for Normalize, since
// DICOM person-name and descriptor values are not guaranteed to be
// ASCII (§4.2, §6 SpecificCharacterSet).
var caser = cases.Fold()

// Whitelist maps a tag to the set of its allowed normalized values.
type Whitelist struct {
	allowed map[tag.Tag]map[string]struct{}
}

// Empty returns a whitelist with no entries, used when no --white_list
// flag is supplied.
func Empty() *Whitelist {
	return &Whitelist{allowed: map[tag.Tag]map[string]struct{}{}}
}

// Load reads the whitelist JSON file (§6): an object whose keys are
// "gggg,eeee" hex tag strings and whose values are arrays of allowed
// strings. Every value is normalized on load.
func Load(path string) (*Whitelist, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read whitelist file: %w", err)
	}

	var parsed map[string][]string
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse whitelist JSON: %w", err)
	}

	wl := Empty()
	for key, values := range parsed {
		tg, err := tag.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("whitelist key %q: %w", key, err)
		}

		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[Normalize(v)] = struct{}{}
		}
		wl.allowed[tg] = set
	}

	return wl, nil
}

// Configured reports whether the tag has any whitelist entry at all. A
// tag absent from the whitelist configuration is treated differently
// from one present with an empty or non-matching set (§4.5 Stage 1):
// absence means "no whitelist opinion", not "reject".
func (w *Whitelist) Configured(tg tag.Tag) bool {
	_, ok := w.allowed[tg]
	return ok
}

// Allows reports whether value's normalized form is a member of the
// tag's allowed set. Callers should check Configured first if they need
// to distinguish "not configured" from "configured but rejected".
func (w *Whitelist) Allows(tg tag.Tag, value string) bool {
	set, ok := w.allowed[tg]
	if !ok {
		return false
	}
	_, allowed := set[Normalize(value)]
	return allowed
}

// Normalize lower-cases, trims, strips the punctuation set [-_,.], and
// collapses runs of internal whitespace to a single space, matching the
// normalization applied to both whitelist file values on load and
// candidate values at check time (§4.2, §6).
func Normalize(s string) string {
	s = caser.String(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '-', '_', ',', '.':
			continue
		default:
			b.WriteRune(r)
		}
	}
	s = b.String()

	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
