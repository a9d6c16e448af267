// Package spectable loads and answers lookups against the DICOM
// Confidentiality Profile specification table: the per-tag directive
// (D/Z/X/K/U) and the Clean-Descriptors flag derived from the
// PS3.15 Annex E attribute table.
package spectable

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/codeninja55/dicom-anon/dicom/tag"
)

// Directive is one of the five Confidentiality Profile actions.
type Directive byte

const (
	// DirectiveDummy replaces the attribute with a dummy value (D).
	DirectiveDummy Directive = 'D'
	// DirectiveEmpty is the replace-or-empty action (Z). The Attribute
	// Transformer handles it exactly like DirectiveDummy: the value is
	// replaced with a VR-appropriate dummy, never emptied or removed.
	DirectiveEmpty Directive = 'Z'
	// DirectiveRemove removes the attribute (X).
	DirectiveRemove Directive = 'X'
	// DirectiveKeep retains the attribute unchanged (K).
	DirectiveKeep Directive = 'K'
	// DirectiveUID replaces the attribute with a newly generated UID (U).
	DirectiveUID Directive = 'U'
)

// ParseDirective maps the first character of a directive column (e.g.
// "X/Z", "D") to its Directive constant.
func ParseDirective(column string) (Directive, error) {
	column = strings.TrimSpace(column)
	if column == "" {
		return 0, fmt.Errorf("empty directive column")
	}
	switch Directive(column[0]) {
	case DirectiveDummy, DirectiveEmpty, DirectiveRemove, DirectiveKeep, DirectiveUID:
		return Directive(column[0]), nil
	default:
		return 0, fmt.Errorf("unrecognized directive %q", column)
	}
}

// Rule is the specification table's answer for a single tag: the
// primary directive plus whether the attribute may be retained under
// the Clean-Descriptors option once whitelisted.
type Rule struct {
	Directive Directive
	Cleanable bool
}

// Table is the in-memory rule map keyed by tag, loaded once at
// construction from the external spec file (§4.1, §6).
type Table struct {
	rules map[tag.Tag]Rule
}

// Lookup returns the rule for a tag and whether the tag is specified in
// the table at all.
func (t *Table) Lookup(tg tag.Tag) (Rule, bool) {
	r, ok := t.rules[tg]
	return r, ok
}

// Len returns the number of tags carried by the table.
func (t *Table) Len() int {
	return len(t.rules)
}

// Load parses the two-line-per-entry flat spec file format (§4.1, §6):
//
//	<name>\t(gggg,eeee)\t...
//	<col0>\t<col1>\t<col2 directive>\t...\t<col9 clean-descriptors>
//
// Column 2 (0-indexed) holds the primary directive string, whose first
// character is the Directive; column 9 holds "C" when the attribute may
// be retained under Clean-Descriptors whitelisting.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open spec file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the spec file format from r. Exposed separately from Load
// so callers can parse an embedded or in-memory spec file.
func Parse(r io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	rules := make(map[tag.Tag]Rule)

	for scanner.Scan() {
		nameLine := scanner.Text()
		if strings.TrimSpace(nameLine) == "" {
			continue
		}
		if !scanner.Scan() {
			return nil, fmt.Errorf("spec file: dangling name line %q with no directive line", nameLine)
		}
		columnsLine := scanner.Text()

		tg, err := parseNameLine(nameLine)
		if err != nil {
			return nil, fmt.Errorf("spec file: %w", err)
		}

		rule, err := parseColumnsLine(columnsLine)
		if err != nil {
			return nil, fmt.Errorf("spec file: tag %s: %w", tg, err)
		}

		rules[tg] = rule
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("spec file: %w", err)
	}

	return &Table{rules: rules}, nil
}

func parseNameLine(line string) (tag.Tag, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 2 {
		return tag.Tag{}, fmt.Errorf("name line %q missing tag column", line)
	}
	return tag.Parse(strings.TrimSpace(fields[1]))
}

func parseColumnsLine(line string) (Rule, error) {
	cols := strings.Split(line, "\t")
	const directiveCol = 2
	const cleanableCol = 9
	if len(cols) <= directiveCol {
		return Rule{}, fmt.Errorf("columns line %q missing directive column", line)
	}

	directive, err := ParseDirective(cols[directiveCol])
	if err != nil {
		return Rule{}, err
	}

	cleanable := false
	if len(cols) > cleanableCol {
		cleanable = strings.TrimSpace(cols[cleanableCol]) == "C"
	}

	return Rule{Directive: directive, Cleanable: cleanable}, nil
}

