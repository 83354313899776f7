// Package entity turns extracted page tables into named metadata entities and
// merges them into the run-wide catalog.
package entity

import (
	"regexp"
	"strings"
)

// ReferencedPrefix starts the description of a placeholder entity created for
// a type that is referenced on a page but has no table of its own.
const ReferencedPrefix = "Referenced type from"

// Field is one row of a metadata field table.
type Field struct {
	Name        string `json:"Field Name"`
	Type        string `json:"Field Type"`
	Description string `json:"Description"`
}

// DefaultParent is the parent of every entity whose page names no other.
const DefaultParent = "Metadata"

// Entry is the serialized form of one metadata entity. Parent is only set when
// the page names an explicit supertype.
type Entry struct {
	Fields           []Field `json:"fields"`
	ShortDescription string  `json:"short_description"`
	URL              string  `json:"url"`
	Parent           string  `json:"parent,omitempty"`
}

// ParentType returns the entity's supertype, defaulting to DefaultParent.
func (e Entry) ParentType() string {
	if e.Parent == "" {
		return DefaultParent
	}
	return e.Parent
}

// IsPlaceholder reports whether the entry carries no fields.
func (e Entry) IsPlaceholder() bool {
	return len(e.Fields) == 0
}

// Map is the canonical entity catalog keyed by entity name.
type Map map[string]Entry

// Named pairs an entity name with its entry.
type Named struct {
	Name  string
	Entry Entry
}

// Go's \s is ASCII-only; \p{Zs} adds NBSP and the other space separators
// goquery keeps from entities such as &nbsp;.
var (
	indentedBreak = regexp.MustCompile(`\n[\s\p{Zs}\x{FEFF}]+`)
	whitespaceRun = regexp.MustCompile(`[\s\p{Zs}\x{FEFF}]+`)
)

// CleanDescription collapses whitespace runs, including indented line breaks
// and non-breaking spaces, into single spaces and trims the result.
func CleanDescription(s string) string {
	s = indentedBreak.ReplaceAllString(s, " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func stripFragment(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
