// Package document defines the uniform document representation produced
// from heterogeneous source records (issue trackers, wikis) and the
// normalization rules that turn raw records into it.
package document

// Source identifies the origin system of a document.
type Source string

const (
	// SourceIssue marks documents that originate from an issue tracker.
	SourceIssue Source = "issue"

	// SourcePage marks documents that originate from a wiki page.
	SourcePage Source = "page"
)

// Valid reports whether the source is a known value.
func (s Source) Valid() bool {
	return s == SourceIssue || s == SourcePage
}

// Document is the uniform representation of a source record.
//
// NaturalKey is the source system's own identifier (issue key, page id)
// and is unique within a Source. Content is never empty: normalization
// substitutes explicit placeholders for absent fields so the embedded
// text stays self-describing.
type Document struct {
	// Source is the origin system of this document.
	Source Source

	// NaturalKey is the source system's unique identifier for the record.
	NaturalKey string

	// Title is the human-readable title (issue summary, page title).
	Title string

	// Content is the concatenated textual representation used for
	// embedding. Never empty.
	Content string

	// Attributes holds structured metadata for filtering and citations.
	// Values are scalars or homogeneous lists of scalars.
	Attributes map[string]any
}
