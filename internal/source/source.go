// Package source provides adapters for the systems of record: the Jira
// issue tracker and the Confluence wiki. Adapters return raw records
// with optional fields left nil; all null handling belongs to the
// document normalizer.
package source

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrInvalidConfig indicates invalid adapter configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRequestFailed indicates the source system rejected or failed
	// a request.
	ErrRequestFailed = errors.New("source request failed")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// stripHTML removes markup tags and collapses whitespace. Confluence
// storage-format bodies are HTML; the index wants plain text.
func stripHTML(html string) string {
	text := htmlTagPattern.ReplaceAllString(html, " ")
	return strings.Join(strings.Fields(text), " ")
}
