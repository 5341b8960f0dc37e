package document_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/askd/internal/document"
)

func strPtr(s string) *string { return &s }

func TestNormalizeIssue_FullRecord(t *testing.T) {
	raw := document.RawIssue{
		Key:         "PROJ-1",
		Summary:     strPtr("Login page crashes"),
		Description: strPtr("Stack trace attached"),
		Status:      strPtr("Open"),
		Priority:    strPtr("High"),
		IssueType:   strPtr("Bug"),
		Project:     strPtr("PROJ"),
		Assignee:    strPtr("alice"),
		Reporter:    strPtr("bob"),
		Labels:      []string{"auth", "frontend"},
		Created:     strPtr("2024-01-01T00:00:00Z"),
		Updated:     strPtr("2024-01-02T00:00:00Z"),
		URL:         "https://tracker.example.com/browse/PROJ-1",
	}

	doc := document.NormalizeIssue(raw)

	assert.Equal(t, document.SourceIssue, doc.Source)
	assert.Equal(t, "PROJ-1", doc.NaturalKey)
	assert.Equal(t, "Login page crashes", doc.Title)

	// Every field the embedding depends on must survive into Content.
	for _, want := range []string{
		"PROJ-1", "Login page crashes", "Open", "High", "Bug",
		"Stack trace attached", "alice", "bob",
		"2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z",
		"auth, frontend", "https://tracker.example.com/browse/PROJ-1",
	} {
		assert.Contains(t, doc.Content, want)
	}

	assert.Equal(t, "High", doc.Attributes["priority"])
	assert.Equal(t, "PROJ", doc.Attributes["project"])
	assert.Equal(t, []string{"auth", "frontend"}, doc.Attributes["labels"])
}

func TestNormalizeIssue_NullSafety(t *testing.T) {
	doc := document.NormalizeIssue(document.RawIssue{Key: "PROJ-2"})

	require.NotEmpty(t, doc.Content)
	assert.Contains(t, doc.Content, document.PlaceholderNoDescription)
	assert.Contains(t, doc.Content, document.PlaceholderUnassigned)
	assert.Contains(t, doc.Content, "Status: "+document.PlaceholderUnknown)
	assert.Contains(t, doc.Content, "Priority: "+document.PlaceholderUnknown)
	assert.NotContains(t, doc.Content, "<nil>")
	assert.NotContains(t, strings.ToLower(doc.Content), "null")

	assert.Equal(t, document.PlaceholderUnknown, doc.Attributes["status"])
	assert.Equal(t, document.PlaceholderUnknown, doc.Attributes["priority"])
	assert.Equal(t, document.PlaceholderUnassigned, doc.Attributes["assignee"])
}

func TestNormalizeIssue_EmptyStringTreatedAsAbsent(t *testing.T) {
	doc := document.NormalizeIssue(document.RawIssue{
		Key:         "PROJ-3",
		Description: strPtr("   "),
	})

	assert.Contains(t, doc.Content, document.PlaceholderNoDescription)
}

func TestNormalizePage_FullRecord(t *testing.T) {
	version := int64(7)
	raw := document.RawPage{
		ID:        "98304",
		Title:     strPtr("Release runbook"),
		Body:      strPtr("Step one: freeze deployments."),
		SpaceKey:  strPtr("ENG"),
		SpaceName: strPtr("Engineering"),
		Version:   &version,
		Updated:   strPtr("2024-03-05T12:00:00Z"),
		URL:       "https://wiki.example.com/pages/98304",
	}

	doc := document.NormalizePage(raw)

	assert.Equal(t, document.SourcePage, doc.Source)
	assert.Equal(t, "98304", doc.NaturalKey)
	assert.Equal(t, "Release runbook", doc.Title)
	assert.Contains(t, doc.Content, "Engineering")
	assert.Contains(t, doc.Content, "Step one: freeze deployments.")
	assert.Equal(t, int64(7), doc.Attributes["version"])
	assert.Equal(t, "ENG", doc.Attributes["space"])
}

func TestNormalizePage_NullSafety(t *testing.T) {
	doc := document.NormalizePage(document.RawPage{ID: "42"})

	require.NotEmpty(t, doc.Content)
	assert.Contains(t, doc.Content, document.PlaceholderNoDescription)
	assert.Contains(t, doc.Content, document.PlaceholderUnknown)
	assert.Equal(t, "42", doc.Attributes["id"])
}
