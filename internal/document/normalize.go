package document

import (
	"strings"
)

// Placeholder text substituted for absent optional fields. The literal
// strings are part of the stored corpus, so they are fixed here rather
// than configurable.
const (
	PlaceholderNoDescription = "No description provided"
	PlaceholderUnassigned    = "Unassigned"
	PlaceholderUnknown       = "Unknown"
)

// orPlaceholder returns the pointed-to string, or the placeholder when
// the field is absent or empty.
func orPlaceholder(s *string, placeholder string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return placeholder
	}
	return *s
}

// NormalizeIssue converts a raw issue-tracker record into a Document.
//
// Content concatenates key, summary, status, priority, type, description,
// assignee, reporter, dates and labels so the embedding captures the
// full semantic content of the issue. Dropping a field here silently
// degrades retrieval, so the field set is pinned by tests.
func NormalizeIssue(raw RawIssue) Document {
	summary := orPlaceholder(raw.Summary, PlaceholderUnknown)
	description := orPlaceholder(raw.Description, PlaceholderNoDescription)
	status := orPlaceholder(raw.Status, PlaceholderUnknown)
	priority := orPlaceholder(raw.Priority, PlaceholderUnknown)
	issueType := orPlaceholder(raw.IssueType, PlaceholderUnknown)
	project := orPlaceholder(raw.Project, PlaceholderUnknown)
	assignee := orPlaceholder(raw.Assignee, PlaceholderUnassigned)
	reporter := orPlaceholder(raw.Reporter, PlaceholderUnknown)
	created := orPlaceholder(raw.Created, PlaceholderUnknown)
	updated := orPlaceholder(raw.Updated, PlaceholderUnknown)

	var b strings.Builder
	b.WriteString("Issue: " + raw.Key + "\n")
	b.WriteString("Summary: " + summary + "\n")
	b.WriteString("Status: " + status + "\n")
	b.WriteString("Priority: " + priority + "\n")
	b.WriteString("Type: " + issueType + "\n")
	b.WriteString("Description: " + description + "\n")
	b.WriteString("Assignee: " + assignee + "\n")
	b.WriteString("Reporter: " + reporter + "\n")
	b.WriteString("Created: " + created + "\n")
	b.WriteString("Updated: " + updated + "\n")
	b.WriteString("Labels: " + strings.Join(raw.Labels, ", "))
	if raw.URL != "" {
		b.WriteString("\nURL: " + raw.URL)
	}

	attrs := map[string]any{
		"key":      raw.Key,
		"project":  project,
		"status":   status,
		"priority": priority,
		"type":     issueType,
		"assignee": assignee,
		"updated":  updated,
	}
	if len(raw.Labels) > 0 {
		attrs["labels"] = raw.Labels
	}
	if raw.URL != "" {
		attrs["url"] = raw.URL
	}

	return Document{
		Source:     SourceIssue,
		NaturalKey: raw.Key,
		Title:      summary,
		Content:    b.String(),
		Attributes: attrs,
	}
}

// NormalizePage converts a raw wiki page record into a Document.
func NormalizePage(raw RawPage) Document {
	title := orPlaceholder(raw.Title, PlaceholderUnknown)
	body := orPlaceholder(raw.Body, PlaceholderNoDescription)
	spaceName := orPlaceholder(raw.SpaceName, PlaceholderUnknown)
	spaceKey := orPlaceholder(raw.SpaceKey, PlaceholderUnknown)
	updated := orPlaceholder(raw.Updated, PlaceholderUnknown)

	var b strings.Builder
	b.WriteString("Page: " + title + "\n")
	b.WriteString("Space: " + spaceName + "\n")
	b.WriteString("Last Updated: " + updated + "\n\n")
	b.WriteString(body)

	attrs := map[string]any{
		"id":      raw.ID,
		"title":   title,
		"space":   spaceKey,
		"updated": updated,
	}
	if raw.Version != nil {
		attrs["version"] = *raw.Version
	}
	if raw.URL != "" {
		attrs["url"] = raw.URL
	}

	return Document{
		Source:     SourcePage,
		NaturalKey: raw.ID,
		Title:      title,
		Content:    b.String(),
		Attributes: attrs,
	}
}
