package document

// Raw source records as returned by the source adapters.
//
// Every field a source system may omit is a pointer so that absence is
// explicit and all access is forced through the normalization rules.
// Adapters must never substitute defaults themselves.

// RawIssue is an issue-tracker record before normalization.
type RawIssue struct {
	// Key is the issue key (e.g. "PROJ-1"). Always present.
	Key string

	Summary     *string
	Description *string
	Status      *string
	Priority    *string
	IssueType   *string
	Project     *string
	Assignee    *string
	Reporter    *string
	Labels      []string
	Created     *string
	Updated     *string
	URL         string
}

// RawPage is a wiki page record before normalization.
type RawPage struct {
	// ID is the page id. Always present.
	ID string

	Title     *string
	Body      *string
	SpaceKey  *string
	SpaceName *string
	Version   *int64
	Updated   *string
	URL       string
}
