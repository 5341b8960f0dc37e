package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/document"
)

const (
	defaultJiraMaxResults = 100
	defaultJiraDaysBack   = 30
)

// JiraConfig holds configuration for the Jira REST adapter.
type JiraConfig struct {
	// BaseURL is the Jira instance URL, e.g. "https://org.atlassian.net".
	BaseURL string

	// Email and APIToken authenticate via basic auth.
	Email    string
	APIToken string

	// Project is the default project key for ingestion.
	Project string

	// DaysBack limits ingestion to issues updated within this window.
	// Default: 30.
	DaysBack int
}

// ApplyDefaults sets default values for unset fields.
func (c *JiraConfig) ApplyDefaults() {
	if c.DaysBack <= 0 {
		c.DaysBack = defaultJiraDaysBack
	}
}

// Validate validates the configuration.
func (c JiraConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: jira base URL required", ErrInvalidConfig)
	}
	return nil
}

// JiraClient talks to the Jira REST API (v2).
type JiraClient struct {
	config JiraConfig
	client *http.Client
	logger *zap.Logger
}

// NewJiraClient creates a Jira adapter.
func NewJiraClient(config JiraConfig, logger *zap.Logger) (*JiraClient, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JiraClient{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}, nil
}

// jiraIssue is the wire shape of one issue. Optional fields stay
// pointers so absence is distinguishable from emptiness.
type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     *string `json:"summary"`
		Description *string `json:"description"`
		Status      *struct {
			Name string `json:"name"`
		} `json:"status"`
		Priority *struct {
			Name string `json:"name"`
		} `json:"priority"`
		IssueType *struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Project *struct {
			Key string `json:"key"`
		} `json:"project"`
		Assignee *struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
		Reporter *struct {
			DisplayName string `json:"displayName"`
		} `json:"reporter"`
		Labels  []string `json:"labels"`
		Created *string  `json:"created"`
		Updated *string  `json:"updated"`
	} `json:"fields"`
}

type jiraSearchResponse struct {
	Issues []jiraIssue `json:"issues"`
	Total  int         `json:"total"`
}

func (j *JiraClient) do(req *http.Request) ([]byte, int, error) {
	req.Header.Set("Accept", "application/json")
	if j.config.Email != "" || j.config.APIToken != "" {
		req.SetBasicAuth(j.config.Email, j.config.APIToken)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// SearchIssues runs a JQL query and returns the matching raw records.
func (j *JiraClient) SearchIssues(ctx context.Context, jql string, maxResults int) ([]document.RawIssue, error) {
	if maxResults <= 0 {
		maxResults = defaultJiraMaxResults
	}

	params := url.Values{}
	params.Set("jql", jql)
	params.Set("maxResults", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		j.config.BaseURL+"/rest/api/2/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	body, status, err := j.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: search status %d: %s", ErrRequestFailed, status, string(body))
	}

	var parsed jiraSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	records := make([]document.RawIssue, len(parsed.Issues))
	for i, issue := range parsed.Issues {
		records[i] = j.toRaw(issue)
	}

	j.logger.Debug("searched jira issues",
		zap.String("jql", jql),
		zap.Int("returned", len(records)),
	)
	return records, nil
}

// GetIssue fetches a single issue by key.
func (j *JiraClient) GetIssue(ctx context.Context, key string) (document.RawIssue, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		j.config.BaseURL+"/rest/api/2/issue/"+url.PathEscape(key), nil)
	if err != nil {
		return document.RawIssue{}, fmt.Errorf("creating request: %w", err)
	}

	body, status, err := j.do(req)
	if err != nil {
		return document.RawIssue{}, err
	}
	if status == http.StatusNotFound {
		return document.RawIssue{}, fmt.Errorf("%w: issue %s", ErrNotFound, key)
	}
	if status != http.StatusOK {
		return document.RawIssue{}, fmt.Errorf("%w: get issue status %d: %s", ErrRequestFailed, status, string(body))
	}

	var issue jiraIssue
	if err := json.Unmarshal(body, &issue); err != nil {
		return document.RawIssue{}, fmt.Errorf("decoding issue: %w", err)
	}
	return j.toRaw(issue), nil
}

// CreateIssueRequest carries the fields for a new issue.
type CreateIssueRequest struct {
	Project     string
	Summary     string
	Description string
	IssueType   string
}

// CreateIssue creates a new issue and returns its raw record.
// IssueType defaults to "Task" when empty.
func (j *JiraClient) CreateIssue(ctx context.Context, r CreateIssueRequest) (document.RawIssue, error) {
	if r.Project == "" || r.Summary == "" {
		return document.RawIssue{}, fmt.Errorf("%w: project and summary required", ErrInvalidConfig)
	}
	issueType := r.IssueType
	if issueType == "" {
		issueType = "Task"
	}

	payload := map[string]any{
		"fields": map[string]any{
			"project":     map[string]string{"key": r.Project},
			"summary":     r.Summary,
			"description": r.Description,
			"issuetype":   map[string]string{"name": issueType},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return document.RawIssue{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		j.config.BaseURL+"/rest/api/2/issue", bytes.NewReader(data))
	if err != nil {
		return document.RawIssue{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := j.do(req)
	if err != nil {
		return document.RawIssue{}, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return document.RawIssue{}, fmt.Errorf("%w: create issue status %d: %s", ErrRequestFailed, status, string(body))
	}

	var created struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return document.RawIssue{}, fmt.Errorf("decoding create response: %w", err)
	}

	j.logger.Info("created jira issue",
		zap.String("key", created.Key),
		zap.String("project", r.Project),
	)
	return j.GetIssue(ctx, created.Key)
}

// IssuesForEmbedding fetches the project's recently updated issues for
// ingestion.
func (j *JiraClient) IssuesForEmbedding(ctx context.Context, project string) ([]document.RawIssue, error) {
	if project == "" {
		project = j.config.Project
	}
	if project == "" {
		return nil, fmt.Errorf("%w: project required", ErrInvalidConfig)
	}

	jql := fmt.Sprintf("project = %s AND updated >= -%dd ORDER BY updated DESC", project, j.config.DaysBack)
	return j.SearchIssues(ctx, jql, defaultJiraMaxResults)
}

func (j *JiraClient) toRaw(issue jiraIssue) document.RawIssue {
	raw := document.RawIssue{
		Key:         issue.Key,
		Summary:     issue.Fields.Summary,
		Description: issue.Fields.Description,
		Labels:      issue.Fields.Labels,
		Created:     issue.Fields.Created,
		Updated:     issue.Fields.Updated,
		URL:         j.config.BaseURL + "/browse/" + issue.Key,
	}
	if issue.Fields.Status != nil {
		raw.Status = &issue.Fields.Status.Name
	}
	if issue.Fields.Priority != nil {
		raw.Priority = &issue.Fields.Priority.Name
	}
	if issue.Fields.IssueType != nil {
		raw.IssueType = &issue.Fields.IssueType.Name
	}
	if issue.Fields.Project != nil {
		raw.Project = &issue.Fields.Project.Key
	}
	if issue.Fields.Assignee != nil {
		raw.Assignee = &issue.Fields.Assignee.DisplayName
	}
	if issue.Fields.Reporter != nil {
		raw.Reporter = &issue.Fields.Reporter.DisplayName
	}
	return raw
}
