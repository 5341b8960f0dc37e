package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/llm"
)

// Intent is the classified purpose of a user query.
type Intent string

const (
	// IntentSearch means the query seeks information from the corpus.
	IntentSearch Intent = "search"

	// IntentCreateIssue means the query asks to create a tracker issue.
	IntentCreateIssue Intent = "create_issue"
)

// CreateIssueParams carries the fields extracted for an issue-creation
// request. Project and Summary are required; IssueType defaults to
// "Task" when the action executes.
type CreateIssueParams struct {
	Project     string `json:"project"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	IssueType   string `json:"issue_type"`
}

// MissingFields returns the required fields that are still empty.
func (p CreateIssueParams) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(p.Project) == "" {
		missing = append(missing, "project")
	}
	if strings.TrimSpace(p.Summary) == "" {
		missing = append(missing, "summary")
	}
	return missing
}

// Decision is the structured outcome of intent classification.
type Decision struct {
	Intent      Intent            `json:"intent"`
	CreateIssue CreateIssueParams `json:"create_issue"`
}

const classifierSystemPrompt = `Analyze the user query and decide the appropriate action.
Respond with only a JSON object, no prose, in this shape:
{"action": "search" | "create_issue", "parameters": {"project": string, "summary": string, "description": string, "issue_type": string}}
Use "create_issue" only when the user explicitly asks to create, file, or open an issue or ticket.
For "search", parameters may be an empty object. Omit parameter fields you cannot infer from the query.`

// classifierResponse is the wire shape the model is instructed to emit.
type classifierResponse struct {
	Action     string            `json:"action"`
	Parameters CreateIssueParams `json:"parameters"`
}

// Classifier turns a free-form query into a Decision via a single LLM
// call. It never fails: any provider error or unparseable output falls
// back to a plain search decision, so the request path always degrades
// to "try to answer".
type Classifier struct {
	client llm.Client
	logger *zap.Logger
}

// NewClassifier creates a Classifier.
func NewClassifier(client llm.Client, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{client: client, logger: logger}
}

// Classify returns the Decision for a query.
func (c *Classifier) Classify(ctx context.Context, query string) Decision {
	var resp classifierResponse
	if err := llm.CompleteJSON(ctx, c.client, classifierSystemPrompt, query, &resp); err != nil {
		c.logger.Warn("intent classification failed, falling back to search", zap.Error(err))
		return Decision{Intent: IntentSearch}
	}

	switch Intent(resp.Action) {
	case IntentCreateIssue:
		return Decision{Intent: IntentCreateIssue, CreateIssue: resp.Parameters}
	case IntentSearch:
		return Decision{Intent: IntentSearch}
	default:
		c.logger.Warn("classifier returned unknown action, falling back to search",
			zap.String("action", resp.Action))
		return Decision{Intent: IntentSearch}
	}
}
