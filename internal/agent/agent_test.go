package agent_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/askd/internal/agent"
	"github.com/fyrsmithlabs/askd/internal/document"
	"github.com/fyrsmithlabs/askd/internal/vectorstore"
)

// scriptedClient replays canned completions in order.
type scriptedClient struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (c *scriptedClient) Complete(_ context.Context, _, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	idx := c.calls
	c.calls++
	if idx >= len(c.responses) {
		return "", errors.New("no scripted response left")
	}
	return c.responses[idx], nil
}

// stubStore implements vectorstore.Store for branch tests.
type stubStore struct {
	results []vectorstore.SearchResult
	err     error
}

func (s *stubStore) Upsert(context.Context, []document.Document) (vectorstore.UpsertResult, error) {
	return vectorstore.UpsertResult{}, nil
}

func (s *stubStore) Search(context.Context, string, int, map[string]any) ([]vectorstore.SearchResult, error) {
	return s.results, s.err
}

func (s *stubStore) DeleteByFilter(context.Context, map[string]any) (int, error) { return 0, nil }

func (s *stubStore) Count(context.Context) (int, error) { return len(s.results), nil }

func (s *stubStore) Close() error { return nil }

func TestClassifierFallsBackOnMalformedOutput(t *testing.T) {
	client := &scriptedClient{responses: []string{"I think you want to search for something."}}
	classifier := agent.NewClassifier(client, nil)

	decision := classifier.Classify(context.Background(), "what is broken?")
	assert.Equal(t, agent.IntentSearch, decision.Intent)
}

func TestClassifierFallsBackOnProviderError(t *testing.T) {
	client := &scriptedClient{err: errors.New("connection refused")}
	classifier := agent.NewClassifier(client, nil)

	decision := classifier.Classify(context.Background(), "what is broken?")
	assert.Equal(t, agent.IntentSearch, decision.Intent)
}

func TestClassifierFallsBackOnUnknownAction(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"action": "delete_everything"}`}}
	classifier := agent.NewClassifier(client, nil)

	decision := classifier.Classify(context.Background(), "remove all issues")
	assert.Equal(t, agent.IntentSearch, decision.Intent)
}

func TestClassifierParsesCreateIssue(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"```json\n{\"action\": \"create_issue\", \"parameters\": {\"project\": \"PROJ\", \"summary\": \"Fix login\", \"issue_type\": \"Bug\"}}\n```",
	}}
	classifier := agent.NewClassifier(client, nil)

	decision := classifier.Classify(context.Background(), "create a bug for the login failure")
	assert.Equal(t, agent.IntentCreateIssue, decision.Intent)
	assert.Equal(t, "PROJ", decision.CreateIssue.Project)
	assert.Equal(t, "Fix login", decision.CreateIssue.Summary)
	assert.Equal(t, "Bug", decision.CreateIssue.IssueType)
}

func TestCreateIssueMissingFields(t *testing.T) {
	params := agent.CreateIssueParams{Summary: "Fix login"}
	assert.Equal(t, []string{"project"}, params.MissingFields())

	params = agent.CreateIssueParams{}
	assert.Equal(t, []string{"project", "summary"}, params.MissingFields())

	params = agent.CreateIssueParams{Project: "PROJ", Summary: "Fix login"}
	assert.Empty(t, params.MissingFields())
}

func TestQueryEmptyText(t *testing.T) {
	a := agent.New(&stubStore{}, &scriptedClient{}, agent.Config{}, nil)

	_, err := a.Query(context.Background(), "   ")
	require.ErrorIs(t, err, agent.ErrEmptyQuery)
}

func TestQueryNoResults(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"action": "search"}`}}
	a := agent.New(&stubStore{}, client, agent.Config{}, nil)

	answer, err := a.Query(context.Background(), "anything about turtles?")
	require.NoError(t, err)
	assert.Equal(t, agent.StateAnswered, answer.State)
	assert.Contains(t, answer.Text, "could not find")
	assert.Empty(t, answer.Citations)
	// Synthesis is skipped entirely when retrieval comes back empty.
	assert.Equal(t, 1, client.calls)
}

func TestQuerySearchFailureIsFatal(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"action": "search"}`}}
	store := &stubStore{err: errors.New("index unavailable")}
	a := agent.New(store, client, agent.Config{}, nil)

	_, err := a.Query(context.Background(), "what is broken?")
	require.ErrorIs(t, err, agent.ErrProviderFailure)
}

func TestQuerySynthesizesWithCitations(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"action": "search"}`,
		"PROJ-1 tracks the deployment failure [1].",
	}}
	store := &stubStore{results: []vectorstore.SearchResult{
		{
			Source:     document.SourceIssue,
			NaturalKey: "PROJ-1",
			Title:      "PROJ-1",
			Content:    "Issue: PROJ-1\nSummary: deployment failure",
			Score:      0.92,
			Metadata:   map[string]any{"priority": "High"},
		},
	}}
	a := agent.New(store, client, agent.Config{}, nil)

	answer, err := a.Query(context.Background(), "what tracks the deployment failure?")
	require.NoError(t, err)
	assert.Equal(t, agent.StateAnswered, answer.State)
	assert.Contains(t, answer.Text, "PROJ-1")
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "PROJ-1", answer.Citations[0].NaturalKey)
	assert.Equal(t, "High", answer.Citations[0].Attributes["priority"])

	// The synthesis prompt carries the numbered context block.
	synthesisPrompt := client.prompts[1]
	assert.Contains(t, synthesisPrompt, "[1] (issue PROJ-1)")
	assert.Contains(t, synthesisPrompt, "deployment failure")
}

func TestQueryCreateIssueComplete(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"action": "create_issue", "parameters": {"project": "PROJ", "summary": "Fix login", "description": "Login broken since Friday"}}`,
	}}
	a := agent.New(&stubStore{}, client, agent.Config{}, nil)

	answer, err := a.Query(context.Background(), "create an issue for the login failure in PROJ")
	require.NoError(t, err)
	assert.Equal(t, agent.StateActionProposed, answer.State)
	require.NotNil(t, answer.Action)
	assert.Equal(t, agent.IntentCreateIssue, answer.Action.Intent)
	assert.Equal(t, "PROJ", answer.Action.CreateIssue.Project)
	assert.Empty(t, answer.Action.CreateIssue.MissingFields())
}

func TestQueryCreateIssueMissingFields(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"action": "create_issue", "parameters": {"summary": "Fix login"}}`,
	}}
	a := agent.New(&stubStore{}, client, agent.Config{}, nil)

	answer, err := a.Query(context.Background(), "open a ticket about the login failure")
	require.NoError(t, err)
	assert.Equal(t, agent.StateActionProposed, answer.State)
	assert.Contains(t, answer.Text, "project")
	require.NotNil(t, answer.Action)
	assert.Equal(t, "Fix login", answer.Action.CreateIssue.Summary)
}

// keywordEmbedder maps keyword presence to axes so retrieval ordering
// is deterministic.
type keywordEmbedder struct{}

var keywordAxes = map[string]int{
	"high":    0,
	"low":     1,
	"runbook": 2,
	"login":   3,
}

func (keywordEmbedder) embed(text string) []float32 {
	vec := make([]float32, 6)
	lower := strings.ToLower(text)
	for word, axis := range keywordAxes {
		if strings.Contains(lower, word) {
			vec[axis] = 1
		}
	}
	vec[len(vec)-1] = 0.1

	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (e keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func strPtr(s string) *string { return &s }

func TestQueryEndToEnd(t *testing.T) {
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       t.TempDir(),
		Collection: "e2e_documents",
	}, keywordEmbedder{}, nil)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	docs := []document.Document{
		document.NormalizeIssue(document.RawIssue{
			Key:      "PROJ-1",
			Summary:  strPtr("Login outage"),
			Priority: strPtr("High"),
			Project:  strPtr("PROJ"),
		}),
		document.NormalizeIssue(document.RawIssue{
			Key:         "PROJ-2",
			Summary:     strPtr("Tweak button color"),
			Description: strPtr("Cosmetic only"),
			Priority:    strPtr("Low"),
			Project:     strPtr("PROJ"),
		}),
		document.NormalizePage(document.RawPage{
			ID:    "99001",
			Title: strPtr("Deploy runbook"),
			Body:  strPtr("runbook steps for deploys"),
		}),
	}

	result, err := store.Upsert(ctx, docs)
	require.NoError(t, err)
	require.Equal(t, 3, result.Upserted)

	client := &scriptedClient{responses: []string{
		`{"action": "search"}`,
		"The high priority issue is PROJ-1, a login outage [1].",
	}}
	a := agent.New(store, client, agent.Config{TopK: 2}, nil)

	answer, err := a.Query(ctx, "what are the high priority issues?")
	require.NoError(t, err)
	assert.Equal(t, agent.StateAnswered, answer.State)
	require.NotEmpty(t, answer.Citations)

	top := answer.Citations[0]
	assert.Equal(t, "PROJ-1", top.NaturalKey)
	assert.Equal(t, document.SourceIssue, top.Source)
	assert.Equal(t, "High", top.Attributes["priority"])

	// The missing description was normalized to the placeholder, so the
	// synthesis context never contains a literal null.
	assert.Contains(t, client.prompts[1], document.PlaceholderNoDescription)
}
