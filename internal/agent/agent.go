// Package agent implements the retrieval-augmented query pipeline:
// intent classification, similarity search, and grounded answer
// synthesis with citations.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/document"
	"github.com/fyrsmithlabs/askd/internal/llm"
	"github.com/fyrsmithlabs/askd/internal/vectorstore"
)

var agentTracer = otel.Tracer("askd.agent")

var (
	// ErrEmptyQuery indicates an empty query text.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrProviderFailure indicates a retrieval or synthesis provider
	// failed for this query. Fatal to the single query, never retried
	// here.
	ErrProviderFailure = errors.New("provider failure")
)

const defaultTopK = 5

// noResultsAnswer is returned when the corpus has nothing relevant,
// instead of letting the model answer from thin air.
const noResultsAnswer = "I could not find any relevant information in the indexed issues and pages for that question."

const synthesisSystemPrompt = `You are a helpful assistant that answers questions about the team's issue tracker and wiki.
Answer using only the provided context. If the context does not contain the answer, say you don't know.
Reference sources by their bracketed numbers, e.g. [1].`

// State is the terminal state of a processed query.
type State string

const (
	// StateAnswered means the query produced a grounded answer.
	StateAnswered State = "answered"

	// StateActionProposed means the query produced a structured action
	// for the caller to execute. The agent itself never performs side
	// effects.
	StateActionProposed State = "action_proposed"
)

// SourceCitation identifies one retrieved record backing an answer.
type SourceCitation struct {
	Source     document.Source `json:"source"`
	NaturalKey string          `json:"natural_key"`
	Title      string          `json:"title,omitempty"`
	Score      float32         `json:"score"`
	Attributes map[string]any  `json:"attributes,omitempty"`
}

// Answer is the result of processing one query.
type Answer struct {
	State     State            `json:"state"`
	Text      string           `json:"text"`
	Citations []SourceCitation `json:"citations,omitempty"`

	// Action carries the classified decision when State is
	// StateActionProposed, possibly with missing fields.
	Action *Decision `json:"action,omitempty"`
}

// Config holds agent configuration.
type Config struct {
	// TopK is the retrieval breadth for the search branch. Default: 5.
	TopK int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK <= 0 {
		c.TopK = defaultTopK
	}
}

// Agent processes queries against the vector store. Stateless between
// queries; safe for concurrent use.
type Agent struct {
	store      vectorstore.Store
	client     llm.Client
	classifier *Classifier
	config     Config
	logger     *zap.Logger
}

// New creates an Agent over the given store and completion client.
func New(store vectorstore.Store, client llm.Client, config Config, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	return &Agent{
		store:      store,
		client:     client,
		classifier: NewClassifier(client, logger),
		config:     config,
		logger:     logger,
	}
}

// Query classifies the query intent and either answers it from the
// corpus or proposes a structured action.
func (a *Agent) Query(ctx context.Context, text string) (Answer, error) {
	ctx, span := agentTracer.Start(ctx, "Agent.Query")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return Answer{}, ErrEmptyQuery
	}

	decision := a.classifier.Classify(ctx, text)
	span.SetAttributes(attribute.String("intent", string(decision.Intent)))

	var (
		answer Answer
		err    error
	)
	switch decision.Intent {
	case IntentCreateIssue:
		answer = a.proposeCreateIssue(decision)
	default:
		answer, err = a.answerFromCorpus(ctx, text)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Answer{}, err
	}

	span.SetAttributes(attribute.String("state", string(answer.State)))
	span.SetStatus(codes.Ok, "success")
	return answer, nil
}

// answerFromCorpus runs the search branch: retrieve, assemble context,
// synthesize a grounded answer.
func (a *Agent) answerFromCorpus(ctx context.Context, text string) (Answer, error) {
	results, err := a.store.Search(ctx, text, a.config.TopK, nil)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: search: %v", ErrProviderFailure, err)
	}

	if len(results) == 0 {
		a.logger.Debug("no results for query", zap.String("query", text))
		return Answer{State: StateAnswered, Text: noResultsAnswer}, nil
	}

	prompt := buildSynthesisPrompt(text, results)
	synthesized, err := a.client.Complete(ctx, synthesisSystemPrompt, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: synthesis: %v", ErrProviderFailure, err)
	}

	citations := make([]SourceCitation, len(results))
	for i, res := range results {
		citations[i] = SourceCitation{
			Source:     res.Source,
			NaturalKey: res.NaturalKey,
			Title:      res.Title,
			Score:      res.Score,
			Attributes: res.Metadata,
		}
	}

	return Answer{
		State:     StateAnswered,
		Text:      synthesized,
		Citations: citations,
	}, nil
}

// buildSynthesisPrompt assembles the numbered context block the model
// is allowed to answer from.
func buildSynthesisPrompt(query string, results []vectorstore.SearchResult) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, res := range results {
		fmt.Fprintf(&b, "[%d] (%s %s)\n%s\n\n", i+1, res.Source, res.NaturalKey, res.Content)
	}
	fmt.Fprintf(&b, "Question: %s\n\nAnswer:", query)
	return b.String()
}

// proposeCreateIssue returns the action for the caller to execute,
// asking for any required fields that are still missing.
func (a *Agent) proposeCreateIssue(decision Decision) Answer {
	missing := decision.CreateIssue.MissingFields()
	text := fmt.Sprintf("Ready to create issue %q in project %s. Confirm to proceed.",
		decision.CreateIssue.Summary, decision.CreateIssue.Project)
	if len(missing) > 0 {
		text = fmt.Sprintf("To create this issue I still need: %s.", strings.Join(missing, ", "))
	}

	return Answer{
		State:  StateActionProposed,
		Text:   text,
		Action: &decision,
	}
}
