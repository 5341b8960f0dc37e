// Package main implements the askctl CLI for manual operations
// against the askd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the askd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "askctl",
	Short: "CLI for askd HTTP server operations",
	Long: `askctl is a command-line interface for interacting with the askd HTTP server.
It provides commands for querying the indexed corpus, triggering ingestion,
creating issues, and checking server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8420", "askd server URL")
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(createIssueCmd)
	rootCmd.AddCommand(healthCmd)
}

// queryCmd asks a question against the indexed corpus
var queryCmd = &cobra.Command{
	Use:   "query [question...]",
	Short: "Ask a question against the indexed corpus",
	Long: `Ask a natural-language question against the indexed corpus.

Examples:
  # Ask a question
  askctl query what are the open login bugs?

  # Read the question from stdin
  echo "how do we deploy?" | askctl query -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

var (
	ingestRefresh bool
	ingestScope   string
)

// ingestCmd triggers an ingestion cycle for one source
var ingestCmd = &cobra.Command{
	Use:   "ingest <issue|page>",
	Short: "Trigger ingestion for a source",
	Long: `Trigger an ingestion cycle for the named source.

Examples:
  # Ingest recently updated issues
  askctl ingest issue

  # Re-ingest a wiki space and evict stale pages
  askctl ingest page --refresh --scope DOCS`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

// statusCmd reports the daemon's corpus status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show corpus status",
	RunE:  runStatus,
}

var (
	issueProject     string
	issueDescription string
	issueType        string
)

// createIssueCmd creates an issue in the configured tracker
var createIssueCmd = &cobra.Command{
	Use:   "create-issue <summary>",
	Short: "Create an issue in the configured tracker",
	Long: `Create an issue in the configured issue tracker.

Examples:
  askctl create-issue "Login page 500s" --project PROJ
  askctl create-issue "Rotate TLS certs" --project OPS --type Task`,
	Args: cobra.ExactArgs(1),
	RunE: runCreateIssue,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check askd server health",
	RunE:  runHealth,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestRefresh, "refresh", false, "evict documents missing upstream")
	ingestCmd.Flags().StringVar(&ingestScope, "scope", "", "project key or space key override")
	createIssueCmd.Flags().StringVar(&issueProject, "project", "", "project key (required)")
	createIssueCmd.Flags().StringVar(&issueDescription, "description", "", "issue description")
	createIssueCmd.Flags().StringVar(&issueType, "type", "", "issue type (default Task)")
	_ = createIssueCmd.MarkFlagRequired("project")
}

// QueryRequest matches internal/http/server.go QueryRequest
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse matches internal/agent Answer
type QueryResponse struct {
	State     string `json:"state"`
	Text      string `json:"text"`
	Citations []struct {
		Source     string  `json:"source"`
		NaturalKey string  `json:"natural_key"`
		Title      string  `json:"title"`
		Score      float32 `json:"score"`
	} `json:"citations"`
	Action *struct {
		Intent      string `json:"intent"`
		CreateIssue *struct {
			Project   string `json:"project"`
			Summary   string `json:"summary"`
			IssueType string `json:"issue_type"`
		} `json:"create_issue"`
	} `json:"action"`
}

// CreateIssueRequest matches internal/http/server.go CreateIssueRequest
type CreateIssueRequest struct {
	Project     string `json:"project"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	IssueType   string `json:"issue_type,omitempty"`
}

// CreateIssueResponse matches internal/http/server.go CreateIssueResponse
type CreateIssueResponse struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
}

// HealthResponse matches internal/http/server.go HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	if question == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		question = strings.TrimSpace(string(content))
	}
	if question == "" {
		return fmt.Errorf("no question to ask")
	}

	var resp QueryResponse
	if err := postJSON("/api/v1/query", QueryRequest{Query: question}, &resp); err != nil {
		return err
	}

	fmt.Println(resp.Text)

	if len(resp.Citations) > 0 {
		fmt.Fprintln(os.Stderr)
		for i, c := range resp.Citations {
			fmt.Fprintf(os.Stderr, "[%d] %s %s  %s\n", i+1, c.Source, c.NaturalKey, c.Title)
		}
	}

	if resp.Action != nil && resp.Action.CreateIssue != nil {
		ci := resp.Action.CreateIssue
		fmt.Fprintf(os.Stderr, "\nProposed action: create issue in %s: %q\n", ci.Project, ci.Summary)
		fmt.Fprintf(os.Stderr, "Run: askctl create-issue %q --project %s\n", ci.Summary, ci.Project)
	}

	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := fmt.Sprintf("/api/v1/ingest/%s", args[0])
	params := []string{}
	if ingestRefresh {
		params = append(params, "refresh=true")
	}
	if ingestScope != "" {
		params = append(params, "scope="+ingestScope)
	}
	if len(params) > 0 {
		path += "?" + strings.Join(params, "&")
	}

	var resp map[string]any
	if err := postJSON(path, nil, &resp); err != nil {
		return err
	}

	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	var resp map[string]any
	if err := getJSON("/api/v1/status", &resp); err != nil {
		return err
	}

	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runCreateIssue(cmd *cobra.Command, args []string) error {
	var resp CreateIssueResponse
	err := postJSON("/api/v1/issues", CreateIssueRequest{
		Project:     issueProject,
		Summary:     args[0],
		Description: issueDescription,
		IssueType:   issueType,
	}, &resp)
	if err != nil {
		return err
	}

	fmt.Printf("Created %s: %s\n", resp.Key, resp.Summary)
	if resp.URL != "" {
		fmt.Println(resp.URL)
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	var resp HealthResponse
	if err := getJSON("/health", &resp); err != nil {
		return err
	}

	fmt.Printf("Server Status: %s\n", resp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)
	return nil
}

// postJSON sends a POST request and decodes the JSON response into out.
func postJSON(path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqJSON)
	}

	url := serverURL + path
	httpReq, err := http.NewRequest("POST", url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

// getJSON sends a GET request and decodes the JSON response into out.
func getJSON(path string, out any) error {
	url := serverURL + path

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
