package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// IssueFetcher reads stories from a Jira-style issue tracker and renders
// them as plain text suitable for ingestion.
type IssueFetcher struct {
	client  *http.Client
	baseURL string
	token   string
	logger  *slog.Logger
}

func NewIssueFetcher(client *http.Client, baseURL, token string) *IssueFetcher {
	return &IssueFetcher{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		logger:  slog.Default().With("component", "issue-fetcher"),
	}
}

type trackerIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		IssueType   struct {
			Name string `json:"name"`
		} `json:"issuetype"`
	} `json:"fields"`
}

type trackerSearchResponse struct {
	Issues []trackerIssue `json:"issues"`
}

// FetchProjectStories returns the rendered text of every story in a project.
func (f *IssueFetcher) FetchProjectStories(ctx context.Context, projectKey string) (string, error) {
	jql := fmt.Sprintf(`project=%s AND issuetype="Story"`, projectKey)
	endpoint := fmt.Sprintf("%s/rest/api/2/search?jql=%s&startAt=0&maxResults=100&fields=*all",
		f.baseURL, url.QueryEscape(jql))

	var result trackerSearchResponse
	if err := f.getJSON(ctx, endpoint, &result); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, issue := range result.Issues {
		writeIssue(&sb, issue)
	}
	f.logger.Info("fetched project stories", "project", projectKey, "count", len(result.Issues))
	return sb.String(), nil
}

// FetchIssue returns the rendered text of one story, or empty text when the
// issue exists but is not a story.
func (f *IssueFetcher) FetchIssue(ctx context.Context, projectKey, issueID string) (string, error) {
	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s-%s", f.baseURL, projectKey, issueID)

	var issue trackerIssue
	if err := f.getJSON(ctx, endpoint, &issue); err != nil {
		return "", err
	}
	if issue.Fields.IssueType.Name != "Story" {
		f.logger.Debug("skipping non-story issue", "key", issue.Key, "type", issue.Fields.IssueType.Name)
		return "", nil
	}

	var sb strings.Builder
	writeIssue(&sb, issue)
	return sb.String(), nil
}

func writeIssue(sb *strings.Builder, issue trackerIssue) {
	summary := issue.Fields.Summary
	if summary == "" {
		summary = "No summary"
	}
	description := issue.Fields.Description
	if description == "" {
		description = "No description"
	}
	fmt.Fprintf(sb, "Issue Key: %s\nSummary: %s\nDescription: %s\n\n", issue.Key, summary, description)
}

func (f *IssueFetcher) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build issue tracker request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("issue tracker request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("issue tracker returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode issue tracker response: %w", err)
	}
	return nil
}
