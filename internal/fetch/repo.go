package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// RepoFetcher reads the top-level files of a hosted source repository and
// concatenates their contents into one text blob.
type RepoFetcher struct {
	client *http.Client
	logger *slog.Logger
}

func NewRepoFetcher(client *http.Client) *RepoFetcher {
	return &RepoFetcher{
		client: client,
		logger: slog.Default().With("component", "repo-fetcher"),
	}
}

type githubEntry struct {
	Type        string `json:"type"`
	DownloadURL string `json:"download_url"`
	Path        string `json:"path"`
}

// FetchGitHub reads a public GitHub repository via the contents API.
func (f *RepoFetcher) FetchGitHub(ctx context.Context, repoURL string) (string, error) {
	idx := strings.Index(repoURL, "github.com/")
	if idx < 0 {
		return "", fmt.Errorf("not a valid GitHub repository link: %q", repoURL)
	}
	repoName := strings.Trim(repoURL[idx+len("github.com/"):], "/")
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/contents", repoName)

	var entries []githubEntry
	if err := f.getJSON(ctx, apiURL, "", &entries); err != nil {
		return "", err
	}

	var sb strings.Builder
	count := 0
	for _, entry := range entries {
		if entry.Type != "file" || entry.DownloadURL == "" {
			continue
		}
		content, err := f.getRaw(ctx, entry.DownloadURL, "")
		if err != nil {
			return "", fmt.Errorf("failed to fetch %s: %w", entry.Path, err)
		}
		sb.WriteString(content)
		sb.WriteString("\n")
		count++
	}
	f.logger.Info("fetched github repository", "repo", repoName, "files", count)
	return sb.String(), nil
}

type gitlabEntry struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// FetchGitLab reads a repository from a GitLab instance using its tree and
// raw-file APIs; the instance base URL is taken from the repository link.
func (f *RepoFetcher) FetchGitLab(ctx context.Context, repoURL, accessToken string) (string, error) {
	parsed, err := url.Parse(repoURL)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("not a valid GitLab repository link: %q", repoURL)
	}
	base := parsed.Scheme + "://" + parsed.Host
	project := url.PathEscape(strings.Trim(parsed.Path, "/"))

	treeURL := fmt.Sprintf("%s/api/v4/projects/%s/repository/tree", base, project)
	var entries []gitlabEntry
	if err := f.getJSON(ctx, treeURL, accessToken, &entries); err != nil {
		return "", err
	}

	var sb strings.Builder
	count := 0
	for _, entry := range entries {
		if entry.Type != "blob" {
			continue
		}
		rawURL := fmt.Sprintf("%s/api/v4/projects/%s/repository/files/%s/raw?ref=main",
			base, project, url.PathEscape(entry.Path))
		content, err := f.getRaw(ctx, rawURL, accessToken)
		if err != nil {
			return "", fmt.Errorf("failed to fetch %s: %w", entry.Path, err)
		}
		sb.WriteString(content)
		sb.WriteString("\n")
		count++
	}
	f.logger.Info("fetched gitlab repository", "project", project, "files", count)
	return sb.String(), nil
}

func (f *RepoFetcher) getJSON(ctx context.Context, endpoint, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build repository request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("repository request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("repository API returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode repository response: %w", err)
	}
	return nil
}

func (f *RepoFetcher) getRaw(ctx context.Context, endpoint, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
