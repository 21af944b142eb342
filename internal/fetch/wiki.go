// Package fetch retrieves raw text from external document sources: wiki
// spaces, issue trackers, code repositories and PDFs. Every fetcher yields
// plain text; the ingestion pipeline neither knows nor cares where it came
// from.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// WikiKeys identifies a Confluence-style wiki space from its browse URL.
// Cloud instances ("…atlassian.net/wiki/spaces/SPACE/…") and datacenter
// instances ("…/display/SPACE/…") encode the space differently.
type WikiKeys struct {
	BaseURL string
	Space   string
	Cloud   bool
}

// ExtractWikiKeys parses a wiki space URL into its API base URL and space key.
func ExtractWikiKeys(wikiURL string) (WikiKeys, error) {
	parsed, err := url.Parse(wikiURL)
	if err != nil || parsed.Host == "" {
		return WikiKeys{}, fmt.Errorf("not a valid wiki link: %q", wikiURL)
	}

	if strings.Contains(wikiURL, ".atlassian.net/wiki/spaces/") {
		base := parsed.Scheme + "://" + parsed.Host + strings.SplitN(parsed.Path, "/spaces", 2)[0]
		segments := strings.Split(parsed.Path, "/")
		if len(segments) < 4 || segments[3] == "" {
			return WikiKeys{}, fmt.Errorf("wiki link is missing a space key: %q", wikiURL)
		}
		return WikiKeys{BaseURL: base, Space: segments[3], Cloud: true}, nil
	}

	const display = "/display/"
	if !strings.Contains(parsed.Path, display) {
		return WikiKeys{}, fmt.Errorf("not a valid wiki link: %q", wikiURL)
	}
	parts := strings.SplitN(parsed.Path, display, 2)
	base := parsed.Scheme + "://" + parsed.Host + parts[0]
	space := strings.SplitN(parts[1], "/", 2)[0]
	if space == "" {
		return WikiKeys{}, fmt.Errorf("wiki link is missing a space key: %q", wikiURL)
	}
	return WikiKeys{BaseURL: base, Space: space}, nil
}

// WikiFetcher reads every current page of one wiki space.
type WikiFetcher struct {
	client *http.Client
	keys   WikiKeys
	token  string
	logger *slog.Logger
}

func NewWikiFetcher(client *http.Client, wikiURL, token string) (*WikiFetcher, error) {
	keys, err := ExtractWikiKeys(wikiURL)
	if err != nil {
		return nil, err
	}
	return &WikiFetcher{
		client: client,
		keys:   keys,
		token:  token,
		logger: slog.Default().With("component", "wiki-fetcher", "space", keys.Space),
	}, nil
}

type wikiPage struct {
	Body struct {
		ExportView struct {
			Value string `json:"value"`
		} `json:"export_view"`
	} `json:"body"`
}

type wikiContentResponse struct {
	Results []wikiPage `json:"results"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// FetchSpace returns the concatenated plain text of the space's pages.
func (f *WikiFetcher) FetchSpace(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/rest/api/content?spaceKey=%s&status=current&expand=body.export_view&limit=50",
		f.keys.BaseURL, url.QueryEscape(f.keys.Space))

	var sb strings.Builder
	for endpoint != "" {
		var page wikiContentResponse
		if err := f.getJSON(ctx, endpoint, &page); err != nil {
			return "", err
		}
		for _, p := range page.Results {
			sb.WriteString(htmlToText(p.Body.ExportView.Value))
			sb.WriteString("\n")
		}
		endpoint = ""
		if page.Links.Next != "" {
			endpoint = f.keys.BaseURL + page.Links.Next
		}
	}
	f.logger.Info("fetched wiki space", "bytes", sb.Len())
	return sb.String(), nil
}

func (f *WikiFetcher) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build wiki request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("wiki request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wiki request returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode wiki response: %w", err)
	}
	return nil
}

// htmlToText strips markup from an exported wiki page body.
func htmlToText(markup string) string {
	node, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return markup
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteString(" ")
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return sb.String()
}
