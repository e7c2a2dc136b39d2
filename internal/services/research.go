package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/types"
	"github.com/veripack/veripack-backend/internal/utils"
)

const (
	researchExcerptLimit = 2000
	researchFetchLimit   = 4
)

// ResearchService gathers external sources (direct URLs or a keyed search)
// and condenses them into a structured report. Every failure here is
// recoverable; the pipeline records it and proceeds without a report.
type ResearchService interface {
	FetchSources(ctx context.Context, urls []string, fallback []types.ResearchSource) []types.ResearchSource
	SearchSources(ctx context.Context, query, apiKey string, maxResults int) ([]types.ResearchSource, error)
	BuildReport(ctx context.Context, courseTitle string, sources []types.ResearchSource, apiKey, model string) (*types.ResearchReport, error)
}

type researchService struct {
	log        *logger.Logger
	genai      GenAIClient
	searchURL  string
	httpClient *http.Client
}

func NewResearchService(log *logger.Logger, genai GenAIClient) (ResearchService, error) {
	if genai == nil {
		return nil, fmt.Errorf("genai client is required")
	}
	return &researchService{
		log:        log.With("service", "ResearchService"),
		genai:      genai,
		searchURL:  utils.GetEnv("SERPER_SEARCH_URL", "https://google.serper.dev/search", nil),
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}, nil
}

var (
	scriptPattern = regexp.MustCompile(`(?is)<script.*?</script>`)
	stylePattern  = regexp.MustCompile(`(?is)<style.*?</style>`)
	tagPattern    = regexp.MustCompile(`<[^>]+>`)
	spacePattern  = regexp.MustCompile(`\s+`)
	titlePattern  = regexp.MustCompile(`(?is)<title>(.*?)</title>`)
)

func stripHTML(html string) string {
	html = scriptPattern.ReplaceAllString(html, " ")
	html = stylePattern.ReplaceAllString(html, " ")
	html = tagPattern.ReplaceAllString(html, " ")
	return strings.TrimSpace(spacePattern.ReplaceAllString(html, " "))
}

func extractTitle(html string) string {
	if match := titlePattern.FindStringSubmatch(html); len(match) == 2 {
		if title := strings.TrimSpace(match[1]); title != "" {
			return title
		}
	}
	return "Source"
}

// FetchSources pulls each URL's live content, stripped to text and truncated.
// A failed fetch falls back to the search snippet for that URL, or a stub.
// Fetches run concurrently but the result keeps input order.
func (s *researchService) FetchSources(ctx context.Context, urls []string, fallback []types.ResearchSource) []types.ResearchSource {
	fallbackByURL := make(map[string]types.ResearchSource, len(fallback))
	for _, source := range fallback {
		fallbackByURL[source.URL] = source
	}

	sources := make([]types.ResearchSource, len(urls))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(researchFetchLimit)
	for i, u := range urls {
		group.Go(func() error {
			source, err := s.fetchOne(groupCtx, u)
			if err != nil {
				s.log.Debug("Research source fetch failed, using fallback", "url", u, "error", err)
				if fb, ok := fallbackByURL[u]; ok {
					sources[i] = fb
				} else {
					sources[i] = types.ResearchSource{Title: "Source", URL: u, Excerpt: "Unavailable"}
				}
				return nil
			}
			sources[i] = source
			return nil
		})
	}
	_ = group.Wait()
	return sources
}

func (s *researchService) fetchOne(ctx context.Context, u string) (types.ResearchSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return types.ResearchSource{}, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return types.ResearchSource{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.ResearchSource{}, fmt.Errorf("http %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.ResearchSource{}, err
	}
	html := string(raw)
	return types.ResearchSource{
		Title:   extractTitle(html),
		URL:     u,
		Excerpt: utils.Truncate(stripHTML(html), researchExcerptLimit),
	}, nil
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *researchService) SearchSources(ctx context.Context, query, apiKey string, maxResults int) ([]types.ResearchSource, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	body, err := json.Marshal(map[string]string{"q": query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.searchURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("research search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("research search failed: http %d", resp.StatusCode)
	}
	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("research search decode: %w", err)
	}

	sources := make([]types.ResearchSource, 0, maxResults)
	for _, item := range parsed.Organic {
		if len(sources) >= maxResults {
			break
		}
		if item.Link == "" {
			continue
		}
		title := item.Title
		if title == "" {
			title = "Source"
		}
		sources = append(sources, types.ResearchSource{Title: title, URL: item.Link, Excerpt: item.Snippet})
	}
	return sources, nil
}

var reportSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"summary": map[string]any{"type": "string"},
		"sources": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":   map[string]any{"type": "string"},
					"url":     map[string]any{"type": "string"},
					"excerpt": map[string]any{"type": "string"},
				},
				"required": []string{"title", "url", "excerpt"},
			},
		},
	},
	"required": []string{"summary", "sources"},
}

func (s *researchService) BuildReport(ctx context.Context, courseTitle string, sources []types.ResearchSource, apiKey, model string) (*types.ResearchReport, error) {
	var sourceBlocks strings.Builder
	for i, source := range sources {
		if i > 0 {
			sourceBlocks.WriteString("\n\n")
		}
		fmt.Fprintf(&sourceBlocks, "Title: %s\nURL: %s\nExcerpt: %s", source.Title, source.URL, source.Excerpt)
	}

	prompt := fmt.Sprintf(`Summarize the following sources into a blueprint-style research memo for %s.
Focus on syllabus themes, exam expectations, and key topics. Cite sources in the summary.
Sources:
%s
Return JSON matching the schema.`, courseTitle, sourceBlocks.String())

	var report types.ResearchReport
	err := s.genai.GenerateJSON(ctx, GenAIRequest{
		APIKey:     apiKey,
		Model:      model,
		Prompt:     prompt,
		SchemaName: "research_report",
		Schema:     reportSchema,
		Config: GenAIConfig{
			Temperature:     0.4,
			MaxOutputTokens: 1200,
			Retry:           &RetryPolicy{MaxRetries: 2, BaseDelay: 700 * time.Millisecond},
		},
	}, &report)
	if err != nil {
		return nil, fmt.Errorf("research report: %w", err)
	}
	return &report, nil
}
