package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sounderhq/sounder/internal/gateway"
	"github.com/sounderhq/sounder/internal/models"
)

const tavilyEndpoint = "https://api.tavily.com/search"

type tavilyProvider struct {
	apiKey   string
	endpoint string
}

func (p *tavilyProvider) name() string { return "tavily" }

type tavilyRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	SearchDepth       string `json:"search_depth"`
	IncludeRawContent bool   `json:"include_raw_content"`
	Topic             string `json:"topic"`
}

type tavilyResponse struct {
	Results []struct {
		Title      string `json:"title"`
		URL        string `json:"url"`
		Content    string `json:"content"`
		RawContent string `json:"raw_content"`
	} `json:"results"`
}

func (p *tavilyProvider) search(ctx context.Context, client *http.Client, query string, maxResults int) ([]models.SourceCandidate, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:            p.apiKey,
		Query:             query,
		MaxResults:        maxResults,
		SearchDepth:       "advanced",
		IncludeRawContent: true,
		Topic:             "general",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tavily request: %w", err)
	}

	endpoint := p.endpoint
	if endpoint == "" {
		endpoint = tavilyEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &gateway.Error{Op: "search", Provider: "tavily", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &gateway.Error{Op: "search", Provider: "tavily", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &gateway.Error{Op: "search", Provider: "tavily", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var wire tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &gateway.Error{Op: "search", Provider: "tavily", Err: fmt.Errorf("decode response: %w", err)}
	}

	now := time.Now().UTC()
	out := make([]models.SourceCandidate, 0, len(wire.Results))
	for _, r := range wire.Results {
		out = append(out, models.SourceCandidate{
			Title:      r.Title,
			URL:        r.URL,
			Domain:     models.ExtractDomain(r.URL),
			Snippet:    r.Content,
			RawContent: r.RawContent,
			FetchedAt:  now,
		})
	}
	return out, nil
}
