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

const serperEndpoint = "https://google.serper.dev/search"

type serperProvider struct {
	apiKey   string
	endpoint string
}

func (p *serperProvider) name() string { return "serper" }

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (p *serperProvider) search(ctx context.Context, client *http.Client, query string, maxResults int) ([]models.SourceCandidate, error) {
	body, err := json.Marshal(serperRequest{Q: query, Num: maxResults})
	if err != nil {
		return nil, fmt.Errorf("marshal serper request: %w", err)
	}

	endpoint := p.endpoint
	if endpoint == "" {
		endpoint = serperEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &gateway.Error{Op: "search", Provider: "serper", Err: err}
	}
	req.Header.Set("X-API-KEY", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &gateway.Error{Op: "search", Provider: "serper", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &gateway.Error{Op: "search", Provider: "serper", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var wire serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &gateway.Error{Op: "search", Provider: "serper", Err: fmt.Errorf("decode response: %w", err)}
	}

	now := time.Now().UTC()
	out := make([]models.SourceCandidate, 0, len(wire.Organic))
	for i, r := range wire.Organic {
		if i >= maxResults {
			break
		}
		out = append(out, models.SourceCandidate{
			Title:     r.Title,
			URL:       r.Link,
			Domain:    models.ExtractDomain(r.Link),
			// Serper only returns snippets; downstream scoring treats the
			// snippet as the extractable body.
			Snippet:    r.Snippet,
			RawContent: r.Snippet,
			FetchedAt:  now,
		})
	}
	return out, nil
}
