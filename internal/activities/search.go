package activities

import (
	"context"

	"go.uber.org/zap"
)

// ExecuteSearch runs one search gateway call. Zero results is a valid
// outcome; the caller decides whether to retry with a broader query.
func (a *Activities) ExecuteSearch(ctx context.Context, in ExecuteSearchInput) (ExecuteSearchResult, error) {
	candidates, err := a.search.Search(ctx, in.Query, in.MaxResults)
	if err != nil {
		a.logger.Warn("Search failed", zap.String("query", in.Query), zap.Error(err))
		return ExecuteSearchResult{}, err
	}
	a.logger.Debug("Search completed",
		zap.String("query", in.Query),
		zap.Int("candidates", len(candidates)),
	)
	return ExecuteSearchResult{Candidates: candidates}, nil
}
