package search

import (
	"context"

	"go.uber.org/zap"
)

// SearchHistory indexes every turn from src into a fresh in-memory index and
// runs one query against it. An empty contextTag searches all turns.
func SearchHistory(ctx context.Context, src TurnSource, text, contextTag string, limit int, logger *zap.Logger) ([]Result, error) {
	idx, err := NewIndexer(logger)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	if err := idx.Rebuild(ctx, src); err != nil {
		return nil, err
	}
	if contextTag != "" {
		return idx.SearchInContext(text, contextTag, limit)
	}
	return idx.Search(text, limit)
}
