package search

import (
	"fmt"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
)

var resultFields = []string{"input", "response", "context", "timestamp"}

// Search performs BM25 keyword search using Bleve.
func (i *Indexer) Search(text string, limit int) ([]Result, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	searchRequest := bleve.NewSearchRequestOptions(i.buildMatchQuery(text), limit, 0, false)
	searchRequest.Fields = resultFields

	results, err := i.bleveIndex.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	return convertBleveResults(results), nil
}

// SearchInContext performs BM25 search scoped to a conversation context tag.
func (i *Indexer) SearchInContext(text, contextTag string, limit int) ([]Result, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	// Conjunction query: (match query) AND (context filter)
	contextQuery := bleve.NewTermQuery(contextTag)
	contextQuery.SetField("context")
	conjunctionQuery := bleve.NewConjunctionQuery(i.buildMatchQuery(text), contextQuery)

	searchRequest := bleve.NewSearchRequestOptions(conjunctionQuery, limit, 0, false)
	searchRequest.Fields = resultFields

	results, err := i.bleveIndex.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	return convertBleveResults(results), nil
}

// convertBleveResults converts Bleve search results to our Result format.
func convertBleveResults(results *bleve.SearchResult) []Result {
	out := make([]Result, 0, len(results.Hits))

	for _, hit := range results.Hits {
		input, _ := hit.Fields["input"].(string)
		response, _ := hit.Fields["response"].(string)
		contextTag, _ := hit.Fields["context"].(string)

		var ts time.Time
		if raw, ok := hit.Fields["timestamp"].(string); ok {
			ts, _ = time.Parse(time.RFC3339, raw)
		}

		id, _ := strconv.ParseInt(hit.ID, 10, 64)

		out = append(out, Result{
			TurnID:    id,
			Input:     input,
			Response:  response,
			Context:   contextTag,
			Timestamp: ts,
			Score:     hit.Score,
		})
	}

	return out
}
