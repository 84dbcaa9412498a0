package search

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/khanglvm/tetris/internal/storage"
	"go.uber.org/zap"
)

// TurnSource lists conversation turns. storage.Storage satisfies it.
type TurnSource interface {
	RecentTurns(ctx context.Context, limit int) ([]storage.ConversationTurn, error)
}

// Indexer manages the search index for conversation memory.
type Indexer struct {
	bleveIndex bleve.Index
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewIndexer creates a new search indexer with in-memory Bleve index.
func NewIndexer(logger *zap.Logger) (*Indexer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}

	return &Indexer{bleveIndex: index, logger: logger}, nil
}

// buildIndexMapping creates the Bleve index mapping.
func buildIndexMapping() mapping.IndexMapping {
	turnMapping := bleve.NewDocumentMapping()

	// What the user said and what we answered: searchable text
	turnMapping.AddFieldMappingsAt("input", bleve.NewTextFieldMapping())
	turnMapping.AddFieldMappingsAt("response", bleve.NewTextFieldMapping())

	// Context tag: exact term for filtering
	contextMapping := bleve.NewTextFieldMapping()
	contextMapping.Analyzer = "keyword"
	turnMapping.AddFieldMappingsAt("context", contextMapping)

	// Timestamp: stored but not indexed (for retrieval)
	timestampMapping := bleve.NewTextFieldMapping()
	timestampMapping.Index = false
	timestampMapping.IncludeInAll = false
	turnMapping.AddFieldMappingsAt("timestamp", timestampMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", turnMapping)

	return indexMapping
}

// IndexTurns adds turns to the index; a turn with an existing id replaces it.
func (i *Indexer) IndexTurns(turns []storage.ConversationTurn) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	batch := i.bleveIndex.NewBatch()

	for _, turn := range turns {
		doc := map[string]interface{}{
			"input":     turn.UserInput,
			"response":  turn.SystemResponse,
			"context":   turn.Context,
			"timestamp": turn.Timestamp.UTC().Format(time.RFC3339),
		}

		docID := strconv.FormatInt(turn.ID, 10)
		if err := batch.Index(docID, doc); err != nil {
			i.logger.Warn("failed to index turn", zap.String("id", docID), zap.Error(err))
		}
	}

	if err := i.bleveIndex.Batch(batch); err != nil {
		return fmt.Errorf("failed to batch index turns: %w", err)
	}

	return nil
}

// Rebuild indexes every turn from src.
func (i *Indexer) Rebuild(ctx context.Context, src TurnSource) error {
	turns, err := src.RecentTurns(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to load conversation memory: %w", err)
	}
	return i.IndexTurns(turns)
}

// Count returns the total number of indexed turns.
func (i *Indexer) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	docCount, err := i.bleveIndex.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get doc count: %w", err)
	}

	return docCount, nil
}

// Close closes the index and releases resources.
func (i *Indexer) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.bleveIndex != nil {
		return i.bleveIndex.Close()
	}

	return nil
}

// buildMatchQuery creates a match query for BM25 search over input and response.
func (i *Indexer) buildMatchQuery(searchText string) query.Query {
	input := bleve.NewMatchQuery(searchText)
	input.SetField("input")
	input.SetBoost(2.0)

	response := bleve.NewMatchQuery(searchText)
	response.SetField("response")

	return bleve.NewDisjunctionQuery(input, response)
}
