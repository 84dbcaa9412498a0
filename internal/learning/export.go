package learning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/khanglvm/tetris/internal/storage"
)

// Export is the document written by WriteExport.
type Export struct {
	ExportedAt time.Time                  `json:"exported_at"`
	Anonymized bool                       `json:"anonymized"`
	Status     Status                     `json:"status"`
	Patterns   []storage.LearnedPattern   `json:"patterns"`
	Turns      []storage.ConversationTurn `json:"turns"`
}

// BuildExport collects patterns and the most recent turns (all when
// turnLimit <= 0). With anonymize set, user-authored text is replaced by
// its SHA256 hash so the export can be shared.
func (l *Learner) BuildExport(ctx context.Context, turnLimit int, anonymize bool) (*Export, error) {
	status, err := l.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read learning status: %w", err)
	}
	patterns, err := l.store.ListPatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	turns, err := l.store.RecentTurns(ctx, turnLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}

	if anonymize {
		for i := range patterns {
			patterns[i].Pattern = hashText(patterns[i].Pattern)
		}
		for i := range turns {
			turns[i].UserInput = hashText(turns[i].UserInput)
		}
	}

	if patterns == nil {
		patterns = []storage.LearnedPattern{}
	}
	if turns == nil {
		turns = []storage.ConversationTurn{}
	}

	return &Export{
		ExportedAt: time.Now().UTC(),
		Anonymized: anonymize,
		Status:     status,
		Patterns:   patterns,
		Turns:      turns,
	}, nil
}

// WriteExport writes BuildExport's document to w as indented JSON.
func (l *Learner) WriteExport(ctx context.Context, w io.Writer, turnLimit int, anonymize bool) error {
	doc, err := l.BuildExport(ctx, turnLimit, anonymize)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// hashText creates a SHA256 hash of text for privacy.
func hashText(text string) string {
	if text == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}
