/*
Package search implements full-text search over conversation memory.

Turns are loaded from the store into an in-memory Bleve index and queried
with BM25-ranked match queries over the user input and the reply.
*/
package search

import "time"

// Result is a conversation turn matched by a query.
type Result struct {
	TurnID    int64     `json:"turn_id"`
	Input     string    `json:"input"`
	Response  string    `json:"response"`
	Context   string    `json:"context"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}
