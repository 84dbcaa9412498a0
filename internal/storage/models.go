/*
Package storage provides data models for the engine's persistent memory.

These models mirror the four tables of the database: custom commands,
learned patterns, conversation memory and user preferences.
*/
package storage

import (
	"fmt"
	"strings"
	"time"
)

// ActionType selects what a custom command does when its trigger matches.
type ActionType string

const (
	// ActionResponse replies with the command's response text.
	ActionResponse ActionType = "response"

	// ActionShellCommand runs Parameters as a process, then replies.
	ActionShellCommand ActionType = "command"

	// ActionWebOpen opens Parameters as a URL, then replies.
	ActionWebOpen ActionType = "web"
)

// ParseActionType accepts the stored names plus a few friendly aliases.
func ParseActionType(s string) (ActionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "response", "reply", "text":
		return ActionResponse, nil
	case "command", "shell", "exec":
		return ActionShellCommand, nil
	case "web", "url", "open":
		return ActionWebOpen, nil
	default:
		return "", fmt.Errorf("unknown action type %q (want response, command or web)", s)
	}
}

// CustomCommand is a user-defined trigger bound to an action.
type CustomCommand struct {
	// ID is the row id; it defines storage order.
	ID int64 `json:"id,omitempty"`

	// Trigger is matched as a substring of the normalized utterance.
	Trigger string `json:"trigger"`

	// Response is the reply text.
	Response string `json:"response"`

	// ActionType selects the action performed on match.
	ActionType ActionType `json:"action_type"`

	// Parameters is interpreted by ActionType (command line or URL).
	Parameters string `json:"parameters,omitempty"`

	// UsageCount counts successful matches.
	UsageCount int64 `json:"usage_count"`

	// CreatedAt is when the command was authored.
	CreatedAt time.Time `json:"created_at"`

	// LastUsed is when the command last matched, nil if never.
	LastUsed *time.Time `json:"last_used,omitempty"`
}

// LearnedPattern is a two-token prefix reinforced by repeated interactions.
type LearnedPattern struct {
	ID               int64   `json:"id,omitempty"`
	Pattern          string  `json:"pattern"`
	ResponseTemplate string  `json:"response_template"`
	ConfidenceScore  float64 `json:"confidence_score"`
	SuccessRate      float64 `json:"success_rate"`
	UsageCount       int64   `json:"usage_count"`
}

// PatternUpdate mutates an existing pattern inside a storage transaction.
type PatternUpdate func(p *LearnedPattern)

// ConversationTurn is one append-only entry of conversation memory.
type ConversationTurn struct {
	ID              int64     `json:"id,omitempty"`
	UserInput       string    `json:"user_input"`
	SystemResponse  string    `json:"system_response"`
	Context         string    `json:"context"`
	Timestamp       time.Time `json:"timestamp"`
	ImportanceScore int       `json:"importance_score"`
}

// UserPreference is a key/value setting.
type UserPreference struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats summarizes table sizes.
type Stats struct {
	Commands    int64 `json:"commands"`
	CommandUses int64 `json:"command_uses"`
	Patterns    int64 `json:"patterns"`
	Turns       int64 `json:"turns"`
	Preferences int64 `json:"preferences"`
}

// timestampLayout matches SQLite's CURRENT_TIMESTAMP so rows written by
// this package and rows written by SQL defaults compare correctly.
const timestampLayout = "2006-01-02 15:04:05"

// formatTimestamp renders t in UTC using timestampLayout.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp accepts whatever the driver hands back for a timestamp
// column: a time.Time, a text value in one of the common layouts, or NULL.
func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t.UTC(), true
	case []byte:
		return parseTimestampText(string(t))
	case string:
		return parseTimestampText(t)
	default:
		return time.Time{}, false
	}
}

func parseTimestampText(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	layouts := []string{
		timestampLayout,
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
