package mcp

// toolDefinitions describes the tools for tools/list.
func toolDefinitions() []map[string]any {
	return []map[string]any{
		{
			"name": "tetris_interpret",
			"description": `Interpret a free-text utterance the way the assistant would if it were spoken.

WHEN TO USE: To ask the assistant something or trigger one of the user's custom commands.

Wake words (tetris, friday, hey, ...) are ignored. Custom commands win over learned patterns,
which win over built-in answers. The interaction is recorded in conversation memory.`,
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{
						"type":        "string",
						"description": "The utterance, e.g. \"hey tetris open music\"",
					},
				},
				"required": []string{"text"},
			},
		},
		{
			"name": "tetris_teach",
			"description": `Create a custom command, or replace the one with the same trigger.

A command matches whenever its trigger appears anywhere in an utterance.

Example: tetris_teach(trigger="open music", response="Opening your playlist", action_type="web", parameters="https://music.example.com")`,
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"trigger": map[string]any{
						"type":        "string",
						"description": "Phrase that activates the command (case-insensitive)",
					},
					"response": map[string]any{
						"type":        "string",
						"description": "Reply text",
					},
					"action_type": map[string]any{
						"type":        "string",
						"description": "What to do on match",
						"enum":        []string{"response", "command", "web"},
					},
					"parameters": map[string]any{
						"type":        "string",
						"description": "Command line for action_type=command, URL for action_type=web",
					},
				},
				"required": []string{"trigger", "response"},
			},
		},
		{
			"name":        "tetris_forget",
			"description": `Remove a custom command by trigger.`,
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"trigger": map[string]any{
						"type":        "string",
						"description": "Trigger of the command to remove",
					},
				},
				"required": []string{"trigger"},
			},
		},
		{
			"name":        "tetris_commands",
			"description": `List every custom command, most used first.`,
			"inputSchema": map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			"name": "tetris_history",
			"description": `Search conversation memory with full-text ranking, or list the most recent turns when no query is given.`,
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Words to search for in past utterances and replies",
					},
					"context": map[string]any{
						"type":        "string",
						"description": "Restrict to a context tag",
						"enum":        []string{"normal", "command"},
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of turns (default 10)",
					},
				},
			},
		},
	}
}
