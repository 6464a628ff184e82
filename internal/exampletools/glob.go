package exampletools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/corelane/taskcore/pkg/orchestrator"
)

type globArgs struct {
	Root    string `json:"root"`
	Pattern string `json:"pattern"`
}

// GlobHandler matches files under Root against a doublestar pattern (e.g.
// "**/*_test.go"). args is a JSON object: {"root": "...", "pattern": "..."}.
func GlobHandler(ctx context.Context, args string) orchestrator.ToolResult {
	var parsed globArgs
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		return orchestrator.ToolResult{OK: false, Error: fmt.Sprintf("invalid args: %v", err)}
	}
	if parsed.Pattern == "" {
		return orchestrator.ToolResult{OK: false, Error: "pattern must not be empty"}
	}
	root := parsed.Root
	if root == "" {
		root = "."
	}

	if !doublestar.ValidatePattern(parsed.Pattern) {
		return orchestrator.ToolResult{OK: false, Error: fmt.Sprintf("invalid pattern: %q", parsed.Pattern)}
	}

	matches, err := doublestar.Glob(os.DirFS(root), parsed.Pattern)
	if err != nil {
		return orchestrator.ToolResult{OK: false, Error: err.Error()}
	}

	out, err := json.Marshal(matches)
	if err != nil {
		return orchestrator.ToolResult{OK: false, Error: fmt.Sprintf("marshal result: %v", err)}
	}
	return orchestrator.ToolResult{
		OK:       true,
		Content:  string(out),
		Metadata: map[string]any{"count": len(matches)},
	}
}
