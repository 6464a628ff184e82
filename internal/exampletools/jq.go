// Package exampletools provides a couple of illustrative ToolHandlers
// (jq, glob) used to exercise pkg/orchestrator end-to-end in cmd/taskcore
// and in tests. Neither tool carries any invariant of the core itself.
package exampletools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"

	"github.com/corelane/taskcore/pkg/orchestrator"
)

const (
	jqDefaultTimeout      = time.Second
	jqDefaultMaxInputSize = 10 * 1024 * 1024
)

type jqArgs struct {
	Expression string `json:"expression"`
	Data       any    `json:"data"`
}

// JQHandler evaluates a jq expression against a JSON value. args is a JSON
// object: {"expression": "...", "data": <any>}.
func JQHandler(ctx context.Context, args string) orchestrator.ToolResult {
	var parsed jqArgs
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		return orchestrator.ToolResult{OK: false, Error: fmt.Sprintf("invalid args: %v", err)}
	}

	if parsed.Expression == "" {
		raw, _ := json.Marshal(parsed.Data)
		return orchestrator.ToolResult{OK: true, Content: string(raw)}
	}

	raw, err := json.Marshal(parsed.Data)
	if err != nil {
		return orchestrator.ToolResult{OK: false, Error: fmt.Sprintf("marshal data: %v", err)}
	}
	if len(raw) > jqDefaultMaxInputSize {
		return orchestrator.ToolResult{OK: false, Error: fmt.Sprintf("data size (%d bytes) exceeds maximum (%d bytes)", len(raw), jqDefaultMaxInputSize)}
	}

	query, err := gojq.Parse(parsed.Expression)
	if err != nil {
		return orchestrator.ToolResult{OK: false, Error: fmt.Sprintf("parse error: %v", err)}
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return orchestrator.ToolResult{OK: false, Error: fmt.Sprintf("compile error: %v", err)}
	}

	execCtx, cancel := context.WithTimeout(ctx, jqDefaultTimeout)
	defer cancel()

	resultCh := make(chan any, 1)
	errCh := make(chan error, 1)

	go func() {
		iter := code.Run(parsed.Data)
		var results []any
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				errCh <- err
				return
			}
			results = append(results, v)
		}
		switch len(results) {
		case 0:
			resultCh <- nil
		case 1:
			resultCh <- results[0]
		default:
			resultCh <- results
		}
	}()

	select {
	case result := <-resultCh:
		out, err := json.Marshal(result)
		if err != nil {
			return orchestrator.ToolResult{OK: false, Error: fmt.Sprintf("marshal result: %v", err)}
		}
		return orchestrator.ToolResult{OK: true, Content: string(out)}
	case err := <-errCh:
		return orchestrator.ToolResult{OK: false, Error: err.Error()}
	case <-execCtx.Done():
		return orchestrator.ToolResult{OK: false, Error: fmt.Sprintf("execution timeout after %v", jqDefaultTimeout)}
	}
}
