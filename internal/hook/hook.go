// Package hook implements the agent-side PreToolUse integration: it maps
// tool invocations to approval requests, relays them to the watch, and
// blocks until the developer decides.
package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/edgeoftrust/watchrelay/internal/model"
)

// Input is the PreToolUse payload the agent writes to the hook's stdin.
type Input struct {
	ToolName  string    `json:"tool_name"`
	ToolInput ToolInput `json:"tool_input"`
}

// ToolInput carries the union of tool parameters the hook inspects. Unknown
// fields are ignored.
type ToolInput struct {
	Command      string            `json:"command"`
	FilePath     string            `json:"file_path"`
	NotebookPath string            `json:"notebook_path"`
	OldString    string            `json:"old_string"`
	NewString    string            `json:"new_string"`
	Content      string            `json:"content"`
	Edits        []json.RawMessage `json:"edits"`
	Todos        []Todo            `json:"todos"`
	Questions    []QuestionSpec    `json:"questions"`
}

// Todo is one entry of a TodoWrite invocation.
type Todo struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

// QuestionSpec is one question of an AskUserQuestion invocation.
type QuestionSpec struct {
	Question string           `json:"question"`
	Header   string           `json:"header"`
	Options  []QuestionOption `json:"options"`
}

// QuestionOption is one selectable answer.
type QuestionOption struct {
	Label string `json:"label"`
}

// ParseInput decodes a PreToolUse payload from r.
func ParseInput(r io.Reader) (*Input, error) {
	var in Input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode hook input: %w", err)
	}
	return &in, nil
}

// approvalTools are the tools that require a watch decision. Everything else
// passes through to the terminal's own permission flow.
var approvalTools = map[string]bool{
	"Bash":         true,
	"Edit":         true,
	"Write":        true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

// NeedsApproval reports whether the tool invocation must go to the watch.
func NeedsApproval(toolName string) bool {
	return approvalTools[toolName]
}

// MapToolType converts an agent tool name to an approval type. Unknown tools
// map to the generic tool_use bucket.
func MapToolType(toolName string) model.ApprovalType {
	switch toolName {
	case "Bash":
		return model.TypeBash
	case "Edit", "MultiEdit", "NotebookEdit":
		return model.TypeFileEdit
	case "Write":
		return model.TypeFileCreate
	default:
		return model.TypeToolUse
	}
}

// BuildTitle produces the short action line shown on the watch.
func BuildTitle(in *Input) string {
	switch in.ToolName {
	case "Bash":
		firstLine, _, _ := strings.Cut(in.ToolInput.Command, "\n")
		return "Run: " + truncate(firstLine, 40)
	case "Edit", "MultiEdit":
		return "Edit: " + baseName(in.ToolInput.FilePath)
	case "Write":
		return "Create: " + baseName(in.ToolInput.FilePath)
	case "NotebookEdit":
		return "Edit: " + baseName(in.ToolInput.NotebookPath)
	default:
		return in.ToolName
	}
}

// BuildDescription produces the detail line shown under the title.
func BuildDescription(in *Input) string {
	switch in.ToolName {
	case "Bash":
		return truncate(in.ToolInput.Command, 200)
	case "Edit":
		old := truncate(in.ToolInput.OldString, 30)
		new := truncate(in.ToolInput.NewString, 30)
		if old != "" && new != "" {
			return fmt.Sprintf("%q -> %q", old, new)
		}
		return "Edit file content"
	case "Write":
		return fmt.Sprintf("Write %d characters", len(in.ToolInput.Content))
	case "MultiEdit":
		return fmt.Sprintf("%d edits", len(in.ToolInput.Edits))
	default:
		return ""
	}
}

// TargetPath returns the file path the invocation touches, if any.
func TargetPath(in *Input) string {
	if in.ToolInput.FilePath != "" {
		return in.ToolInput.FilePath
	}
	return in.ToolInput.NotebookPath
}

func baseName(p string) string {
	if p == "" {
		return "unknown"
	}
	return path.Base(p)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
