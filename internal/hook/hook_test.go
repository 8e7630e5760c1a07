package hook

import (
	"strings"
	"testing"

	"github.com/edgeoftrust/watchrelay/internal/model"
)

func TestParseInput(t *testing.T) {
	payload := `{
		"tool_name": "Bash",
		"tool_input": {"command": "ls -la\nwc -l"}
	}`
	in, err := ParseInput(strings.NewReader(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if in.ToolName != "Bash" || in.ToolInput.Command != "ls -la\nwc -l" {
		t.Fatalf("unexpected input: %+v", in)
	}
}

func TestParseInputMalformed(t *testing.T) {
	if _, err := ParseInput(strings.NewReader("{nope")); err == nil {
		t.Fatal("expected error for malformed input")
	}
}

func TestNeedsApproval(t *testing.T) {
	for tool, want := range map[string]bool{
		"Bash":         true,
		"Edit":         true,
		"Write":        true,
		"MultiEdit":    true,
		"NotebookEdit": true,
		"Read":         false,
		"Glob":         false,
		"TodoWrite":    false,
	} {
		if got := NeedsApproval(tool); got != want {
			t.Errorf("NeedsApproval(%q) = %v, want %v", tool, got, want)
		}
	}
}

func TestMapToolType(t *testing.T) {
	for tool, want := range map[string]model.ApprovalType{
		"Bash":         model.TypeBash,
		"Edit":         model.TypeFileEdit,
		"MultiEdit":    model.TypeFileEdit,
		"NotebookEdit": model.TypeFileEdit,
		"Write":        model.TypeFileCreate,
		"SomethingNew": model.TypeToolUse,
	} {
		if got := MapToolType(tool); got != want {
			t.Errorf("MapToolType(%q) = %q, want %q", tool, got, want)
		}
	}
}

func TestBuildTitle(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   Input
		want string
	}{
		{
			"BashFirstLine",
			Input{ToolName: "Bash", ToolInput: ToolInput{Command: "make test\nmake lint"}},
			"Run: make test",
		},
		{
			"BashTruncated",
			Input{ToolName: "Bash", ToolInput: ToolInput{Command: strings.Repeat("x", 60)}},
			"Run: " + strings.Repeat("x", 40),
		},
		{
			"EditBasename",
			Input{ToolName: "Edit", ToolInput: ToolInput{FilePath: "/src/pkg/main.go"}},
			"Edit: main.go",
		},
		{
			"WriteBasename",
			Input{ToolName: "Write", ToolInput: ToolInput{FilePath: "/tmp/notes.md"}},
			"Create: notes.md",
		},
		{
			"NotebookPath",
			Input{ToolName: "NotebookEdit", ToolInput: ToolInput{NotebookPath: "/nb/analysis.ipynb"}},
			"Edit: analysis.ipynb",
		},
		{
			"MissingPath",
			Input{ToolName: "Edit"},
			"Edit: unknown",
		},
		{
			"FallbackToolName",
			Input{ToolName: "WebSearch"},
			"WebSearch",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := BuildTitle(&tc.in); got != tc.want {
				t.Errorf("BuildTitle = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildDescription(t *testing.T) {
	edit := Input{ToolName: "Edit", ToolInput: ToolInput{OldString: "foo", NewString: "bar"}}
	if got := BuildDescription(&edit); got != `"foo" -> "bar"` {
		t.Errorf("edit description = %q", got)
	}

	editEmpty := Input{ToolName: "Edit"}
	if got := BuildDescription(&editEmpty); got != "Edit file content" {
		t.Errorf("empty edit description = %q", got)
	}

	write := Input{ToolName: "Write", ToolInput: ToolInput{Content: "hello"}}
	if got := BuildDescription(&write); got != "Write 5 characters" {
		t.Errorf("write description = %q", got)
	}

	long := Input{ToolName: "Bash", ToolInput: ToolInput{Command: strings.Repeat("a", 300)}}
	if got := BuildDescription(&long); len(got) != 200 {
		t.Errorf("bash description length = %d, want 200", len(got))
	}
}

func TestBuildProgress(t *testing.T) {
	in := &Input{
		ToolName: "TodoWrite",
		ToolInput: ToolInput{Todos: []Todo{
			{Content: "write parser", Status: "completed"},
			{Content: "wire storage", Status: "in_progress"},
			{Content: "add tests", Status: "pending"},
			{Content: "mystery", Status: "levitating"},
		}},
	}

	p := BuildProgress("p1", in)
	if p == nil {
		t.Fatal("expected progress")
	}
	if p.PairingID != "p1" || p.TotalCount != 4 || p.CompletedCount != 1 {
		t.Fatalf("unexpected counts: %+v", p)
	}
	if p.CurrentTask != "wire storage" {
		t.Fatalf("CurrentTask = %q", p.CurrentTask)
	}
	if p.PercentComplete != 25 {
		t.Fatalf("PercentComplete = %v", p.PercentComplete)
	}
	// Unknown statuses degrade to pending.
	if p.Tasks[3].Status != "pending" {
		t.Fatalf("unknown status mapped to %q", p.Tasks[3].Status)
	}
}

func TestBuildProgressNoTodos(t *testing.T) {
	if p := BuildProgress("p1", &Input{ToolName: "TodoWrite"}); p != nil {
		t.Fatalf("expected nil for empty todos, got %+v", p)
	}
}
