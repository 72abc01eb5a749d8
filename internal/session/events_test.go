package session

import (
	"testing"
)

func TestClassifier_Feed(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantKind EventKind
		wantTool string
		wantText string
	}{
		{
			name:     "plain narration",
			line:     "Looking at the failing test now.",
			wantKind: EventNarration,
			wantText: "Looking at the failing test now.",
		},
		{
			name:     "tool call with args",
			line:     "[tool] bash go test ./...",
			wantKind: EventToolCall,
			wantTool: "bash",
			wantText: "go test ./...",
		},
		{
			name:     "tool call without args",
			line:     "[tool] read_file",
			wantKind: EventToolCall,
			wantTool: "read_file",
			wantText: "",
		},
		{
			name:     "tool result",
			line:     "[tool-result] ok, 14 tests passed",
			wantKind: EventToolResult,
			wantText: "ok, 14 tests passed",
		},
		{
			name:     "terminal summary",
			line:     "[done] implemented retry backoff",
			wantKind: EventTerminal,
			wantText: "implemented retry backoff",
		},
		{
			name:     "terminal failure summary",
			line:     "[done] failed: tests would not pass",
			wantKind: EventTerminal,
			wantText: "failed: tests would not pass",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(nil, nil)
			ev := c.Feed(tt.line)

			if ev.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", ev.Kind, tt.wantKind)
			}
			if ev.Tool != tt.wantTool {
				t.Errorf("Tool = %q, want %q", ev.Tool, tt.wantTool)
			}
			if ev.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", ev.Text, tt.wantText)
			}
		})
	}
}

func TestClassifier_PairsExchanges(t *testing.T) {
	var exchanges []Exchange
	c := NewClassifier(nil, func(e Exchange) {
		exchanges = append(exchanges, e)
	})

	c.Feed("[tool] bash ls -la")
	c.Feed("[tool-result] 12 files")
	c.Feed("some narration")
	c.Feed("[tool] grep pattern")
	c.Feed("[tool-result] 3 matches")
	c.Close()

	if len(exchanges) != 2 {
		t.Fatalf("got %d exchanges, want 2", len(exchanges))
	}
	if exchanges[0].Call.Tool != "bash" || exchanges[0].Result.Text != "12 files" {
		t.Errorf("exchanges[0] = %+v", exchanges[0])
	}
	if exchanges[1].Call.Tool != "grep" || exchanges[1].Result.Tool != "grep" {
		t.Errorf("exchanges[1] = %+v", exchanges[1])
	}
}

func TestClassifier_FlushesUnpairedCall(t *testing.T) {
	var events []Event
	c := NewClassifier(func(e Event) {
		events = append(events, e)
	}, nil)

	c.Feed("[tool] bash make build")
	// No result arrives before the stream ends.
	c.Close()

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != EventToolCall || events[0].Tool != "bash" {
		t.Errorf("flushed event = %+v", events[0])
	}
}

func TestClassifier_OrphanResultIsPlainEvent(t *testing.T) {
	var events []Event
	c := NewClassifier(func(e Event) {
		events = append(events, e)
	}, nil)

	c.Feed("[tool-result] nobody asked")

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != EventToolResult || events[0].Tool != "" {
		t.Errorf("orphan event = %+v", events[0])
	}
}

func TestClassifier_Counters(t *testing.T) {
	c := NewClassifier(nil, nil)

	c.Feed("[tool] bash ls")
	c.Feed("[tool-result] ok")
	c.Feed("[tool] bash pwd")
	c.Feed("[tool-result] /work")
	c.Feed("[done] all set")
	c.Close()

	if got := c.ToolCalls(); got != 2 {
		t.Errorf("ToolCalls() = %d, want 2", got)
	}
	if got := c.Summary(); got != "all set" {
		t.Errorf("Summary() = %q, want %q", got, "all set")
	}
}

func TestEventKindString(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventNarration, "narration"},
		{EventToolCall, "tool_call"},
		{EventToolResult, "tool_result"},
		{EventTerminal, "terminal"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
