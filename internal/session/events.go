package session

import (
	"regexp"
	"strings"
)

// EventKind tags a classified line from the agent's event stream.
// Downstream consumers (logging, UI) never re-parse text; classification
// happens once, here at the boundary.
type EventKind int

const (
	// EventNarration is plain agent narration.
	EventNarration EventKind = iota

	// EventToolCall announces a tool invocation.
	EventToolCall

	// EventToolResult carries a tool invocation's result.
	EventToolResult

	// EventTerminal is the agent's terminal summary line.
	EventTerminal
)

// String returns the lowercase name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventToolCall:
		return "tool_call"
	case EventToolResult:
		return "tool_result"
	case EventTerminal:
		return "terminal"
	default:
		return "narration"
	}
}

// Event is one classified line of agent output.
type Event struct {
	Kind EventKind
	Tool string // tool name, for EventToolCall/EventToolResult
	Text string
}

// Exchange is a tool call paired with its result, presented as one
// collapsed unit rather than interleaved raw lines.
type Exchange struct {
	Call   Event
	Result Event
}

// Line markers in the agent's event stream.
var (
	toolCallPattern   = regexp.MustCompile(`^\[tool\]\s+(\S+)\s*(.*)$`)
	toolResultPattern = regexp.MustCompile(`^\[tool-result\]\s*(.*)$`)
	terminalPattern   = regexp.MustCompile(`^\[done\]\s*(.*)$`)
)

// Classifier turns raw output lines into tagged events and pairs tool
// calls with their results.
type Classifier struct {
	onEvent    func(Event)
	onExchange func(Exchange)

	pending   *Event // buffered tool call awaiting its result
	toolCalls int
	summary   string
}

// NewClassifier creates a classifier. Both callbacks are optional.
func NewClassifier(onEvent func(Event), onExchange func(Exchange)) *Classifier {
	return &Classifier{onEvent: onEvent, onExchange: onExchange}
}

// Feed classifies one line and dispatches callbacks.
func (c *Classifier) Feed(line string) Event {
	line = strings.TrimRight(line, "\r\n")

	var ev Event
	switch {
	case toolCallPattern.MatchString(line):
		m := toolCallPattern.FindStringSubmatch(line)
		ev = Event{Kind: EventToolCall, Tool: m[1], Text: m[2]}
		c.toolCalls++
		c.flushPending()
		c.pending = &ev
		return ev // buffered until the result arrives

	case toolResultPattern.MatchString(line):
		m := toolResultPattern.FindStringSubmatch(line)
		ev = Event{Kind: EventToolResult, Text: m[1]}
		if c.pending != nil {
			ev.Tool = c.pending.Tool
			if c.onExchange != nil {
				c.onExchange(Exchange{Call: *c.pending, Result: ev})
			}
			c.pending = nil
			return ev
		}
		// Orphan result: surface it as a plain event.

	case terminalPattern.MatchString(line):
		m := terminalPattern.FindStringSubmatch(line)
		ev = Event{Kind: EventTerminal, Text: m[1]}
		c.summary = m[1]
		c.flushPending()

	default:
		ev = Event{Kind: EventNarration, Text: line}
	}

	if c.onEvent != nil {
		c.onEvent(ev)
	}
	return ev
}

// Close flushes any tool call still waiting for a result.
func (c *Classifier) Close() {
	c.flushPending()
}

// ToolCalls returns the number of tool calls seen.
func (c *Classifier) ToolCalls() int {
	return c.toolCalls
}

// Summary returns the terminal summary text, or "" if none was emitted.
func (c *Classifier) Summary() string {
	return c.summary
}

// flushPending emits a buffered tool call that never got a result.
func (c *Classifier) flushPending() {
	if c.pending == nil {
		return
	}
	if c.onEvent != nil {
		c.onEvent(*c.pending)
	}
	c.pending = nil
}
