package tickets

import "time"

// Ticket types understood by the selector. The store may define more;
// anything unknown is treated like a task.
const (
	TypeTask    = "task"
	TypeBug     = "bug"
	TypeFeature = "feature"
	TypeChore   = "chore"
	TypeEpic    = "epic"
)

// Ticket statuses used by the orchestrator. The store owns the full
// lifecycle; foreman only ever writes in_progress and closed, and
// reopens via the dedicated reopen command.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
)

// Ticket is a single work item in the tix issue store.
type Ticket struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    int       `json:"priority"`
	Type        string    `json:"type"`
	Assignee    string    `json:"assignee,omitempty"`
	Labels      []string  `json:"labels,omitempty"`
	Parent      string    `json:"parent,omitempty"`
	ParentType  string    `json:"parent_type,omitempty"`
	BlockedBy   []string  `json:"blocked_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ClosedAt    time.Time `json:"closed_at,omitempty"`
}

// Relation is a dependency edge reported by the store.
type Relation struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"` // "blocks", "parent", ...
}

// RelationParent marks a parent/child edge in the store's dependency output.
const RelationParent = "parent"

// IsOpen returns true if the ticket status is "open".
func (t *Ticket) IsOpen() bool {
	return t.Status == StatusOpen
}

// IsClosed returns true if the ticket status is "closed".
func (t *Ticket) IsClosed() bool {
	return t.Status == StatusClosed
}

// listOutput wraps the JSON output from tix list-style commands.
// tix emits {"tickets": [...]} rather than a bare array.
type listOutput struct {
	Tickets []Ticket `json:"tickets"`
}

// relationOutput wraps the JSON output from tix deps.
type relationOutput struct {
	Relations []Relation `json:"relations"`
}
