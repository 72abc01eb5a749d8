package tickets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrTicketClaimed is returned when another orchestrator instance won the
// claim race for a ticket. The caller should move on to the next candidate.
var ErrTicketClaimed = errors.New("ticket already claimed")

// ErrStoreUnavailable is returned when the tix CLI itself cannot be run.
// This is fatal for the current run; tickets are left unclaimed.
var ErrStoreUnavailable = errors.New("ticket store unavailable")

// Client wraps the tix CLI for programmatic access to the ticket store.
// The store serializes its own writes; foreman does no locking over it.
type Client struct {
	// Command is the path to the tix binary. Defaults to "tix".
	Command string
}

// NewClient creates a new tix client with default settings.
func NewClient() *Client {
	return &Client{Command: "tix"}
}

// Available checks if the tix CLI is installed and accessible.
func (c *Client) Available() bool {
	_, err := exec.LookPath(c.command())
	return err == nil
}

// Ready returns the unblocked-work set, in the store's own priority order.
// Returns an empty slice when nothing is ready; that is not an error.
func (c *Client) Ready() ([]Ticket, error) {
	out, err := c.run("ready", "--json")
	if err != nil {
		return nil, fmt.Errorf("tix ready: %w", err)
	}

	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, nil
	}

	var wrapper listOutput
	if err := json.Unmarshal(out, &wrapper); err != nil {
		return nil, fmt.Errorf("parse tickets JSON: %w", err)
	}
	return wrapper.Tickets, nil
}

// Get returns details for a specific ticket.
func (c *Client) Get(id string) (*Ticket, error) {
	out, err := c.run("show", id, "--json")
	if err != nil {
		return nil, fmt.Errorf("tix show %s: %w", id, err)
	}

	var t Ticket
	if err := json.Unmarshal(bytes.TrimSpace(out), &t); err != nil {
		return nil, fmt.Errorf("parse ticket JSON: %w", err)
	}
	return &t, nil
}

// Claim atomically assigns the ticket to owner and marks it in_progress.
// Returns ErrTicketClaimed if another instance got there first.
func (c *Client) Claim(id, owner string) error {
	_, err := c.run("claim", id, "--owner", owner)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "already claimed") || strings.Contains(msg, "already assigned") {
			return fmt.Errorf("tix claim %s: %w", id, ErrTicketClaimed)
		}
		return fmt.Errorf("tix claim %s: %w", id, err)
	}
	return nil
}

// Close closes a ticket with the given reason.
func (c *Client) Close(id, reason string) error {
	_, err := c.run("close", id, "--reason", reason)
	if err != nil {
		return fmt.Errorf("tix close %s: %w", id, err)
	}
	return nil
}

// Reopen reopens a ticket and attaches a diagnostic note. Used on
// escalation so no failed cycle is ever silently dropped.
func (c *Client) Reopen(id, note string) error {
	_, err := c.run("reopen", id, "--note", note)
	if err != nil {
		return fmt.Errorf("tix reopen %s: %w", id, err)
	}
	return nil
}

// Dependencies returns the dependency edges for a ticket, including any
// parent relation. Used by the selector's feature-parent filter.
func (c *Client) Dependencies(id string) ([]Relation, error) {
	out, err := c.run("deps", id, "--json")
	if err != nil {
		return nil, fmt.Errorf("tix deps %s: %w", id, err)
	}

	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, nil
	}

	var wrapper relationOutput
	if err := json.Unmarshal(out, &wrapper); err != nil {
		return nil, fmt.Errorf("parse relations JSON: %w", err)
	}
	return wrapper.Relations, nil
}

// SetStatus updates the status of a ticket (open, in_progress, closed).
func (c *Client) SetStatus(id, status string) error {
	_, err := c.run("update", id, "--status", status)
	if err != nil {
		return fmt.Errorf("tix update %s --status %s: %w", id, status, err)
	}
	return nil
}

// AddNote attaches a note to a ticket.
func (c *Client) AddNote(id, message string) error {
	_, err := c.run("note", id, message)
	if err != nil {
		return fmt.Errorf("tix note %s: %w", id, err)
	}
	return nil
}

// command returns the tix binary path.
func (c *Client) command() string {
	if c.Command != "" {
		return c.Command
	}
	return "tix"
}

// run executes a tix command and returns stdout.
func (c *Client) run(args ...string) ([]byte, error) {
	cmd := exec.Command(c.command(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, execErr)
		}
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		return nil, fmt.Errorf("%s", errMsg)
	}
	return stdout.Bytes(), nil
}
