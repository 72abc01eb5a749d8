package tickets

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestNewClient(t *testing.T) {
	c := NewClient()
	if c.Command != "tix" {
		t.Errorf("expected Command to be 'tix', got %q", c.Command)
	}
}

func TestTicketIsOpen(t *testing.T) {
	ticket := &Ticket{Status: StatusOpen}
	if !ticket.IsOpen() {
		t.Error("expected IsOpen() to return true for open status")
	}
	if ticket.IsClosed() {
		t.Error("expected IsClosed() to return false for open status")
	}
}

func TestTicketIsClosed(t *testing.T) {
	ticket := &Ticket{Status: StatusClosed}
	if ticket.IsOpen() {
		t.Error("expected IsOpen() to return false for closed status")
	}
	if !ticket.IsClosed() {
		t.Error("expected IsClosed() to return true for closed status")
	}
}

// fakeTix writes a shell script that plays the tix CLI for one test.
func fakeTix(t *testing.T, script string) *Client {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub not supported on windows")
	}

	path := filepath.Join(t.TempDir(), "tix")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("writing fake tix: %v", err)
	}
	return &Client{Command: path}
}

func TestClient_Ready(t *testing.T) {
	t.Run("parses wrapped ticket list", func(t *testing.T) {
		c := fakeTix(t, `echo '{"tickets":[{"id":"t1","title":"First","type":"task"},{"id":"f1","title":"Second","type":"feature"}]}'`)

		tickets, err := c.Ready()
		if err != nil {
			t.Fatalf("Ready() error = %v", err)
		}
		if len(tickets) != 2 {
			t.Fatalf("Ready() returned %d tickets, want 2", len(tickets))
		}
		if tickets[0].ID != "t1" || tickets[0].Type != "task" {
			t.Errorf("tickets[0] = %+v", tickets[0])
		}
		if tickets[1].ID != "f1" || tickets[1].Type != "feature" {
			t.Errorf("tickets[1] = %+v", tickets[1])
		}
	})

	t.Run("empty output yields empty set", func(t *testing.T) {
		c := fakeTix(t, `exit 0`)

		tickets, err := c.Ready()
		if err != nil {
			t.Fatalf("Ready() error = %v", err)
		}
		if len(tickets) != 0 {
			t.Errorf("Ready() returned %d tickets, want 0", len(tickets))
		}
	})

	t.Run("stderr becomes the error message", func(t *testing.T) {
		c := fakeTix(t, `echo "store corrupted" >&2; exit 1`)

		_, err := c.Ready()
		if err == nil {
			t.Fatal("Ready() error = nil, want error")
		}
		if got := err.Error(); got != "tix ready: store corrupted" {
			t.Errorf("Ready() error = %q", got)
		}
	})
}

func TestClient_Claim(t *testing.T) {
	t.Run("succeeds", func(t *testing.T) {
		c := fakeTix(t, `exit 0`)

		if err := c.Claim("t1", "foreman-1"); err != nil {
			t.Errorf("Claim() error = %v", err)
		}
	})

	t.Run("maps already-claimed to ErrTicketClaimed", func(t *testing.T) {
		c := fakeTix(t, `echo "error: ticket already claimed by foreman-2" >&2; exit 1`)

		err := c.Claim("t1", "foreman-1")
		if !errors.Is(err, ErrTicketClaimed) {
			t.Errorf("Claim() error = %v, want ErrTicketClaimed", err)
		}
	})

	t.Run("other failures stay plain errors", func(t *testing.T) {
		c := fakeTix(t, `echo "no such ticket" >&2; exit 1`)

		err := c.Claim("t1", "foreman-1")
		if err == nil || errors.Is(err, ErrTicketClaimed) {
			t.Errorf("Claim() error = %v, want plain error", err)
		}
	})
}

func TestClient_StoreUnavailable(t *testing.T) {
	c := &Client{Command: "/nonexistent/tix-binary"}

	_, err := c.Ready()
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Ready() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestClient_Dependencies(t *testing.T) {
	c := fakeTix(t, `echo '{"relations":[{"from":"t1","to":"f1","kind":"parent"}]}'`)

	relations, err := c.Dependencies("t1")
	if err != nil {
		t.Fatalf("Dependencies() error = %v", err)
	}
	if len(relations) != 1 {
		t.Fatalf("Dependencies() returned %d relations, want 1", len(relations))
	}
	r := relations[0]
	if r.From != "t1" || r.To != "f1" || r.Kind != RelationParent {
		t.Errorf("relation = %+v", r)
	}
}

func TestClient_Available(t *testing.T) {
	c := &Client{Command: "/nonexistent/tix-binary"}
	if c.Available() {
		t.Error("Available() = true for nonexistent binary")
	}
}
