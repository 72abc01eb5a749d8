package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Transcript is an append-only per-ticket log of full agent output.
// Every line the agent emits lands here, across all attempts.
type Transcript struct {
	file *os.File
}

// OpenTranscript opens (or creates) the transcript for a ticket under dir.
func OpenTranscript(dir, ticketID string) (*Transcript, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating transcript dir: %w", err)
	}

	path := filepath.Join(dir, ticketID+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening transcript %s: %w", path, err)
	}
	return &Transcript{file: f}, nil
}

// Write appends raw bytes to the transcript.
func (t *Transcript) Write(p []byte) (int, error) {
	return t.file.Write(p)
}

// Mark writes a timestamped attempt separator.
func (t *Transcript) Mark(label string) {
	fmt.Fprintf(t.file, "--- %s %s ---\n", time.Now().Format(time.RFC3339), label)
}

// Path returns the transcript file path.
func (t *Transcript) Path() string {
	return t.file.Name()
}

// Close closes the underlying file.
func (t *Transcript) Close() error {
	return t.file.Close()
}
