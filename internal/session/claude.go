package session

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ClaudeAgent implements the Agent interface for the Claude Code CLI.
type ClaudeAgent struct {
	// Command is the path to the claude binary. Defaults to "claude".
	Command string
}

// NewClaudeAgent creates a new Claude Code agent with default settings.
func NewClaudeAgent() *ClaudeAgent {
	return &ClaudeAgent{Command: "claude"}
}

// Name returns "claude".
func (a *ClaudeAgent) Name() string {
	return "claude"
}

// Available checks if the claude CLI is installed and accessible.
func (a *ClaudeAgent) Available() bool {
	_, err := exec.LookPath(a.command())
	return err == nil
}

// crashSignatures are stderr fragments that mark a crashed session even
// when the exit code alone is ambiguous.
var crashSignatures = []string{
	"panic:",
	"fatal error:",
	"segmentation fault",
	"killed",
}

// Run executes claude with the given prompt, scoped to opts.WorkDir and
// the explicit allow-list of additional directories. Output is streamed
// line by line through the classifier and the transcript writer. A hard
// wall-clock timeout terminates the subprocess; the partial result is
// returned alongside ErrTimeout.
func (a *ClaudeAgent) Run(ctx context.Context, prompt string, opts Options) (*Result, error) {
	start := time.Now()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := []string{
		"--dangerously-skip-permissions",
		"--print",
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	for _, dir := range opts.AllowedDirs {
		args = append(args, "--add-dir", dir)
	}
	args = append(args, prompt)

	cmd := exec.CommandContext(ctx, a.command(), args...)
	cmd.Dir = opts.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", a.Name(), err)
	}

	classifier := NewClassifier(opts.OnEvent, opts.OnExchange)

	scanner := bufio.NewScanner(stdoutPipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 1MB max line size
	for scanner.Scan() {
		line := scanner.Text()
		stdout.WriteString(line)
		stdout.WriteString("\n")
		if opts.Transcript != nil {
			fmt.Fprintln(opts.Transcript, line)
		}
		classifier.Feed(line)
	}
	classifier.Close()

	waitErr := cmd.Wait()
	duration := time.Since(start)

	tokensIn, tokensOut := parseUsage(stderr.String())
	record := &Record{
		Prompt:    prompt,
		Model:     opts.Model,
		StartedAt: start,
		EndedAt:   start.Add(duration),
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		ToolCalls: classifier.ToolCalls(),
		Duration:  duration,
	}
	result := &Result{
		Output:  stdout.String(),
		Summary: classifier.Summary(),
		Record:  record,
	}

	if ctx.Err() == context.DeadlineExceeded {
		record.Outcome = OutcomeTimeout
		result.Outcome = OutcomeTimeout
		return result, ErrTimeout
	}
	if ctx.Err() == context.Canceled {
		record.Outcome = OutcomeCrashed
		result.Outcome = OutcomeCrashed
		return result, fmt.Errorf("%s cancelled", a.Name())
	}

	if waitErr != nil || hasCrashSignature(stderr.String()) {
		record.Outcome = OutcomeCrashed
		result.Outcome = OutcomeCrashed
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return result, fmt.Errorf("%s exited with code %d: %s",
				a.Name(), exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return result, fmt.Errorf("%s crashed: %s", a.Name(), strings.TrimSpace(stderr.String()))
	}

	if strings.HasPrefix(strings.ToLower(result.Summary), "failed") {
		record.Outcome = OutcomeFailure
		result.Outcome = OutcomeFailure
	} else {
		record.Outcome = OutcomeSuccess
		result.Outcome = OutcomeSuccess
	}

	return result, nil
}

// command returns the claude binary path.
func (a *ClaudeAgent) command() string {
	if a.Command != "" {
		return a.Command
	}
	return "claude"
}

// hasCrashSignature reports whether stderr matches a known crash marker.
func hasCrashSignature(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, sig := range crashSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// Usage patterns the CLI may print on stderr.
var (
	usageInputPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[Ii]nput\s*(?:tokens)?[:\s]+(\d+)`),
		regexp.MustCompile(`(\d+)\s*input\s*tokens?`),
	}
	usageOutputPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[Oo]utput\s*(?:tokens)?[:\s]+(\d+)`),
		regexp.MustCompile(`(\d+)\s*output\s*tokens?`),
	}
)

// parseUsage extracts token counts from the CLI's stderr, if present.
func parseUsage(output string) (int, int) {
	var tokensIn, tokensOut int

	for _, re := range usageInputPatterns {
		if m := re.FindStringSubmatch(output); len(m) > 1 {
			if v, err := strconv.Atoi(m[1]); err == nil {
				tokensIn = v
				break
			}
		}
	}

	for _, re := range usageOutputPatterns {
		if m := re.FindStringSubmatch(output); len(m) > 1 {
			if v, err := strconv.Atoi(m[1]); err == nil {
				tokensOut = v
				break
			}
		}
	}

	return tokensIn, tokensOut
}
