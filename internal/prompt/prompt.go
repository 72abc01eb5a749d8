// Package prompt renders agent prompts from mustache templates and
// ticket fields. Unknown variables render as empty strings, never as
// errors, so template edits cannot break the loop.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cbroglie/mustache"

	"github.com/foremanloop/foreman/internal/tickets"
)

// WorkContext carries everything the work prompt can reference.
type WorkContext struct {
	Ticket *tickets.Ticket

	// Attempt is the 1-indexed attempt number for this cycle.
	Attempt int

	// PriorErrors holds one assembled error summary per failed prior
	// attempt, folded in as corrective context on retries.
	PriorErrors []string

	// ConflictFiles scopes a conflict-resolution cycle to the files the
	// merge reported. Empty for normal work cycles.
	ConflictFiles []string

	// TargetBranch is the branch this work will be merged into.
	TargetBranch string
}

// Builder renders the work, gate and conflict prompts. Templates can be
// overridden per repository from .foreman/prompts/.
type Builder struct {
	work     string
	gate     string
	conflict string
}

// NewBuilder creates a builder with the default templates.
func NewBuilder() *Builder {
	return &Builder{
		work:     workTemplate,
		gate:     gateTemplate,
		conflict: conflictTemplate,
	}
}

// LoadOverrides replaces default templates with any found in dir
// (work.mustache, gate.mustache, conflict.mustache). Missing files keep
// the default; a missing directory is not an error.
func (b *Builder) LoadOverrides(dir string) error {
	for name, dst := range map[string]*string{
		"work.mustache":     &b.work,
		"gate.mustache":     &b.gate,
		"conflict.mustache": &b.conflict,
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("reading prompt override %s: %w", name, err)
		}
		*dst = string(data)
	}
	return nil
}

// Work renders the prompt for a normal ticket cycle, including any
// corrective context from prior failed attempts.
func (b *Builder) Work(ctx WorkContext) (string, error) {
	return render(b.work, workData(ctx))
}

// Gate renders the narrow verification prompt.
func (b *Builder) Gate(t *tickets.Ticket, targetBranch string) (string, error) {
	return render(b.gate, map[string]interface{}{
		"ticket_id":     t.ID,
		"title":         t.Title,
		"description":   t.Description,
		"target_branch": targetBranch,
	})
}

// Conflict renders the prompt for a conflict-resolution cycle, scoped to
// the listed files.
func (b *Builder) Conflict(ctx WorkContext) (string, error) {
	return render(b.conflict, workData(ctx))
}

// render wraps mustache rendering; unknown variables stay empty.
func render(tmpl string, data interface{}) (string, error) {
	out, err := mustache.Render(tmpl, data)
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return strings.TrimSpace(out) + "\n", nil
}

// workData flattens a WorkContext for the template engine.
func workData(ctx WorkContext) map[string]interface{} {
	data := map[string]interface{}{
		"attempt":        ctx.Attempt,
		"retry":          ctx.Attempt > 1,
		"prior_errors":   ctx.PriorErrors,
		"conflict_files": ctx.ConflictFiles,
		"target_branch":  ctx.TargetBranch,
	}
	if t := ctx.Ticket; t != nil {
		data["ticket_id"] = t.ID
		data["title"] = t.Title
		data["description"] = t.Description
		data["type"] = t.Type
		data["labels"] = t.Labels
	}
	return data
}

const workTemplate = `# Ticket {{ticket_id}}: {{{title}}} (attempt {{attempt}})

{{{description}}}
{{#retry}}

## Corrective context from previous attempts

Earlier attempts at this ticket did not pass verification. Address every
item below before finishing.

{{#prior_errors}}
- {{{.}}}
{{/prior_errors}}
{{/retry}}

## Instructions

1. Complete the ticket exactly as described. Work only inside this workspace.
2. Run the repository's validation scripts before committing; do not commit failing work.
3. Commit your changes with the ticket ID in the message.
4. When finished, print a final line ` + "`[done] <one-line summary>`" + `.
   If you could not complete the work, print ` + "`[done] failed: <reason>`" + ` instead.

## Rules

- One ticket per session. Do not touch unrelated files.
- No questions. You are autonomous; make reasonable decisions.
- Announce each tool invocation as ` + "`[tool] <name> <args>`" + ` and its result as ` + "`[tool-result] <summary>`" + `.
`

const gateTemplate = `# Verify ticket {{ticket_id}}: {{{title}}}

You are a verification agent. Independently decide whether this ticket's
requirement is satisfied. Do not fix anything; only inspect and judge.

{{{description}}}

## Procedure

1. Inspect the diff of this workspace against {{target_branch}}.
2. If there is no diff, check whether {{target_branch}} already satisfies
   the requirement (a prior cycle may have merged it).
3. Run the repository's validation scripts if present.

## Verdict

Finish with exactly one line:

- ` + "`<verdict>pass: new_work</verdict>`" + ` - new work is present and correct
- ` + "`<verdict>pass: already_satisfied</verdict>`" + ` - no new work needed, target already satisfies the ticket
- ` + "`<verdict>fail: <detail></verdict>`" + ` - work is missing, incorrect, or tests fail; detail says what is wrong
`

const conflictTemplate = `# Resolve merge conflicts for ticket {{ticket_id}}

Merging this workspace's branch into {{target_branch}} produced conflicts.
Run ` + "`git merge {{target_branch}}`" + ` in this workspace, resolve the
conflict markers in ONLY the files listed below, and commit the merge.

{{#conflict_files}}
- {{{.}}}
{{/conflict_files}}

Do not change anything outside the listed files. When the merge commit is
done, print ` + "`[done] conflicts resolved`" + `. If you cannot resolve them,
print ` + "`[done] failed: <reason>`" + `.
`
