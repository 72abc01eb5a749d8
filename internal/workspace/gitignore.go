package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// gitignoreEntries are the paths foreman needs ignored in the main repo:
// the workspace directory itself and foreman's local state.
var gitignoreEntries = []string{
	DefaultWorkspaceDir + "/",
	".foreman/",
}

// EnsureGitignore makes sure the repository's .gitignore covers foreman's
// working directories. Returns true if the file was modified.
func EnsureGitignore(repoRoot string) (bool, error) {
	path := filepath.Join(repoRoot, ".gitignore")

	var existing string
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return false, fmt.Errorf("reading .gitignore: %w", err)
		}
	} else {
		existing = string(data)
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(existing, "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, entry := range gitignoreEntries {
		if !present[entry] && !present[strings.TrimSuffix(entry, "/")] {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return false, nil
	}

	var sb strings.Builder
	sb.WriteString(existing)
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		sb.WriteString("\n")
	}
	for _, entry := range missing {
		sb.WriteString(entry)
		sb.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return false, fmt.Errorf("writing .gitignore: %w", err)
	}
	return true, nil
}
