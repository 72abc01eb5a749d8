package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/foremanloop/foreman/internal/config"
	"github.com/foremanloop/foreman/internal/engine"
	"github.com/foremanloop/foreman/internal/gate"
	"github.com/foremanloop/foreman/internal/logging"
	"github.com/foremanloop/foreman/internal/maintenance"
	"github.com/foremanloop/foreman/internal/prompt"
	"github.com/foremanloop/foreman/internal/session"
	"github.com/foremanloop/foreman/internal/stats"
	"github.com/foremanloop/foreman/internal/tickets"
	"github.com/foremanloop/foreman/internal/update"
	"github.com/foremanloop/foreman/internal/workspace"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Autonomous work-dispatch loop for coding agents",
	Long: `Foreman repeatedly pulls the next ready ticket from the tix store,
runs a coding agent against it in an isolated git worktree, verifies the
result with an independent gate session, and merges what passes. Failed
cycles retry with corrective context until the budget is spent, then the
ticket is reopened with diagnostic notes.`,
	Version: version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dispatch loop until no eligible ticket remains",
	RunE: func(cmd *cobra.Command, args []string) error {
		if notice := update.CheckPeriodically(version); notice != "" {
			fmt.Fprintln(os.Stderr, notice)
		}
		return runLoop(cmd)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the model leaderboard and recent run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStats()
	},
}

var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "Inspect and clean foreman-owned workspaces",
}

var workspacesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active workspaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listWorkspaces()
	},
}

var workspacesCleanCmd = &cobra.Command{
	Use:   "clean [ticket-id]",
	Short: "Destroy one workspace, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) > 0 {
			id = args[0]
		}
		return cleanWorkspaces(id, viper.GetBool("force"))
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade foreman to the latest release",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Current version: %s\n", version)
		release, hasUpdate, err := update.CheckForUpdate(version)
		if err != nil {
			return err
		}
		if !hasUpdate {
			fmt.Println("Already at the latest version.")
			return nil
		}
		fmt.Printf("Updating to %s...\n", release.Version)
		if err := update.Update(version); err != nil {
			return err
		}
		fmt.Println("Done.")
		return nil
	},
}

func init() {
	viper.SetEnvPrefix("FOREMAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().String("repo", "", "repository root (default: current directory)")
	_ = viper.BindPFlag("repo", rootCmd.PersistentFlags().Lookup("repo"))

	runCmd.Flags().IntP("max-cycles", "n", 0, "stop after N cycles (0 = until no eligible ticket)")
	runCmd.Flags().String("model", "", "override the configured agent model")
	_ = viper.BindPFlag("max-cycles", runCmd.Flags().Lookup("max-cycles"))
	_ = viper.BindPFlag("model", runCmd.Flags().Lookup("model"))

	workspacesCleanCmd.Flags().Bool("force", false, "destroy even with uncommitted changes")
	_ = viper.BindPFlag("force", workspacesCleanCmd.Flags().Lookup("force"))

	workspacesCmd.AddCommand(workspacesListCmd)
	workspacesCmd.AddCommand(workspacesCleanCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(workspacesCmd)
	rootCmd.AddCommand(upgradeCmd)
}

// repoRoot resolves the repository root from the flag or the working
// directory.
func repoRoot() (string, error) {
	if dir := viper.GetString("repo"); dir != "" {
		return dir, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	return dir, nil
}

// runLoop wires the collaborators and drives one full dispatch run.
func runLoop(cmd *cobra.Command) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	mgr, err := workspace.NewManager(root)
	if err != nil {
		return err
	}
	if _, err := workspace.EnsureGitignore(root); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not update .gitignore: %v\n", err)
	}

	store := tickets.NewClient()
	store.Command = cfg.Store.Command
	if !store.Available() {
		return fmt.Errorf("ticket store CLI %q not found in PATH", cfg.Store.Command)
	}

	agent := session.NewClaudeAgent()
	agent.Command = cfg.Agent.Command
	if !agent.Available() {
		return fmt.Errorf("agent CLI %q not found in PATH", cfg.Agent.Command)
	}

	prompts := prompt.NewBuilder()
	if err := prompts.LoadOverrides(config.PromptDir(root)); err != nil {
		return err
	}

	model := cfg.Agent.Model
	if m := viper.GetString("model"); m != "" {
		model = m
	}

	verifier := gate.New(agent, prompts)
	verifier.Model = cfg.Verify.Model
	if verifier.Model == "" {
		verifier.Model = model
	}
	verifier.Timeout = cfg.VerifyTimeout()

	scheduler, err := maintenance.NewScheduler(cfg.Maintenance)
	if err != nil {
		return err
	}

	runID := uuid.NewString()[:8]
	log, logPath, err := logging.NewRunLogger(config.LogDir(root), runID)
	if err != nil {
		return err
	}
	defer log.Sync()
	fmt.Fprintf(os.Stderr, "run %s, log at %s\n", runID, logPath)

	aggregator := stats.NewAggregator()
	eng := engine.New(agent, store, tickets.NewSelector(store), mgr,
		verifier, scheduler, aggregator, prompts, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := eng.Run(ctx, engine.Config{
		InstanceID:    "foreman-" + runID,
		MaxRetries:    cfg.MaxRetries,
		Timeout:       cfg.Timeout(),
		SourceBranch:  cfg.Branches.Source,
		TargetBranch:  cfg.Branches.Target,
		Model:         model,
		TranscriptDir: config.TranscriptDir(root),
		MaxCycles:     viper.GetInt("max-cycles"),
	})

	snap := aggregator.Snapshot()
	persistStats(root, runID, snap)
	printRunSummary(res, snap)

	if runErr != nil && !errors.Is(runErr, ctx.Err()) {
		return runErr
	}
	return nil
}

// persistStats folds this run's records into the all-time leaderboard and
// the run-history database. Persistence failures are reported but never
// mask the run's own outcome.
func persistStats(root, runID string, snap stats.Snapshot) {
	lb, err := stats.LoadLeaderboard(config.LeaderboardPath(root))
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: leaderboard unavailable: %v\n", err)
	} else {
		for _, rec := range snap.ModelRecords {
			lb.Append(rec)
		}
		if err := lb.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: saving leaderboard: %v\n", err)
		}
	}

	history, err := stats.OpenHistory(config.HistoryPath(root))
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: run history unavailable: %v\n", err)
		return
	}
	defer history.Close()
	if err := history.Flush(runID, snap); err != nil {
		fmt.Fprintf(os.Stderr, "warning: recording run history: %v\n", err)
	}
}

// printRunSummary writes the end-of-run report.
func printRunSummary(res *engine.Result, snap stats.Snapshot) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("Run summary")
	tw.AppendRows([]table.Row{
		{"Cycles", res.Cycles},
		{"Completed", res.Completed},
		{"Reopened", res.Reopened},
		{"Escalated", res.Escalated},
		{"Sessions", snap.Sessions},
		{"Tool calls", snap.ToolCalls},
		{"Tokens in", snap.TokensIn},
		{"Tokens out", snap.TokensOut},
		{"Duration", res.Duration.Round(time.Second)},
		{"Exit reason", res.ExitReason},
	})
	tw.Render()

	if len(snap.MaintenanceRuns) > 0 {
		mt := table.NewWriter()
		mt.SetOutputMirror(os.Stdout)
		mt.SetTitle("Maintenance")
		mt.AppendHeader(table.Row{"Agent", "Runs"})
		for name, count := range snap.MaintenanceRuns {
			mt.AppendRow(table.Row{name, count})
		}
		mt.Render()
	}
}

// showStats renders the all-time leaderboard and recent run history.
func showStats() error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	lb, err := stats.LoadLeaderboard(config.LeaderboardPath(root))
	if err != nil {
		return err
	}

	entries := lb.Entries()
	if len(entries) == 0 {
		fmt.Println("No completions recorded yet.")
	} else {
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.SetTitle("Model leaderboard")
		tw.AppendHeader(table.Row{"Model", "Runs", "Passes", "Success", "Mean duration"})
		for i := range entries {
			e := &entries[i]
			tw.AppendRow(table.Row{
				e.Model, e.Runs, e.Passes,
				fmt.Sprintf("%.0f%%", e.SuccessRate()*100),
				e.MeanDuration().Round(time.Second),
			})
		}
		tw.Render()
	}

	history, err := stats.OpenHistory(config.HistoryPath(root))
	if err != nil {
		return err
	}
	defer history.Close()

	runs, err := history.RecentRuns(10)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("Recent runs")
	tw.AppendHeader(table.Row{"Run", "Started", "Completed", "Reopened", "Escalated", "Tokens"})
	for _, r := range runs {
		tw.AppendRow(table.Row{
			r.ID, r.StartedAt.Format("2006-01-02 15:04"),
			r.ItemsCompleted, r.Reopened, r.Escalated,
			r.TokensIn + r.TokensOut,
		})
	}
	tw.Render()
	return nil
}

// listWorkspaces prints the active foreman-owned workspaces.
func listWorkspaces() error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	mgr, err := workspace.NewManager(root)
	if err != nil {
		return err
	}

	workspaces, err := mgr.List()
	if err != nil {
		return err
	}
	if len(workspaces) == 0 {
		fmt.Println("No active workspaces.")
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Ticket", "Branch", "Path"})
	for _, ws := range workspaces {
		tw.AppendRow(table.Row{ws.TicketID, ws.Branch, ws.Path})
	}
	tw.Render()
	return nil
}

// cleanWorkspaces destroys one workspace by ticket ID, or every listed
// workspace when no ID is given.
func cleanWorkspaces(ticketID string, force bool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	mgr, err := workspace.NewManager(root)
	if err != nil {
		return err
	}

	if ticketID != "" {
		if err := mgr.Destroy(ticketID, force); err != nil {
			if errors.Is(err, workspace.ErrUncommittedChanges) {
				return fmt.Errorf("workspace %s has uncommitted changes (use --force to discard)", ticketID)
			}
			return err
		}
		fmt.Printf("Destroyed workspace %s\n", ticketID)
		return nil
	}

	workspaces, err := mgr.List()
	if err != nil {
		return err
	}
	for _, ws := range workspaces {
		if err := mgr.Destroy(ws.TicketID, force); err != nil {
			if errors.Is(err, workspace.ErrUncommittedChanges) {
				fmt.Fprintf(os.Stderr, "skipping %s: uncommitted changes (use --force)\n", ws.TicketID)
				continue
			}
			return err
		}
		fmt.Printf("Destroyed workspace %s\n", ws.TicketID)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
