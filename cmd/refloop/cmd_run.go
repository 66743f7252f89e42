package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"refloop/internal/logging"
	"refloop/pkg/aiexec"
	"refloop/pkg/checkpoint"
	"refloop/pkg/config"
	"refloop/pkg/controller"
	"refloop/pkg/eventlog"
	"refloop/pkg/langprofile"
	"refloop/pkg/scan"
	"refloop/pkg/verify"
)

// runFlags holds the flags of the run command. Only flags the user set
// override the configuration.
type runFlags struct {
	passes       int
	maxFiles     int
	maxWorkers   int
	provider     string
	model        string
	timeout      time.Duration
	orchestrate  bool
	fresh        bool
	noCheckpoint bool
	noCalibrate  bool
	noVerify     bool
	verify       []string
	dryRun       bool
}

// newRunCmd creates the "refloop run" subcommand.
func newRunCmd(rf *rootFlags) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run refactor passes until the backlog clears",
		Long: "Scans the target, asks the agent to review the candidates, then runs refactor passes.\n" +
			"After each pass the repository is rescanned and verified. An interrupted run resumes\n" +
			"from its checkpoint with the settings it started with; --passes still applies.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := rf.paths()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(p)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg, f); err != nil {
				return err
			}
			opts := runOptions(p, cfg, f)
			return runLoop(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), p, cfg, opts)
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.passes, "passes", "n", 0, "fix the pass budget (0 derives it from the backlog)")
	fl.IntVar(&f.maxFiles, "max-files", 0, "pin the scan file cap (0 grows it as needed)")
	fl.IntVar(&f.maxWorkers, "max-workers", config.DefaultMaxWorkers, "workers per wave in orchestrated passes")
	fl.StringVarP(&f.provider, "provider", "p", config.DefaultProvider, "agent provider: auto, codex or claude")
	fl.StringVarP(&f.model, "model", "m", "", "agent model (provider default when empty)")
	fl.DurationVar(&f.timeout, "timeout", config.DefaultAgentTimeout, "timeout of one agent call")
	fl.BoolVar(&f.orchestrate, "orchestrate", false, "split passes into planner, orchestrator and worker waves")
	fl.BoolVar(&f.fresh, "fresh", false, "discard any checkpoint and start over")
	fl.BoolVar(&f.noCheckpoint, "no-checkpoint", false, "do not read or write a checkpoint")
	fl.BoolVar(&f.noCalibrate, "no-calibrate", false, "skip the AI review of heuristic candidates")
	fl.BoolVar(&f.noVerify, "no-verify", false, "skip verification commands after each pass")
	fl.StringArrayVar(&f.verify, "verify", nil, "verification command (repeatable; replaces detected commands)")
	fl.BoolVar(&f.dryRun, "dry-run", false, "scan and calibrate, print the plan, make no edits")

	return cmd
}

// applyRunFlags copies the flags the user set onto cfg and revalidates it.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, f runFlags) error {
	fl := cmd.Flags()
	if fl.Changed("passes") {
		cfg.Run.Passes = f.passes
	}
	if fl.Changed("max-files") {
		cfg.Run.MaxFiles = f.maxFiles
	}
	if fl.Changed("max-workers") {
		cfg.Run.MaxWorkers = f.maxWorkers
	}
	if fl.Changed("provider") {
		cfg.Agent.Provider = f.provider
	}
	if fl.Changed("model") {
		cfg.Agent.Model = f.model
	}
	if fl.Changed("timeout") {
		cfg.Agent.Timeout = f.timeout
	}
	if fl.Changed("orchestrate") {
		cfg.Run.Orchestrate = f.orchestrate
	}
	if fl.Changed("no-checkpoint") {
		cfg.Run.Checkpoint = !f.noCheckpoint
	}
	if fl.Changed("no-calibrate") {
		cfg.Run.Calibrate = !f.noCalibrate
	}
	if fl.Changed("no-verify") {
		cfg.Verify.Enabled = !f.noVerify
	}
	if fl.Changed("verify") {
		cfg.Verify.Commands = f.verify
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func runOptions(p *Paths, cfg *config.Config, f runFlags) controller.Options {
	return controller.Options{
		TargetDir:      p.TargetDir,
		Passes:         cfg.Run.Passes,
		MaxFiles:       cfg.Run.MaxFiles,
		Provider:       cfg.Agent.Provider,
		Model:          cfg.Agent.Model,
		Orchestrate:    cfg.Run.Orchestrate,
		MaxWorkers:     cfg.Run.MaxWorkers,
		Timeout:        cfg.Agent.Timeout,
		Calibrate:      cfg.Run.Calibrate,
		VerifyCommands: verifyCommands(p.TargetDir, cfg),
		Resume:         cfg.Run.Checkpoint && !f.fresh && !f.dryRun,
		DryRun:         f.dryRun,
	}
}

// verifyCommands returns the configured commands, or the ones detected
// from the project's stack.
func verifyCommands(target string, cfg *config.Config) []string {
	if !cfg.Verify.Enabled {
		return nil
	}
	if len(cfg.Verify.Commands) > 0 {
		return slices.Clone(cfg.Verify.Commands)
	}
	return langprofile.Detect(target).Commands
}

func runLoop(ctx context.Context, out, errOut io.Writer, p *Paths, cfg *config.Config, opts controller.Options) error {
	factory := logging.NewFactory(p.StateDir, logging.Options{
		Level:  logging.LevelFromString(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})
	defer func() { _ = factory.Close() }()

	prog := newProgress(errOut, isTerminal(errOut))
	logger, err := factory.RunLogger("")
	if err != nil {
		prog.Warn(fmt.Sprintf("run log disabled: %v", err))
	}

	exec := aiexec.NewCLIExecutor(logger)
	if !opts.DryRun || opts.Calibrate {
		provider, err := runPreflightChecks(p.TargetDir, resumeProvider(p, opts), exec.Resolve)
		if err != nil {
			return err
		}
		opts.Provider = provider
		prog.Step("agent: " + provider)
	}
	if !opts.DryRun {
		if w := gitWarning(ctx, p.TargetDir); w != "" {
			prog.Warn(w)
		}
	}
	if len(opts.VerifyCommands) > 0 {
		prog.Step("verify: " + strings.Join(opts.VerifyCommands, " && "))
	}

	sinks := multiSink{&consoleSink{p: prog}}
	if !opts.DryRun {
		hist, err := eventlog.Open(p.HistoryPath)
		if err != nil {
			prog.Warn(fmt.Sprintf("run history disabled: %v", err))
		} else {
			defer func() { _ = hist.Close() }()
			sinks = append(sinks, hist)
		}
	}

	deps := controller.Deps{
		Exec:     exec,
		Scanner:  scan.New(logger),
		Verifier: verify.NewRunner(cfg.Verify.Timeout, logger),
		Sink:     sinks,
		Logger:   logger,
	}
	if cfg.Run.Checkpoint && !opts.DryRun {
		deps.Store = checkpoint.NewStore(p.StateDir)
	}

	prog.Start("refactoring " + p.TargetDir)
	sum, err := controller.New(deps).Run(ctx, opts)
	prog.Stop()

	printSummary(out, newStyles(DefaultTheme()), sum, err)
	return err
}

// resumeProvider returns the provider the run will call. A resumable
// checkpoint keeps the provider it was started with.
func resumeProvider(p *Paths, opts controller.Options) string {
	if !opts.Resume {
		return opts.Provider
	}
	cp, err := checkpoint.NewStore(p.StateDir).Load(p.TargetDir)
	if err != nil || cp.ExecutionSettings == nil || cp.ExecutionSettings.Provider == "" {
		return opts.Provider
	}
	return cp.ExecutionSettings.Provider
}

// consoleSink turns run events into progress lines.
type consoleSink struct {
	p *progress
}

func (s *consoleSink) Record(_ context.Context, e eventlog.Event) error {
	switch e.Type {
	case eventlog.TypeRunStart:
		s.p.Step(fmt.Sprintf("run %s (%s)", shortID(e.RunID), e.Status))
	case eventlog.TypeCalibration:
		s.p.Step(fmt.Sprintf("calibration %s: %s", e.Status, e.Backlog))
	case eventlog.TypePass:
		s.p.Step(fmt.Sprintf("pass %d/%d %s: %s", e.Pass, e.PlannedPasses, strings.ToLower(e.Status), e.Backlog))
	case eventlog.TypeVerify:
		if e.Status == "failed" {
			s.p.Warn(fmt.Sprintf("verification failed after pass %d", e.Pass))
		} else {
			s.p.Step(fmt.Sprintf("verification passed after pass %d", e.Pass))
		}
	}
	return nil
}

// multiSink fans events out to several sinks.
type multiSink []controller.EventSink

func (m multiSink) Record(ctx context.Context, e eventlog.Event) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Record(ctx, e))
	}
	return errors.Join(errs...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// printSummary writes the outcome of a run.
func printSummary(w io.Writer, st styles, sum *controller.Summary, err error) {
	if sum == nil {
		return
	}
	switch {
	case sum.DryRun:
		fmt.Fprintln(w, st.title.Render("Dry run"))
		fmt.Fprintf(w, "%s %s\n", st.label.Render("Backlog:"), sum.Backlog)
		fmt.Fprintf(w, "%s %d\n", st.label.Render("Planned passes:"), sum.PlannedPasses)
		if len(sum.Scan.TechStack) > 0 {
			fmt.Fprintf(w, "%s %s\n", st.label.Render("Stack:"), strings.Join(sum.Scan.TechStack, ", "))
		}
	case err == nil:
		fmt.Fprintln(w, st.success.Render("✓ Refactor complete"))
	default:
		fmt.Fprintln(w, st.failure.Render("✗ Refactor stopped: "+err.Error()))
	}
	if !sum.DryRun {
		fmt.Fprintf(w, "%s %d of %d", st.label.Render("Passes:"), sum.Passes, sum.PlannedPasses)
		if sum.Resumed {
			fmt.Fprintf(w, " (resumed at pass %d)", sum.StartPass)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s %s\n", st.label.Render("Backlog:"), sum.Backlog)
	}
	for _, warn := range sum.Warnings {
		fmt.Fprintln(w, st.warning.Render("warning: ")+st.muted.Render(warn))
	}
}
