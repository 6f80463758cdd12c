package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kpagano/fclones/internal/dedupe"
	"github.com/kpagano/fclones/internal/logging"
	"github.com/kpagano/fclones/internal/report"
)

// actOptions holds the CLI flags shared by remove, link, and move.
type actOptions struct {
	dryRun          bool
	output          string
	modifiedBefore  string
	rfOver          int
	keepPriority    []string
	symlinkFallback bool
	verbose         bool
	quiet           bool
	soft            bool
	hard            bool
}

// newActCmd builds the remove/link/move subcommand. All three read a report
// from standard input, plan the operation, and either preview it (--dry-run)
// or execute it.
func newActCmd(name, short string) *cobra.Command {
	opts := &actOptions{}

	use := name
	if name == "move" {
		use = "move TARGET"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: fmt.Sprintf(`Reads a report produced by "fclones group" from standard input and
%s every redundant file it names, keeping one representative per group.`, name),
		Args: actArgsFor(name),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAct(cmd, name, args, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "Preview without executing; prints a shell-compatible script")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Where to write the dry-run script (default: stdout)")
	cmd.Flags().StringVar(&opts.modifiedBefore, "modified-before", "", "Protect files modified at or after this time (RFC3339 or YYYY-MM-DD); defaults to the report's scan timestamp")
	cmd.Flags().IntVar(&opts.rfOver, "rf-over", 0, "Minimum redundant copies required to act (default: recovered from the report's recorded command)")
	cmd.Flags().StringArrayVar(&opts.keepPriority, "keep-prefix", nil, "Path prefixes to prefer as the keeper, highest priority first")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print each operation as it happens")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress progress output")
	if name == "link" {
		cmd.Flags().BoolVar(&opts.symlinkFallback, "symlink-fallback", false, "Fall back to a symlink when hardlinking fails across device boundaries")
		cmd.Flags().BoolVar(&opts.soft, "soft", false, "Create symlinks instead of hardlinks")
		cmd.Flags().BoolVar(&opts.hard, "hard", false, "Create hardlinks (default)")
	}

	return cmd
}

func actArgsFor(name string) cobra.PositionalArgs {
	if name == "move" {
		return cobra.ExactArgs(1)
	}
	return cobra.NoArgs
}

func runAct(cmd *cobra.Command, name string, args []string, opts *actOptions) error {
	kind, err := resolveKind(name, opts)
	if err != nil {
		return err
	}

	var moveTarget string
	if kind == dedupe.Move {
		target, err := filepath.Abs(args[0])
		if err != nil {
			return configError("invalid move target: %v", err)
		}
		info, err := os.Stat(target)
		if err != nil || !info.IsDir() {
			return &cliError{kind: logging.InputAccessError, err: fmt.Errorf("move target %q is not an accessible directory", target)}
		}
		moveTarget = target
	}

	modifiedBefore, err := parseModifiedBefore(opts.modifiedBefore)
	if err != nil {
		return configError("%v", err)
	}

	if opts.dryRun {
		if err := probeOutputPath(opts.output); err != nil {
			return &cliError{kind: logging.OutputCreateError, err: err}
		}
	}

	reader, err := report.OpenReport(os.Stdin)
	if err != nil {
		return &cliError{kind: logging.ReportParseError, err: err}
	}
	header, err := reader.ReadHeader()
	if err != nil {
		return &cliError{kind: logging.ReportParseError, err: err}
	}

	groups, err := collectGroups(reader)
	if err != nil {
		return &cliError{kind: logging.ReportParseError, err: err}
	}

	var rfOverExplicit *int
	if cmd.Flags().Changed("rf-over") {
		rfOverExplicit = &opts.rfOver
	}
	rfOver, err := dedupe.ResolveRfOver(rfOverExplicit, header, reparseRfOver)
	if err != nil {
		return configError("%v", err)
	}

	log := logging.New(opts.quiet)

	plan := dedupe.Plan(groups, header, dedupe.PlannerOptions{
		Kind:           kind,
		KeepPriority:   opts.keepPriority,
		RfOver:         rfOver,
		ModifiedBefore: modifiedBefore,
		MoveTarget:     moveTarget,
	}, log)

	if opts.dryRun {
		out := os.Stdout
		if opts.output != "" {
			f, err := os.Create(opts.output)
			if err != nil {
				return &cliError{kind: logging.OutputCreateError, err: err}
			}
			defer func() { _ = f.Close() }()
			out = f
		}
		fmt.Fprint(out, plan.Script())
		summary := &dedupe.Summary{DryRun: true, FilesProcessed: plan.FileCount, BytesReclaimed: plan.ReclaimedBytes}
		fmt.Fprintln(os.Stderr, summary.String())
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	summary := dedupe.Execute(ctx, plan, dedupe.ExecutorOptions{
		SymlinkFallback: opts.symlinkFallback,
		Verbose:         opts.verbose,
		ShowProgress:    !opts.quiet,
		MoveTarget:      moveTarget,
		Log:             log,
	})
	fmt.Fprintln(os.Stderr, summary.String())
	return nil
}

func resolveKind(name string, opts *actOptions) (dedupe.OperationKind, error) {
	switch name {
	case "remove":
		return dedupe.Remove, nil
	case "move":
		return dedupe.Move, nil
	case "link":
		if opts.soft && opts.hard {
			return 0, configError("--soft and --hard are mutually exclusive")
		}
		if opts.soft {
			return dedupe.SymLink, nil
		}
		return dedupe.HardLink, nil
	default:
		return 0, configError("unknown action %q", name)
	}
}

// collectGroups drains a report's GroupIterator into a slice, per S5: a
// malformed group line surfaces an error immediately, not after silently
// dropping the groups read so far.
func collectGroups(r report.Reader) ([]report.Group, error) {
	it, err := r.ReadGroups()
	if err != nil {
		return nil, err
	}
	var groups []report.Group
	for {
		g, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return groups, nil
		}
		groups = append(groups, g)
	}
}

// reparseRfOver recovers --rf-over from a report header's recorded command
// by re-parsing it with the group command's own flag set, per
// dedupe.ResolveRfOver's contract.
func reparseRfOver(command []string) (int, error) {
	if len(command) < 2 {
		return 0, fmt.Errorf("recorded command %q is too short to contain flags", command)
	}
	args := command[1:]
	if len(args) > 0 && args[0] == "group" {
		args = args[1:]
	}

	gc := newGroupCmd()
	if err := gc.ParseFlags(args); err != nil {
		return 0, err
	}
	return gc.Flags().GetInt("rf-over")
}
