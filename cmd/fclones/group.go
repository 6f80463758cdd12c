package main

import (
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kpagano/fclones/internal/cache"
	"github.com/kpagano/fclones/internal/device"
	"github.com/kpagano/fclones/internal/group"
	"github.com/kpagano/fclones/internal/hasher"
	"github.com/kpagano/fclones/internal/logging"
	"github.com/kpagano/fclones/internal/report"
	"github.com/kpagano/fclones/internal/types"
	"github.com/kpagano/fclones/internal/walker"
)

// groupOptions holds CLI flags for the group command.
type groupOptions struct {
	depth          int
	patterns       []string
	excludes       []string
	minSizeStr     string
	maxSizeStr     string
	rfOver         int
	hashAlgorithm  string
	followLinks    bool
	oneFilesystem  bool
	format         string
	output         string
	threads        []string
	quiet          bool
	cacheFile      string
	workers        int
	keepPriority   []string
}

// newGroupCmd creates the group subcommand. It is also reconstructed
// in-process by the act commands to recover a prior run's --rf-over from a
// report header's recorded argument vector; see ResolveRfOver's reparse
// callback in act.go.
func newGroupCmd() *cobra.Command {
	opts := &groupOptions{
		depth:         -1,
		minSizeStr:    "1",
		hashAlgorithm: hasher.XXH3,
		format:        "default",
		workers:       runtime.NumCPU(),
	}

	cmd := &cobra.Command{
		Use:   "group [paths...]",
		Short: "Scan paths and report groups of duplicate files",
		Long: `Scans the given paths (or, given a single "-", reads a newline-delimited
list of file paths from standard input) and writes a report describing every
group of byte-identical files found.

The report can be piped directly into remove, link, or move:
  fclones group /data | fclones remove --dry-run`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroup(cmd, args, opts)
		},
	}

	cmd.Flags().IntVar(&opts.depth, "depth", opts.depth, "Maximum recursion depth (-1 for unlimited)")
	cmd.Flags().StringArrayVarP(&opts.patterns, "pattern", "p", nil, "Glob patterns to include")
	cmd.Flags().StringArrayVarP(&opts.excludes, "exclude", "e", nil, "Glob patterns to exclude")
	cmd.Flags().StringVarP(&opts.minSizeStr, "min-size", "m", opts.minSizeStr, "Minimum file size (e.g., 100, 1K, 10M, 1G)")
	cmd.Flags().StringVar(&opts.maxSizeStr, "max-size", "", "Maximum file size (0 means unbounded)")
	cmd.Flags().IntVar(&opts.rfOver, "rf-over", 0, "Minimum redundant copies a group must have to be reported")
	cmd.Flags().StringVar(&opts.hashAlgorithm, "hash-algorithm", opts.hashAlgorithm, "Content hash algorithm: xxh3 or blake3")
	cmd.Flags().BoolVar(&opts.followLinks, "follow-links", false, "Follow symlinked directories")
	cmd.Flags().BoolVar(&opts.oneFilesystem, "one-filesystem", false, "Do not cross filesystem boundaries")
	cmd.Flags().StringVar(&opts.format, "format", opts.format, "Report format: default, fdupes, csv, json")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringArrayVar(&opts.threads, "threads", nil, "Per-device concurrency override: NAME=SEQ,RAND (repeatable)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress warnings and progress output")
	cmd.Flags().StringVar(&opts.cacheFile, "cache-file", "", "Path to hash cache file (enables caching across runs)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", opts.workers, "Number of parallel workers")
	cmd.Flags().StringArrayVar(&opts.keepPriority, "keep-prefix", nil, "Path prefixes to prefer as the keeper, highest priority first")

	return cmd
}

func runGroup(cmd *cobra.Command, args []string, opts *groupOptions) error {
	if opts.hashAlgorithm != hasher.XXH3 && opts.hashAlgorithm != hasher.Blake3 {
		return configError("unknown --hash-algorithm %q", opts.hashAlgorithm)
	}

	minSize, err := parseSize(opts.minSizeStr)
	if err != nil {
		return configError("invalid --min-size: %v", err)
	}
	maxSize, err := parseSize(opts.maxSizeStr)
	if err != nil {
		return configError("invalid --max-size: %v", err)
	}

	if err := validateGlobPatterns(opts.patterns); err != nil {
		return configError("invalid --pattern: %v", err)
	}
	if err := validateGlobPatterns(opts.excludes); err != nil {
		return configError("invalid --exclude: %v", err)
	}

	format, err := parseFormat(opts.format)
	if err != nil {
		return configError("%v", err)
	}

	if err := probeOutputPath(opts.output); err != nil {
		return &cliError{kind: logging.OutputCreateError, err: err}
	}

	streaming := len(args) == 1 && args[0] == "-"
	if !streaming {
		for _, root := range args {
			if _, err := os.Stat(root); err != nil {
				return &cliError{kind: logging.InputAccessError, err: err}
			}
		}
	}

	defaultBudget := device.Budget{Random: opts.workers}
	overrides := make(map[string]device.Budget, len(opts.threads))
	for _, spec := range opts.threads {
		name, budget, err := device.ParseOverride(spec)
		if err != nil {
			return configError("%v", err)
		}
		overrides[name] = budget
	}
	registry := device.NewRegistry(defaultBudget, overrides)

	log := logging.New(opts.quiet)

	walkerOpts := walker.Options{
		Roots:          args,
		MaxDepth:       opts.depth,
		Include:        opts.patterns,
		Exclude:        opts.excludes,
		MinSize:        minSize,
		MaxSize:        maxSize,
		FollowSymlinks: opts.followLinks,
		OneFilesystem:  opts.oneFilesystem,
		Workers:        opts.workers,
		ShowProgress:   !opts.quiet,
	}

	var files []*types.FileInfo
	if streaming {
		files = walker.RunStreaming(os.Stdin, walkerOpts, log)
	} else {
		files = walker.New(walkerOpts, log).Run(cmd.Context())
	}

	var hashCache *cache.Cache
	if opts.cacheFile != "" {
		hashCache, err = cache.Open(opts.cacheFile)
		if err != nil {
			return configError("open cache: %v", err)
		}
		defer func() { _ = hashCache.Close() }()
	}

	priority := make(map[string]int, len(opts.keepPriority))
	for i, prefix := range opts.keepPriority {
		priority[prefix] = i
	}

	engine := group.New(group.Options{
		MinSize:   minSize,
		RfOver:    opts.rfOver,
		Algorithm: opts.hashAlgorithm,
		Registry:  registry,
		Log:       log,
		Cache:     hashCache,
		PriorityOf: func(f *types.FileInfo) int {
			return priorityOf(f.Path.String(), opts.keepPriority)
		},
		ShowProgress: !opts.quiet,
	})

	groups := engine.Run(cmd.Context(), files)

	header := report.BuildHeader(fullCommand(), groups)

	out := os.Stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return &cliError{kind: logging.OutputCreateError, err: err}
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if err := report.NewWriter(out).Write(format, header, groups); err != nil {
		return err
	}

	return nil
}

// priorityOf returns the index of the first matching prefix in priority
// (lower sorts first, i.e. is kept by default), or len(priority) if none
// match -- files with no matching prefix sort after every prioritized one.
func priorityOf(path string, priority []string) int {
	for i, prefix := range priority {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			return i
		}
	}
	return len(priority)
}

// fullCommand reconstructs the argument vector recorded in the report
// header, used later to recover flags like --rf-over from a saved report.
func fullCommand() []string {
	return os.Args
}
