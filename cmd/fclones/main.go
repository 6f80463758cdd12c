package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kpagano/fclones/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

// cliError carries the exit code a RunE error should produce: 2 for a
// ConfigError (malformed flags, conflicting retention rules, unparsable
// recorded command), 1 for everything else.
type cliError struct {
	kind logging.Kind
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func configError(format string, args ...any) error {
	return &cliError{kind: logging.ConfigError, err: fmt.Errorf(format, args...)}
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:     "fclones",
		Short:   "Find and deduplicate files",
		Version: version + " (" + commit + ")",
	}

	root.AddCommand(newGroupCmd())
	root.AddCommand(newActCmd("remove", "Remove redundant files"))
	root.AddCommand(newActCmd("link", "Replace redundant files with links to the keeper"))
	root.AddCommand(newActCmd("move", "Move redundant files aside"))

	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		var ce *cliError
		if ok := asCliError(err, &ce); ok {
			fmt.Fprintf(os.Stderr, "error: %v\n", ce.err)
			if ce.kind == logging.ConfigError {
				return 2
			}
			return 1
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func asCliError(err error, target **cliError) bool {
	for err != nil {
		if ce, ok := err.(*cliError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
