package walker

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/kpagano/fclones/internal/logging"
	"github.com/kpagano/fclones/internal/types"
)

// RunStreaming reads a newline-delimited list of paths from r instead of
// walking directories. This is the streaming mode referenced by the
// traversal contract: an inaccessible entry becomes a warning and is
// skipped, rather than the fatal error a bad root produces in the default
// mode, since the caller (not this walker) is responsible for discovering
// the paths.
func RunStreaming(r io.Reader, opts Options, log *logging.Logger) []*types.FileInfo {
	var results []*types.FileInfo

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		info, err := os.Stat(line)
		if err != nil {
			log.Warn(logging.WalkWarning, line, fmt.Errorf("unreachable path from stream: %w", err))
			continue
		}
		if info.IsDir() {
			log.Warn(logging.WalkWarning, line, fmt.Errorf("directory not supported in streaming mode"))
			continue
		}

		fi := newFileInfo(types.Intern(line), info)
		if fi.Size < opts.MinSize {
			continue
		}
		if opts.MaxSize > 0 && fi.Size > opts.MaxSize {
			continue
		}
		results = append(results, fi)
	}

	return results
}
