//go:build e2e

package internal

import (
	"testing"

	"github.com/kpagano/fclones/internal/testfs"
)

// =============================================================================
// Section 9.1: Core E2E Tests
// =============================================================================

// TestE2EBasicCLIInvocation runs the full group-then-link pipeline and
// checks that both files end up hardlinked.
func TestE2EBasicCLIInvocation(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1KiB"}}},
					{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1KiB"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)

	result := h.RunPipeline(nil, nil, "/data")

	expected := testfs.FileTree{
		ExitCode: 0,
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt", "b.txt"}},
				},
			},
		},
	}
	h.Assert(expected)

	if len(result.Stdout) == 0 && len(result.Stderr) == 0 {
		t.Log("Note: no stdout or stderr output")
	}
}

// TestE2EDryRun checks that --dry-run leaves the filesystem untouched.
func TestE2EDryRun(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1KiB"}}},
					{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1KiB"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)

	h.RunPipeline(nil, []string{"remove", "--dry-run"}, "/data")

	expected := testfs.FileTree{
		ExitCode: 0,
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt"}},
					{Path: []string{"b.txt"}},
				},
			},
		},
	}
	h.Assert(expected)
}

// =============================================================================
// Section 9.2: Symlink Fallback E2E Tests
// =============================================================================

// TestE2ESymlinkFallbackEnabled tests cross-device deduplication with --symlink-fallback.
func TestE2ESymlinkFallbackEnabled(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/vol1",
				Files: []testfs.File{
					{Path: []string{"source.txt"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1KiB"}}},
				},
			},
			{
				MountPoint: "/vol2",
				Files: []testfs.File{
					{Path: []string{"target.txt"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1KiB"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)

	h.RunPipeline(nil, []string{"link", "--symlink-fallback"}, "/vol1", "/vol2")

	expected := testfs.FileTree{
		ExitCode: 0,
		Volumes: []testfs.Volume{
			{
				MountPoint: "/vol1",
				Files: []testfs.File{
					{Path: []string{"source.txt"}},
				},
			},
			{
				MountPoint: "/vol2",
				Symlinks: []testfs.Symlink{
					{Path: "target.txt", Target: "../vol1/source.txt"},
				},
			},
		},
	}
	h.Assert(expected)
}

// TestE2ESymlinkFallbackDisabled tests that a cross-device hardlink attempt
// is skipped (a warning, not a fatal error) when --symlink-fallback is absent.
func TestE2ESymlinkFallbackDisabled(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/vol1",
				Files: []testfs.File{
					{Path: []string{"a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1KiB"}}},
				},
			},
			{
				MountPoint: "/vol2",
				Files: []testfs.File{
					{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1KiB"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)

	h.RunPipeline(nil, []string{"link"}, "/vol1", "/vol2")

	expected := testfs.FileTree{
		ExitCode: 0,
		Volumes: []testfs.Volume{
			{
				MountPoint: "/vol1",
				Files: []testfs.File{
					{Path: []string{"a.txt"}},
				},
			},
			{
				MountPoint: "/vol2",
				Files: []testfs.File{
					{Path: []string{"b.txt"}},
				},
			},
		},
	}
	h.Assert(expected)
}

// =============================================================================
// Section 9.3: Nested Mount E2E Tests
// =============================================================================

// TestE2ENestedMounts tests scanning nested mounts without self-dedup.
func TestE2ENestedMounts(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"root.txt"}, Chunks: []testfs.Chunk{{Pattern: 'R', Size: "1KiB"}}},
				},
			},
			{
				MountPoint: "/data/subdir",
				Files: []testfs.File{
					{Path: []string{"nested.txt"}, Chunks: []testfs.Chunk{{Pattern: 'R', Size: "1KiB"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)

	h.RunPipeline(nil, []string{"link", "--symlink-fallback"}, "/data")

	expected := testfs.FileTree{
		ExitCode: 0,
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"root.txt"}},
				},
			},
			{
				MountPoint: "/data/subdir",
				Symlinks: []testfs.Symlink{
					{Path: "nested.txt", Target: "../root.txt"},
				},
			},
		},
	}
	h.Assert(expected)
}

// =============================================================================
// Section 9.4: Keep-Priority E2E Tests
// =============================================================================

// TestE2EKeepPriorityFirstWins tests that the first --keep-prefix wins.
func TestE2EKeepPriorityFirstWins(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/priority",
				Files: []testfs.File{
					{Path: []string{"source.txt"}, Chunks: []testfs.Chunk{{Pattern: 'S', Size: "1KiB"}}},
				},
			},
			{
				MountPoint: "/secondary",
				Files: []testfs.File{
					{Path: []string{"target.txt"}, Chunks: []testfs.Chunk{{Pattern: 'S', Size: "1KiB"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)

	h.RunPipeline(
		[]string{"--keep-prefix", "/priority"},
		[]string{"link", "--symlink-fallback", "--keep-prefix", "/priority"},
		"/priority", "/secondary",
	)

	expected := testfs.FileTree{
		ExitCode: 0,
		Volumes: []testfs.Volume{
			{
				MountPoint: "/priority",
				Files: []testfs.File{
					{Path: []string{"source.txt"}},
				},
			},
			{
				MountPoint: "/secondary",
				Symlinks: []testfs.Symlink{
					{Path: "target.txt", Target: "../priority/source.txt"},
				},
			},
		},
	}
	h.Assert(expected)
}

// TestE2EMinSizeFlag tests --min-size filtering in E2E.
func TestE2EMinSizeFlag(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"small_a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'S', Size: "100"}}},
					{Path: []string{"small_b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'S', Size: "100"}}},
					{Path: []string{"large_a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'L', Size: "10KiB"}}},
					{Path: []string{"large_b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'L', Size: "10KiB"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)

	h.RunPipeline([]string{"--min-size", "1KiB"}, nil, "/data")

	expected := testfs.FileTree{
		ExitCode: 0,
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"small_a.txt"}},
					{Path: []string{"small_b.txt"}},
					{Path: []string{"large_a.txt", "large_b.txt"}},
				},
			},
		},
	}
	h.Assert(expected)
}

// TestE2EExcludePattern tests --exclude pattern filtering.
func TestE2EExcludePattern(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"keep_a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'K', Size: "1KiB"}}},
					{Path: []string{"keep_b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'K', Size: "1KiB"}}},
					{Path: []string{"skip_a.bak"}, Chunks: []testfs.Chunk{{Pattern: 'K', Size: "1KiB"}}},
					{Path: []string{"skip_b.bak"}, Chunks: []testfs.Chunk{{Pattern: 'K', Size: "1KiB"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)

	h.RunPipeline([]string{"--exclude", "*.bak"}, nil, "/data")

	expected := testfs.FileTree{
		ExitCode: 0,
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"keep_a.txt", "keep_b.txt"}},
					{Path: []string{"skip_a.bak"}},
					{Path: []string{"skip_b.bak"}},
				},
			},
		},
	}
	h.Assert(expected)
}

// =============================================================================
// Section 9.5: Remove and Move E2E Tests
// =============================================================================

// TestE2ERemove checks that remove deletes every redundant file outright,
// leaving only the keeper behind.
func TestE2ERemove(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1KiB"}}},
					{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1KiB"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)

	result := h.RunPipeline(nil, []string{"remove"}, "/data")
	if result.ExitCode != 0 {
		t.Fatalf("remove exited %d, stderr: %s", result.ExitCode, result.Stderr)
	}

	expected := testfs.FileTree{
		ExitCode: 0,
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt"}},
				},
			},
		},
	}
	h.Assert(expected)
}
