package dedupe

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/kpagano/fclones/internal/types"
)

func mustWrite(t *testing.T, path string, content []byte) *types.Path {
	t.Helper()
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return types.Intern(path)
}

func execOpts() ExecutorOptions {
	return ExecutorOptions{Log: newTestLogger()}
}

// TestExecuteDryRunTouchesNothing implements the dry-run summary scenario:
// a dry run never writes, and reports the exact file/byte totals.
func TestExecuteDryRunTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	a := mustWrite(t, filepath.Join(dir, "a"), []byte("dup"))
	b := mustWrite(t, filepath.Join(dir, "b"), []byte("dup"))

	plan := &Plan{}
	plan.add(Operation{Kind: HardLink, Keep: a, Target: b, Size: 3})

	opts := execOpts()
	opts.DryRun = true
	summary := Execute(context.Background(), plan, opts)

	if !summary.DryRun {
		t.Error("expected DryRun summary")
	}
	if summary.FilesProcessed != 1 || summary.BytesReclaimed != 3 {
		t.Errorf("summary = %+v, want 1 file / 3 bytes", summary)
	}

	info, err := os.Lstat(b.String())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t.Error("dry run must not have replaced the target file")
	}
	if info.Size() != 3 {
		t.Error("dry run must not have modified the target file's contents")
	}
}

func TestExecuteHardlinkReplacesTarget(t *testing.T) {
	dir := t.TempDir()
	a := mustWrite(t, filepath.Join(dir, "a"), []byte("dup"))
	b := mustWrite(t, filepath.Join(dir, "b"), []byte("dup"))

	plan := &Plan{}
	plan.add(Operation{Kind: HardLink, Keep: a, Target: b, Size: 3})

	summary := Execute(context.Background(), plan, execOpts())
	if summary.FilesProcessed != 1 || summary.Errors != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	infoA, err := os.Stat(a.String())
	if err != nil {
		t.Fatal(err)
	}
	infoB, err := os.Stat(b.String())
	if err != nil {
		t.Fatal(err)
	}
	statA := infoA.Sys().(*syscall.Stat_t)
	statB := infoB.Sys().(*syscall.Stat_t)
	if statA.Ino != statB.Ino {
		t.Error("expected a and b to share an inode after hardlinking")
	}
}

func TestExecuteRemoveDeletesTarget(t *testing.T) {
	dir := t.TempDir()
	a := mustWrite(t, filepath.Join(dir, "a"), []byte("dup"))
	b := mustWrite(t, filepath.Join(dir, "b"), []byte("dup"))

	plan := &Plan{}
	plan.add(Operation{Kind: Remove, Keep: a, Target: b, Size: 3})

	summary := Execute(context.Background(), plan, execOpts())
	if summary.FilesProcessed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if _, err := os.Stat(b.String()); !os.IsNotExist(err) {
		t.Error("expected target to be removed")
	}
	if _, err := os.Stat(a.String()); err != nil {
		t.Error("expected keeper to survive")
	}
}

func TestExecuteMoveRelocatesTarget(t *testing.T) {
	dir := t.TempDir()
	destDir := filepath.Join(dir, "moved")
	if err := os.Mkdir(destDir, 0o755); err != nil {
		t.Fatal(err)
	}
	a := mustWrite(t, filepath.Join(dir, "a"), []byte("dup"))
	b := mustWrite(t, filepath.Join(dir, "b"), []byte("dup"))

	plan := &Plan{}
	plan.add(Operation{Kind: Move, Keep: a, Target: b, Size: 3})

	opts := execOpts()
	opts.MoveTarget = destDir
	summary := Execute(context.Background(), plan, opts)
	if summary.FilesProcessed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if _, err := os.Stat(b.String()); !os.IsNotExist(err) {
		t.Error("expected original location to be empty after move")
	}
	if _, err := os.Stat(filepath.Join(destDir, "b")); err != nil {
		t.Error("expected file to exist at the move destination")
	}
}

func TestResultStringFormatsByKind(t *testing.T) {
	op := Operation{Kind: HardLink, Keep: types.Intern("/a"), Target: types.Intern("/b")}
	r := Result{Op: op}
	if got := r.String(); got == "" {
		t.Error("expected non-empty result string")
	}
}
