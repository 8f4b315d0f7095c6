// Package lock implements the per-backup exclusive lock files the
// catalog uses for intra-host concurrency control: a PID-stamped file
// with stale-owner detection, released by a hook that runs when the
// process receives SIGINT or SIGTERM.
package lock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/cybernetics/pg-probackup/internal/fsops"
	"github.com/cybernetics/pg-probackup/internal/model"
)

// maxStaleRetries bounds the create/probe/unlink loop so a pathological
// lock directory can't hang the process forever.
const maxStaleRetries = 100

// heldLock is one lock file currently held by this process, along with
// the FileOps/Location it was acquired through so the exit hook and
// ReleaseAll can release it without needing a caller-supplied context.
type heldLock struct {
	path string
	ops  fsops.FileOps
	loc  fsops.Location
}

// registry is the process-wide singleton tracking held lock files and
// whether the exit hook has been installed, per the "Process-global
// lock state" design note.
type registry struct {
	mu       sync.Mutex
	held     []heldLock
	hookOnce sync.Once
}

var global registry

// Acquire attempts to take the exclusive lock at path, following the
// algorithm:
//
//  1. create-if-absent, fail-if-exists.
//  2. on AlreadyExists/PermissionDenied, inspect the existing file's PID.
//  3. a PID equal to our own or our parent's is stale.
//  4. otherwise probe the PID with a zero-signal liveness check.
//  5. alive -> return (false, nil); dead -> unlink and retry; unreadable
//     or corrupt -> fatal *model.CatalogError.
//
// On success the path is registered with the signal exit hook and
// Acquire returns (true, nil).
func Acquire(ctx context.Context, ops fsops.FileOps, loc fsops.Location, path string, logger model.Logger) (bool, error) {
	self := os.Getpid()
	parent := os.Getppid()

	for attempt := 0; attempt < maxStaleRetries; attempt++ {
		f, err := ops.CreateExclusive(ctx, loc, path)
		if err == nil {
			if werr := writeAndClose(f, self); werr != nil {
				_ = ops.Remove(ctx, loc, path)
				return false, model.Fatalf("lock: write %s: %w", path, werr)
			}
			register(ops, loc, path)
			return true, nil
		}

		if !os.IsExist(err) && !os.IsPermission(err) {
			return false, model.Fatalf("lock: create %s: %w", path, err)
		}

		stale, pid, rerr := inspectStale(ctx, ops, loc, path, self, parent)
		if rerr != nil {
			if errors.Is(rerr, fs.ErrNotExist) {
				// Disappeared between the failed create and our read; retry.
				continue
			}
			return false, rerr
		}

		if !stale {
			if alive, perr := isAlive(pid); perr != nil {
				return false, model.Fatalf("lock: probe pid %d for %s: %w", pid, path, perr)
			} else if alive {
				logger.Warning("lock held by live process", "path", path, "pid", pid)
				return false, nil
			}
		}

		if err := ops.Remove(ctx, loc, path); err != nil && !os.IsNotExist(err) {
			return false, model.Fatalf("lock: unlink stale %s: %w", path, err)
		}
	}

	return false, model.Fatalf("lock: %s: exceeded %d stale-lock retries", path, maxStaleRetries)
}

// inspectStale opens the existing lock file, parses its PID, and reports
// whether it is stale (owned by us or our parent). A corrupt lock file
// (empty or non-positive PID) is a fatal error.
func inspectStale(ctx context.Context, ops fsops.FileOps, loc fsops.Location, path string, self, parent int) (stale bool, pid int, err error) {
	f, err := ops.Open(ctx, loc, path)
	if err != nil {
		return false, 0, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, f, 64); err != nil && err != io.EOF {
		return false, 0, err
	}
	line := strings.TrimSpace(buf.String())
	if line == "" {
		return false, 0, model.Fatalf("lock: %s: empty lock file", path)
	}

	// Only the first line is significant; trim anything after a newline
	// the read above may have captured.
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	pid, perr := strconv.Atoi(line)
	if perr != nil || pid <= 0 {
		return false, 0, model.Fatalf("lock: %s: invalid pid %q", path, line)
	}

	if pid == self || pid == parent {
		return true, pid, nil
	}
	return false, pid, nil
}

// isAlive probes pid with a zero signal: success means the process is
// alive, ESRCH means it's dead, anything else (typically EPERM) is a
// fatal probe failure.
func isAlive(pid int) (bool, error) {
	err := unix.Kill(pid, 0)
	if err == nil {
		return true, nil
	}
	if err == unix.ESRCH {
		return false, nil
	}
	return false, err
}

func writeAndClose(w io.WriteCloser, pid int) error {
	if _, err := fmt.Fprintf(w, "%d\n", pid); err != nil {
		_ = w.Close()
		return err
	}
	if s, ok := w.(fsops.Syncer); ok {
		if err := s.Sync(); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

func register(ops fsops.FileOps, loc fsops.Location, path string) {
	global.mu.Lock()
	global.held = append(global.held, heldLock{path: path, ops: ops, loc: loc})
	global.mu.Unlock()
	installExitHook()
}

// installExitHook installs, exactly once per process, a best-effort
// handler for SIGINT and SIGTERM that unlinks every held lock file and
// then exits with status 1. A process that ends without one of those
// signals does not run it; its lock files stay on disk. It is safe to call
// repeatedly and tolerates being triggered after the held list has
// already drained.
func installExitHook() {
	global.hookOnce.Do(func() {
		c := make(chanSignal, 1)
		notifySignals(c)
		go func() {
			<-c
			ReleaseAll()
			os.Exit(1)
		}()
	})
}

// ReleaseAll unlinks every currently-held lock file, ignoring
// already-missing files. It is called by the exit hook and may also be
// called directly by a caller that wants to release locks without
// terminating (e.g. in tests).
func ReleaseAll() {
	global.mu.Lock()
	locks := global.held
	global.held = nil
	global.mu.Unlock()

	ctx := context.Background()
	for _, hl := range locks {
		if err := hl.ops.Remove(ctx, hl.loc, hl.path); err != nil && !os.IsNotExist(err) {
			// Best-effort: the exit hook never fails the process over a
			// cleanup error.
			continue
		}
	}
}

// Release unlinks a single lock file and removes it from the held list,
// for callers that finish with a backup before process exit.
func Release(ctx context.Context, ops fsops.FileOps, loc fsops.Location, path string) error {
	global.mu.Lock()
	for i, hl := range global.held {
		if hl.path == path {
			global.held = append(global.held[:i], global.held[i+1:]...)
			break
		}
	}
	global.mu.Unlock()

	if err := ops.Remove(ctx, loc, path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: release %s: %w", path, err)
	}
	return nil
}

// AcquireBulk locks every path in paths[lo:hi] (inclusive), walking from
// the highest index toward the lowest.
// The first failure aborts the whole operation; locks already taken
// remain held until process exit or an explicit Release.
func AcquireBulk(ctx context.Context, ops fsops.FileOps, loc fsops.Location, paths []string, lo, hi int, logger model.Logger) (bool, error) {
	for i := hi; i >= lo; i-- {
		ok, err := Acquire(ctx, ops, loc, paths[i], logger)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
