// Package catalogpath builds the deterministic filesystem paths used by
// the rest of the catalog engine from a catalog root, an instance name, a
// backup id, and optional sub-directory components.
package catalogpath

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cybernetics/pg-probackup/internal/model"
)

// MaxPathLength bounds any path this package constructs. 4096 matches the
// common PATH_MAX on Linux and comfortably exceeds what any catalog layout
// needs.
const MaxPathLength = 4096

// ErrPathTooLong is returned when a constructed path would exceed
// MaxPathLength.
type ErrPathTooLong struct {
	Path string
}

func (e *ErrPathTooLong) Error() string {
	return fmt.Sprintf("catalogpath: path exceeds %d bytes: %.64s...", MaxPathLength, e.Path)
}

// BackupsRoot returns "{catalogRoot}/backups".
func BackupsRoot(catalogRoot string) (string, error) {
	return join(catalogRoot, "backups")
}

// WALRoot returns "{catalogRoot}/wal".
func WALRoot(catalogRoot string) (string, error) {
	return join(catalogRoot, "wal")
}

// InstancePath returns "{catalogRoot}/backups/{instance}".
func InstancePath(catalogRoot, instance string) (string, error) {
	return join(catalogRoot, "backups", instance)
}

// InstanceWALPath returns "{catalogRoot}/wal/{instance}".
func InstanceWALPath(catalogRoot, instance string) (string, error) {
	return join(catalogRoot, "wal", instance)
}

// BackupPath returns "{catalogRoot}/backups/{instance}/{base36(id)}",
// optionally joined with further sub-directory components.
func BackupPath(catalogRoot, instance string, id model.BackupID, subdirs ...string) (string, error) {
	parts := append([]string{catalogRoot, "backups", instance, id.Base36()}, subdirs...)
	return join(parts...)
}

// ControlFilePath returns the path of a backup's backup.control file.
func ControlFilePath(catalogRoot, instance string, id model.BackupID) (string, error) {
	return BackupPath(catalogRoot, instance, id, "backup.control")
}

// FileListPath returns the path of a backup's backup_content.control file.
func FileListPath(catalogRoot, instance string, id model.BackupID) (string, error) {
	return BackupPath(catalogRoot, instance, id, "backup_content.control")
}

// LockFilePath returns the path of a backup's lock file.
func LockFilePath(catalogRoot, instance string, id model.BackupID) (string, error) {
	return BackupPath(catalogRoot, instance, id, "backup.pid")
}

// DatabasePath returns the root of a backup's copied data directory tree.
func DatabasePath(catalogRoot, instance string, id model.BackupID) (string, error) {
	return BackupPath(catalogRoot, instance, id, "database")
}

// ExternalDirPath returns the root of the n-th external directory copied
// alongside a backup.
func ExternalDirPath(catalogRoot, instance string, id model.BackupID, n int) (string, error) {
	return BackupPath(catalogRoot, instance, id, "external_directories", fmt.Sprintf("external_%d", n))
}

func join(parts ...string) (string, error) {
	p := filepath.Join(parts...)
	if len(p) > MaxPathLength {
		return "", &ErrPathTooLong{Path: p}
	}
	return p, nil
}

// BackupIDFromDirName parses a backup directory's basename back into a
// BackupID, for callers walking a backups/{instance} directory.
func BackupIDFromDirName(name string) (model.BackupID, error) {
	name = strings.TrimSuffix(name, "/")
	return model.ParseBackupID(name)
}
