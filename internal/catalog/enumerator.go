// Package catalog implements the catalog enumerator and backup-chain
// analyzer: listing instances and their backups from the on-disk layout,
// resolving each incremental backup's parent link, and walking those
// links to classify chain health.
package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/cybernetics/pg-probackup/internal/catalogpath"
	"github.com/cybernetics/pg-probackup/internal/fsops"
	"github.com/cybernetics/pg-probackup/internal/model"
	"github.com/cybernetics/pg-probackup/internal/record"
)

// ListInstances reads the immediate subdirectories of
// "{catalogRoot}/backups", skipping regular files and dot entries. An
// empty result is logged as a warning, not treated as an error.
func ListInstances(ctx context.Context, ops fsops.FileOps, loc fsops.Location, catalogRoot string, logger model.Logger) ([]string, error) {
	root, err := catalogpath.BackupsRoot(catalogRoot)
	if err != nil {
		return nil, err
	}

	entries, err := ops.ReadDir(ctx, loc, root)
	if err != nil {
		return nil, model.Fatalf("catalog: read instances dir %s: %w", root, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}

	if len(names) == 0 {
		logger.Warning("no instances found", "catalog_root", catalogRoot)
	}
	return names, nil
}

// ListBackups iterates the subdirectories of an instance's backup
// directory, reads each backup's control file, resolves parent links by
// binary search over the resulting descending-by-id sorted slice, and
// optionally filters to a single id. A backup directory whose control
// file is missing or invalid still yields a minimal placeholder record
// (id decoded from the directory name) so purging logic can see it.
func ListBackups(ctx context.Context, ops fsops.FileOps, loc fsops.Location, catalogRoot, instance string, filterID model.BackupID, logger model.Logger) ([]*model.BackupRecord, error) {
	instPath, err := catalogpath.InstancePath(catalogRoot, instance)
	if err != nil {
		return nil, err
	}

	entries, err := ops.ReadDir(ctx, loc, instPath)
	if err != nil {
		return nil, model.Fatalf("catalog: read instance dir %s: %w", instPath, err)
	}

	var list []*model.BackupRecord
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}

		dirID, idErr := catalogpath.BackupIDFromDirName(e.Name())
		if idErr != nil {
			logger.Warning("skipping unparseable backup directory", "instance", instance, "dir", e.Name())
			continue
		}

		controlPath, err := catalogpath.ControlFilePath(catalogRoot, instance, dirID)
		if err != nil {
			return nil, err
		}

		rec, found, err := record.ReadControl(ctx, ops, loc, controlPath, logger)
		if err != nil {
			return nil, err
		}
		if !found {
			rec = &model.BackupRecord{ID: dirID, Status: model.StatusInvalid}
		} else {
			if controlID := model.BackupID(rec.StartTime.Unix()); !rec.StartTime.IsZero() && controlID != dirID {
				logger.Warning("backup directory name disagrees with control file start-time", "instance", instance, "dir", e.Name(), "control_id", controlID.Base36())
			}
			rec.ID = dirID
		}

		if filterID != model.InvalidBackupID && rec.ID != filterID {
			continue
		}
		list = append(list, rec)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	resolveParentLinks(list)

	return list, nil
}

// resolveParentLinks binary-searches, for every non-FULL record, the
// descending-by-id sorted list for its ParentID and attaches ParentLink.
func resolveParentLinks(list []*model.BackupRecord) {
	for _, rec := range list {
		if rec.Mode == model.ModeFull || rec.ParentID == model.InvalidBackupID {
			continue
		}
		if parent := findByID(list, rec.ParentID); parent != nil {
			rec.ParentLink = parent
		}
	}
}

// findByID binary-searches a descending-by-id sorted list for id.
func findByID(list []*model.BackupRecord, id model.BackupID) *model.BackupRecord {
	lo, hi := 0, len(list)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case list[mid].ID == id:
			return list[mid]
		case list[mid].ID > id:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return nil
}
