package catalog

import "github.com/cybernetics/pg-probackup/internal/model"

// ChainCode classifies the result of walking a backup's parent chain.
type ChainCode int

const (
	// ChainMissingParent means the walk ended at a non-FULL record whose
	// parent is absent from the list.
	ChainMissingParent ChainCode = iota
	// ChainInvalidAncestor means the chain reaches its FULL root but some
	// ancestor along the way is not OK/DONE.
	ChainInvalidAncestor
	// ChainOK means every ancestor up to and including the FULL root is
	// valid.
	ChainOK
)

// ScanParentChain walks b's ParentLink to the root, classifying the
// chain's health. The witness is the record that explains the code: the
// non-FULL record with a missing parent (code 0), the oldest invalid
// ancestor seen (code 1), or the FULL root itself (code 2).
func ScanParentChain(b *model.BackupRecord) (ChainCode, *model.BackupRecord) {
	var invalid *model.BackupRecord
	cur := b
	for {
		if !cur.IsValid() {
			invalid = cur
		}
		if cur.IsFull() {
			if invalid != nil {
				return ChainInvalidAncestor, invalid
			}
			return ChainOK, cur
		}
		if cur.ParentLink == nil {
			return ChainMissingParent, cur
		}
		cur = cur.ParentLink
	}
}

// FindParentFullBackup walks b's ParentLink to the end of the chain and
// returns it only if that terminal record is a FULL backup.
func FindParentFullBackup(b *model.BackupRecord) *model.BackupRecord {
	cur := b
	for cur.ParentLink != nil {
		cur = cur.ParentLink
	}
	if cur.IsFull() {
		return cur
	}
	return nil
}

// IsParent reports whether parentStartTime identifies an ancestor of
// child along its ParentLink chain. If inclusive is true, child itself
// counts as its own ancestor.
func IsParent(parentStartTime model.BackupID, child *model.BackupRecord, inclusive bool) bool {
	if inclusive && child.ID == parentStartTime {
		return true
	}
	for cur := child.ParentLink; cur != nil; cur = cur.ParentLink {
		if cur.ID == parentStartTime {
			return true
		}
	}
	return false
}

// IsProlific reports whether at least two valid (OK/DONE) records in list
// reference target.ID as their parent.
func IsProlific(list []*model.BackupRecord, target *model.BackupRecord) bool {
	count := 0
	for _, rec := range list {
		if rec.IsValid() && rec.ParentID == target.ID {
			count++
			if count >= 2 {
				return true
			}
		}
	}
	return false
}

// CatalogGetLastDataBackup finds the latest valid descendant of the
// latest valid FULL backup on timeline tli, skipping currentID. list must
// be sorted descending by id. Candidates whose chain is broken or
// contains an invalid ancestor are logged and skipped via logger.
func CatalogGetLastDataBackup(list []*model.BackupRecord, tli model.TimelineID, currentID model.BackupID, logger model.Logger) *model.BackupRecord {
	var full *model.BackupRecord
	for _, rec := range list {
		if rec.IsFull() && rec.IsValid() && rec.TLI == tli {
			full = rec
			break
		}
	}
	if full == nil {
		return nil
	}

	for _, rec := range list {
		if rec.ID == currentID {
			continue
		}
		if !rec.IsValid() {
			continue
		}

		code, witness := ScanParentChain(rec)
		switch code {
		case ChainMissingParent:
			logger.Warning("broken parent chain", "backup_id", rec.ID.Base36(), "missing_parent", witness.ParentID.Base36())
			continue
		case ChainInvalidAncestor:
			logger.Warning("invalid ancestor in parent chain", "backup_id", rec.ID.Base36(), "invalid_ancestor", witness.ID.Base36())
			continue
		}

		if IsParent(full.ID, rec, true) {
			return rec
		}
	}

	return nil
}
