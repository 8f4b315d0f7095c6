package model

import "time"

// BackupRecord is a single backup's in-memory control record, mirroring
// the on-disk backup.control file described in the catalog's control-file
// grammar.
type BackupRecord struct {
	ID       BackupID
	Mode     BackupMode
	Status   BackupStatus
	TLI      TimelineID
	ParentID BackupID // zero means "no parent" (only valid for FULL)

	StartLSN LSN
	StopLSN  LSN

	StartTime    time.Time
	EndTime      time.Time
	MergeTime    time.Time
	RecoveryTime time.Time
	RecoveryXID  uint64

	DataBytes          int64
	WalBytes           int64
	UncompressedBytes  int64
	PgdataBytes        int64
	BlockSize          int
	WalBlockSize       int
	ChecksumVersion    int
	CompressAlg        CompressAlg
	CompressLevel      int
	Stream             bool
	FromReplica        bool
	ProgramVersion     string
	ServerVersion      string
	PrimaryConnInfo    string
	ExternalDirs       []string

	// ParentLink is a non-owning pointer to the parent record, resolved by
	// the catalog enumerator after sorting the instance's backup list. It
	// is never serialized.
	ParentLink *BackupRecord
}

// IsFull reports whether this backup is self-contained.
func (b *BackupRecord) IsFull() bool {
	return b.Mode == ModeFull
}

// IsValid reports whether this backup's status counts as valid for
// dependency and retention purposes.
func (b *BackupRecord) IsValid() bool {
	return b.Status.IsValid()
}
