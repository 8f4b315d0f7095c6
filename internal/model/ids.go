// Package model defines the core catalog data model: backup identifiers,
// log sequence numbers, backup records, and the enums that classify them.
// It has no filesystem or logging dependency so it can be imported by
// every other catalog package without creating import cycles.
package model

import (
	"fmt"
	"strconv"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// BackupID is a backup's monotonic creation timestamp, seconds since the
// Unix epoch. It is rendered externally as an unpadded base-36 string and
// is unique within an instance.
type BackupID uint64

// InvalidBackupID is the sentinel used before a backup record is
// initialized, and as the "no parent" marker for FULL backups.
const InvalidBackupID BackupID = 0

// Base36 renders the id as an unpadded lowercase base-36 string, matching
// the on-disk directory basename convention.
func (id BackupID) Base36() string {
	return strconv.FormatUint(uint64(id), 36)
}

// String implements fmt.Stringer.
func (id BackupID) String() string {
	return id.Base36()
}

// ParseBackupID decodes a base-36 string produced by Base36 back into a
// BackupID. It rejects empty input and characters outside the base-36
// alphabet.
func ParseBackupID(s string) (BackupID, error) {
	if s == "" {
		return 0, fmt.Errorf("model: empty backup id")
	}
	v, err := strconv.ParseUint(s, 36, 64)
	if err != nil {
		return 0, fmt.Errorf("model: invalid backup id %q: %w", s, err)
	}
	return BackupID(v), nil
}

// LSN is a 64-bit PostgreSQL-style log sequence number. Zero is the
// invalid sentinel.
type LSN uint64

// InvalidLSN is the sentinel value meaning "no LSN recorded".
const InvalidLSN LSN = 0

// String renders the LSN as "%X/%X" over its high and low 32-bit halves,
// matching the wire format used by backup.control and WAL tooling.
func (l LSN) String() string {
	return fmt.Sprintf("%X/%X", uint32(l>>32), uint32(l))
}

// ParseLSN parses the "%X/%X" rendering produced by String back into an
// LSN.
func ParseLSN(s string) (LSN, error) {
	var hi, lo uint32
	n, err := fmt.Sscanf(s, "%X/%X", &hi, &lo)
	if err != nil || n != 2 {
		return 0, fmt.Errorf("model: invalid lsn %q", s)
	}
	return LSN(uint64(hi)<<32 | uint64(lo)), nil
}

// TimelineID identifies a WAL timeline. Zero never appears on a real
// timeline; it is used as a "no parent" marker for the root timeline.
type TimelineID uint32

// SegNo is an absolute WAL segment number: log*segmentsPerLog + seg.
type SegNo uint64

// SegInterval is an inclusive range of WAL segment numbers.
type SegInterval struct {
	Begin SegNo
	End   SegNo
}

// Contains reports whether segno falls within the inclusive interval.
func (i SegInterval) Contains(segno SegNo) bool {
	return segno >= i.Begin && segno <= i.End
}
