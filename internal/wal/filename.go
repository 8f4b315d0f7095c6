// Package wal reconstructs the timeline forest from a sorted listing of an
// instance's WAL archive directory: parsing WAL segment and history file
// names, detecting gaps within a timeline, and attaching backups and
// parent links across timeline switches.
package wal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cybernetics/pg-probackup/internal/model"
)

// EntryKind classifies one name in a WAL archive directory listing.
type EntryKind int

const (
	// KindUnknown marks a name that matched none of the recognized
	// patterns; the caller warns and skips it.
	KindUnknown EntryKind = iota
	// KindSegment is a regular (possibly .gz-compressed) WAL segment.
	KindSegment
	// KindPartial is a ".partial" in-progress segment.
	KindPartial
	// KindBackupHistory is a "...24hex.backup" per-backup history file:
	// informational, attached but not otherwise interpreted.
	KindBackupHistory
	// KindTimelineHistory is a "TTTTTTTT.history" timeline history file.
	KindTimelineHistory
)

// ParsedName is the result of classifying one WAL archive directory
// entry.
type ParsedName struct {
	Kind EntryKind

	// Valid when Kind is KindSegment, KindPartial, or KindBackupHistory.
	TLI      model.TimelineID
	LogID    uint64
	SegID    uint64
	Filename string

	// Valid when Kind is KindTimelineHistory.
	HistoryTLI model.TimelineID
}

// segmentNameLen is the length of the bare 24-hex-digit segment name
// (8 hex timeline + 8 hex logical WAL file + 8 hex segment).
const segmentNameLen = 24

// ParseName classifies a single WAL archive directory entry:
// a bare 24-hex name is a regular segment; ".gz" is a compressed regular
// segment; ".partial" is an in-progress segment; "...24hex.backup" is a
// per-backup history file; "TTTTTTTT.history" is a timeline history
// file. Anything else is KindUnknown.
func ParseName(name string) (ParsedName, error) {
	if strings.HasSuffix(name, ".history") {
		base := strings.TrimSuffix(name, ".history")
		if len(base) != 8 {
			return ParsedName{Kind: KindUnknown}, fmt.Errorf("wal: malformed history file name %q", name)
		}
		tli, err := parseHex32(base)
		if err != nil {
			return ParsedName{Kind: KindUnknown}, fmt.Errorf("wal: malformed history file name %q: %w", name, err)
		}
		return ParsedName{Kind: KindTimelineHistory, HistoryTLI: model.TimelineID(tli)}, nil
	}

	base := name
	switch {
	case strings.HasSuffix(base, ".backup"):
		base = strings.TrimSuffix(base, ".backup")
		if len(base) != segmentNameLen {
			return ParsedName{Kind: KindUnknown}, fmt.Errorf("wal: malformed backup-history name %q", name)
		}
		tli, logID, segID, err := parseSegmentBase(base)
		if err != nil {
			return ParsedName{Kind: KindUnknown}, err
		}
		return ParsedName{Kind: KindBackupHistory, TLI: tli, LogID: logID, SegID: segID, Filename: name}, nil

	case strings.HasSuffix(base, ".partial"):
		base = strings.TrimSuffix(base, ".partial")
		if len(base) != segmentNameLen {
			return ParsedName{Kind: KindUnknown}, fmt.Errorf("wal: malformed partial segment name %q", name)
		}
		tli, logID, segID, err := parseSegmentBase(base)
		if err != nil {
			return ParsedName{Kind: KindUnknown}, err
		}
		return ParsedName{Kind: KindPartial, TLI: tli, LogID: logID, SegID: segID, Filename: name}, nil

	case strings.HasSuffix(base, ".gz"):
		base = strings.TrimSuffix(base, ".gz")
		if len(base) != segmentNameLen {
			return ParsedName{Kind: KindUnknown}, fmt.Errorf("wal: malformed compressed segment name %q", name)
		}
		tli, logID, segID, err := parseSegmentBase(base)
		if err != nil {
			return ParsedName{Kind: KindUnknown}, err
		}
		return ParsedName{Kind: KindSegment, TLI: tli, LogID: logID, SegID: segID, Filename: name}, nil

	case len(base) == segmentNameLen:
		tli, logID, segID, err := parseSegmentBase(base)
		if err != nil {
			return ParsedName{Kind: KindUnknown}, err
		}
		return ParsedName{Kind: KindSegment, TLI: tli, LogID: logID, SegID: segID, Filename: name}, nil
	}

	return ParsedName{Kind: KindUnknown}, fmt.Errorf("wal: unrecognized archive entry name %q", name)
}

func parseSegmentBase(base string) (model.TimelineID, uint64, uint64, error) {
	if len(base) != segmentNameLen {
		return 0, 0, 0, fmt.Errorf("wal: segment name %q is not %d hex digits", base, segmentNameLen)
	}
	tli, err := parseHex32(base[0:8])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("wal: segment name %q: %w", base, err)
	}
	logID, err := strconv.ParseUint(base[8:16], 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("wal: segment name %q: %w", base, err)
	}
	segID, err := strconv.ParseUint(base[16:24], 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("wal: segment name %q: %w", base, err)
	}
	return model.TimelineID(tli), logID, segID, nil
}

func parseHex32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// SegNoOf computes the absolute segment number log*segsPerLog + seg for a
// parsed segment/partial/backup-history name.
func (p ParsedName) SegNoOf(segsPerLog uint64) model.SegNo {
	return model.SegNo(p.LogID*segsPerLog + p.SegID)
}
