package wal

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/cybernetics/pg-probackup/internal/fsops"
	"github.com/cybernetics/pg-probackup/internal/model"
)

// XlogFile is one archived WAL segment or partial segment as seen by the
// retention planner: its absolute segment number, its on-disk filename,
// and a Keep flag the planner fills in.
type XlogFile struct {
	Filename string
	SegNo    model.SegNo
	Size     int64
	Partial  bool
	Keep     bool
}

// TimelineInfo is one reconstructed WAL timeline: its segment range,
// gaps, archived files, and the backups that belong to it.
type TimelineInfo struct {
	TLI        model.TimelineID
	ParentTLI  model.TimelineID
	ParentLink *TimelineInfo

	Switchpoint model.LSN

	BeginSegNo model.SegNo
	EndSegNo   model.SegNo

	NXlogFiles int
	Size       int64

	LostSegments []model.SegInterval
	XlogFilelist []XlogFile

	Backups       []*model.BackupRecord
	OldestBackup  *model.BackupRecord
	ClosestBackup *model.BackupRecord

	AnchorLSN    model.LSN
	AnchorTLI    model.TimelineID
	KeepSegments []model.SegInterval

	hasSegment bool
}

// Forest is the set of reconstructed timelines in arrival order (the
// order their first segment or history file was encountered), plus a
// lookup index by timeline id.
type Forest struct {
	List  []*TimelineInfo
	Index map[model.TimelineID]*TimelineInfo
}

func (f *Forest) getOrCreate(tli model.TimelineID) *TimelineInfo {
	if t, ok := f.Index[tli]; ok {
		return t
	}
	t := &TimelineInfo{TLI: tli}
	f.Index[tli] = t
	f.List = append(f.List, t)
	return t
}

// Reconstruct builds the timeline forest from the sorted-by-name listing
// of walDir: segment/partial
// entries are grouped into per-timeline ranges with gap detection,
// ".history" files are parsed to resolve parent links, and backups are
// attached and used to compute each timeline's oldest/closest backup.
func Reconstruct(ctx context.Context, ops fsops.FileOps, loc fsops.Location, walDir string, cfg model.InstanceConfig, backups []*model.BackupRecord, hp HistoryParser, logger model.Logger) (*Forest, error) {
	entries, err := ops.ReadDir(ctx, loc, walDir)
	if err != nil {
		return nil, model.Fatalf("wal: read archive dir %s: %w", walDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	forest := &Forest{Index: make(map[model.TimelineID]*TimelineInfo)}
	segsPerLog := cfg.SegmentsPerLog()

	var historyNames []string
	var current *TimelineInfo

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parsed, err := ParseName(name)
		if err != nil {
			logger.Warning("unrecognized WAL archive entry", "name", name, "error", err.Error())
			continue
		}

		switch parsed.Kind {
		case KindTimelineHistory:
			historyNames = append(historyNames, name)

		case KindBackupHistory:
			// Informational: attached to the catalog but not used in
			// segment-range bookkeeping.

		case KindSegment, KindPartial:
			if current == nil || current.TLI != parsed.TLI {
				current = forest.getOrCreate(parsed.TLI)
			}
			segno := parsed.SegNoOf(segsPerLog)

			size, statErr := statSize(ctx, ops, loc, filepath.Join(walDir, name))
			if statErr != nil {
				logger.Warning("could not stat WAL file", "name", name, "error", statErr.Error())
			}

			applySegment(current, segno, parsed.Kind == KindPartial, name, size)
		}
	}

	for _, name := range historyNames {
		histEntries, err := hp.Parse(ctx, ops, loc, filepath.Join(walDir, name))
		if err != nil {
			logger.Warning("could not parse history file", "name", name, "error", err.Error())
			continue
		}
		parsed, err := ParseName(name)
		if err != nil {
			continue
		}
		t := forest.getOrCreate(parsed.HistoryTLI)

		if len(histEntries) < 1 {
			logger.Warning("history file has no parent entry", "name", name)
			continue
		}
		parent := histEntries[len(histEntries)-1]
		t.ParentTLI = parent.TLI
		t.Switchpoint = parent.Switchpoint
		if p, ok := forest.Index[parent.TLI]; ok {
			t.ParentLink = p
		}
	}

	attachBackups(forest, backups)

	return forest, nil
}

// applySegment updates a timeline's begin/end segno and lost_segments per
// the gap-detection rule: a new segno equal to EndSegNo is a duplicate
// compressed/uncompressed pair (no gap); equal to EndSegNo+1 is normal
// progression; anything else opens a lost_segments interval covering the
// hole. n_xlog_files and size only count full (non-partial) segments.
func applySegment(t *TimelineInfo, segno model.SegNo, partial bool, name string, size int64) {
	if !t.hasSegment {
		t.BeginSegNo = segno
		t.EndSegNo = segno
		t.hasSegment = true
	} else {
		switch {
		case segno == t.EndSegNo:
			// duplicate compressed/uncompressed pair for the same segno
		case segno == t.EndSegNo+1:
			t.EndSegNo = segno
		default:
			if segno > t.EndSegNo {
				t.LostSegments = append(t.LostSegments, model.SegInterval{Begin: t.EndSegNo + 1, End: segno - 1})
				t.EndSegNo = segno
			}
		}
	}

	t.XlogFilelist = append(t.XlogFilelist, XlogFile{Filename: name, SegNo: segno, Size: size, Partial: partial})

	if !partial {
		t.NXlogFiles++
		t.Size += size
	}
}

func statSize(ctx context.Context, ops fsops.FileOps, loc fsops.Location, path string) (int64, error) {
	fi, err := ops.Stat(ctx, loc, path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// attachBackups appends every backup to the timeline matching its TLI,
// then computes each timeline's oldest_backup (smallest valid start_lsn
// on the timeline itself) and closest_backup (the valid backup with the
// greatest stop_lsn <= switchpoint, found by walking the parent chain,
// never the timeline's own backups).
func attachBackups(forest *Forest, backups []*model.BackupRecord) {
	for _, b := range backups {
		if t, ok := forest.Index[b.TLI]; ok {
			t.Backups = append(t.Backups, b)
		}
	}

	for _, t := range forest.List {
		t.OldestBackup = nil
		for _, b := range t.Backups {
			if !b.IsValid() {
				continue
			}
			if t.OldestBackup == nil || b.StartLSN < t.OldestBackup.StartLSN {
				t.OldestBackup = b
			}
		}

		t.ClosestBackup = findClosestBackup(t.ParentLink, t.Switchpoint)
	}
}

func findClosestBackup(start *TimelineInfo, switchpoint model.LSN) *model.BackupRecord {
	for p := start; p != nil; p = p.ParentLink {
		var best *model.BackupRecord
		for _, b := range p.Backups {
			if !b.IsValid() || b.StopLSN > switchpoint {
				continue
			}
			if best == nil || b.StopLSN > best.StopLSN {
				best = b
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}
