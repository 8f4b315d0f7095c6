// Package retention implements the WAL retention planner: given a
// timeline forest and a wal-depth, it marks which archived WAL segments
// must be kept.
package retention

import (
	"sort"

	"github.com/cybernetics/pg-probackup/internal/model"
	"github.com/cybernetics/pg-probackup/internal/wal"
)

// Plan marks every xlog_filelist entry's Keep flag across forest,
// across forest. If cfg.WalDepth <= 0, planning is skipped
// entirely and every entry is left with Keep == false.
func Plan(forest *wal.Forest, cfg model.InstanceConfig) {
	if cfg.WalDepth <= 0 {
		return
	}

	for _, t := range forest.List {
		planTimeline(t, cfg)
	}

	for _, t := range forest.List {
		markTimeline(t, cfg)
	}
}

// planTimeline runs anchor search, parent-chain fallback, and the
// older-ARCHIVE-backup keep-interval pass for a single timeline.
func planTimeline(t *wal.TimelineInfo, cfg model.InstanceConfig) {
	backups := sortedByStartLSNDesc(t.Backups)

	anchorIdx := -1
	count := 0
	for i, b := range backups {
		if !b.IsValid() || b.TLI == 0 || b.StartLSN == model.InvalidLSN {
			continue
		}
		count++
		if count == cfg.WalDepth {
			t.AnchorLSN = b.StartLSN
			t.AnchorTLI = b.TLI
			anchorIdx = i
			break
		}
	}

	if anchorIdx < 0 {
		fallbackViaParentChain(t, cfg)
		return
	}

	for i := anchorIdx + 1; i < len(backups); i++ {
		b := backups[i]
		if !b.IsValid() || b.Stream || b.StartLSN >= t.AnchorLSN {
			continue
		}
		begin := cfg.SegNoForLSN(b.StartLSN)
		end := cfg.SegNoForLSN(b.StopLSN)
		if b.FromReplica {
			end++
		}
		t.KeepSegments = append(t.KeepSegments, model.SegInterval{Begin: begin, End: end})
	}
}

// fallbackViaParentChain covers the case where no anchor is
// found within the timeline itself, anchor on the closest backup from an
// ancestor timeline and protect the WAL interval spanning every
// switchpoint between here and that ancestor.
func fallbackViaParentChain(t *wal.TimelineInfo, cfg model.InstanceConfig) {
	if t.ClosestBackup == nil {
		return
	}
	closest := t.ClosestBackup
	t.AnchorLSN = closest.StartLSN
	t.AnchorTLI = closest.TLI

	child := t
	for p := t.ParentLink; p != nil; p = p.ParentLink {
		switchSegno := cfg.SegNoForLSN(child.Switchpoint)

		if p.TLI != closest.TLI {
			begin := p.BeginSegNo
			p.KeepSegments = append(p.KeepSegments, model.SegInterval{Begin: begin, End: switchSegno})
			child = p
			continue
		}

		begin := cfg.SegNoForLSN(closest.StartLSN)
		p.KeepSegments = append(p.KeepSegments, model.SegInterval{Begin: begin, End: switchSegno})
		break
	}
}

// markTimeline: a timeline whose anchor lives on
// an ancestor is implicitly protected and is never marked directly;
// otherwise every xlog_filelist entry at or beyond the anchor segment, or
// inside a keep_segments interval, is kept.
func markTimeline(t *wal.TimelineInfo, cfg model.InstanceConfig) {
	if t.AnchorLSN == model.InvalidLSN {
		return
	}
	if t.AnchorTLI != t.TLI {
		return
	}

	anchorSegno := cfg.SegNoForLSN(t.AnchorLSN)
	for i := range t.XlogFilelist {
		f := &t.XlogFilelist[i]
		if f.SegNo >= anchorSegno || inAnyInterval(f.SegNo, t.KeepSegments) {
			f.Keep = true
		}
	}
}

func inAnyInterval(segno model.SegNo, intervals []model.SegInterval) bool {
	for _, iv := range intervals {
		if iv.Contains(segno) {
			return true
		}
	}
	return false
}

func sortedByStartLSNDesc(backups []*model.BackupRecord) []*model.BackupRecord {
	out := make([]*model.BackupRecord, len(backups))
	copy(out, backups)
	sort.Slice(out, func(i, j int) bool { return out[i].StartLSN > out[j].StartLSN })
	return out
}
