package retention

import (
	"testing"

	"github.com/cybernetics/pg-probackup/internal/model"
	"github.com/cybernetics/pg-probackup/internal/wal"
)

func segEntries(segnos ...model.SegNo) []wal.XlogFile {
	out := make([]wal.XlogFile, len(segnos))
	for i, s := range segnos {
		out[i] = wal.XlogFile{SegNo: s}
	}
	return out
}

// TestRetentionWalDepth2 covers wal_depth=2, timeline 1
// has three valid backups at descending start_lsn L3,L2,L1. The anchor
// becomes L2; every segment >= segno(L2) is kept; L1's own interval is
// added as an ARCHIVE keep interval.
func TestRetentionWalDepth2(t *testing.T) {
	cfg := model.InstanceConfig{Name: "pg1", XlogSegSize: 1, WalDepth: 2}

	l3 := &model.BackupRecord{ID: 3, TLI: 1, Status: model.StatusOK, StartLSN: 30, StopLSN: 31}
	l2 := &model.BackupRecord{ID: 2, TLI: 1, Status: model.StatusOK, StartLSN: 20, StopLSN: 21}
	l1 := &model.BackupRecord{ID: 1, TLI: 1, Status: model.StatusOK, StartLSN: 10, StopLSN: 11}

	tl := &wal.TimelineInfo{TLI: 1, Backups: []*model.BackupRecord{l1, l2, l3}}
	tl.XlogFilelist = segEntries(5, 10, 15, 20, 25)

	forest := &wal.Forest{List: []*wal.TimelineInfo{tl}, Index: map[model.TimelineID]*wal.TimelineInfo{1: tl}}
	Plan(forest, cfg)

	if tl.AnchorLSN != 20 || tl.AnchorTLI != 1 {
		t.Fatalf("anchor = (%v, %v), want (20, 1)", tl.AnchorLSN, tl.AnchorTLI)
	}
	if len(tl.KeepSegments) != 1 || tl.KeepSegments[0] != (model.SegInterval{Begin: 10, End: 11}) {
		t.Errorf("KeepSegments = %v, want [[10,11]] for L1's ARCHIVE interval", tl.KeepSegments)
	}

	want := map[model.SegNo]bool{5: false, 10: true, 15: false, 20: true, 25: true}
	for _, f := range tl.XlogFilelist {
		if f.Keep != want[f.SegNo] {
			t.Errorf("segno %d: Keep = %v, want %v", f.SegNo, f.Keep, want[f.SegNo])
		}
	}
}

// TestRetentionBranchingFallback covers timeline 2
// branches from timeline 1 at switchpoint S=100, has zero valid backups,
// and wal_depth=1. Timeline 1's closest valid backup B has stop_lsn <= S.
func TestRetentionBranchingFallback(t *testing.T) {
	cfg := model.InstanceConfig{Name: "pg1", XlogSegSize: 1, WalDepth: 1}

	b := &model.BackupRecord{ID: 1, TLI: 1, Status: model.StatusOK, StartLSN: 50, StopLSN: 60}

	t1 := &wal.TimelineInfo{TLI: 1, Backups: []*model.BackupRecord{b}}
	t1.XlogFilelist = segEntries(40, 55, 90, 110)

	t2 := &wal.TimelineInfo{TLI: 2, ParentLink: t1, Switchpoint: 100, ClosestBackup: b}
	t2.XlogFilelist = segEntries(101, 105)

	forest := &wal.Forest{
		List:  []*wal.TimelineInfo{t1, t2},
		Index: map[model.TimelineID]*wal.TimelineInfo{1: t1, 2: t2},
	}
	Plan(forest, cfg)

	if t2.AnchorLSN != b.StartLSN || t2.AnchorTLI != 1 {
		t.Fatalf("t2 anchor = (%v, %v), want (%v, 1)", t2.AnchorLSN, t2.AnchorTLI, b.StartLSN)
	}
	if len(t1.KeepSegments) != 1 || t1.KeepSegments[0] != (model.SegInterval{Begin: 50, End: 100}) {
		t.Errorf("t1.KeepSegments = %v, want [[50,100]]", t1.KeepSegments)
	}

	for _, f := range t2.XlogFilelist {
		if f.Keep {
			t.Errorf("t2 segno %d marked kept, want timeline 2 left unmarked (anchor lives on ancestor)", f.SegNo)
		}
	}

	wantT1 := map[model.SegNo]bool{40: false, 55: true, 90: true, 110: true}
	for _, f := range t1.XlogFilelist {
		if f.Keep != wantT1[f.SegNo] {
			t.Errorf("t1 segno %d: Keep = %v, want %v", f.SegNo, f.Keep, wantT1[f.SegNo])
		}
	}
}

func TestRetentionWalDepthZeroSkipsPlanning(t *testing.T) {
	cfg := model.InstanceConfig{Name: "pg1", XlogSegSize: 1, WalDepth: 0}
	b := &model.BackupRecord{ID: 1, TLI: 1, Status: model.StatusOK, StartLSN: 50, StopLSN: 60}
	tl := &wal.TimelineInfo{TLI: 1, Backups: []*model.BackupRecord{b}}
	tl.XlogFilelist = segEntries(10, 60)

	forest := &wal.Forest{List: []*wal.TimelineInfo{tl}, Index: map[model.TimelineID]*wal.TimelineInfo{1: tl}}
	Plan(forest, cfg)

	if tl.AnchorLSN != model.InvalidLSN {
		t.Errorf("AnchorLSN = %v, want 0 when wal_depth <= 0", tl.AnchorLSN)
	}
	for _, f := range tl.XlogFilelist {
		if f.Keep {
			t.Errorf("segno %d marked kept, want all false when wal_depth <= 0", f.SegNo)
		}
	}
}
