package wal

import "testing"

func TestParseNameSegment(t *testing.T) {
	p, err := ParseName("000000010000000000000001")
	if err != nil {
		t.Fatalf("ParseName() error = %v", err)
	}
	if p.Kind != KindSegment || p.TLI != 1 || p.LogID != 0 || p.SegID != 1 {
		t.Errorf("ParseName() = %+v, want segment tli=1 log=0 seg=1", p)
	}
}

func TestParseNameCompressedSegment(t *testing.T) {
	p, err := ParseName("000000010000000000000001.gz")
	if err != nil {
		t.Fatalf("ParseName() error = %v", err)
	}
	if p.Kind != KindSegment || p.SegID != 1 {
		t.Errorf("ParseName() = %+v, want a regular segment", p)
	}
}

func TestParseNamePartial(t *testing.T) {
	p, err := ParseName("000000010000000000000002.partial")
	if err != nil {
		t.Fatalf("ParseName() error = %v", err)
	}
	if p.Kind != KindPartial || p.SegID != 2 {
		t.Errorf("ParseName() = %+v, want a partial segment", p)
	}
}

func TestParseNameBackupHistory(t *testing.T) {
	p, err := ParseName("000000010000000000000003.backup")
	if err != nil {
		t.Fatalf("ParseName() error = %v", err)
	}
	if p.Kind != KindBackupHistory || p.SegID != 3 {
		t.Errorf("ParseName() = %+v, want a backup-history entry for segment 3", p)
	}
}

func TestParseNameTimelineHistory(t *testing.T) {
	p, err := ParseName("00000002.history")
	if err != nil {
		t.Fatalf("ParseName() error = %v", err)
	}
	if p.Kind != KindTimelineHistory || p.HistoryTLI != 2 {
		t.Errorf("ParseName() = %+v, want timeline history tli=2", p)
	}
}

func TestParseNameUnknown(t *testing.T) {
	if _, err := ParseName("not-a-wal-file"); err == nil {
		t.Error("ParseName() error = nil, want error for unrecognized name")
	}
}

func TestSegNoOf(t *testing.T) {
	p, err := ParseName("000000010000000300000005")
	if err != nil {
		t.Fatalf("ParseName() error = %v", err)
	}
	const segsPerLog = 16
	if got, want := p.SegNoOf(segsPerLog), uint64(3*segsPerLog+5); uint64(got) != want {
		t.Errorf("SegNoOf() = %d, want %d", got, want)
	}
}
