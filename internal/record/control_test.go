package record

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cybernetics/pg-probackup/internal/fsops"
	"github.com/cybernetics/pg-probackup/internal/logging"
	"github.com/cybernetics/pg-probackup/internal/model"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "error"})
}

func TestControlWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.control")
	ops := fsops.NewLocal()
	ctx := context.Background()

	want := &model.BackupRecord{
		Mode:            model.ModeDelta,
		Status:          model.StatusOK,
		TLI:             3,
		ParentID:        model.BackupID(100),
		StartLSN:        model.LSN(0x1_00000000),
		StopLSN:         model.LSN(0x2_00000000),
		StartTime:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("", 0)),
		EndTime:         time.Date(2026, 1, 2, 3, 10, 0, 0, time.FixedZone("", 0)),
		DataBytes:       12345,
		WalBytes:        6789,
		BlockSize:       8192,
		WalBlockSize:    8192,
		ChecksumVersion: 1,
		CompressAlg:     model.CompressZlib,
		CompressLevel:   5,
		Stream:          true,
		ProgramVersion:  "2.5.0",
		ServerVersion:   "14",
		ExternalDirs:    []string{"/etc/pg", "/opt/extra"},
	}

	if err := WriteControl(ctx, ops, fsops.Local, path, want); err != nil {
		t.Fatalf("WriteControl() error = %v", err)
	}

	got, found, err := ReadControl(ctx, ops, fsops.Local, path, testLogger())
	if err != nil {
		t.Fatalf("ReadControl() error = %v", err)
	}
	if !found {
		t.Fatal("ReadControl() found = false, want true")
	}

	if got.Mode != want.Mode {
		t.Errorf("Mode = %v, want %v", got.Mode, want.Mode)
	}
	if got.Status != want.Status {
		t.Errorf("Status = %v, want %v", got.Status, want.Status)
	}
	if got.TLI != want.TLI {
		t.Errorf("TLI = %v, want %v", got.TLI, want.TLI)
	}
	if got.ParentID != want.ParentID {
		t.Errorf("ParentID = %v, want %v", got.ParentID, want.ParentID)
	}
	if got.StartLSN != want.StartLSN {
		t.Errorf("StartLSN = %v, want %v", got.StartLSN, want.StartLSN)
	}
	if got.StopLSN != want.StopLSN {
		t.Errorf("StopLSN = %v, want %v", got.StopLSN, want.StopLSN)
	}
	if !got.StartTime.Equal(want.StartTime) {
		t.Errorf("StartTime = %v, want %v", got.StartTime, want.StartTime)
	}
	if got.CompressAlg != want.CompressAlg {
		t.Errorf("CompressAlg = %v, want %v", got.CompressAlg, want.CompressAlg)
	}
	if got.Stream != want.Stream {
		t.Errorf("Stream = %v, want %v", got.Stream, want.Stream)
	}
	if len(got.ExternalDirs) != 2 || got.ExternalDirs[0] != "/etc/pg" {
		t.Errorf("ExternalDirs = %v, want %v", got.ExternalDirs, want.ExternalDirs)
	}
}

func TestReadControlMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.control")
	ops := fsops.NewLocal()

	rec, found, err := ReadControl(context.Background(), ops, fsops.Local, path, testLogger())
	if err != nil {
		t.Fatalf("ReadControl() error = %v", err)
	}
	if found || rec != nil {
		t.Errorf("ReadControl() = (%v, %v), want (nil, false)", rec, found)
	}
}

func TestReadControlEmptyFileRejected(t *testing.T) {
	rec, found, err := parseControl([]byte(""), "backup.control", testLogger())
	if err != nil {
		t.Fatalf("parseControl() error = %v", err)
	}
	if found || rec != nil {
		t.Errorf("parseControl() = (%v, %v), want (nil, false)", rec, found)
	}
}

func TestParseControlUnknownKeyIgnored(t *testing.T) {
	data := []byte("mode = full\nstart-time = '2026-01-01 00:00:00+00:00'\nstatus = OK\nfrobnicate = yes\n")
	rec, found, err := parseControl(data, "backup.control", testLogger())
	if err != nil {
		t.Fatalf("parseControl() error = %v", err)
	}
	if !found {
		t.Fatal("parseControl() found = false, want true")
	}
	if rec.Mode != model.ModeFull {
		t.Errorf("Mode = %v, want full", rec.Mode)
	}
}

func TestParseBackupModeLaw(t *testing.T) {
	for _, m := range []model.BackupMode{model.ModeFull, model.ModePage, model.ModePtrack, model.ModeDelta} {
		s, _ := model.DeparseBackupMode(m)
		got, err := model.ParseBackupMode(s)
		if err != nil || got != m {
			t.Errorf("round trip failed for %v: got %v, err %v", m, got, err)
		}
	}
}
