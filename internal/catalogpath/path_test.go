package catalogpath

import (
	"strings"
	"testing"

	"github.com/cybernetics/pg-probackup/internal/model"
)

func TestBackupPath(t *testing.T) {
	got, err := BackupPath("/catalog", "main", model.BackupID(36))
	if err != nil {
		t.Fatalf("BackupPath() error = %v", err)
	}
	want := "/catalog/backups/main/10"
	if got != want {
		t.Errorf("BackupPath() = %q, want %q", got, want)
	}
}

func TestBackupPathWithSubdirs(t *testing.T) {
	got, err := BackupPath("/catalog", "main", model.BackupID(1), "external_directories", "external_0")
	if err != nil {
		t.Fatalf("BackupPath() error = %v", err)
	}
	want := "/catalog/backups/main/1/external_directories/external_0"
	if got != want {
		t.Errorf("BackupPath() = %q, want %q", got, want)
	}
}

func TestControlFilePath(t *testing.T) {
	got, err := ControlFilePath("/catalog", "main", model.BackupID(100))
	if err != nil {
		t.Fatalf("ControlFilePath() error = %v", err)
	}
	if !strings.HasSuffix(got, "/2s/backup.control") {
		t.Errorf("ControlFilePath() = %q, want suffix /2s/backup.control", got)
	}
}

func TestJoinRejectsTooLong(t *testing.T) {
	long := strings.Repeat("a", MaxPathLength+1)
	if _, err := BackupsRoot(long); err == nil {
		t.Error("expected error for overlong catalog root")
	}
}

func TestBackupIDFromDirName(t *testing.T) {
	id, err := BackupIDFromDirName("10")
	if err != nil {
		t.Fatalf("BackupIDFromDirName() error = %v", err)
	}
	if id != model.BackupID(36) {
		t.Errorf("BackupIDFromDirName() = %v, want 36", id)
	}
}
