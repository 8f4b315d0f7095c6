package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cybernetics/pg-probackup/internal/catalogpath"
	"github.com/cybernetics/pg-probackup/internal/fsops"
	"github.com/cybernetics/pg-probackup/internal/model"
	"github.com/cybernetics/pg-probackup/internal/record"
)

func writeBackup(t *testing.T, root, instance string, rec *model.BackupRecord) {
	t.Helper()
	// A control file without start-time is rejected on read; stamp the
	// creation time the id encodes.
	if rec.StartTime.IsZero() {
		rec.StartTime = time.Unix(int64(rec.ID), 0).UTC()
	}
	dir, err := catalogpath.BackupPath(root, instance, rec.ID)
	if err != nil {
		t.Fatalf("BackupPath() error = %v", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	controlPath, err := catalogpath.ControlFilePath(root, instance, rec.ID)
	if err != nil {
		t.Fatalf("ControlFilePath() error = %v", err)
	}
	if err := record.WriteControl(context.Background(), fsops.NewLocal(), fsops.Local, controlPath, rec); err != nil {
		t.Fatalf("WriteControl() error = %v", err)
	}
}

func TestListInstances(t *testing.T) {
	root := t.TempDir()
	backupsRoot, _ := catalogpath.BackupsRoot(root)
	if err := os.MkdirAll(filepath.Join(backupsRoot, "pg1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(backupsRoot, "pg2"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(backupsRoot, "not-a-dir"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	names, err := ListInstances(context.Background(), fsops.NewLocal(), fsops.Local, root, testLogger())
	if err != nil {
		t.Fatalf("ListInstances() error = %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("ListInstances() = %v, want 2 entries", names)
	}
}

func TestListBackupsSortsDescendingAndResolvesParent(t *testing.T) {
	root := t.TempDir()

	b0 := &model.BackupRecord{ID: 100, Mode: model.ModeFull, Status: model.StatusOK, TLI: 1}
	b1 := &model.BackupRecord{ID: 200, Mode: model.ModeDelta, Status: model.StatusOK, TLI: 1, ParentID: 100}
	b2 := &model.BackupRecord{ID: 300, Mode: model.ModeDelta, Status: model.StatusOK, TLI: 1, ParentID: 200}

	writeBackup(t, root, "pg1", b0)
	writeBackup(t, root, "pg1", b1)
	writeBackup(t, root, "pg1", b2)

	list, err := ListBackups(context.Background(), fsops.NewLocal(), fsops.Local, root, "pg1", model.InvalidBackupID, testLogger())
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d backups, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].ID <= list[i].ID {
			t.Fatalf("list not strictly descending by id: %v", list)
		}
	}

	var got2 *model.BackupRecord
	for _, r := range list {
		if r.ID == 300 {
			got2 = r
		}
	}
	if got2 == nil || got2.ParentLink == nil || got2.ParentLink.ID != 200 {
		t.Fatalf("expected B2.ParentLink.ID == 200, got %+v", got2)
	}
}

func TestListBackupsMissingControlFileYieldsPlaceholder(t *testing.T) {
	root := t.TempDir()
	dir, _ := catalogpath.BackupPath(root, "pg1", model.BackupID(500))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	list, err := ListBackups(context.Background(), fsops.NewLocal(), fsops.Local, root, "pg1", model.InvalidBackupID, testLogger())
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != model.BackupID(500) || list[0].Status != model.StatusInvalid {
		t.Fatalf("expected a placeholder record for id 500, got %+v", list)
	}
}

func TestListBackupsAcceptsDirNameOnIDDisagreement(t *testing.T) {
	root := t.TempDir()
	dirID := model.BackupID(700)

	dir, err := catalogpath.BackupPath(root, "pg1", dirID)
	if err != nil {
		t.Fatalf("BackupPath() error = %v", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	// The control file's own start-time encodes a different id than the
	// directory name it was found under.
	rec := &model.BackupRecord{Mode: model.ModeFull, Status: model.StatusOK, StartTime: time.Unix(999, 0).UTC()}
	controlPath, err := catalogpath.ControlFilePath(root, "pg1", dirID)
	if err != nil {
		t.Fatalf("ControlFilePath() error = %v", err)
	}
	if err := record.WriteControl(context.Background(), fsops.NewLocal(), fsops.Local, controlPath, rec); err != nil {
		t.Fatalf("WriteControl() error = %v", err)
	}

	list, err := ListBackups(context.Background(), fsops.NewLocal(), fsops.Local, root, "pg1", model.InvalidBackupID, testLogger())
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != dirID {
		t.Fatalf("expected the directory name's id to win, got %+v", list)
	}
}

func TestListBackupsFiltersByID(t *testing.T) {
	root := t.TempDir()
	b0 := &model.BackupRecord{ID: 100, Mode: model.ModeFull, Status: model.StatusOK}
	b1 := &model.BackupRecord{ID: 200, Mode: model.ModeFull, Status: model.StatusOK}
	writeBackup(t, root, "pg1", b0)
	writeBackup(t, root, "pg1", b1)

	list, err := ListBackups(context.Background(), fsops.NewLocal(), fsops.Local, root, "pg1", model.BackupID(100), testLogger())
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != model.BackupID(100) {
		t.Fatalf("filtered list = %+v, want only id 100", list)
	}
}
