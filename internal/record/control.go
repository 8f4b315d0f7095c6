// Package record implements the backup control-file and file-list codecs:
// reading and writing a single backup's key=value control record and its
// newline-delimited file-list record.
package record

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/cybernetics/pg-probackup/internal/fsops"
	"github.com/cybernetics/pg-probackup/internal/model"
)

// timeLayout is the ISO-8601-ish local rendering used for every
// timestamp field in the control file.
const timeLayout = "2006-01-02 15:04:05-07:00"

// WriteControl serializes rec as key=value lines in the fixed section
// order (configuration, compatibility, result) and writes
// it atomically: "{path}.tmp" -> fsync -> close -> rename, unlinking the
// temp file on any failure before the rename.
func WriteControl(ctx context.Context, ops fsops.FileOps, loc fsops.Location, path string, rec *model.BackupRecord) error {
	return fsops.WriteAtomic(ctx, ops, loc, path, func(w io.Writer) error {
		return renderControl(w, rec)
	})
}

func renderControl(w io.Writer, rec *model.BackupRecord) error {
	bw := bufio.NewWriter(w)

	writeLine := func(format string, args ...any) {
		fmt.Fprintf(bw, format+"\n", args...)
	}
	writeStr := func(key, value string) {
		if value == "" {
			return
		}
		writeLine("%s = '%s'", key, escapeQuote(value))
	}
	writeTime := func(key string, t time.Time) {
		if t.IsZero() {
			return
		}
		writeLine("%s = '%s'", key, t.Format(timeLayout))
	}

	// configuration
	mode, err := model.DeparseBackupMode(rec.Mode)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	writeLine("mode = %s", mode)
	writeLine("stream = %t", rec.Stream)
	alg, err := model.DeparseCompressAlg(rec.CompressAlg)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	writeLine("compress-alg = %s", alg)
	writeLine("compress-level = %d", rec.CompressLevel)
	writeLine("from-replica = %t", rec.FromReplica)
	bw.WriteString("\n")

	// compatibility
	writeLine("block-size = %d", rec.BlockSize)
	writeLine("xlog-block-size = %d", rec.WalBlockSize)
	writeLine("checksum-version = %d", rec.ChecksumVersion)
	writeStr("program-version", rec.ProgramVersion)
	writeStr("server-version", rec.ServerVersion)
	bw.WriteString("\n")

	// result
	writeLine("timelineid = %d", rec.TLI)
	if rec.StartLSN != model.InvalidLSN {
		writeLine("start-lsn = %s", rec.StartLSN)
	}
	if rec.StopLSN != model.InvalidLSN {
		writeLine("stop-lsn = %s", rec.StopLSN)
	}
	writeTime("start-time", rec.StartTime)
	writeTime("merge-time", rec.MergeTime)
	writeTime("end-time", rec.EndTime)
	if rec.RecoveryXID != 0 {
		writeLine("recovery-xid = %d", rec.RecoveryXID)
	}
	writeTime("recovery-time", rec.RecoveryTime)
	writeLine("data-bytes = %d", rec.DataBytes)
	writeLine("wal-bytes = %d", rec.WalBytes)
	writeLine("uncompressed-bytes = %d", rec.UncompressedBytes)
	writeLine("pgdata-bytes = %d", rec.PgdataBytes)
	status, err := model.DeparseBackupStatus(rec.Status)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	writeLine("status = %s", status)
	if rec.ParentID != model.InvalidBackupID {
		writeStr("parent-backup-id", rec.ParentID.Base36())
	}
	writeStr("primary_conninfo", rec.PrimaryConnInfo)
	if len(rec.ExternalDirs) > 0 {
		writeStr("external-dirs", strings.Join(rec.ExternalDirs, ":"))
	}

	return bw.Flush()
}

func escapeQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// ReadControl reads and parses the control file at path. A missing file
// returns (nil, false, nil) with a warning logged; a present but empty or
// schema-broken file (missing start-time) returns (nil, false, nil) as
// well, never a partially populated record. Unknown keys are ignored with
// a warning.
func ReadControl(ctx context.Context, ops fsops.FileOps, loc fsops.Location, path string, logger model.Logger) (*model.BackupRecord, bool, error) {
	f, err := ops.Open(ctx, loc, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warning("control file missing", "path", path)
			return nil, false, nil
		}
		return nil, false, model.Fatalf("record: open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		return nil, false, model.Fatalf("record: read %s: %w", path, err)
	}

	return parseControl(buf.Bytes(), path, logger)
}

func parseControl(data []byte, path string, logger model.Logger) (*model.BackupRecord, bool, error) {
	rec := &model.BackupRecord{}
	haveStartTime := false

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := splitKV(line)
		if !ok {
			continue
		}

		switch key {
		case "mode":
			if m, err := model.ParseBackupMode(value); err != nil {
				return nil, false, model.Fatalf("record: %s: %w", path, err)
			} else {
				rec.Mode = m
			}
		case "stream":
			rec.Stream = value == "true"
		case "compress-alg":
			if a, err := model.ParseCompressAlg(value); err == nil {
				rec.CompressAlg = a
			} else {
				logger.Warning("unknown compress-alg", "path", path, "value", value)
			}
		case "compress-level":
			rec.CompressLevel = atoiOr(value, 0)
		case "from-replica":
			rec.FromReplica = value == "true"
		case "block-size":
			rec.BlockSize = atoiOr(value, 0)
		case "xlog-block-size":
			rec.WalBlockSize = atoiOr(value, 0)
		case "checksum-version":
			rec.ChecksumVersion = atoiOr(value, 0)
		case "program-version":
			rec.ProgramVersion = value
		case "server-version":
			rec.ServerVersion = value
		case "timelineid":
			rec.TLI = model.TimelineID(atoiOr(value, 0))
		case "start-lsn":
			if l, err := model.ParseLSN(value); err == nil {
				rec.StartLSN = l
			} else {
				logger.Warning("unparseable start-lsn", "path", path, "value", value)
			}
		case "stop-lsn":
			if l, err := model.ParseLSN(value); err == nil {
				rec.StopLSN = l
			} else {
				logger.Warning("unparseable stop-lsn", "path", path, "value", value)
			}
		case "start-time":
			if t, err := time.Parse(timeLayout, value); err == nil {
				rec.StartTime = t
				haveStartTime = true
			} else {
				logger.Warning("unparseable start-time", "path", path, "value", value)
			}
		case "merge-time":
			rec.MergeTime = parseTimeOr(value, logger, path, "merge-time")
		case "end-time":
			rec.EndTime = parseTimeOr(value, logger, path, "end-time")
		case "recovery-time":
			rec.RecoveryTime = parseTimeOr(value, logger, path, "recovery-time")
		case "recovery-xid":
			rec.RecoveryXID = uint64(atoiOr(value, 0))
		case "data-bytes":
			rec.DataBytes = int64(atoiOr(value, 0))
		case "wal-bytes":
			rec.WalBytes = int64(atoiOr(value, 0))
		case "uncompressed-bytes":
			rec.UncompressedBytes = int64(atoiOr(value, 0))
		case "pgdata-bytes":
			rec.PgdataBytes = int64(atoiOr(value, 0))
		case "status":
			if s, err := model.ParseBackupStatus(value); err == nil {
				rec.Status = s
			} else {
				logger.Warning("unknown status", "path", path, "value", value)
				rec.Status = model.StatusInvalid
			}
		case "parent-backup-id":
			if id, err := model.ParseBackupID(value); err == nil {
				rec.ParentID = id
			} else {
				logger.Warning("unparseable parent-backup-id", "path", path, "value", value)
			}
		case "primary_conninfo":
			rec.PrimaryConnInfo = value
		case "external-dirs":
			if value != "" {
				rec.ExternalDirs = strings.Split(value, ":")
			}
		default:
			logger.Warning("unknown control file key", "path", path, "key", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, false, model.Fatalf("record: scan %s: %w", path, err)
	}

	if !haveStartTime {
		logger.Warning("control file missing start-time", "path", path)
		return nil, false, nil
	}

	return rec, true, nil
}

func parseTimeOr(value string, logger model.Logger, path, field string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		logger.Warning("unparseable "+field, "path", path, "value", value)
		return time.Time{}
	}
	return t
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// splitKV splits a "key = value" or "key = 'value'" line. Quotes, if
// present, are stripped and doubled single-quotes inside the value are
// unescaped.
func splitKV(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:i])
	value = strings.TrimSpace(line[i+1:])
	if len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'' {
		value = strings.ReplaceAll(value[1:len(value)-1], "''", "'")
	}
	return key, value, key != ""
}
