package record

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"

	"github.com/cybernetics/pg-probackup/internal/fsops"
	"github.com/cybernetics/pg-probackup/internal/model"
)

// fileListBufferSize is the write buffer used when writing the
// file list buffers roughly 250 KiB before flushing to the underlying
// writer.
const fileListBufferSize = 250 * 1024

// dirEntryOverhead is the per-directory-entry byte charge added to
// DataBytes, charging 4096 bytes for each directory entry.
const dirEntryOverhead = 4096

// walNameRe matches a bare 24-hex-digit WAL segment filename (no
// suffix), used to decide whether a file-list entry counts toward
// WalBytes.
var walNameRe = regexp.MustCompile(`^[0-9A-Fa-f]{24}$`)

// FileEntry is one line of a backup's file-list record. Field order here
// is the order the writer emits JSON object keys in; a reader must not
// depend on it.
type FileEntry struct {
	Path           string `json:"path"`
	Size           int64  `json:"size"`
	Mode           uint32 `json:"mode"`
	IsDatafile     bool   `json:"is_datafile"`
	IsCfs          bool   `json:"is_cfs"`
	CRC            uint32 `json:"crc"`
	CompressAlg    string `json:"compress_alg"`
	ExternalDirNum int    `json:"external_dir_num"`
	DbOid          uint32 `json:"dbOid"`
	Segno          *int64 `json:"segno,omitempty"`
	Linked         string `json:"linked,omitempty"`
	NBlocks        *int64 `json:"n_blocks,omitempty"`
}

// dirSizeSentinel marks a FileEntry that represents a directory rather
// than a regular file: Mode's exact bit layout is an external detail
// this engine never inspects, so directories are flagged explicitly by
// setting Size to this sentinel instead.
const dirSizeSentinel = -1

// WriteFileList serializes entries as newline-delimited JSON objects and
// writes the result atomically. As a side effect it recomputes and
// stores DataBytes, WalBytes, and UncompressedBytes on rec: DataBytes is
// the sum of non-WAL, non-directory file sizes plus dirEntryOverhead per
// directory entry; WalBytes is the sum of sizes of entries named like a
// bare WAL segment with ExternalDirNum == 0; UncompressedBytes is the sum
// of sizes of every non-directory entry regardless of WAL status.
func WriteFileList(ctx context.Context, ops fsops.FileOps, loc fsops.Location, path string, rec *model.BackupRecord, entries []FileEntry) error {
	var dataBytes, walBytes, uncompressedBytes int64

	for _, e := range entries {
		if e.Size == dirSizeSentinel {
			dataBytes += dirEntryOverhead
			continue
		}
		uncompressedBytes += e.Size
		if e.ExternalDirNum == 0 && walNameRe.MatchString(baseName(e.Path)) {
			walBytes += e.Size
			continue
		}
		dataBytes += e.Size
	}

	err := fsops.WriteAtomic(ctx, ops, loc, path, func(w io.Writer) error {
		bw := bufio.NewWriterSize(w, fileListBufferSize)
		enc := json.NewEncoder(bw)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return fmt.Errorf("record: encode file entry %q: %w", e.Path, err)
			}
		}
		return bw.Flush()
	})
	if err != nil {
		return err
	}

	rec.DataBytes = dataBytes
	rec.WalBytes = walBytes
	rec.UncompressedBytes = uncompressedBytes
	return nil
}

// ReadFileList reads and parses the newline-delimited file-list record at
// path. A missing file returns (nil, false, nil) with a warning logged.
func ReadFileList(ctx context.Context, ops fsops.FileOps, loc fsops.Location, path string, logger model.Logger) ([]FileEntry, bool, error) {
	f, err := ops.Open(ctx, loc, path)
	if err != nil {
		logger.Warning("file-list missing", "path", path)
		return nil, false, nil
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		return nil, false, model.Fatalf("record: read %s: %w", path, err)
	}

	var entries []FileEntry
	scanner := bufio.NewScanner(&buf)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e FileEntry
		if err := json.Unmarshal(line, &e); err != nil {
			logger.Warning("malformed file-list line", "path", path, "error", err.Error())
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, false, model.Fatalf("record: scan %s: %w", path, err)
	}

	return entries, true, nil
}

func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}
