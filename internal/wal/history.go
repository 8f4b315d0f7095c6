package wal

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/cybernetics/pg-probackup/internal/fsops"
	"github.com/cybernetics/pg-probackup/internal/model"
)

// HistoryEntry is one line of a "TTTTTTTT.history" file: the timeline it
// switched from, the LSN of the switch, and an optional free-text reason.
type HistoryEntry struct {
	TLI         model.TimelineID
	Switchpoint model.LSN
	Reason      string
}

// HistoryParser is the external collaborator that parses a timeline
// history file into its ordered list of entries, oldest switch first. The
// last entry gives the immediate parent tli and switchpoint this timeline
// branched from; any earlier entries describe more distant ancestors and
// are kept for completeness but not consulted by the reconstructor.
type HistoryParser interface {
	Parse(ctx context.Context, ops fsops.FileOps, loc fsops.Location, path string) ([]HistoryEntry, error)
}

// FileHistoryParser reads a ".history" file through FileOps. Each line is
// "tli\tlsn\treason", blank lines and "#"-comments are ignored.
type FileHistoryParser struct{}

func (FileHistoryParser) Parse(ctx context.Context, ops fsops.FileOps, loc fsops.Location, path string) ([]HistoryEntry, error) {
	f, err := ops.Open(ctx, loc, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		return nil, err
	}

	var entries []HistoryEntry
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		tli64, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			continue
		}
		lsn, err := model.ParseLSN(fields[1])
		if err != nil {
			continue
		}
		entry := HistoryEntry{TLI: model.TimelineID(tli64), Switchpoint: lsn}
		if len(fields) > 2 {
			entry.Reason = strings.Join(fields[2:], " ")
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
