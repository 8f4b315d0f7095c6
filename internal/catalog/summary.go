package catalog

import "github.com/cybernetics/pg-probackup/internal/model"

// Summary is an aggregate rollup over a ListBackups result.
type Summary struct {
	Total     int
	OK        int
	Error     int
	Running   int
	Other     int
	DataBytes int64
}

// Summarize computes aggregate counts and total data_bytes over list, the
// kind of rollup a status-reporting caller wants without re-walking the
// full record set itself.
func Summarize(list []*model.BackupRecord) Summary {
	var s Summary
	for _, rec := range list {
		s.Total++
		switch rec.Status {
		case model.StatusOK, model.StatusDone:
			s.OK++
		case model.StatusError, model.StatusOrphan, model.StatusCorrupt:
			s.Error++
		case model.StatusRunning, model.StatusMerging:
			s.Running++
		default:
			s.Other++
		}
		s.DataBytes += rec.DataBytes
	}
	return s
}
