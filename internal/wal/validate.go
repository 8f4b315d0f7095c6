package wal

import "fmt"

// Validate walks the reconstructed forest and returns every invariant
// violation it can detect, rather than panicking, so a caller can run one
// validation pass and report all problems at once.
func (f *Forest) Validate() []string {
	var warnings []string

	for _, t := range f.List {
		if t.BeginSegNo > t.EndSegNo && t.hasSegment {
			warnings = append(warnings, fmt.Sprintf("timeline %d: begin_segno %d > end_segno %d", t.TLI, t.BeginSegNo, t.EndSegNo))
		}

		if t.ParentTLI != 0 {
			if t.ParentLink == nil {
				warnings = append(warnings, fmt.Sprintf("timeline %d: parent_tli %d not present in forest", t.TLI, t.ParentTLI))
			} else if t.ParentLink.TLI != t.ParentTLI {
				warnings = append(warnings, fmt.Sprintf("timeline %d: parent_link points to timeline %d, want %d", t.TLI, t.ParentLink.TLI, t.ParentTLI))
			}
		}

		for i, gap := range t.LostSegments {
			if gap.Begin > gap.End {
				warnings = append(warnings, fmt.Sprintf("timeline %d: lost_segments[%d] begin %d > end %d", t.TLI, i, gap.Begin, gap.End))
			}
			if i > 0 && gap.Begin <= t.LostSegments[i-1].End {
				warnings = append(warnings, fmt.Sprintf("timeline %d: lost_segments[%d] overlaps lost_segments[%d]", t.TLI, i, i-1))
			}
		}

		for _, b := range t.Backups {
			if b.TLI != t.TLI {
				warnings = append(warnings, fmt.Sprintf("timeline %d: attached backup %s has tli %d", t.TLI, b.ID.Base36(), b.TLI))
			}
		}
	}

	return warnings
}
