package attendance

import "time"

// DeriveStatus returns explicit when the service supplied one, otherwise
// Present for confidence at or above PresenceThreshold and Absent below it.
func DeriveStatus(confidence float64, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if confidence >= PresenceThreshold {
		return StatusPresent
	}
	return StatusAbsent
}

// FinalizeRecords maps finished session results into roster records:
// status kept or derived, one more check-in, stamped with now, feedback cleared.
func FinalizeRecords(results []StudentRecord, now time.Time) []StudentRecord {
	out := make([]StudentRecord, 0, len(results))
	date, clock := now.Format("2006-01-02"), now.Format("15:04:05")
	for _, r := range results {
		r.Status = DeriveStatus(r.Confidence, r.Status)
		r.Checkins++
		r.Date = date
		r.Time = clock
		r.Feedback = VerdictUnset
		out = append(out, r)
	}
	return out
}

// MergePartials applies partial results onto a copy of roster, matching on
// student id. Partials without a matching student are dropped. It returns the
// merged roster and how many partials matched.
func MergePartials(roster []StudentRecord, partials []PartialRecord) ([]StudentRecord, int) {
	merged := make([]StudentRecord, len(roster))
	copy(merged, roster)

	index := make(map[string]int, len(merged))
	for i, r := range merged {
		index[r.StudentID] = i
	}
	hits := 0
	for _, p := range partials {
		i, ok := index[p.StudentID]
		if !ok {
			continue
		}
		p.ApplyTo(&merged[i])
		hits++
	}
	return merged, hits
}

// SetFeedback sets the verdict on every record of studentID and reports
// whether any matched.
func SetFeedback(records []StudentRecord, studentID string, v Verdict) bool {
	found := false
	for i := range records {
		if records[i].StudentID == studentID {
			records[i].Feedback = v
			found = true
		}
	}
	return found
}

// Summary is the headline numbers shown over the class list.
type Summary struct {
	Classes       int     `json:"classes"`
	Recorded      int     `json:"recorded"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Summarize counts recorded classes and averages class confidence.
func Summarize(classes []Class) Summary {
	s := Summary{Classes: len(classes)}
	if len(classes) == 0 {
		return s
	}
	var total float64
	for _, c := range classes {
		if c.Status == "Recorded" {
			s.Recorded++
		}
		total += c.Confidence
	}
	s.AvgConfidence = total / float64(len(classes))
	return s
}
