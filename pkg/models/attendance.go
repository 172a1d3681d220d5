package models

import (
	"time"

	"github.com/google/uuid"
)

// recordNamespace seeds deterministic record IDs. A record's identity is
// (roll number, calendar day), so the same student and day always map to
// the same UUID and re-merging a decision cannot duplicate records.
var recordNamespace = uuid.MustParse("9c1f2a54-33b1-4c45-9e0c-62d6a8f3b0e1")

// PresenceDecision maps roll number to present/absent for one
// image-processing attempt. It always covers the full roster; absent is
// the default for any student with no qualifying match.
type PresenceDecision map[string]bool

// NewPresenceDecision returns a decision covering every roster student,
// all marked absent. Each processing attempt starts from this hard reset
// so stale marks never carry over between attempts.
func NewPresenceDecision(roster Roster) PresenceDecision {
	d := make(PresenceDecision, len(roster))
	for _, s := range roster {
		d[s.RollNumber] = false
	}
	return d
}

// PresentCount returns how many students the decision marks present.
func (d PresenceDecision) PresentCount() int {
	n := 0
	for _, present := range d {
		if present {
			n++
		}
	}
	return n
}

// Clone returns an independent copy of the decision.
func (d PresenceDecision) Clone() PresenceDecision {
	c := make(PresenceDecision, len(d))
	for roll, present := range d {
		c[roll] = present
	}
	return c
}

// AttendanceRecord is one student's persisted presence for one calendar
// day. The store may physically hold duplicates for a (student, day)
// pair; reconciliation collapses them at write time.
type AttendanceRecord struct {
	ID                uuid.UUID `json:"id"`
	Date              time.Time `json:"date"`
	StudentRollNumber string    `json:"student_roll_number"`
	IsPresent         bool      `json:"is_present"`
}

// NewAttendanceRecord builds a record for (roll, day) with a
// deterministic ID.
func NewAttendanceRecord(date time.Time, rollNumber string, present bool) AttendanceRecord {
	day := DayOf(date)
	return AttendanceRecord{
		ID:                RecordID(rollNumber, day),
		Date:              day,
		StudentRollNumber: rollNumber,
		IsPresent:         present,
	}
}

// RecordID derives the deterministic UUID for a (roll number, day) pair.
func RecordID(rollNumber string, date time.Time) uuid.UUID {
	key := rollNumber + "|" + DayOf(date).Format("2006-01-02")
	return uuid.NewSHA1(recordNamespace, []byte(key))
}

// DayOf truncates a timestamp to the start of its calendar day.
// Record identity and de-duplication use day granularity, never exact
// timestamp equality.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two timestamps fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return DayOf(a).Equal(DayOf(b))
}
