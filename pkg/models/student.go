package models

import "time"

// Student is one roster entry. RollNumber is the unique identity used
// throughout the pipeline; Name is what students write on sign-in sheets.
// The roster is read-only input to recognition: matching never creates,
// mutates, or deletes students.
type Student struct {
	RollNumber string    `json:"roll_number" yaml:"roll_number"`
	Name       string    `json:"name" yaml:"name"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
}

// Roster is the fixed list of students eligible for attendance in a session.
type Roster []Student

// Names returns student names in roster order.
func (r Roster) Names() []string {
	names := make([]string, len(r))
	for i, s := range r {
		names[i] = s.Name
	}
	return names
}

// ByName returns a lookup from student name to roll number.
// Roster names are assumed distinct within a class.
func (r Roster) ByName() map[string]string {
	m := make(map[string]string, len(r))
	for _, s := range r {
		m[s.Name] = s.RollNumber
	}
	return m
}

// AbsentNames returns the names of students the decision marks absent,
// in roster order.
func (r Roster) AbsentNames(decision PresenceDecision) []string {
	var names []string
	for _, s := range r {
		if !decision[s.RollNumber] {
			names = append(names, s.Name)
		}
	}
	return names
}
