package domain

import "strings"

// NotSpecified replaces missing preference fields in prompts.
const NotSpecified = "Not specified"

// Assignment is a graded deliverable extracted from a syllabus.
type Assignment struct {
	Name    string   `json:"name"`
	DueDate string   `json:"dueDate"`
	Weight  *float64 `json:"weight,omitempty"`
}

// Reading is an assigned text, optionally tied to a date.
type Reading struct {
	Title   string `json:"title"`
	DueDate string `json:"dueDate,omitempty"`
}

// Exam is a scheduled assessment.
type Exam struct {
	Name   string   `json:"name"`
	Date   string   `json:"date"`
	Weight *float64 `json:"weight,omitempty"`
}

// Syllabus is the structured form of a course syllabus.
type Syllabus struct {
	CourseName  string       `json:"courseName"`
	Assignments []Assignment `json:"assignments"`
	Readings    []Reading    `json:"readings"`
	Exams       []Exam       `json:"exams"`
}

// Normalize replaces nil lists with empty ones so the stored and returned
// JSON always carries all four keys.
func (s *Syllabus) Normalize() {
	if s.Assignments == nil {
		s.Assignments = []Assignment{}
	}
	if s.Readings == nil {
		s.Readings = []Reading{}
	}
	if s.Exams == nil {
		s.Exams = []Exam{}
	}
}

// Clone returns a deep copy of the syllabus.
func (s *Syllabus) Clone() *Syllabus {
	if s == nil {
		return nil
	}
	out := &Syllabus{
		CourseName:  s.CourseName,
		Assignments: make([]Assignment, len(s.Assignments)),
		Readings:    append([]Reading{}, s.Readings...),
		Exams:       make([]Exam, len(s.Exams)),
	}
	for i, a := range s.Assignments {
		a.Weight = cloneFloat(a.Weight)
		out.Assignments[i] = a
	}
	for i, e := range s.Exams {
		e.Weight = cloneFloat(e.Weight)
		out.Exams[i] = e
	}
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Preferences are the free-text scheduling preferences a student submits.
type Preferences struct {
	WeeklyAvailability string `json:"weeklyAvailability,omitempty"`
	Goals              string `json:"goals,omitempty"`
}

// WithDefaults returns a copy where blank fields hold the NotSpecified sentinel.
func (p Preferences) WithDefaults() Preferences {
	if strings.TrimSpace(p.WeeklyAvailability) == "" {
		p.WeeklyAvailability = NotSpecified
	}
	if strings.TrimSpace(p.Goals) == "" {
		p.Goals = NotSpecified
	}
	return p
}
