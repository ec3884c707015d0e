// Package domain contains core domain types for the study planner.
package domain

import (
	"time"
)

// Role identifies the author of a chat entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles accepted in chat history.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ChatEntry is a single message in a user's conversation history.
// Timestamp is assigned by the server when the entry is appended.
type ChatEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"-"`
}

// UnixMilli returns the entry timestamp in milliseconds, the persisted wire form.
func (e ChatEntry) UnixMilli() int64 {
	return e.Timestamp.UnixMilli()
}

// UserRecord is the durable state owned by one user's actor.
type UserRecord struct {
	UserID      string
	Syllabus    *Syllabus
	CurrentPlan *string
	ChatHistory []ChatEntry
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Stage is the pipeline position derived from which fields are present.
type Stage string

const (
	StageNoSyllabus        Stage = "no_syllabus"
	StageHasSyllabusNoPlan Stage = "has_syllabus_no_plan"
	StageHasPlan           Stage = "has_plan"
)

// Stage derives the pipeline state. A plan without a syllabus still counts as
// HasPlan so revision stays available.
func (u *UserRecord) Stage() Stage {
	switch {
	case u.HasPlan():
		return StageHasPlan
	case u.Syllabus != nil:
		return StageHasSyllabusNoPlan
	default:
		return StageNoSyllabus
	}
}

// HasPlan returns true if a non-empty plan has been stored.
func (u *UserRecord) HasPlan() bool {
	return u.CurrentPlan != nil && *u.CurrentPlan != ""
}

// Plan returns the current plan text or "" when none exists.
func (u *UserRecord) Plan() string {
	if u.CurrentPlan == nil {
		return ""
	}
	return *u.CurrentPlan
}

// Clone returns a deep copy so callers cannot mutate actor-owned state.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	out := *u
	if u.Syllabus != nil {
		out.Syllabus = u.Syllabus.Clone()
	}
	if u.CurrentPlan != nil {
		plan := *u.CurrentPlan
		out.CurrentPlan = &plan
	}
	out.ChatHistory = append([]ChatEntry(nil), u.ChatHistory...)
	return &out
}

// StoredChatEntry is the persisted shape of a chat entry.
type StoredChatEntry struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// StoredRecord is the persisted shape of a UserRecord.
type StoredRecord struct {
	SyllabusJSON *Syllabus         `json:"syllabus_json,omitempty"`
	LastPlan     *string           `json:"last_plan,omitempty"`
	ChatHistory  []StoredChatEntry `json:"chat_history"`
}

// Snapshot converts the record to its persisted shape.
func (u *UserRecord) Snapshot() StoredRecord {
	history := make([]StoredChatEntry, 0, len(u.ChatHistory))
	for _, e := range u.ChatHistory {
		history = append(history, StoredChatEntry{
			Role:      e.Role,
			Content:   e.Content,
			Timestamp: e.UnixMilli(),
		})
	}
	return StoredRecord{
		SyllabusJSON: u.Syllabus,
		LastPlan:     u.CurrentPlan,
		ChatHistory:  history,
	}
}
