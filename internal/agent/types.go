// Package agent binds the planner pipeline to per-user state and serves it
// over HTTP.
package agent

import "github.com/ashureev/studyplan/internal/domain"

// UploadRequest is the body of an upload call.
type UploadRequest struct {
	UserID       string `json:"userId"`
	SyllabusText string `json:"syllabusText"`
}

// PreferencesRequest is the body of a preferences call.
type PreferencesRequest struct {
	UserID      string             `json:"userId"`
	Preferences domain.Preferences `json:"preferences"`
}

// ChatRequest is the body of a chat call.
type ChatRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// WorkflowRequest runs extraction and planning in one call.
type WorkflowRequest struct {
	UserID       string             `json:"userId"`
	SyllabusText string             `json:"syllabusText"`
	Preferences  domain.Preferences `json:"preferences"`
}

// Response is the envelope every agent endpoint returns. Exactly one payload
// field is set on success; Error and Kind are set on failure.
type Response struct {
	Success      bool             `json:"success"`
	SyllabusJSON *domain.Syllabus `json:"syllabusJson,omitempty"`
	StudyPlan    string           `json:"studyPlan,omitempty"`
	Response     string           `json:"response,omitempty"`
	Error        string           `json:"error,omitempty"`
	Kind         string           `json:"kind,omitempty"`
}

// WorkflowResult is the outcome of RunComplete.
type WorkflowResult struct {
	Syllabus *domain.Syllabus `json:"syllabusJson"`
	Plan     string           `json:"studyPlan"`
}

// ChatResult is the outcome of Chat.
type ChatResult struct {
	Response string
	// Revised is false when no plan existed and the fixed prerequisite
	// message was returned instead of a revision.
	Revised bool
}
