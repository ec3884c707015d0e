package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/studyplan/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetRecordCreatesLazily(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.GetRecord(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if rec.UserID != "user-1" {
		t.Errorf("UserID = %q", rec.UserID)
	}
	if rec.Syllabus != nil || rec.CurrentPlan != nil {
		t.Errorf("expected empty record, got %+v", rec)
	}
	if rec.ChatHistory == nil || len(rec.ChatHistory) != 0 {
		t.Errorf("expected empty non-nil history, got %#v", rec.ChatHistory)
	}
}

func TestCommitMergesOnlyProvidedFields(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	w := 20.0
	syl := &domain.Syllabus{CourseName: "CS101", Assignments: []domain.Assignment{{Name: "Essay", DueDate: "2025-03-01", Weight: &w}}}
	if err := s.Commit(ctx, "u", Change{Syllabus: syl}); err != nil {
		t.Fatalf("commit syllabus: %v", err)
	}
	plan := "plan v1"
	if err := s.Commit(ctx, "u", Change{Plan: &plan}); err != nil {
		t.Fatalf("commit plan: %v", err)
	}

	rec, err := s.GetRecord(ctx, "u")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.Syllabus == nil || rec.Syllabus.CourseName != "CS101" {
		t.Fatalf("syllabus lost after plan commit: %+v", rec.Syllabus)
	}
	if got := *rec.Syllabus.Assignments[0].Weight; got != 20 {
		t.Errorf("weight = %v", got)
	}
	if rec.Syllabus.Readings == nil || rec.Syllabus.Exams == nil {
		t.Errorf("expected normalized empty lists")
	}
	if rec.Plan() != "plan v1" {
		t.Errorf("plan = %q", rec.Plan())
	}
}

func TestCommitAppendsHistoryInOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	base := time.UnixMilli(1700000000000)
	first := Change{Append: []domain.ChatEntry{
		{Role: domain.RoleUser, Content: "one", Timestamp: base},
		{Role: domain.RoleAssistant, Content: "two", Timestamp: base},
	}}
	second := Change{Append: []domain.ChatEntry{
		{Role: domain.RoleUser, Content: "three", Timestamp: base.Add(time.Second)},
	}}
	if err := s.Commit(ctx, "u", first); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Commit(ctx, "u", second); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rec, err := s.GetRecord(ctx, "u")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	want := []string{"one", "two", "three"}
	if len(rec.ChatHistory) != len(want) {
		t.Fatalf("history length = %d, want %d", len(rec.ChatHistory), len(want))
	}
	for i, w := range want {
		if rec.ChatHistory[i].Content != w {
			t.Errorf("entry %d = %q, want %q", i, rec.ChatHistory[i].Content, w)
		}
	}
	if !rec.ChatHistory[0].Timestamp.Equal(base) {
		t.Errorf("timestamp = %v, want %v", rec.ChatHistory[0].Timestamp, base)
	}
}

func TestCommitInvalidRoleWritesNothing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	plan := "should not land"
	err := s.Commit(ctx, "u", Change{
		Plan:   &plan,
		Append: []domain.ChatEntry{{Role: "system", Content: "x"}},
	})
	if err == nil {
		t.Fatal("expected error for invalid role")
	}

	rec, err := s.GetRecord(ctx, "u")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.CurrentPlan != nil {
		t.Errorf("plan committed despite rollback: %q", rec.Plan())
	}
}

func TestUsersAreIsolated(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	plan := "a's plan"
	if err := s.Commit(ctx, "a", Change{Plan: &plan}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	rec, err := s.GetRecord(ctx, "b")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.CurrentPlan != nil {
		t.Errorf("user b sees user a's plan")
	}
}

func TestPingAfterClose(t *testing.T) {
	t.Parallel()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "ping.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Error("expected ping to fail after close")
	}
}
