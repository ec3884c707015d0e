// Package store provides durable persistence for per-user planner state.
package store

import (
	"context"

	"github.com/ashureev/studyplan/internal/domain"
)

// Change is a set of writes applied to one user's record in a single
// transaction. Nil fields are left untouched; Append entries are added after
// the existing history in slice order.
type Change struct {
	Syllabus *domain.Syllabus
	Plan     *string
	Append   []domain.ChatEntry
}

// Empty reports whether the change would write nothing.
func (c Change) Empty() bool {
	return c.Syllabus == nil && c.Plan == nil && len(c.Append) == 0
}

// Repository defines the interface for persisting user records.
// Implementations are not required to serialize callers; that is the actor's job.
type Repository interface {
	// GetRecord returns the full record for userID, creating it on first access.
	GetRecord(ctx context.Context, userID string) (*domain.UserRecord, error)

	// Commit applies a change atomically. Either every write in c becomes
	// visible or none does.
	Commit(ctx context.Context, userID string, c Change) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
