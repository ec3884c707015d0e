// Package actor serializes access to each user's durable state.
//
// A Registry holds one lockable cell per user ID that is currently in use.
// Operations for the same user run one at a time in arrival order at the
// cell; operations for different users never contend.
package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/studyplan/internal/domain"
	"github.com/ashureev/studyplan/internal/store"
)

// Update carries the record fields to replace. Nil fields are left untouched.
type Update struct {
	Syllabus *domain.Syllabus
	Plan     *string
}

// cell is the per-user mutual exclusion point. sem has capacity one so a
// waiter can give up when its context ends.
type cell struct {
	sem  chan struct{}
	refs int
}

// Registry owns the per-user cells and the repository they guard.
type Registry struct {
	repo   store.Repository
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	cells map[string]*cell
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the timestamp source for chat entries.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a registry over repo.
func NewRegistry(repo store.Repository, opts ...Option) *Registry {
	r := &Registry{
		repo:   repo,
		now:    time.Now,
		logger: slog.Default(),
		cells:  make(map[string]*cell),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) acquire(ctx context.Context, userID string) (*cell, error) {
	r.mu.Lock()
	c, ok := r.cells[userID]
	if !ok {
		c = &cell{sem: make(chan struct{}, 1)}
		r.cells[userID] = c
	}
	c.refs++
	r.mu.Unlock()

	select {
	case c.sem <- struct{}{}:
		return c, nil
	case <-ctx.Done():
		r.drop(userID, c)
		return nil, ctx.Err()
	}
}

func (r *Registry) release(userID string, c *cell) {
	<-c.sem
	r.drop(userID, c)
}

// drop forgets the cell once nobody holds or waits on it.
func (r *Registry) drop(userID string, c *cell) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.refs--
	if c.refs == 0 {
		delete(r.cells, userID)
	}
}

// active returns the number of users with a live cell.
func (r *Registry) active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cells)
}

// Do runs fn while holding userID's cell. Writes staged on the Turn are
// committed in one transaction after fn returns nil; if fn fails nothing is
// written. No other operation for userID starts until Do returns.
func (r *Registry) Do(ctx context.Context, userID string, fn func(ctx context.Context, t *Turn) error) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}

	c, err := r.acquire(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: wait for user %s: %w", domain.ErrStorageUnavailable, userID, err)
	}
	defer r.release(userID, c)

	t := &Turn{userID: userID, reg: r}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if t.pending.Empty() {
		return nil
	}
	if err := r.repo.Commit(ctx, userID, t.pending); err != nil {
		if errors.Is(err, store.ErrBusy) {
			r.logger.Warn("User state commit lost a lock race", "user_id", userID, "error", err)
		} else {
			r.logger.Error("Failed to commit user state", "user_id", userID, "error", err)
		}
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// Read returns the current durable state for userID, creating it on first access.
func (r *Registry) Read(ctx context.Context, userID string) (*domain.UserRecord, error) {
	var rec *domain.UserRecord
	err := r.Do(ctx, userID, func(ctx context.Context, t *Turn) error {
		var err error
		rec, err = t.Read(ctx)
		return err
	})
	return rec, err
}

// ApplyUpdate replaces the provided fields of userID's record.
func (r *Registry) ApplyUpdate(ctx context.Context, userID string, u Update) error {
	return r.Do(ctx, userID, func(_ context.Context, t *Turn) error {
		t.ApplyUpdate(u)
		return nil
	})
}

// AppendChat adds one entry to userID's history with a server-assigned timestamp.
func (r *Registry) AppendChat(ctx context.Context, userID string, role domain.Role, content string) error {
	return r.Do(ctx, userID, func(_ context.Context, t *Turn) error {
		return t.AppendChat(role, content)
	})
}

// Turn is the exclusive view of one user's state inside Do.
type Turn struct {
	userID  string
	reg     *Registry
	loaded  *domain.UserRecord
	pending store.Change
}

// UserID returns the user this turn belongs to.
func (t *Turn) UserID() string {
	return t.userID
}

// Read returns the record as of the start of the turn with this turn's staged
// writes applied. The result is a copy.
func (t *Turn) Read(ctx context.Context) (*domain.UserRecord, error) {
	if t.loaded == nil {
		rec, err := t.reg.repo.GetRecord(ctx, t.userID)
		if err != nil {
			t.reg.logger.Error("Failed to read user state", "user_id", t.userID, "error", err)
			return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
		}
		t.loaded = rec
	}

	view := t.loaded.Clone()
	if t.pending.Syllabus != nil {
		view.Syllabus = t.pending.Syllabus.Clone()
	}
	if t.pending.Plan != nil {
		plan := *t.pending.Plan
		view.CurrentPlan = &plan
	}
	view.ChatHistory = append(view.ChatHistory, t.pending.Append...)
	return view, nil
}

// ApplyUpdate stages a wholesale replacement of the provided fields.
func (t *Turn) ApplyUpdate(u Update) {
	if u.Syllabus != nil {
		t.pending.Syllabus = u.Syllabus.Clone()
	}
	if u.Plan != nil {
		plan := *u.Plan
		t.pending.Plan = &plan
	}
}

// AppendChat stages a history entry stamped with the current server time.
func (t *Turn) AppendChat(role domain.Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown chat role %q", domain.ErrInvalidInput, role)
	}
	t.pending.Append = append(t.pending.Append, domain.ChatEntry{
		Role:      role,
		Content:   content,
		Timestamp: t.reg.now(),
	})
	return nil
}
