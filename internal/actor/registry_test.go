package actor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/studyplan/internal/domain"
	"github.com/ashureev/studyplan/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRegistry(t *testing.T, opts ...Option) (*Registry, *store.SQLiteStore) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "actor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return NewRegistry(repo, opts...), repo
}

// failingRepo wraps a repository and fails reads or commits on demand.
type failingRepo struct {
	store.Repository
	failRead   atomic.Bool
	failCommit atomic.Bool
	commitErr  atomic.Value
}

var errDiskGone = errors.New("disk gone")

// commitErr returns the configured commit failure, errDiskGone by default.
func commitErr(f *failingRepo) error {
	if err, ok := f.commitErr.Load().(error); ok {
		return err
	}
	return errDiskGone
}

func (f *failingRepo) GetRecord(ctx context.Context, userID string) (*domain.UserRecord, error) {
	if f.failRead.Load() {
		return nil, errDiskGone
	}
	return f.Repository.GetRecord(ctx, userID)
}

func (f *failingRepo) Commit(ctx context.Context, userID string, c store.Change) error {
	if f.failCommit.Load() {
		return commitErr(f)
	}
	return f.Repository.Commit(ctx, userID, c)
}

func TestReadIsIdempotent(t *testing.T) {
	t.Parallel()
	reg, _ := newSQLiteRegistry(t)
	ctx := context.Background()

	plan := "p1"
	require.NoError(t, reg.ApplyUpdate(ctx, "u", Update{Plan: &plan}))
	require.NoError(t, reg.AppendChat(ctx, "u", domain.RoleUser, "hello"))

	first, err := reg.Read(ctx, "u")
	require.NoError(t, err)
	second, err := reg.Read(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestApplyUpdateLeavesOmittedFields(t *testing.T) {
	t.Parallel()
	reg, _ := newSQLiteRegistry(t)
	ctx := context.Background()

	syl := &domain.Syllabus{CourseName: "CS101"}
	require.NoError(t, reg.ApplyUpdate(ctx, "u", Update{Syllabus: syl}))
	plan := "plan"
	require.NoError(t, reg.ApplyUpdate(ctx, "u", Update{Plan: &plan}))

	rec, err := reg.Read(ctx, "u")
	require.NoError(t, err)
	require.NotNil(t, rec.Syllabus)
	assert.Equal(t, "CS101", rec.Syllabus.CourseName)
	assert.Equal(t, "plan", rec.Plan())
	assert.Equal(t, domain.StageHasPlan, rec.Stage())
}

func TestAppendChatAssignsTimestamps(t *testing.T) {
	t.Parallel()
	fixed := time.UnixMilli(1735689600000)
	reg, _ := newSQLiteRegistry(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	require.NoError(t, reg.AppendChat(ctx, "u", domain.RoleAssistant, "hi"))
	rec, err := reg.Read(ctx, "u")
	require.NoError(t, err)
	require.Len(t, rec.ChatHistory, 1)
	assert.True(t, rec.ChatHistory[0].Timestamp.Equal(fixed))
}

func TestAppendChatRejectsUnknownRole(t *testing.T) {
	t.Parallel()
	reg, _ := newSQLiteRegistry(t)

	err := reg.AppendChat(context.Background(), "u", "system", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEmptyUserIDRejected(t *testing.T) {
	t.Parallel()
	reg, _ := newSQLiteRegistry(t)

	_, err := reg.Read(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConcurrentAppendsSameUser(t *testing.T) {
	t.Parallel()
	reg, _ := newSQLiteRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.AppendChat(ctx, "u", domain.RoleUser, "seed"))

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, reg.AppendChat(ctx, "u", domain.RoleUser, fmt.Sprintf("msg-%d", i)))
		}(i)
	}
	wg.Wait()

	rec, err := reg.Read(ctx, "u")
	require.NoError(t, err)
	require.Len(t, rec.ChatHistory, n+1)

	seen := make(map[string]bool)
	for _, e := range rec.ChatHistory[1:] {
		assert.False(t, seen[e.Content], "duplicate entry %q", e.Content)
		seen[e.Content] = true
	}
	assert.Equal(t, 0, reg.active())
}

func TestDoSerializesReadModifyWrite(t *testing.T) {
	t.Parallel()
	reg, _ := newSQLiteRegistry(t)
	ctx := context.Background()

	zero := "0"
	require.NoError(t, reg.ApplyUpdate(ctx, "u", Update{Plan: &zero}))

	// Each turn reads the counter stored in the plan and writes it back
	// incremented. Any interleaving would lose an increment.
	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := reg.Do(ctx, "u", func(ctx context.Context, turn *Turn) error {
				rec, err := turn.Read(ctx)
				if err != nil {
					return err
				}
				var v int
				if _, err := fmt.Sscanf(rec.Plan(), "%d", &v); err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
				next := fmt.Sprintf("%d", v+1)
				turn.ApplyUpdate(Update{Plan: &next})
				return turn.AppendChat(domain.RoleAssistant, next)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := reg.Read(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d", n), rec.Plan())
	require.Len(t, rec.ChatHistory, n)
	for i, e := range rec.ChatHistory {
		assert.Equal(t, fmt.Sprintf("%d", i+1), e.Content)
	}
}

func TestDifferentUsersDoNotBlock(t *testing.T) {
	t.Parallel()
	reg, _ := newSQLiteRegistry(t)
	ctx := context.Background()

	holding := make(chan struct{})
	releaseA := make(chan struct{})
	go func() {
		_ = reg.Do(ctx, "a", func(context.Context, *Turn) error {
			close(holding)
			<-releaseA
			return nil
		})
	}()
	<-holding
	defer close(releaseA)

	done := make(chan error, 1)
	go func() { done <- reg.AppendChat(ctx, "b", domain.RoleUser, "independent") }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("user b blocked behind user a")
	}
}

func TestWaiterHonorsContext(t *testing.T) {
	t.Parallel()
	reg, _ := newSQLiteRegistry(t)

	holding := make(chan struct{})
	releaseA := make(chan struct{})
	go func() {
		_ = reg.Do(context.Background(), "u", func(context.Context, *Turn) error {
			close(holding)
			<-releaseA
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := reg.AppendChat(ctx, "u", domain.RoleUser, "late")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.KindStorageUnavailable, domain.KindOf(err))

	close(releaseA)
	require.Eventually(t, func() bool { return reg.active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestFailedTurnWritesNothing(t *testing.T) {
	t.Parallel()
	reg, _ := newSQLiteRegistry(t)
	ctx := context.Background()

	boom := errors.New("model exploded")
	err := reg.Do(ctx, "u", func(_ context.Context, turn *Turn) error {
		if err := turn.AppendChat(domain.RoleUser, "hello"); err != nil {
			return err
		}
		plan := "half-written"
		turn.ApplyUpdate(Update{Plan: &plan})
		return boom
	})
	require.ErrorIs(t, err, boom)

	rec, err := reg.Read(ctx, "u")
	require.NoError(t, err)
	assert.Empty(t, rec.ChatHistory)
	assert.Nil(t, rec.CurrentPlan)
}

func TestTurnReadSeesStagedWrites(t *testing.T) {
	t.Parallel()
	reg, _ := newSQLiteRegistry(t)

	err := reg.Do(context.Background(), "u", func(ctx context.Context, turn *Turn) error {
		require.NoError(t, turn.AppendChat(domain.RoleUser, "staged"))
		rec, err := turn.Read(ctx)
		require.NoError(t, err)
		require.Len(t, rec.ChatHistory, 1)
		assert.Equal(t, "staged", rec.ChatHistory[0].Content)
		return nil
	})
	require.NoError(t, err)
}

func TestStorageFailuresReportUnavailable(t *testing.T) {
	t.Parallel()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "fail.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	failing := &failingRepo{Repository: repo}
	reg := NewRegistry(failing)
	ctx := context.Background()

	plan := "kept"
	require.NoError(t, reg.ApplyUpdate(ctx, "u", Update{Plan: &plan}))

	failing.failCommit.Store(true)
	next := "lost"
	err = reg.ApplyUpdate(ctx, "u", Update{Plan: &next})
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	require.ErrorIs(t, err, errDiskGone)
	failing.failCommit.Store(false)

	rec, err := reg.Read(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "kept", rec.Plan())

	failing.failRead.Store(true)
	_, err = reg.Read(ctx, "u")
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestBusyCommitIsLoggedAsContention(t *testing.T) {
	t.Parallel()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "busy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	var logs bytes.Buffer
	failing := &failingRepo{Repository: repo}
	failing.commitErr.Store(fmt.Errorf("commit: %w: database is locked", store.ErrBusy))
	failing.failCommit.Store(true)
	reg := NewRegistry(failing, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	plan := "p"
	err = reg.ApplyUpdate(context.Background(), "u", Update{Plan: &plan})
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	require.ErrorIs(t, err, store.ErrBusy)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "lost a lock race")
	assert.NotContains(t, logs.String(), "level=ERROR")
}
