package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmoi/selfheal/internal/events"
	"github.com/qmoi/selfheal/internal/types"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), ".selfheal", "selfheal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNew_InMemory(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(context.Background()))
	assert.Equal(t, ":memory:", store.Path())
}

func TestNew_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "selfheal.db")

	store, err := New(path)
	require.NoError(t, err)
	_, err = store.RecordFailure(ctx, &types.Failure{Fingerprint: "fp1", Source: "build", Category: types.CategoryBuild})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = New(path)
	require.NoError(t, err)
	defer store.Close()

	f, err := store.GetFailure(ctx, "fp1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.Count)
}

func TestRecordFailure_Increments(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	in := &types.Failure{Fingerprint: "abc", Source: "build", Category: types.CategoryDependency,
		Rule: "npm-peer-dependency", Sample: "npm ERR! code ERESOLVE"}

	first, err := store.RecordFailure(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count)
	assert.False(t, first.Escalated)

	in.Rule = "npm-generic"
	second, err := store.RecordFailure(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Count)
	assert.Equal(t, "npm-generic", second.Rule)
	assert.Equal(t, first.FirstSeen, second.FirstSeen)
	assert.False(t, second.LastSeen.Before(first.LastSeen))

	_, err = store.RecordFailure(ctx, &types.Failure{})
	assert.Error(t, err)
}

func TestFailures_ResetAndEscalate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, f := range []*types.Failure{
		{Fingerprint: "a", Source: "build", Category: types.CategoryBuild},
		{Fingerprint: "b", Source: "build", Category: types.CategoryLint},
		{Fingerprint: "c", Source: "deploy", Category: types.CategoryNetwork},
	} {
		_, err := store.RecordFailure(ctx, f)
		require.NoError(t, err)
	}

	require.NoError(t, store.MarkEscalated(ctx, "a"))
	a, err := store.GetFailure(ctx, "a")
	require.NoError(t, err)
	assert.True(t, a.Escalated)
	assert.ErrorIs(t, store.MarkEscalated(ctx, "missing"), ErrNotFound)

	all, err := store.ListFailures(ctx, FailureFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	build, err := store.ListFailures(ctx, FailureFilter{Source: "build", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, build, 1)

	require.NoError(t, store.ResetFailure(ctx, "a"))
	require.NoError(t, store.ResetFailure(ctx, "a"), "resetting twice is fine")
	_, err = store.GetFailure(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := store.ResetFailures(ctx, "build")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.ResetFailures(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAttempts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	start := time.Now().Add(-time.Minute)
	done := time.Now()
	a1 := &types.Attempt{Source: "build", Fingerprint: "fp", Rule: "eslint", Number: 1,
		Outcome: types.OutcomeFailed, StartedAt: start}
	a2 := &types.Attempt{Source: "build", Fingerprint: "fp", Rule: "build", Number: 2,
		Outcome: types.OutcomeHealed, StartedAt: done, FinishedAt: &done}
	require.NoError(t, store.RecordAttempt(ctx, a1))
	require.NoError(t, store.RecordAttempt(ctx, a2))
	require.NoError(t, store.RecordAttempt(ctx, &types.Attempt{Source: "lint", Number: 1, Outcome: types.OutcomeSkipped}))
	assert.NotEmpty(t, a1.ID)

	assert.Error(t, store.RecordAttempt(ctx, &types.Attempt{Source: "x", Outcome: "maybe"}))

	got, err := store.ListAttempts(ctx, "build", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "build", got[0].Rule, "newest first")
	require.NotNil(t, got[0].FinishedAt)
	assert.True(t, got[0].FinishedAt.Equal(done))
	assert.Nil(t, got[1].FinishedAt)

	all, err := store.ListAttempts(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestEvents_StoreAndFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	old := events.New(events.EventTypeCheckFailed, "build", events.SeverityError, "build failed")
	old.Timestamp = time.Now().Add(-time.Hour)
	fix, err := events.NewFixEvent(events.EventTypeFixCompleted, "build", "fp", events.SeverityInfo, "fixed",
		events.FixData{Rule: "eslint", Attempt: 1, Steps: []string{"npx eslint . --fix"}})
	require.NoError(t, err)
	other := events.New(events.EventTypeCheckPassed, "deploy", events.SeverityInfo, "ok")

	for _, e := range []*events.Event{old, fix, other} {
		require.NoError(t, store.StoreEvent(ctx, e))
	}

	got, err := store.GetEvents(ctx, events.Filter{Source: "build"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, fix.ID, got[0].ID, "newest first")
	assert.Equal(t, "fp", got[0].Fingerprint)

	data, err := got[0].GetFixData()
	require.NoError(t, err)
	assert.Equal(t, "eslint", data.Rule)

	got, err = store.GetEvents(ctx, events.Filter{Type: events.EventTypeCheckFailed})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.WithinDuration(t, old.Timestamp, got[0].Timestamp, time.Microsecond)

	got, err = store.GetEvents(ctx, events.Filter{AfterTime: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.GetEvents(ctx, events.Filter{Severity: events.SeverityInfo, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCleanupEventsByAge(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	add := func(sev events.EventSeverity, age time.Duration) {
		e := events.New(events.EventTypeCheckFailed, "build", sev, "x")
		e.Timestamp = time.Now().Add(-age)
		require.NoError(t, store.StoreEvent(ctx, e))
	}
	day := 24 * time.Hour
	add(events.SeverityInfo, 40*day)
	add(events.SeverityWarning, 40*day)
	add(events.SeverityInfo, time.Hour)
	add(events.SeverityCritical, 40*day)
	add(events.SeverityError, 100*day)

	deleted, err := store.CleanupEventsByAge(ctx, 30, 90, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	counts, err := store.GetEventCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.TotalEvents)
	assert.Equal(t, 1, counts.EventsBySeverity["critical"])
	assert.Equal(t, 2, counts.EventsBySource["build"])

	_, err = store.CleanupEventsByAge(ctx, -1, 90, 10)
	assert.Error(t, err)
	_, err = store.CleanupEventsByAge(ctx, 1, 1, 0)
	assert.Error(t, err)
}

func TestCleanupEventsByGlobalLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i, sev := range []events.EventSeverity{
		events.SeverityCritical, events.SeverityInfo, events.SeverityError,
		events.SeverityWarning, events.SeverityInfo,
	} {
		e := events.New(events.EventTypeFixFailed, "build", sev, "x")
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.StoreEvent(ctx, e))
	}

	deleted, err := store.CleanupEventsByGlobalLimit(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, deleted)

	remaining, err := store.GetEvents(ctx, events.Filter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, events.SeverityError, remaining[0].Severity, "oldest critical goes before newer error")

	require.NoError(t, store.VacuumDatabase(ctx))
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 8, time.FixedZone("x", 3600))
	parsed, err := parseTime(formatTime(now))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(now))

	parsed, err = parseTime("2026-03-04T05:06:07Z")
	require.NoError(t, err)
	assert.Equal(t, 2026, parsed.Year())

	_, err = parseTime("yesterday")
	assert.Error(t, err)
}
