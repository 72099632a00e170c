package events

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	e := New(EventTypeCheckStarted, "build", SeverityInfo, "running npm run build")

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventTypeCheckStarted, e.Type)
	assert.False(t, e.Timestamp.IsZero())
	assert.NotNil(t, e.Data)
	assert.Empty(t, e.Fingerprint)

	other := New(EventTypeCheckStarted, "build", SeverityInfo, "again")
	assert.NotEqual(t, e.ID, other.ID)
}

func TestFixEventData(t *testing.T) {
	want := FixData{Rule: "eslint", Attempt: 2, Steps: []string{"npx eslint . --fix"}, Output: "fixed 3 problems"}

	e, err := NewFixEvent(EventTypeFixCompleted, "lint", "abc123", SeverityInfo, "fix applied", want)
	require.NoError(t, err)
	assert.Equal(t, "abc123", e.Fingerprint)
	assert.Equal(t, "eslint", e.Data["rule"])

	got, err := e.GetFixData()
	require.NoError(t, err)
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("FixData mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifiedEvent(t *testing.T) {
	e, err := NewClassifiedEvent("deploy", "fp", SeverityError, "classified", ClassifiedData{
		Rules: []string{"network"}, Categories: []string{"network"}, Primary: "network", Matches: 1,
	})
	require.NoError(t, err)

	got, err := e.GetClassifiedData()
	require.NoError(t, err)
	assert.Equal(t, "network", got.Primary)
	assert.Equal(t, 1, got.Matches)
}

func TestEventTypeIsValid(t *testing.T) {
	for _, et := range AllTypes {
		assert.True(t, et.IsValid(), et)
	}
	assert.False(t, EventType("issue_claimed").IsValid())
}
