package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmoi/selfheal/internal/types"
)

func testEscalation() *types.Escalation {
	return &types.Escalation{
		Source:      "vercel",
		Fingerprint: "1a2b3c4d5e6f7a8b",
		Category:    types.CategoryBuild,
		Rule:        "build",
		Count:       5,
		Reason:      "failure seen 5 times (threshold 5)",
		Sample:      "Failed to compile.",
		Diagnosis: &types.Diagnosis{
			Summary:           "missing env var at build time",
			SuggestedCommands: []string{"vercel env pull"},
			Confidence:        0.8,
		},
		Timestamp: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestTitleAndBody(t *testing.T) {
	esc := testEscalation()
	assert.Equal(t, "selfheal gave up on vercel (build/build)", Title(esc))

	body := Body(esc)
	assert.Contains(t, body, "Reason: failure seen 5 times")
	assert.Contains(t, body, "Fingerprint: 1a2b3c4d5e6f7a8b")
	assert.Contains(t, body, "Diagnosis (80% confident): missing env var")
	assert.Contains(t, body, "$ vercel env pull")

	bare := &types.Escalation{Source: "lint", Category: types.CategoryUnknown, Reason: "no rule matched"}
	assert.Equal(t, "selfheal gave up on lint (unknown)", Title(bare))
	assert.Equal(t, "Reason: no rule matched", Body(bare))
}

func TestSlack(t *testing.T) {
	s := NewSlack("https://hooks.slack.test/T/B/X", "#ci", "", WithRetryWait(time.Millisecond))
	httpmock.ActivateNonDefault(s.client.GetClient())
	defer httpmock.DeactivateAndReset()

	var got slackMessage
	httpmock.RegisterResponder("POST", "https://hooks.slack.test/T/B/X",
		func(req *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(req.Body)
			require.NoError(t, json.Unmarshal(raw, &got))
			return httpmock.NewStringResponse(200, "ok"), nil
		})

	require.NoError(t, s.Notify(context.Background(), testEscalation()))

	assert.Equal(t, "#ci", got.Channel)
	assert.Equal(t, "selfheal", got.Username)
	assert.Equal(t, "selfheal gave up on vercel (build/build)", got.Text)
	require.Len(t, got.Blocks, 4)
	assert.Equal(t, "header", got.Blocks[0].Type)
	assert.Contains(t, got.Blocks[2].Text.Text, "Failed to compile.")
	assert.Contains(t, got.Blocks[3].Text.Text, "`vercel env pull`")
}

func TestSlack_LongSourceFitsHeader(t *testing.T) {
	s := NewSlack("https://hooks.slack.test/T/B/X", "", "", WithRetryWait(time.Millisecond))
	httpmock.ActivateNonDefault(s.client.GetClient())
	defer httpmock.DeactivateAndReset()

	var got slackMessage
	httpmock.RegisterResponder("POST", "https://hooks.slack.test/T/B/X",
		func(req *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(req.Body)
			require.NoError(t, json.Unmarshal(raw, &got))
			return httpmock.NewStringResponse(200, "ok"), nil
		})

	esc := testEscalation()
	esc.Source = strings.Repeat("build-output-✖-", 20) + ".log"
	require.NoError(t, s.Notify(context.Background(), esc))

	header := got.Blocks[0].Text.Text
	assert.Equal(t, maxHeaderChars, utf8.RuneCountInString(header))
	assert.True(t, strings.HasSuffix(header, "…"))
	assert.Equal(t, Title(esc), got.Text, "fallback text keeps the full title")
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	w := NewWebhook("https://hooks.test/selfheal",
		WithHeaders(map[string]string{"X-Token": "abc"}), WithRetryWait(time.Millisecond))
	httpmock.ActivateNonDefault(w.client.GetClient())
	defer httpmock.DeactivateAndReset()

	calls := 0
	var payload map[string]interface{}
	httpmock.RegisterResponder("POST", "https://hooks.test/selfheal",
		func(req *http.Request) (*http.Response, error) {
			calls++
			assert.Equal(t, "abc", req.Header.Get("X-Token"))
			if calls == 1 {
				return httpmock.NewStringResponse(502, "bad gateway"), nil
			}
			raw, _ := io.ReadAll(req.Body)
			require.NoError(t, json.Unmarshal(raw, &payload))
			return httpmock.NewStringResponse(204, ""), nil
		})

	require.NoError(t, w.Notify(context.Background(), testEscalation()))
	assert.Equal(t, 2, calls)
	assert.Equal(t, "vercel", payload["source"])
	assert.Equal(t, "1a2b3c4d5e6f7a8b", payload["fingerprint"])
	assert.Equal(t, "selfheal gave up on vercel (build/build)", payload["title"])
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	w := NewWebhook("https://hooks.test/selfheal", WithRetryWait(time.Millisecond))
	httpmock.ActivateNonDefault(w.client.GetClient())
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://hooks.test/selfheal", httpmock.NewStringResponder(403, "forbidden"))

	err := w.Notify(context.Background(), testEscalation())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 403")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestConsole(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer

	require.NoError(t, NewConsole(&buf).Notify(context.Background(), testEscalation()))

	out := buf.String()
	assert.Contains(t, out, "✗ ESCALATED selfheal gave up on vercel")
	assert.Contains(t, out, "reason: failure seen 5 times")
	assert.Contains(t, out, "│ Failed to compile.")
	assert.Contains(t, out, "diagnosis: missing env var at build time (80%)")
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(context.Context, *types.Escalation) error {
	s.calls++
	return s.err
}

func TestMulti(t *testing.T) {
	a := &stubNotifier{err: errors.New("slack down")}
	b := &stubNotifier{}
	c := &stubNotifier{err: errors.New("webhook down")}
	m := NewMulti(a, nil, b, c)

	assert.Equal(t, 3, m.Len())
	err := m.Notify(context.Background(), testEscalation())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack down")
	assert.Contains(t, err.Error(), "webhook down")
	assert.Equal(t, 1, b.calls, "later notifiers still run after a failure")

	assert.NoError(t, NewMulti().Notify(context.Background(), testEscalation()))
}
