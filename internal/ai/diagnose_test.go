package ai

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmoi/selfheal/internal/retry"
	"github.com/qmoi/selfheal/internal/types"
)

const messagesURL = "https://api.test/v1/messages"

func newTestDiagnoser(t *testing.T) *Diagnoser {
	t.Helper()
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)

	rc := retry.DefaultConfig()
	rc.MaxRetries = 2
	rc.InitialBackoff = time.Millisecond
	rc.MaxBackoff = time.Millisecond
	rc.CircuitBreakerEnabled = false

	d, err := NewDiagnoser(Config{
		APIKey:      "test-key",
		Model:       ModelHaiku,
		BaseURL:     "https://api.test/",
		HTTPClient:  client,
		MaxLogBytes: 64,
		Retry:       rc,
	})
	require.NoError(t, err)
	return d
}

func messageResponse(text string) map[string]interface{} {
	return map[string]interface{}{
		"id":            "msg_01",
		"type":          "message",
		"role":          "assistant",
		"model":         ModelHaiku,
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"content":       []map[string]interface{}{{"type": "text", "text": text}},
		"usage":         map[string]interface{}{"input_tokens": 10, "output_tokens": 20},
	}
}

func TestDiagnose(t *testing.T) {
	d := newTestDiagnoser(t)

	reply := "Here is what I found:\n```json\n" +
		`{"category": "dependency", "summary": "Peer dependency conflict on react.", ` +
		`"suggested_commands": ["npm install --legacy-peer-deps", " "], "confidence": 0.8,}` +
		"\n```"
	httpmock.RegisterResponder(http.MethodPost, messagesURL,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, messageResponse(reply)))

	diag, err := d.Diagnose(context.Background(), "build", "npm ERR! ERESOLVE could not resolve")
	require.NoError(t, err)
	assert.Equal(t, types.CategoryDependency, diag.Category)
	assert.Equal(t, "Peer dependency conflict on react.", diag.Summary)
	assert.Equal(t, []string{"npm install --legacy-peer-deps"}, diag.SuggestedCommands)
	assert.InDelta(t, 0.8, diag.Confidence, 1e-9)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestDiagnose_RetriesServerErrors(t *testing.T) {
	d := newTestDiagnoser(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, messagesURL, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return httpmock.NewStringResponse(http.StatusInternalServerError,
				`{"type":"error","error":{"type":"api_error","message":"boom"}}`), nil
		}
		return httpmock.NewJsonResponse(http.StatusOK,
			messageResponse(`{"category":"network","summary":"Registry timed out.","suggested_commands":[],"confidence":0.4}`))
	})

	diag, err := d.Diagnose(context.Background(), "install", "ETIMEDOUT")
	require.NoError(t, err)
	assert.Equal(t, types.CategoryNetwork, diag.Category)
	assert.Equal(t, 2, calls)
}

func TestDiagnose_AuthErrorIsNotRetried(t *testing.T) {
	d := newTestDiagnoser(t)

	httpmock.RegisterResponder(http.MethodPost, messagesURL,
		httpmock.NewStringResponder(http.StatusUnauthorized,
			`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))

	_, err := d.Diagnose(context.Background(), "build", "log")
	require.Error(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestDiagnose_UnparseableReply(t *testing.T) {
	d := newTestDiagnoser(t)

	httpmock.RegisterResponder(http.MethodPost, messagesURL,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, messageResponse("I am not sure what happened.")))

	_, err := d.Diagnose(context.Background(), "build", "log")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse diagnosis")
}

func TestNewDiagnoser_RequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewDiagnoser(Config{})
	require.Error(t, err)

	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("SELFHEAL_AI_MODEL", "claude-custom")
	d, err := NewDiagnoser(Config{})
	require.NoError(t, err)
	assert.Equal(t, "claude-custom", d.Model())
}

func TestParseDiagnosis_Normalizes(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		category types.Category
		conf     float64
		wantErr  bool
	}{
		{"plain", `{"category":"lint","summary":"x","confidence":0.5}`, types.CategoryLint, 0.5, false},
		{"unknown category", `{"category":"cosmic rays","summary":"x","confidence":0.5}`, types.CategoryUnknown, 0.5, false},
		{"confidence too high", `{"category":"test","summary":"x","confidence":7}`, types.CategoryTest, 1, false},
		{"confidence negative", `{"category":"test","summary":"x","confidence":-1}`, types.CategoryTest, 0, false},
		{"missing summary", `{"category":"test","summary":"  "}`, "", 0, true},
		{"not json", `nope`, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diag, err := parseDiagnosis(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.category, diag.Category)
			assert.InDelta(t, tt.conf, diag.Confidence, 1e-9)
		})
	}
}

func TestTail_KeepsRunesWhole(t *testing.T) {
	got := tail("x✖✖", 4)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "✖", got)
}

func TestBuildPromptUsesLogTail(t *testing.T) {
	log := strings.Repeat("noise line\n", 20) + "the real error\n"
	prompt := buildPrompt("build", tail(log, 40))

	assert.Contains(t, prompt, `"build"`)
	assert.Contains(t, prompt, "the real error")
	assert.Less(t, strings.Count(prompt, "noise line"), 5)
}
