package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mindwell/apiserver/config"
	"github.com/mindwell/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedModel answers prompts in order and records what it was asked.
type scriptedModel struct {
	replies []string
	errs    []error
	prompts []string
}

func (m *scriptedModel) Generate(_ context.Context, prompt string) (string, error) {
	i := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return "", nil
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "plain", input: `{"a": 1}`},
		{name: "fenced", input: "```json\n{\"a\": 1}\n```"},
		{name: "bare fence", input: "```\n{\"a\": 1}\n```"},
		{name: "prose", input: "Sure! here you go", wantErr: true},
		{name: "empty", input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]int
			err := ExtractJSON(tt.input, &out)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSON)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, out["a"])
		})
	}
}

func TestParseAnalysisFallsBackToNeutral(t *testing.T) {
	for _, text := range []string{
		"not json",
		"null",
		"{}",
		"```json\n{}\n```",
		`{"emotionalState":"  ","riskLevel":4}`,
		`{"themes":["work"],"riskLevel":1}`,
	} {
		analysis, ok := ParseAnalysis(text)
		assert.False(t, ok, text)
		assert.Equal(t, NeutralAnalysis(), analysis, text)
	}

	analysis, ok := ParseAnalysis("```json\n{\"emotionalState\":\"anxious\",\"riskLevel\":3}\n```")
	assert.True(t, ok)
	assert.Equal(t, "anxious", analysis.EmotionalState)
	assert.Equal(t, 3.0, analysis.RiskLevel)
	assert.NotNil(t, analysis.Themes)
}

func TestRespondUsesModelOutput(t *testing.T) {
	model := &scriptedModel{replies: []string{
		`{"emotionalState":"anxious","themes":["work"],"riskLevel":2,"recommendedApproach":"cbt","progressIndicators":[]}`,
		"  That sounds stressful.  ",
	}}
	responder := NewResponder(model, discardLogger(), 2)

	history := []types.ChatMessage{
		{Role: types.ChatRoleUser, Content: "first"},
		{Role: types.ChatRoleAssistant, Content: "second"},
		{Role: types.ChatRoleUser, Content: "third"},
	}
	result := responder.Respond(context.Background(), "I feel anxious", history)

	assert.False(t, result.Degraded)
	assert.Equal(t, "That sounds stressful.", result.Reply)
	assert.Equal(t, "anxious", result.Analysis.EmotionalState)
	require.Len(t, model.prompts, 2)
	assert.Contains(t, model.prompts[0], "I feel anxious")
	assert.Contains(t, model.prompts[1], `"emotionalState":"anxious"`)
	assert.NotContains(t, model.prompts[1], "first")
	assert.Contains(t, model.prompts[1], "third")
}

func TestRespondDegradesWhenModelUnavailable(t *testing.T) {
	down := errors.New("connection refused")
	model := &scriptedModel{errs: []error{down, down}}
	responder := NewResponder(model, discardLogger(), 10)

	result := responder.Respond(context.Background(), "hello", nil)

	assert.True(t, result.Degraded)
	assert.Equal(t, FallbackReply, result.Reply)
	assert.Equal(t, NeutralAnalysis(), result.Analysis)
}

func TestRespondFallsBackOnEmptyReply(t *testing.T) {
	model := &scriptedModel{replies: []string{"garbage", ""}}
	responder := NewResponder(model, discardLogger(), 10)

	result := responder.Respond(context.Background(), "hello", nil)

	assert.True(t, result.Degraded)
	assert.Equal(t, FallbackReply, result.Reply)
	assert.Equal(t, "neutral", result.Analysis.EmotionalState)
}

func TestRespondDegradesOnEmptyAnalysisObject(t *testing.T) {
	model := &scriptedModel{replies: []string{"null", "I'm listening."}}
	responder := NewResponder(model, discardLogger(), 10)

	result := responder.Respond(context.Background(), "hello", nil)

	assert.True(t, result.Degraded)
	assert.Equal(t, "I'm listening.", result.Reply)
	assert.Equal(t, NeutralAnalysis(), result.Analysis)
	require.Len(t, model.prompts, 2)
	assert.Contains(t, model.prompts[1], `"emotionalState":"neutral"`)
}

func TestRespondBoundsEachModelCall(t *testing.T) {
	var deadlines []time.Duration
	hung := ModelFunc(func(ctx context.Context, _ string) (string, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		deadlines = append(deadlines, time.Until(deadline))
		<-ctx.Done()
		return "", ctx.Err()
	})
	responder := NewResponder(hung, discardLogger(), 10).WithCallTimeout(20 * time.Millisecond)

	start := time.Now()
	result := responder.Respond(context.Background(), "hello", nil)

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, result.Degraded)
	assert.Equal(t, FallbackReply, result.Reply)
	require.Len(t, deadlines, 2)
	for _, d := range deadlines {
		assert.LessOrEqual(t, d, 20*time.Millisecond)
	}
}

func TestRecommend(t *testing.T) {
	model := &scriptedModel{replies: []string{"```json\n[{\"name\":\"Walk\",\"difficulty\":\"easy\"}]\n```"}}
	responder := NewResponder(model, discardLogger(), 10)

	items := responder.Recommend(context.Background(), 15, "")
	require.Len(t, items, 1)
	assert.Equal(t, "Walk", items[0].Name)
	assert.Contains(t, model.prompts[0], "Context: none")

	failing := NewResponder(&scriptedModel{errs: []error{errors.New("boom")}}, discardLogger(), 10)
	assert.Empty(t, failing.Recommend(context.Background(), 50, "work"))
}

func TestAnalyzeSession(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"themes":["sleep"],"emotionalSummary":"tired","riskFindings":[],"followUpSuggestions":["rest"]}`}}
	responder := NewResponder(model, discardLogger(), 10)

	analysis, ok := responder.AnalyzeSession(context.Background(), "notes")
	require.True(t, ok)
	assert.Equal(t, "tired", analysis.EmotionalSummary)

	_, ok = NewResponder(&scriptedModel{replies: []string{"nope"}}, discardLogger(), 10).AnalyzeSession(context.Background(), "notes")
	assert.False(t, ok)
}

func TestGeminiClientGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("x-goog-api-key"))

		var body geminiRequest
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) && assert.Len(t, body.Contents, 1) {
			assert.Equal(t, "hello", body.Contents[0].Parts[0].Text)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hi "},{"text":"there"}]}}]}`))
	}))
	defer srv.Close()

	client := NewGeminiClient(config.AIConfig{BaseURL: srv.URL + "/", APIKey: "key-123", Model: "gemini-test"})
	text, err := client.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
}

func TestGeminiClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "empty") {
			_, _ = w.Write([]byte(`{"candidates":[]}`))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	client := NewGeminiClient(config.AIConfig{BaseURL: srv.URL, Model: "limited"})
	_, err := client.Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	client = NewGeminiClient(config.AIConfig{BaseURL: srv.URL, Model: "empty"})
	_, err = client.Generate(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}
