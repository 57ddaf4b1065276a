package provider

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusaura/internal/config"
	"focusaura/internal/domain"
)

func TestEvidenceExtractTopN(t *testing.T) {
	b := evidenceBackend{results: 2}
	out, err := b.Extract([]byte(`{"hits":[
		{"title":"A","url":"https://a","snippets":["First   finding"]},
		{"title":"B","url":"https://b","description":"Second finding.","snippets":[]},
		{"title":"C","url":"https://c","snippets":["Third finding"]}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, "First finding. Second finding.", out.Payload)
	assert.Equal(t, "A (https://a)", out.Source)
}

func TestRecencyExtract(t *testing.T) {
	b := recencyBackend{results: 3}
	out, err := b.Extract([]byte(`{"news":{"results":[
		{"title":"Breaks help","url":"https://n/1","description":"Six minutes is enough"},
		{"title":"","url":"https://n/2","description":""}
	]}}`))
	require.NoError(t, err)
	assert.Equal(t, "Breaks help: Six minutes is enough.", out.Payload)
	assert.Equal(t, "Breaks help (https://n/1)", out.Source)

	_, err = b.Extract([]byte(`{"news":{"results":[]}}`))
	assert.ErrorIs(t, err, errEmptyPayload)
}

func TestSynthesisExtract(t *testing.T) {
	b := synthesisBackend{}
	out, err := b.Extract([]byte(`{
		"output":[{"type":"web_search.results","text":"ignored"},{"type":"message.answer","text":"**Walk** for 90 seconds.\n\nThen start a timer."}],
		"search_results":[{"url":"https://s","name":"Source"}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "Walk for 90 seconds.\nThen start a timer.", out.Payload)
	assert.Equal(t, "Source (https://s)", out.Source)

	out, err = b.Extract([]byte(`{"output":[{"type":"other","text":"fallback text"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "fallback text", out.Payload)
	assert.Empty(t, out.Source)

	_, err = b.Extract([]byte(`{"output":[]}`))
	assert.ErrorIs(t, err, errEmptyPayload)
}

func TestSynthesisKeepsListLines(t *testing.T) {
	b := synthesisBackend{}
	out, err := b.Extract([]byte(`{"output":[{"type":"message.answer","text":"Evidence-based techniques after video distractions:\n\n1. **90-Second Reset**: Stand up and walk.\n2. **Time-Boxed Block**:   Set a timer."}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Evidence-based techniques after video distractions:\n1. 90-Second Reset: Stand up and walk.\n2. Time-Boxed Block: Set a timer.", out.Payload)
}

func TestSynthesisRequestBody(t *testing.T) {
	b, err := NewBackend(domain.RoleSynthesis, config.ProviderConfig{URL: "https://agents.example/runs"})
	require.NoError(t, err)
	ev := domain.FocusEvent{Goal: "Finish slides", ContextApp: "Keynote", TimeOnTaskMinutes: 12, Category: domain.CategorySocial}
	req, err := b.NewRequest(context.Background(), b.Query(ev), "k")
	require.NoError(t, err)
	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var body agentRequest
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "express", body.Agent)
	assert.False(t, body.Stream)
	assert.NotEmpty(t, body.RunID)
	assert.Contains(t, body.Input, `"Finish slides"`)
	assert.Contains(t, body.Input, "12 minutes")
	assert.Contains(t, body.Input, "Keynote")
	assert.Contains(t, body.Input, "social media")
}

func TestNewBackendUnknownRole(t *testing.T) {
	_, err := NewBackend("oracle", config.ProviderConfig{URL: "x"})
	assert.Error(t, err)
}

func TestTruncateAtWordBoundary(t *testing.T) {
	s := strings.Repeat("word ", 100)
	got := truncate(s, 50)
	assert.LessOrEqual(t, len(got), 53)
	assert.True(t, strings.HasSuffix(got, "word..."))
	assert.Equal(t, "short", truncate("short", 50))
}

func TestClassifyStatus(t *testing.T) {
	cases := map[int]Kind{
		200: "",
		204: "",
		401: KindAuth,
		403: KindAuth,
		429: KindRateLimit,
		500: KindServer,
		503: KindServer,
		404: KindBadRequest,
	}
	for status, want := range cases {
		assert.Equal(t, want, classifyStatus(status), status)
	}
}

func TestErrorMatchesByKind(t *testing.T) {
	err := error(&Error{Role: domain.RoleRecency, Kind: KindServer, Status: 502})
	assert.ErrorIs(t, err, ErrServer)
	assert.NotErrorIs(t, err, ErrAuth)
	assert.Equal(t, "recency provider: server (status 502)", err.Error())
	assert.Equal(t, Kind(""), KindOf(io.EOF))
}
