package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallnest/ragflow/app"
	"github.com/smallnest/ragflow/config"
	"github.com/smallnest/ragflow/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func translatingModel() llmtest.FuncModel {
	return func(_ context.Context, msgs []llms.MessageContent, opts llms.CallOptions) (string, error) {
		if opts.JSONMode {
			return `{"binary_score": "yes"}`, nil
		}
		if strings.Contains(llmtest.PromptText(msgs[:1]), "French") {
			return "Bonjour", nil
		}
		return "an answer", nil
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *app.App) {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.Embedder = "mock"
	cfg.VectorStore.Dimension = 32

	reg := prometheus.NewRegistry()
	a, err := app.New(context.Background(), cfg, app.WithModel(translatingModel()), app.WithRegisterer(reg))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	srv := httptest.NewServer(NewRouter(Deps{Workflows: a, Gatherer: reg, Version: "test"}))
	t.Cleanup(srv.Close)
	return srv, a
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthAndVersion(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var v map[string]string
	require.NoError(t, json.NewDecoder(get(t, srv.URL+"/version").Body).Decode(&v))
	assert.Equal(t, "test", v["version"])
}

func TestListWorkflows(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Workflows []struct {
			Name string `json:"name"`
		} `json:"workflows"`
	}
	require.NoError(t, json.NewDecoder(get(t, srv.URL+"/v1/workflows/").Body).Decode(&body))
	var names []string
	for _, w := range body.Workflows {
		names = append(names, w.Name)
	}
	assert.Equal(t, []string{"plan-execute", "reflection", "self-rag", "translate"}, names)
}

func TestRunAndThreadState(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := post(t, srv.URL+"/v1/workflows/translate/runs", `{"text": "Hello", "language": "French", "thread_id": "th-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res app.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "Bonjour", res.Answer)
	assert.Equal(t, "th-1", res.ThreadID)

	var snap app.Snapshot
	resp = get(t, srv.URL+"/v1/workflows/translate/threads/th-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "translate", snap.NodeName)

	resp = get(t, srv.URL+"/v1/workflows/translate/threads/th-1/history")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = post(t, srv.URL+"/v1/workflows/translate/resume", `{"thread_id": "th-1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRun_GeneratesThreadID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := post(t, srv.URL+"/v1/workflows/translate/runs", `{"text": "Hello", "language": "French"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res app.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.NotEmpty(t, res.ThreadID)
}

func TestErrorStatuses(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		resp   func() *http.Response
		status int
	}{
		{"unknown workflow", func() *http.Response { return post(t, srv.URL+"/v1/workflows/nope/runs", `{}`) }, http.StatusNotFound},
		{"invalid input", func() *http.Response { return post(t, srv.URL+"/v1/workflows/translate/runs", `{"text": "x"}`) }, http.StatusBadRequest},
		{"bad json", func() *http.Response { return post(t, srv.URL+"/v1/workflows/translate/runs", `{"unknown": 1}`) }, http.StatusBadRequest},
		{"missing thread", func() *http.Response { return get(t, srv.URL+"/v1/workflows/translate/threads/none") }, http.StatusNotFound},
		{"resume without thread", func() *http.Response { return post(t, srv.URL+"/v1/workflows/translate/resume", `{}`) }, http.StatusBadRequest},
		{"resume unknown thread", func() *http.Response { return post(t, srv.URL+"/v1/workflows/translate/resume", `{"thread_id": "none"}`) }, http.StatusNotFound},
		{"bad graph format", func() *http.Response { return get(t, srv.URL+"/v1/workflows/translate/graph?format=png") }, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.resp().StatusCode)
		})
	}
}

func TestGraph(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := get(t, srv.URL+"/v1/workflows/self-rag/graph")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sb strings.Builder
	_, _ = bufio.NewReader(resp.Body).WriteTo(&sb)
	assert.True(t, strings.HasPrefix(sb.String(), "flowchart TD"))

	resp = get(t, srv.URL+"/v1/workflows/self-rag/graph?format=dot")
	sb.Reset()
	_, _ = bufio.NewReader(resp.Body).WriteTo(&sb)
	assert.True(t, strings.HasPrefix(sb.String(), "digraph G {"))
}

func readEvents(t *testing.T, resp *http.Response) []string {
	t.Helper()
	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestStream(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := post(t, srv.URL+"/v1/workflows/translate/stream", `{"text": "Hello", "language": "French"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, []string{"step", "result"}, readEvents(t, resp))
}

func TestStream_ReportsErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := post(t, srv.URL+"/v1/workflows/translate/stream", `{"text": "Hello"}`)
	assert.Equal(t, []string{"error"}, readEvents(t, resp))
}

func TestInvoke(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := post(t, srv.URL+"/invoke", `{"input": {"language": "French", "text": "Hello"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Bonjour", out["output"])
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	post(t, srv.URL+"/v1/workflows/translate/runs", `{"text": "Hello", "language": "French"}`)

	resp := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sb strings.Builder
	_, _ = bufio.NewReader(resp.Body).WriteTo(&sb)
	assert.Contains(t, sb.String(), `ragflow_runs_total{status="succeeded",workflow="translate"} 1`)
}
