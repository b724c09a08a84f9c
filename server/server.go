// Package server exposes the workflows over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallnest/ragflow/app"
	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/log"
)

// Registry is the part of app.App the server needs.
type Registry interface {
	Workflow(name string) (app.Workflow, error)
	Workflows() []string
	RunConfig(threadID string) *graph.Config
}

// Deps are the server's collaborators.
type Deps struct {
	Workflows Registry
	// Gatherer serves /metrics; defaults to the default Prometheus registry.
	Gatherer prometheus.Gatherer
	// Translator is the workflow behind POST /invoke; defaults to "translate".
	Translator string
	Version    string
}

type runRequest struct {
	app.Input
	ThreadID string `json:"thread_id,omitempty"`
}

type resumeRequest struct {
	ThreadID string `json:"thread_id"`
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps) http.Handler {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	translator := deps.Translator
	if translator == "" {
		translator = "translate"
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	h := &handlers{reg: deps.Workflows}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": version})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post("/invoke", h.invoke(translator))

	r.Route("/v1/workflows", func(r chi.Router) {
		r.Get("/", h.list)
		r.Route("/{name}", func(r chi.Router) {
			r.Post("/runs", h.run)
			r.Post("/stream", h.stream)
			r.Post("/resume", h.resume)
			r.Get("/graph", h.diagram)
			r.Get("/threads/{id}", h.state)
			r.Get("/threads/{id}/history", h.history)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug("%s %s %d %s request_id=%s", r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

type handlers struct {
	reg Registry
}

func (h *handlers) workflow(w http.ResponseWriter, r *http.Request) (app.Workflow, bool) {
	wf, err := h.reg.Workflow(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return wf, true
}

func (h *handlers) list(w http.ResponseWriter, _ *http.Request) {
	type item struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	var items []item
	for _, name := range h.reg.Workflows() {
		wf, err := h.reg.Workflow(name)
		if err != nil {
			continue
		}
		items = append(items, item{Name: name, Description: wf.Description()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": items})
}

func (h *handlers) run(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	var req runRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}

	res, err := wf.Run(r.Context(), req.Input, h.reg.RunConfig(req.ThreadID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	var req runRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}

	sse, ok := newEventWriter(w)
	if !ok {
		return
	}
	res, err := wf.Stream(r.Context(), req.Input, h.reg.RunConfig(req.ThreadID), func(e app.Event) error {
		return sse.send("step", e)
	})
	sse.finish(res, err)
}

func (h *handlers) resume(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	var req resumeRequest
	if err := decode(r, &req); err != nil || req.ThreadID == "" {
		http.Error(w, "thread_id is required", http.StatusBadRequest)
		return
	}

	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		res, err := wf.Resume(r.Context(), h.reg.RunConfig(req.ThreadID), nil)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	sse, ok := newEventWriter(w)
	if !ok {
		return
	}
	res, err := wf.Resume(r.Context(), h.reg.RunConfig(req.ThreadID), func(e app.Event) error {
		return sse.send("step", e)
	})
	sse.finish(res, err)
}

func (h *handlers) diagram(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	switch r.URL.Query().Get("format") {
	case "", "mermaid":
		_, _ = w.Write([]byte(wf.Mermaid()))
	case "dot":
		_, _ = w.Write([]byte(wf.DOT()))
	default:
		http.Error(w, "format must be mermaid or dot", http.StatusBadRequest)
	}
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	snap, err := wf.State(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.workflow(w, r)
	if !ok {
		return
	}
	snaps, err := wf.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": snaps})
}

// invoke serves {"input": {"language": ..., "text": ...}} and answers
// {"output": "<translation>"}.
func (h *handlers) invoke(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wf, err := h.reg.Workflow(name)
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Input app.Input `json:"input"`
		}
		if err := decode(r, &req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		res, err := wf.Run(r.Context(), req.Input, h.reg.RunConfig(""))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"output": res.Answer})
	}
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, app.ErrUnknownWorkflow), errors.Is(err, graph.ErrNoCheckpoint):
		return http.StatusNotFound
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, graph.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, graph.ErrIterationLimitExceeded):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to write response: %v", err)
	}
}

type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventWriter(w http.ResponseWriter) (*eventWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &eventWriter{w: w, flusher: flusher}, true
}

func (e *eventWriter) send(event string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

func (e *eventWriter) finish(res *app.Result, err error) {
	if err != nil {
		_ = e.send("error", map[string]string{"error": err.Error()})
		return
	}
	_ = e.send("result", res)
}
