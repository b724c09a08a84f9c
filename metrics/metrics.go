// Package metrics exports workflow run and step metrics to Prometheus.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallnest/ragflow/graph"
)

// Collector holds the workflow metric vectors.
type Collector struct {
	runsTotal    *prometheus.CounterVec
	stepsTotal   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runDuration  *prometheus.HistogramVec
}

// NewCollector creates the metric vectors and registers them on reg. A nil reg
// registers on the default Prometheus registry.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragflow_runs_total",
				Help: "Total number of finished workflow runs by status.",
			},
			[]string{"workflow", "status"},
		),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragflow_steps_total",
				Help: "Total number of executed workflow steps by node and status.",
			},
			[]string{"workflow", "node", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragflow_step_duration_seconds",
				Help:    "Duration of node executions in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"workflow", "node"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragflow_run_duration_seconds",
				Help:    "Duration of workflow runs in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"workflow"},
		),
	}

	for _, col := range []prometheus.Collector{c.runsTotal, c.stepsTotal, c.stepDuration, c.runDuration} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return c, nil
}

// Listener returns a graph listener recording the runs of workflow.
func (c *Collector) Listener(workflow string) graph.Listener {
	// Make the run counters visible before the first run finishes.
	for _, status := range []graph.RunStatus{graph.RunSucceeded, graph.RunFailed} {
		c.runsTotal.WithLabelValues(workflow, string(status))
	}
	return &listener{c: c, workflow: workflow, started: make(map[stepKey]time.Time)}
}

type stepKey struct {
	run  string
	step int
}

type listener struct {
	c        *Collector
	workflow string

	mu      sync.Mutex
	started map[stepKey]time.Time
}

func (l *listener) OnNodeEvent(ctx context.Context, event graph.NodeEvent, nodeName string, step int, _ any, _ error) {
	key := stepKey{run: graph.GetRunID(ctx), step: step}

	l.mu.Lock()
	defer l.mu.Unlock()
	switch event {
	case graph.NodeEventStart:
		l.started[key] = time.Now()
		return
	case graph.NodeEventComplete:
		l.c.stepsTotal.WithLabelValues(l.workflow, nodeName, "success").Inc()
	case graph.NodeEventError:
		l.c.stepsTotal.WithLabelValues(l.workflow, nodeName, "error").Inc()
	}
	if start, ok := l.started[key]; ok {
		l.c.stepDuration.WithLabelValues(l.workflow, nodeName).Observe(time.Since(start).Seconds())
		delete(l.started, key)
	}
}

func (l *listener) OnRunEnd(ctx context.Context, status graph.RunStatus, _ int, elapsed time.Duration, _ error) {
	l.c.runsTotal.WithLabelValues(l.workflow, string(status)).Inc()
	l.c.runDuration.WithLabelValues(l.workflow).Observe(elapsed.Seconds())

	run := graph.GetRunID(ctx)
	l.mu.Lock()
	for key := range l.started {
		if key.run == run {
			delete(l.started, key)
		}
	}
	l.mu.Unlock()
}
