package graph

import "context"

// Config carries per-run options.
type Config struct {
	// RecursionLimit caps the number of node invocations of a run.
	// Zero means DefaultRecursionLimit.
	RecursionLimit int

	// ThreadID associates the run with a checkpoint thread. Checkpoints are only
	// written when the runnable has a checkpointer and ThreadID is set.
	ThreadID string

	// Listeners observe node events in addition to the runnable's own listeners.
	Listeners []Listener

	// Tags and Metadata are attached to checkpoints and visible to nodes via GetConfig.
	Tags     []string
	Metadata map[string]any

	// Configurable holds arbitrary values nodes may read at runtime.
	Configurable map[string]any
}

func (c *Config) recursionLimit() int {
	if c == nil || c.RecursionLimit <= 0 {
		return DefaultRecursionLimit
	}
	return c.RecursionLimit
}

type configKey struct{}

// WithConfig adds the config to the context.
func WithConfig(ctx context.Context, config *Config) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}

// GetConfig retrieves the config from the context, or nil.
func GetConfig(ctx context.Context) *Config {
	config, _ := ctx.Value(configKey{}).(*Config)
	return config
}

type runIDKey struct{}

// GetRunID returns the id of the run executing the current node, or "".
func GetRunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
