package builder

import (
	"context"
	"os"
	"runtime"
)

// Environment describes where tool execution happens for one build: on the
// host filesystem or inside an isolated sandbox.
type Environment struct {
	// Kind is "host" or "sandbox".
	Kind string
	// OS is a GOOS-style name ("linux", "darwin", "windows").
	OS string
	// WorkingDir is the base path for file operations.
	WorkingDir string
	// ContextDir is where large tool outputs and the history transcript are
	// persisted. Empty disables the context-storage layer.
	ContextDir string
}

// EnvironmentResolver reports the execution environment for one execution id.
type EnvironmentResolver interface {
	Resolve(ctx context.Context, executionID string) (Environment, error)
}

// HostResolver resolves to the host machine. The zero value falls back to
// the process working directory and GOOS.
type HostResolver struct {
	WorkingDir string
	ContextDir string
}

func (r HostResolver) Resolve(_ context.Context, _ string) (Environment, error) {
	wd := r.WorkingDir
	if wd == "" {
		if cwd, err := os.Getwd(); err == nil {
			wd = cwd
		}
	}
	return Environment{
		Kind:       "host",
		OS:         runtime.GOOS,
		WorkingDir: wd,
		ContextDir: r.ContextDir,
	}, nil
}

// StaticResolver returns a fixed environment. Useful for sandboxed execution
// where the container layout is known up front, and for tests.
type StaticResolver struct {
	Env Environment
}

func (r StaticResolver) Resolve(_ context.Context, _ string) (Environment, error) {
	return r.Env, nil
}
