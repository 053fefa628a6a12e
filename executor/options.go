package executor

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/caffeineduck/scriptbox/cache"
	"github.com/caffeineduck/scriptbox/sandbox"
)

// Option configures an Engine at creation time.
type Option func(*Engine)

// WithFS sets the filesystem used for the artifact cache and for reading
// library references. Defaults to the OS filesystem.
func WithFS(fs cache.FS) Option {
	return func(e *Engine) {
		e.fs = fs
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithBaseDirectory sets where library references are looked up.
// Defaults to the current directory.
func WithBaseDirectory(dir string) Option {
	return func(e *Engine) {
		e.baseDirectory = dir
	}
}

// WithFileName sets the default script file name, which is the cache
// identity of every request that does not name its own.
func WithFileName(name string) Option {
	return func(e *Engine) {
		e.fileName = name
	}
}

// WithAssembly sets the identity token stamped into artifacts.
func WithAssembly(token string) Option {
	return func(e *Engine) {
		e.assembly = token
	}
}

// WithCodeDir sets the artifact directory name. Defaults to "code".
func WithCodeDir(name string) Option {
	return func(e *Engine) {
		e.codeDir = name
	}
}

// WithPolicy replaces the sandbox policy. Defaults to
// sandbox.DefaultPolicy().
func WithPolicy(policy sandbox.Policy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithTimeout bounds each Execute call. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithLanguageVersion overrides the language dialect passed to the
// compiler.
func WithLanguageVersion(version string) Option {
	return func(e *Engine) {
		e.languageVersion = version
	}
}
