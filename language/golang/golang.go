// Package golang compiles Go scripts to WASI modules and runs them on
// wazero.
//
// A script is the body of func Run(args []string) any. Namespaces become
// imports and references become module requirements in a generated go.mod.
// The toolchain builds for GOOS=wasip1 GOARCH=wasm and the module runs with
// no filesystem, no environment and no sockets. Host capabilities are
// reached through helpers in a prelude file (HTTPGet, HTTPRequest,
// LookupHost, Probe) that speak the sandbox host-call protocol over stderr.
package golang

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"

	"github.com/caffeineduck/scriptbox/executor"
)

const (
	ArtifactSuffix   = ".wasm"
	DefaultGoVersion = "1.22"
)

// Diagnostic codes.
const (
	CodeBuild             = "SBX1002"
	CodeReferenceNotFound = "SBX0006"
	CodeNamespaceNotFound = "SBX0246"
	CodeInvalidVersion    = "SBX1617"
)

var ErrToolchainNotFound = errors.New("go toolchain not found")

var _ executor.Language = (*Golang)(nil)

type Option func(*Golang)

// WithGoBinary sets the go command used to build. Defaults to "go" on PATH.
func WithGoBinary(path string) Option {
	return func(g *Golang) {
		g.goBinary = path
	}
}

// WithCompilationCacheDir sets where wazero keeps native code. Defaults to
// .wazero next to the first artifact that runs.
func WithCompilationCacheDir(dir string) Option {
	return func(g *Golang) {
		g.cacheDir = dir
	}
}

// WithMemoryLimit caps guest memory in 64KB pages. Zero keeps the wazero
// default.
func WithMemoryLimit(pages uint32) Option {
	return func(g *Golang) {
		g.memoryLimitPages = pages
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Golang) {
		g.logger = logger
	}
}

// Golang implements executor.Language for Go compiled to WebAssembly.
type Golang struct {
	goBinary         string
	cacheDir         string
	memoryLimitPages uint32
	logger           zerolog.Logger

	initOnce sync.Once
	initErr  error
	runtime  wazero.Runtime
	cache    wazero.CompilationCache

	mu       sync.RWMutex
	compiled map[string]wazero.CompiledModule
	closed   bool
}

func New(opts ...Option) *Golang {
	g := &Golang{
		goBinary: "go",
		logger:   zerolog.Nop(),
		compiled: make(map[string]wazero.CompiledModule),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Golang) Name() string {
	return "go"
}

func (g *Golang) ArtifactSuffix() string {
	return ArtifactSuffix
}

// BaselineReferences is empty: the standard library is always available.
func (g *Golang) BaselineReferences() []string {
	return nil
}

// Close releases the wazero runtime and its compilation cache.
func (g *Golang) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true

	if g.runtime == nil {
		return nil
	}

	ctx := context.Background()
	var errs []error
	if err := g.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if g.cache != nil {
		if err := g.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
