package golang

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/caffeineduck/scriptbox/executor"
	"github.com/caffeineduck/scriptbox/hostfunc"
	"github.com/caffeineduck/scriptbox/sandbox"
)

var ErrClosed = errors.New("go runtime closed")

// Run instantiates a fresh module for the artifact. The module gets
// script arguments, a clock and random bytes; it has no preopened
// directories and no environment.
func (g *Golang) Run(ctx context.Context, req executor.RunRequest) (executor.RunOutput, error) {
	if err := g.init(req.ArtifactPath); err != nil {
		return executor.RunOutput{}, err
	}

	compiled, err := g.getCompiled(ctx, req.Artifact)
	if err != nil {
		return executor.RunOutput{}, err
	}

	registry := hostfunc.NewRegistry()
	if req.Boundary != nil {
		registry = req.Boundary.Registry()
	}

	var stdout bytes.Buffer
	stdinReader, stdinWriter := io.Pipe()
	protocol := sandbox.NewProtocolHandler(ctx, registry, stdinWriter)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(&stdout).
		WithStderr(protocol).
		WithStdin(stdinReader).
		WithArgs(append([]string{"script"}, req.Args...)...).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader).
		WithName("")

	errCh := make(chan error, 1)
	go func() {
		mod, err := g.runtime.InstantiateModule(ctx, compiled, moduleConfig)
		if mod != nil {
			mod.Close(context.Background())
		}
		stdinWriter.Close()
		errCh <- err
	}()
	err = <-errCh

	out := executor.RunOutput{Output: stdout.String() + protocol.Stderr()}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
		err = nil
	}
	if err == nil {
		return out, nil
	}

	if fault := protocol.Fault(); fault != nil {
		return out, &executor.ExecutionError{Message: fault.Message, Stack: fault.Stack, Cause: fault}
	}
	if ctx.Err() != nil {
		return out, &executor.ExecutionError{
			Message: fmt.Sprintf("interrupted: %v", ctx.Err()),
			Cause:   ctx.Err(),
		}
	}
	return out, &executor.ExecutionError{Message: fmt.Sprintf("execution failed: %v", err), Cause: err}
}

// init creates the shared runtime on first use. Without an explicit cache
// directory, native code is cached in .wazero beside the artifact.
func (g *Golang) init(artifactPath string) error {
	g.initOnce.Do(func() {
		ctx := context.Background()

		cacheDir := g.cacheDir
		if cacheDir == "" && artifactPath != "" {
			cacheDir = filepath.Join(filepath.Dir(artifactPath), ".wazero")
		}

		rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
		if cacheDir != "" {
			cache, err := wazero.NewCompilationCacheWithDir(cacheDir)
			if err != nil {
				g.logger.Warn().Err(err).Str("dir", cacheDir).Msg("native code cache disabled")
			} else {
				g.cache = cache
				rtConfig = rtConfig.WithCompilationCache(cache)
			}
		}
		if g.memoryLimitPages > 0 {
			rtConfig = rtConfig.WithMemoryLimitPages(g.memoryLimitPages)
		}

		rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			rt.Close(ctx)
			g.initErr = fmt.Errorf("instantiate WASI: %w", err)
			return
		}

		g.mu.Lock()
		g.runtime = rt
		g.mu.Unlock()
	})
	return g.initErr
}

// getCompiled returns the compiled module for an artifact, compiling it on
// first use. Modules are keyed by content hash.
func (g *Golang) getCompiled(ctx context.Context, artifact []byte) (wazero.CompiledModule, error) {
	sum := sha256.Sum256(artifact)
	key := hex.EncodeToString(sum[:])

	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return nil, ErrClosed
	}
	if compiled, ok := g.compiled[key]; ok {
		g.mu.RUnlock()
		return compiled, nil
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if compiled, ok := g.compiled[key]; ok {
		return compiled, nil
	}

	compiled, err := g.runtime.CompileModule(ctx, artifact)
	if err != nil {
		return nil, fmt.Errorf("load module: %w", err)
	}

	g.compiled[key] = compiled
	return compiled, nil
}
