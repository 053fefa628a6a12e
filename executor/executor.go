package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/caffeineduck/scriptbox/cache"
	"github.com/caffeineduck/scriptbox/sandbox"
)

const DefaultFileName = "script"

var ErrNoLanguage = errors.New("no language configured")

// Request is one script to execute.
type Request struct {
	Code       string
	Args       []string
	References []string
	Namespaces []string
	Pack       *PackSession
	// FileName overrides the engine's file name for this request.
	FileName string
}

// Engine compiles, caches and runs scripts for one language.
type Engine struct {
	lang   Language
	fs     cache.FS
	store  *cache.Store
	logger zerolog.Logger
	policy sandbox.Policy

	assembly        string
	codeDir         string
	timeout         time.Duration
	languageVersion string

	mu            sync.RWMutex
	baseDirectory string
	fileName      string
}

// New creates an Engine for the language.
func New(lang Language, opts ...Option) (*Engine, error) {
	if lang == nil {
		return nil, ErrNoLanguage
	}

	e := &Engine{
		lang:     lang,
		logger:   zerolog.Nop(),
		policy:   sandbox.DefaultPolicy(),
		assembly: "E-" + uuid.NewString() + "-v1",
		codeDir:  cache.DefaultDir,
		fileName: DefaultFileName,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.fs == nil {
		fs, err := cache.NewOSFS()
		if err != nil {
			return nil, fmt.Errorf("create engine: %w", err)
		}
		e.fs = fs
	}
	if e.baseDirectory == "" {
		e.baseDirectory = e.fs.CurrentDirectory()
	}

	e.logger = e.logger.With().Str("language", lang.Name()).Logger()
	e.store = cache.New(e.fs, cache.WithDir(e.codeDir), cache.WithLogger(e.logger))

	return e, nil
}

func (e *Engine) Language() Language {
	return e.lang
}

func (e *Engine) Store() *cache.Store {
	return e.store
}

func (e *Engine) Assembly() string {
	return e.assembly
}

func (e *Engine) SetBaseDirectory(dir string) {
	e.mu.Lock()
	e.baseDirectory = dir
	e.mu.Unlock()
}

func (e *Engine) BaseDirectory() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.baseDirectory
}

func (e *Engine) SetFileName(name string) {
	e.mu.Lock()
	e.fileName = name
	e.mu.Unlock()
}

func (e *Engine) FileName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fileName
}

// ArtifactPath is where the artifact for fileName is cached.
func (e *Engine) ArtifactPath(fileName string) string {
	return e.store.Path(fileName, e.lang.ArtifactSuffix())
}

// Execute resolves the session, reuses or compiles the artifact and runs it
// inside a fresh sandbox boundary.
//
// Scripts that fail to compile or to run are reported in the Result. The
// error return is only for failures of the environment, such as an
// unwritable cache directory or a missing toolchain.
func (e *Engine) Execute(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = e.FileName()
	}

	log := e.logger.With().Str("file", fileName).Logger()
	log.Info().Str("assembly", e.assembly).Msg("starting execution")

	descriptor := ResolveSession(req.References, req.Namespaces, req.Pack)
	path := e.ArtifactPath(fileName)

	result := Result{
		ArtifactPath: path,
		Descriptor:   descriptor,
	}

	if err := e.store.Ensure(); err != nil {
		return result, err
	}

	var artifact []byte
	if e.store.Exists(path) {
		data, err := e.store.Get(path)
		if err != nil {
			return result, err
		}
		artifact = data
		result.CacheHit = true
		log.Debug().Str("path", path).Msg("using cached artifact")
	} else {
		out, err := e.compile(ctx, log, fileName, req.Code, descriptor)
		if err != nil {
			return result, fmt.Errorf("compile %s: %w", fileName, err)
		}
		if !out.Success {
			result.CompileError = &CompilationError{Diagnostics: out.Diagnostics}
			result.Duration = time.Since(start)
			log.Error().
				Int("diagnostics", len(out.Diagnostics)).
				Str("error", result.CompileError.Error()).
				Msg("compilation failed")
			return result, nil
		}
		if err := e.store.Put(path, out.Artifact); err != nil {
			return result, err
		}
		artifact = out.Artifact
	}

	output, err := e.run(ctx, path, artifact, req.Args)
	result.Output = output
	result.Duration = time.Since(start)
	if err != nil {
		result.ExecuteError = toExecutionError(err)
		log.Error().
			Str("error", result.ExecuteError.Message).
			Str("stack", result.ExecuteError.Stack).
			Msg("execution failed")
		return result, nil
	}

	log.Info().Dur("duration", result.Duration).Bool("cache_hit", result.CacheHit).Msg("execution succeeded")
	return result, nil
}

func (e *Engine) compile(ctx context.Context, log zerolog.Logger, fileName, code string, d *SessionDescriptor) (CompileOutput, error) {
	refs := lo.Uniq(append(append([]string{}, d.References...), e.lang.BaselineReferences()...))

	log.Debug().
		Strs("references", refs).
		Strs("namespaces", d.Namespaces).
		Msg("compiling submission")

	out, err := e.lang.Compile(ctx, CompileRequest{
		Assembly:        e.assembly,
		FileName:        fileName,
		Code:            code,
		References:      refs,
		Namespaces:      d.Namespaces,
		BaseDirectory:   e.BaseDirectory(),
		FS:              e.fs,
		LanguageVersion: e.languageVersion,
	})
	if err != nil {
		return out, err
	}
	if !out.Success && len(out.Diagnostics) == 0 {
		out.Diagnostics = []Diagnostic{{Severity: SeverityError, Message: "compilation failed", File: fileName}}
	}
	return out, nil
}

func (e *Engine) run(ctx context.Context, path string, artifact []byte, args []string) (string, error) {
	boundary, err := sandbox.NewBoundary(e.assembly, e.policy, e.logger)
	if err != nil {
		return "", err
	}
	defer boundary.Close()

	var out RunOutput
	err = boundary.Guard(func() error {
		var runErr error
		out, runErr = e.lang.Run(ctx, RunRequest{
			Artifact:     artifact,
			ArtifactPath: path,
			Args:         args,
			Boundary:     boundary,
			Logger:       e.logger,
		})
		return runErr
	})
	return out.Output, err
}
