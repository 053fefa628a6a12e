package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/caffeineduck/scriptbox/cache"
	"github.com/caffeineduck/scriptbox/sandbox"
)

func newTestEngine(t *testing.T, lang Language, opts ...Option) (*Engine, afero.Fs) {
	t.Helper()
	mem := afero.NewMemMapFs()
	opts = append([]Option{WithFS(cache.NewFS(mem, "/work"))}, opts...)
	e, err := New(lang, opts...)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e, mem
}

func TestNewRequiresLanguage(t *testing.T) {
	_, err := New(nil)
	if !errors.Is(err, ErrNoLanguage) {
		t.Errorf("expected ErrNoLanguage, got %v", err)
	}
}

func TestDefaults(t *testing.T) {
	e, _ := newTestEngine(t, &fakeLanguage{})

	if e.FileName() != DefaultFileName {
		t.Errorf("file name = %q", e.FileName())
	}
	if e.BaseDirectory() != "/work" {
		t.Errorf("base directory = %q", e.BaseDirectory())
	}
	if !strings.HasPrefix(e.Assembly(), "E-") || !strings.HasSuffix(e.Assembly(), "-v1") {
		t.Errorf("unexpected assembly token %q", e.Assembly())
	}
	if e.ArtifactPath("x.js") != "/work/code/x.js.fake" {
		t.Errorf("artifact path = %q", e.ArtifactPath("x.js"))
	}

	other, _ := newTestEngine(t, &fakeLanguage{})
	if other.Assembly() == e.Assembly() {
		t.Error("assembly tokens should be unique per engine")
	}
}

func TestSetters(t *testing.T) {
	e, _ := newTestEngine(t, &fakeLanguage{})
	e.SetBaseDirectory("/libs")
	e.SetFileName("main.js")

	if e.BaseDirectory() != "/libs" || e.FileName() != "main.js" {
		t.Errorf("setters not applied: %q %q", e.BaseDirectory(), e.FileName())
	}
}

func TestCompilesOnceForSameIdentity(t *testing.T) {
	lang := &fakeLanguage{}
	e, _ := newTestEngine(t, lang, WithFileName("same.js"))

	for i := 0; i < 5; i++ {
		result, err := e.Execute(context.Background(), Request{Code: "ok"})
		if err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
		if result.State() != StateSucceeded {
			t.Fatalf("execute %d: state %s", i, result.State())
		}
		if result.CacheHit != (i > 0) {
			t.Errorf("execute %d: cache hit = %v", i, result.CacheHit)
		}
	}

	if n := lang.compiles.Load(); n != 1 {
		t.Errorf("compiler invoked %d times, want 1", n)
	}
	if n := lang.runs.Load(); n != 5 {
		t.Errorf("runner invoked %d times, want 5", n)
	}
}

func TestCacheIgnoresSourceChanges(t *testing.T) {
	lang := &fakeLanguage{}
	e, _ := newTestEngine(t, lang)

	first, err := e.Execute(context.Background(), Request{Code: "one", FileName: "s.js"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Execute(context.Background(), Request{Code: "two", FileName: "s.js"})
	if err != nil {
		t.Fatal(err)
	}

	if first.Output != second.Output {
		t.Errorf("expected stale artifact to be reused, got %q then %q", first.Output, second.Output)
	}
}

func TestDifferentIdentitiesCompileSeparately(t *testing.T) {
	lang := &fakeLanguage{}
	e, _ := newTestEngine(t, lang)

	for _, name := range []string{"a.js", "b.js", "dir/a.js"} {
		if _, err := e.Execute(context.Background(), Request{Code: "ok", FileName: name}); err != nil {
			t.Fatal(err)
		}
	}

	// dir/a.js shares its base name with a.js.
	if n := lang.compiles.Load(); n != 2 {
		t.Errorf("compiler invoked %d times, want 2", n)
	}
}

func TestCompileErrorLeavesNoArtifact(t *testing.T) {
	lang := &fakeLanguage{}
	e, mem := newTestEngine(t, lang, WithFileName("bad.js"))

	result, err := e.Execute(context.Background(), Request{Code: "syntax error"})
	if err != nil {
		t.Fatalf("unexpected environment error: %v", err)
	}

	if result.State() != StateCompileFailed {
		t.Fatalf("state = %s", result.State())
	}
	if result.ExecuteError != nil {
		t.Error("execute error must be nil when compilation fails")
	}
	if len(result.CompileError.Diagnostics) != 2 {
		t.Fatalf("diagnostics = %v", result.CompileError.Diagnostics)
	}
	want := "bad.js:1:5: error FAKE001: syntax error\nbad.js:2:1: error FAKE002: another"
	if result.CompileError.Error() != want {
		t.Errorf("summary = %q, want %q", result.CompileError.Error(), want)
	}
	if lang.runs.Load() != 0 {
		t.Error("runner must not be invoked after a compile failure")
	}

	if ok, _ := afero.Exists(mem, result.ArtifactPath); ok {
		t.Error("artifact written for failed compilation")
	}

	// Not cached: the next call compiles again.
	if _, err := e.Execute(context.Background(), Request{Code: "syntax error"}); err != nil {
		t.Fatal(err)
	}
	if n := lang.compiles.Load(); n != 2 {
		t.Errorf("compiler invoked %d times, want 2", n)
	}
}

func TestRuntimeFailure(t *testing.T) {
	e, _ := newTestEngine(t, &fakeLanguage{}, WithFileName("throws.js"))

	result, err := e.Execute(context.Background(), Request{Code: "throw bad things"})
	if err != nil {
		t.Fatalf("unexpected environment error: %v", err)
	}

	if result.State() != StateExecuteFailed {
		t.Fatalf("state = %s", result.State())
	}
	if result.CompileError != nil {
		t.Error("compile error must be nil")
	}
	if result.ExecuteError.Message != "bad things" {
		t.Errorf("message = %q", result.ExecuteError.Message)
	}
	if result.Output != "partial" {
		t.Errorf("partial output lost: %q", result.Output)
	}
	if result.ReturnValue != nil {
		t.Error("return value must be nil")
	}
}

func TestPanicBecomesExecuteError(t *testing.T) {
	e, _ := newTestEngine(t, &fakeLanguage{}, WithFileName("panics.js"))

	result, err := e.Execute(context.Background(), Request{Code: "panic kaboom"})
	if err != nil {
		t.Fatalf("unexpected environment error: %v", err)
	}

	if result.ExecuteError == nil {
		t.Fatal("expected execute error")
	}
	if result.ExecuteError.Message != "kaboom" {
		t.Errorf("message = %q", result.ExecuteError.Message)
	}
	if result.ExecuteError.Stack == "" {
		t.Error("expected stack trace from fault")
	}
	var fault *sandbox.Fault
	if !errors.As(result.ExecuteError, &fault) {
		t.Error("expected *sandbox.Fault cause")
	}
}

func TestDeniedPolicyIsExecuteError(t *testing.T) {
	policy := sandbox.Policy{Permissions: sandbox.StandardSandbox(sandbox.Evidence{Zone: sandbox.ZoneUntrusted})}
	lang := &fakeLanguage{}
	e, _ := newTestEngine(t, lang, WithPolicy(policy))

	result, err := e.Execute(context.Background(), Request{Code: "ok"})
	if err != nil {
		t.Fatalf("unexpected environment error: %v", err)
	}
	if !errors.Is(result.ExecuteError, sandbox.ErrExecutionDenied) {
		t.Errorf("expected ErrExecutionDenied, got %v", result.ExecuteError)
	}
	if lang.runs.Load() != 0 {
		t.Error("runner must not be invoked without execution permission")
	}
}

func TestEnvironmentErrorPropagates(t *testing.T) {
	toolchain := errors.New("toolchain missing")
	e, _ := newTestEngine(t, &fakeLanguage{compileErr: toolchain})

	_, err := e.Execute(context.Background(), Request{Code: "ok"})
	if !errors.Is(err, toolchain) {
		t.Errorf("expected toolchain error, got %v", err)
	}
}

func TestReadOnlyCacheIsEnvironmentError(t *testing.T) {
	ro := afero.NewReadOnlyFs(afero.NewMemMapFs())
	e, err := New(&fakeLanguage{}, WithFS(cache.NewFS(ro, "/work")))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Execute(context.Background(), Request{Code: "ok"}); err == nil {
		t.Error("expected error for unwritable cache directory")
	}
}

func TestCompileRequestContents(t *testing.T) {
	lang := &fakeLanguage{}
	e, _ := newTestEngine(t, lang,
		WithAssembly("E-fixed-v1"),
		WithBaseDirectory("/libs"),
		WithLanguageVersion("es2015"),
	)

	pack := NewPackSession(testPack{name: "p", references: []string{"extra.js", "core"}, namespaces: []string{"extra"}})
	result, err := e.Execute(context.Background(), Request{
		Code:       "ok",
		FileName:   "req.js",
		References: []string{"Foo.dll"},
		Namespaces: []string{"Foo"},
		Pack:       pack,
		Args:       []string{"x", "y"},
	})
	if err != nil {
		t.Fatal(err)
	}

	req := lang.lastCompile()
	if req.Assembly != "E-fixed-v1" || req.BaseDirectory != "/libs" || req.LanguageVersion != "es2015" {
		t.Errorf("unexpected compile request %+v", req)
	}
	if strings.Join(req.References, ",") != "Foo,extra,core" {
		t.Errorf("references = %v", req.References)
	}
	if strings.Join(req.Namespaces, ",") != "Foo,extra" {
		t.Errorf("namespaces = %v", req.Namespaces)
	}
	if req.FS == nil {
		t.Error("compile request missing FS")
	}
	if pack.State[SessionKey] != result.Descriptor {
		t.Error("descriptor not published to pack state")
	}

	run := lang.lastRunRequest()
	if run.Boundary == nil || run.ArtifactPath != result.ArtifactPath {
		t.Errorf("unexpected run request %+v", run)
	}
	if result.Output != "ran ok x,y" {
		t.Errorf("output = %q", result.Output)
	}
}

func TestTimeoutCancelsRun(t *testing.T) {
	e, _ := newTestEngine(t, &fakeLanguage{}, WithTimeout(20*time.Millisecond))

	result, err := e.Execute(context.Background(), Request{Code: "wait"})
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(result.ExecuteError, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", result.ExecuteError)
	}
}

func TestConcurrentDistinctIdentities(t *testing.T) {
	lang := &fakeLanguage{}
	e, _ := newTestEngine(t, lang)

	var wg sync.WaitGroup
	names := []string{"a.js", "b.js", "c.js", "d.js"}
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			result, err := e.Execute(context.Background(), Request{Code: "ok", FileName: name})
			if err != nil || result.State() != StateSucceeded {
				t.Errorf("%s: %v %v", name, err, result.Err())
			}
		}(name)
	}
	wg.Wait()

	if n := lang.compiles.Load(); n != int32(len(names)) {
		t.Errorf("compiler invoked %d times, want %d", n, len(names))
	}
	entries, err := e.Store().List(".fake")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(names) {
		t.Errorf("cached %d artifacts, want %d", len(entries), len(names))
	}
}

func TestConcurrentSameIdentity(t *testing.T) {
	lang := &fakeLanguage{}
	e, mem := newTestEngine(t, lang, WithFileName("shared.js"))

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := e.Execute(context.Background(), Request{Code: "ok"})
			if err != nil || result.State() != StateSucceeded {
				t.Errorf("concurrent execute: %v %v", err, result.Err())
			}
		}()
	}
	wg.Wait()

	// Compiles are not serialised, so only bounds can be checked.
	if n := lang.compiles.Load(); n < 1 || n > callers {
		t.Errorf("compiler invoked %d times", n)
	}
	data, err := afero.ReadFile(mem, e.ArtifactPath("shared.js"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ok" {
		t.Errorf("artifact = %q, want a complete artifact", data)
	}
	entries, err := e.Store().List(".fake")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("want exactly one artifact and no temp files, got %d", len(entries))
	}
}
