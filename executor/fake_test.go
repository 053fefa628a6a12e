package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
)

// fakeLanguage "compiles" by copying the code into the artifact. Code
// containing "syntax error" fails to compile; "throw <msg>" fails at run
// time and "panic <msg>" panics inside the boundary.
type fakeLanguage struct {
	compiles atomic.Int32
	runs     atomic.Int32

	mu      sync.Mutex
	lastReq CompileRequest
	lastRun RunRequest

	compileErr error
}

func (f *fakeLanguage) Name() string                 { return "fake" }
func (f *fakeLanguage) ArtifactSuffix() string       { return ".fake" }
func (f *fakeLanguage) BaselineReferences() []string { return []string{"core"} }

func (f *fakeLanguage) Compile(ctx context.Context, req CompileRequest) (CompileOutput, error) {
	f.compiles.Add(1)
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()

	if f.compileErr != nil {
		return CompileOutput{}, f.compileErr
	}
	if strings.Contains(req.Code, "syntax error") {
		return CompileOutput{Diagnostics: []Diagnostic{
			{Severity: SeverityError, Code: "FAKE001", Message: "syntax error", File: req.FileName, Line: 1, Column: 5},
			{Severity: SeverityError, Code: "FAKE002", Message: "another", File: req.FileName, Line: 2, Column: 1},
		}}, nil
	}
	return CompileOutput{Artifact: []byte(req.Code), Success: true}, nil
}

func (f *fakeLanguage) Run(ctx context.Context, req RunRequest) (RunOutput, error) {
	f.runs.Add(1)
	f.mu.Lock()
	f.lastRun = req
	f.mu.Unlock()

	code := string(req.Artifact)
	switch {
	case strings.HasPrefix(code, "throw "):
		return RunOutput{Output: "partial"}, errors.New(strings.TrimPrefix(code, "throw "))
	case strings.HasPrefix(code, "panic "):
		panic(strings.TrimPrefix(code, "panic "))
	case code == "wait":
		<-ctx.Done()
		return RunOutput{}, ctx.Err()
	}
	return RunOutput{Output: "ran " + code + " " + strings.Join(req.Args, ",")}, nil
}

func (f *fakeLanguage) lastCompile() CompileRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func (f *fakeLanguage) lastRunRequest() RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRun
}

type testPack struct {
	name       string
	references []string
	namespaces []string
}

func (p testPack) Name() string { return p.name }

func (p testPack) Initialize(s *PackSession) {
	s.AddReference(p.references...)
	s.ImportNamespace(p.namespaces...)
	s.State[p.name] = true
}
