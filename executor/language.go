package executor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/caffeineduck/scriptbox/cache"
	"github.com/caffeineduck/scriptbox/sandbox"
)

// Language is a compiler plus runner for one source language.
// Implement this interface to add support for new languages.
type Language interface {
	// Name returns a unique identifier for this language (e.g. "javascript").
	Name() string

	// ArtifactSuffix is appended to a script's base name to form its
	// artifact file name, e.g. ".jsbundle".
	ArtifactSuffix() string

	// BaselineReferences are linked into every compilation in addition to
	// the resolved session references.
	BaselineReferences() []string

	// Compile turns source into an artifact. A script that does not compile
	// is reported through CompileOutput; the error return is reserved for
	// failures of the environment (missing toolchain, I/O).
	Compile(ctx context.Context, req CompileRequest) (CompileOutput, error)

	// Run loads an artifact inside the boundary and invokes its entry point.
	// Any returned error is a failed execution.
	Run(ctx context.Context, req RunRequest) (RunOutput, error)
}

type CompileRequest struct {
	// Assembly is the identity token the artifact is stamped with.
	Assembly        string
	FileName        string
	Code            string
	References      []string
	Namespaces      []string
	BaseDirectory   string
	FS              cache.FS
	LanguageVersion string
}

type CompileOutput struct {
	Artifact    []byte
	Diagnostics []Diagnostic
	Success     bool
}

type RunRequest struct {
	Artifact     []byte
	ArtifactPath string
	Args         []string
	Boundary     *sandbox.Boundary
	Logger       zerolog.Logger
}

type RunOutput struct {
	// Output is everything the script printed.
	Output string
}
