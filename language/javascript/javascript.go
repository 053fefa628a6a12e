// Package javascript compiles and runs JavaScript scripts on goja.
//
// Compilation parses the script body and every referenced library, then
// links them into a [Bundle]. Running a bundle creates a fresh goja runtime
// that can only reach the outside world through the host modules its
// boundary grants: console, http, dns and net.
package javascript

import (
	"github.com/caffeineduck/scriptbox/executor"
)

const (
	DefaultDialect = "es2015"
	ArtifactSuffix = ".jsbundle"
	LibraryExt     = ".js"
)

// Diagnostic codes.
const (
	CodeSyntax            = "SBX1002"
	CodeReferenceNotFound = "SBX0006"
	CodeNamespaceNotFound = "SBX0246"
)

// maxCallStackSize limits recursion depth inside the runtime.
const maxCallStackSize = 1024

var _ executor.Language = (*JavaScript)(nil)

// JavaScript implements executor.Language on goja.
type JavaScript struct{}

func New() *JavaScript {
	return &JavaScript{}
}

func (j *JavaScript) Name() string {
	return "javascript"
}

func (j *JavaScript) ArtifactSuffix() string {
	return ArtifactSuffix
}

// BaselineReferences links console into every script.
func (j *JavaScript) BaselineReferences() []string {
	return []string{"console"}
}
