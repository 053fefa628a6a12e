package javascript

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"

	"github.com/caffeineduck/scriptbox/executor"
)

const (
	entryPrefix  = "(function(args){"
	modulePrefix = "(function(exports, require, module){"
	wrapSuffix   = "\n})"
)

func wrapEntry(code string) string {
	return entryPrefix + code + wrapSuffix
}

func wrapModule(src string) string {
	return modulePrefix + src + wrapSuffix
}

// Compile links the script against its references and checks that every
// piece parses and compiles.
func (j *JavaScript) Compile(ctx context.Context, req executor.CompileRequest) (executor.CompileOutput, error) {
	dialect := req.LanguageVersion
	if dialect == "" {
		dialect = DefaultDialect
	}

	bundle := &Bundle{
		Assembly:   req.Assembly,
		Dialect:    dialect,
		File:       req.FileName,
		Namespaces: namespaces(req.Namespaces),
	}

	var diags []executor.Diagnostic
	linked := make(map[string]bool)

	for _, ref := range req.References {
		if isBuiltin(ref) {
			bundle.Modules = append(bundle.Modules, Module{Name: ref, Builtin: true})
			linked[ref] = true
			continue
		}

		path, ok := libraryPath(req.BaseDirectory, ref)
		if !ok {
			diags = append(diags, executor.Diagnostic{
				Severity: executor.SeverityError,
				Code:     CodeReferenceNotFound,
				Message:  fmt.Sprintf("reference outside base directory: %s", ref),
				File:     req.FileName,
			})
			continue
		}
		if req.FS == nil || !req.FS.FileExists(path) {
			diags = append(diags, executor.Diagnostic{
				Severity: executor.SeverityError,
				Code:     CodeReferenceNotFound,
				Message:  fmt.Sprintf("reference not found: %s", ref),
				File:     req.FileName,
			})
			continue
		}

		src, err := req.FS.ReadAllBytes(path)
		if err != nil {
			return executor.CompileOutput{}, fmt.Errorf("read reference %s: %w", ref, err)
		}

		if d := check(ref+LibraryExt, wrapModule(string(src)), len(modulePrefix)); len(d) > 0 {
			diags = append(diags, d...)
			continue
		}

		bundle.Modules = append(bundle.Modules, Module{Name: ref, Source: string(src)})
		linked[ref] = true
	}

	for _, ns := range bundle.Namespaces {
		if !linked[ns] {
			diags = append(diags, executor.Diagnostic{
				Severity: executor.SeverityError,
				Code:     CodeNamespaceNotFound,
				Message:  fmt.Sprintf("namespace %s does not name a referenced module", ns),
				File:     req.FileName,
			})
		}
	}

	diags = append(diags, check(req.FileName, wrapEntry(req.Code), len(entryPrefix))...)

	if len(diags) > 0 {
		return executor.CompileOutput{Diagnostics: diags}, nil
	}

	bundle.Entry = req.Code
	data, err := bundle.Encode()
	if err != nil {
		return executor.CompileOutput{}, err
	}

	return executor.CompileOutput{Artifact: data, Success: true}, nil
}

// libraryPath resolves a reference to its library file. References must stay
// inside base; absolute names and names escaping base are rejected.
func libraryPath(base, ref string) (string, bool) {
	if filepath.IsAbs(ref) || filepath.VolumeName(ref) != "" {
		return "", false
	}
	base = filepath.Clean(base)
	path := filepath.Join(base, ref+LibraryExt)
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}

// namespaces normalises namespace names the way references are normalised,
// so "util.js" names the module linked for reference "util.js".
func namespaces(names []string) []string {
	var out []string
	seen := make(map[string]bool, len(names))
	for _, ns := range names {
		ns = executor.NormalizeReference(ns)
		if ns == "" || seen[ns] {
			continue
		}
		seen[ns] = true
		out = append(out, ns)
	}
	return out
}

// check parses and compiles wrapped source. prefixLen is the length of the
// wrapper on the first line, removed from first-line columns.
func check(name, wrapped string, prefixLen int) []executor.Diagnostic {
	prg, err := parser.ParseFile(nil, name, wrapped, 0)
	if err != nil {
		return parseDiagnostics(name, err, prefixLen)
	}

	if _, err := goja.CompileAST(prg, false); err != nil {
		return []executor.Diagnostic{compileDiagnostic(name, err, prefixLen)}
	}
	return nil
}

func parseDiagnostics(name string, err error, prefixLen int) []executor.Diagnostic {
	var list parser.ErrorList
	if errors.As(err, &list) {
		diags := make([]executor.Diagnostic, 0, len(list))
		for _, e := range list {
			diags = append(diags, syntaxDiagnostic(name, e.Message, e.Position.Line, e.Position.Column, prefixLen))
		}
		return diags
	}

	var single *parser.Error
	if errors.As(err, &single) {
		return []executor.Diagnostic{
			syntaxDiagnostic(name, single.Message, single.Position.Line, single.Position.Column, prefixLen),
		}
	}

	return []executor.Diagnostic{syntaxDiagnostic(name, err.Error(), 0, 0, prefixLen)}
}

func compileDiagnostic(name string, err error, prefixLen int) executor.Diagnostic {
	var ce *goja.CompilerError
	var syntaxErr *goja.CompilerSyntaxError
	var refErr *goja.CompilerReferenceError
	switch {
	case errors.As(err, &syntaxErr):
		ce = &syntaxErr.CompilerError
	case errors.As(err, &refErr):
		ce = &refErr.CompilerError
	}

	if ce == nil || ce.File == nil {
		msg := err.Error()
		if ce != nil {
			msg = ce.Message
		}
		return syntaxDiagnostic(name, msg, 0, 0, prefixLen)
	}

	pos := ce.File.Position(ce.Offset)
	return syntaxDiagnostic(name, ce.Message, pos.Line, pos.Column, prefixLen)
}

func syntaxDiagnostic(name, msg string, line, col, prefixLen int) executor.Diagnostic {
	if line == 1 && col > prefixLen {
		col -= prefixLen
	}
	return executor.Diagnostic{
		Severity: executor.SeverityError,
		Code:     CodeSyntax,
		Message:  strings.TrimSpace(msg),
		File:     name,
		Line:     line,
		Column:   col,
	}
}
