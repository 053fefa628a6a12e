package golang

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"go/parser"
	"go/scanner"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
	"golang.org/x/tools/go/ast/astutil"

	"github.com/caffeineduck/scriptbox/executor"
)

//go:embed prelude.go.in
var prelude string

const scriptModulePath = "scriptbox.local/script"

// Compile generates a main package around the script body and builds it
// with the Go toolchain.
func (g *Golang) Compile(ctx context.Context, req executor.CompileRequest) (executor.CompileOutput, error) {
	src, goMod, diags := generate(req)
	if len(diags) > 0 {
		return executor.CompileOutput{Diagnostics: diags}, nil
	}

	goBin, err := exec.LookPath(g.goBinary)
	if err != nil {
		return executor.CompileOutput{}, fmt.Errorf("%w: %v", ErrToolchainNotFound, err)
	}

	dir, err := os.MkdirTemp("", "scriptbox-go-*")
	if err != nil {
		return executor.CompileOutput{}, fmt.Errorf("create build directory: %w", err)
	}
	defer os.RemoveAll(dir)

	files := map[string][]byte{
		"go.mod":     goMod,
		"main.go":    []byte(src),
		"prelude.go": []byte(prelude),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return executor.CompileOutput{}, fmt.Errorf("write %s: %w", name, err)
		}
	}

	g.logger.Debug().Str("dir", dir).Str("file", req.FileName).Msg("running go build")

	cmd := exec.CommandContext(ctx, goBin, "build", "-trimpath", "-o", "out.wasm", ".")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GOOS=wasip1",
		"GOARCH=wasm",
		"CGO_ENABLED=0",
		"GOWORK=off",
		"GOFLAGS=-mod=mod",
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return executor.CompileOutput{}, fmt.Errorf("go build: %w", ctx.Err())
		}
		if diags := parseBuildOutput(string(output)); len(diags) > 0 {
			return executor.CompileOutput{Diagnostics: diags}, nil
		}
		return executor.CompileOutput{}, fmt.Errorf("go build: %w: %s", err, strings.TrimSpace(string(output)))
	}

	artifact, err := os.ReadFile(filepath.Join(dir, "out.wasm"))
	if err != nil {
		return executor.CompileOutput{}, fmt.Errorf("read build output: %w", err)
	}

	return executor.CompileOutput{Artifact: artifact, Success: true}, nil
}

// generate produces main.go and go.mod for a script, or the diagnostics
// that stop it from being built.
func generate(req executor.CompileRequest) (string, []byte, []executor.Diagnostic) {
	fileName := filepath.Base(req.FileName)
	if req.FileName == "" {
		fileName = "script.go"
	}

	var diags []executor.Diagnostic
	diag := func(code, msg string) {
		diags = append(diags, executor.Diagnostic{
			Severity: executor.SeverityError,
			Code:     code,
			Message:  msg,
			File:     fileName,
		})
	}

	goVersion := DefaultGoVersion
	if req.LanguageVersion != "" {
		v, err := semver.NewVersion(req.LanguageVersion)
		if err != nil {
			diag(CodeInvalidVersion, fmt.Sprintf("invalid language version %q", req.LanguageVersion))
		} else {
			goVersion = fmt.Sprintf("%d.%d", v.Major(), v.Minor())
		}
	}

	mf := new(modfile.File)
	if err := mf.AddModuleStmt(scriptModulePath); err != nil {
		diag(CodeBuild, err.Error())
	}
	if err := mf.AddGoStmt(goVersion); err != nil {
		diag(CodeInvalidVersion, err.Error())
	}

	for _, ref := range req.References {
		path, version, err := parseReference(ref)
		if err != nil {
			diag(CodeReferenceNotFound, err.Error())
			continue
		}
		if err := mf.AddRequire(path, version); err != nil {
			diag(CodeReferenceNotFound, err.Error())
		}
	}

	for _, ns := range req.Namespaces {
		if err := module.CheckImportPath(ns); err != nil {
			diag(CodeNamespaceNotFound, fmt.Sprintf("invalid namespace %q: %v", ns, err))
		}
	}

	if len(diags) > 0 {
		return "", nil, diags
	}

	src := render(fileName, req.Namespaces, req.Code)

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "main.go", src, parser.AllErrors)
	if err != nil {
		return "", nil, syntaxDiagnostics(err)
	}

	var used []string
	for _, ns := range req.Namespaces {
		if astutil.UsesImport(file, ns) {
			used = append(used, ns)
		}
	}
	if len(used) != len(req.Namespaces) {
		src = render(fileName, used, req.Code)
	}

	goMod, err := mf.Format()
	if err != nil {
		return "", nil, []executor.Diagnostic{{Severity: executor.SeverityError, Code: CodeBuild, Message: err.Error(), File: fileName}}
	}

	return src, goMod, nil
}

// render writes the script body into Run behind a line directive, so
// positions reported by the parser and compiler refer to the script.
func render(fileName string, imports []string, code string) string {
	var b strings.Builder
	b.WriteString("package main\n\n")
	if len(imports) > 0 {
		b.WriteString("import (\n")
		for _, imp := range imports {
			b.WriteString("\t" + strconv.Quote(imp) + "\n")
		}
		b.WriteString(")\n\n")
	}
	b.WriteString("func Run(args []string) any {\n")
	b.WriteString("//line " + fileName + ":1\n")
	b.WriteString(code)
	b.WriteString("\n\treturn nil\n}\n")
	return b.String()
}

// parseReference splits "path@version". The version must be semver.
func parseReference(ref string) (string, string, error) {
	i := strings.LastIndex(ref, "@")
	if i <= 0 || i == len(ref)-1 {
		return "", "", fmt.Errorf("reference not found: %s (want module@version)", ref)
	}
	path, version := ref[:i], ref[i+1:]

	if err := module.CheckPath(path); err != nil {
		return "", "", fmt.Errorf("reference not found: %s: %v", ref, err)
	}
	if _, err := semver.StrictNewVersion(strings.TrimPrefix(version, "v")); err != nil {
		return "", "", fmt.Errorf("reference not found: %s: invalid version %q", ref, version)
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	return path, version, nil
}

func syntaxDiagnostics(err error) []executor.Diagnostic {
	var list scanner.ErrorList
	if !errors.As(err, &list) {
		return []executor.Diagnostic{{Severity: executor.SeverityError, Code: CodeBuild, Message: err.Error()}}
	}
	diags := make([]executor.Diagnostic, 0, len(list))
	for _, e := range list {
		diags = append(diags, executor.Diagnostic{
			Severity: executor.SeverityError,
			Code:     CodeBuild,
			Message:  e.Msg,
			File:     e.Pos.Filename,
			Line:     e.Pos.Line,
			Column:   e.Pos.Column,
		})
	}
	return diags
}
