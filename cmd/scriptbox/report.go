package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/caffeineduck/scriptbox/executor"
)

// report is the serialised form of an execution result, shared by
// `run --format` and the HTTP server.
type report struct {
	State       executor.State        `json:"state" yaml:"state"`
	Output      string                `json:"output" yaml:"output"`
	DurationMs  int64                 `json:"duration_ms" yaml:"duration_ms"`
	CacheHit    bool                  `json:"cache_hit" yaml:"cache_hit"`
	Artifact    string                `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Diagnostics []executor.Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Error       string                `json:"error,omitempty" yaml:"error,omitempty"`
	Stack       string                `json:"stack,omitempty" yaml:"stack,omitempty"`
}

func newReport(res executor.Result) report {
	r := report{
		State:      res.State(),
		Output:     res.Output,
		DurationMs: res.Duration.Milliseconds(),
		CacheHit:   res.CacheHit,
		Artifact:   res.ArtifactPath,
	}
	switch {
	case res.CompileError != nil:
		r.Diagnostics = res.CompileError.Diagnostics
		r.Error = res.CompileError.Error()
	case res.ExecuteError != nil:
		r.Error = res.ExecuteError.Message
		r.Stack = res.ExecuteError.Stack
	}
	return r
}

// writeResult prints a result in the requested format. Text output sends
// the script's output to stdout and failures to stderr.
func writeResult(stdout, stderr io.Writer, format string, res executor.Result) error {
	switch format {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(newReport(res))
	case "yaml":
		enc := yaml.NewEncoder(stdout)
		defer enc.Close()
		return enc.Encode(newReport(res))
	case "", "text":
		fmt.Fprint(stdout, res.Output)
		switch {
		case res.CompileError != nil:
			for _, d := range res.CompileError.Diagnostics {
				fmt.Fprintln(stderr, d.String())
			}
		case res.ExecuteError != nil:
			fmt.Fprintf(stderr, "Error: %s\n", res.ExecuteError.Message)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q: use text, json or yaml", format)
	}
}
