package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/scriptbox/executor"
)

var runCmd = &cobra.Command{
	Use:   "run [file] [-- args...]",
	Short: "Compile and run a script",
	Long: `Compile and run a JavaScript or Go script in the sandbox.

Code can be provided via:
  - File argument: scriptbox run hello.js
  - Inline flag: scriptbox run -l js -c 'console.log(1+1)'
  - Stdin: echo 'return 1+1;' | scriptbox run -l js

Arguments after -- are passed to the script. A file is cached by its name;
inline and piped code is cached by a hash of its content.`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	cmd.Flags().StringArrayP("reference", "r", nil, "Library reference (repeatable)")
	cmd.Flags().StringArrayP("namespace", "n", nil, "Namespace to import (repeatable)")
	cmd.Flags().String("base-dir", "", "Directory library references are loaded from")
	cmd.Flags().String("code-dir", "", "Artifact cache directory")
	cmd.Flags().Duration("timeout", 0, "Execution timeout (0 uses the configured value)")
	cmd.Flags().String("memory", "", "Memory limit for Go: 1mb, 16mb, 64mb, 256mb, 1gb")
	cmd.Flags().String("format", "text", "Output format: text, json, yaml")
}

// contentName derives a cache identity from the code, so edited inline code
// is compiled again.
func contentName(prefix, code, ext string) string {
	sum := sha256.Sum256([]byte(code))
	return prefix + "-" + hex.EncodeToString(sum[:])[:16] + ext
}

func scriptExt(lang executor.Language) string {
	if lang.Name() == "go" {
		return ".go"
	}
	return ".js"
}

func splitArgs(cmd *cobra.Command, args []string) (positional, scriptArgs []string) {
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		return args[:dash], args[dash:]
	}
	return args, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	code, _ := cmd.Flags().GetString("code")
	lang, _ := cmd.Flags().GetString("lang")
	references, _ := cmd.Flags().GetStringArray("reference")
	namespaces, _ := cmd.Flags().GetStringArray("namespace")
	baseDir, _ := cmd.Flags().GetString("base-dir")
	codeDir, _ := cmd.Flags().GetString("code-dir")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	memory, _ := cmd.Flags().GetString("memory")
	format, _ := cmd.Flags().GetString("format")

	positional, scriptArgs := splitArgs(cmd, args)
	if len(positional) > 1 {
		return fmt.Errorf("expected at most one file, got %d", len(positional))
	}

	var source, filename, identity string

	switch {
	case code != "":
		source = code
	case len(positional) > 0:
		filename = positional[0]
		data, err := os.ReadFile(filename)
		if err != nil {
			return err
		}
		source = string(data)
		identity = filepath.Base(filename)
	default:
		stat, _ := os.Stdin.Stat()
		if stat == nil || (stat.Mode()&os.ModeCharDevice) != 0 {
			return cmd.Help()
		}
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		source = string(data)
		if source == "" {
			return cmd.Help()
		}
	}

	language, err := getLanguage(lang, filename, goOptions(memory)...)
	if err != nil {
		return err
	}
	if identity == "" {
		identity = contentName("inline", source, scriptExt(language))
	}

	engine, closer, err := newEngine(language, engineSettings{baseDir: baseDir, codeDir: codeDir})
	if err != nil {
		return err
	}
	defer closer.Close()

	if timeout == 0 {
		timeout = cfg.Engine.Timeout
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := engine.Execute(ctx, executor.Request{
		Code:       source,
		Args:       scriptArgs,
		References: references,
		Namespaces: namespaces,
		FileName:   identity,
	})
	if err != nil {
		return err
	}

	if err := writeResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), format, res); err != nil {
		return err
	}
	if res.Err() != nil {
		return errScriptFailed
	}
	return nil
}
