package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/scriptbox/executor"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive script prompt",
	Long: `Start an interactive prompt. Every entry is compiled and run as its own
script; entering the same code again reuses its cached artifact.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().StringArrayP("reference", "r", nil, "Library reference (repeatable)")
	replCmd.Flags().StringArrayP("namespace", "n", nil, "Namespace to import (repeatable)")
	replCmd.Flags().String("base-dir", "", "Directory library references are loaded from")
	replCmd.Flags().String("history", "", "History file path (default: ~/.scriptbox_history)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	lang, _ := cmd.Flags().GetString("lang")
	references, _ := cmd.Flags().GetStringArray("reference")
	namespaces, _ := cmd.Flags().GetStringArray("namespace")
	baseDir, _ := cmd.Flags().GetString("base-dir")
	historyFile, _ := cmd.Flags().GetString("history")

	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".scriptbox_history")
	}
	if lang == "" {
		lang = "js"
	}

	language, err := getLanguage(lang, "")
	if err != nil {
		return err
	}

	engine, closer, err := newEngine(language, engineSettings{baseDir: baseDir})
	if err != nil {
		return err
	}
	defer closer.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(os.Stderr, "scriptbox %s (type 'exit' to quit, Ctrl+D to exit)\n", language.Name())

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(">>> ")
				}
				continue
			}
			if err == io.EOF {
				fmt.Println()
				break
			}
			return fmt.Errorf("read input: %w", err)
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt("... ")
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(">>> ")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		res, err := evalEntry(cmd.Context(), engine, line, references, namespaces)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if res.Output != "" {
			fmt.Print(res.Output)
			if !strings.HasSuffix(res.Output, "\n") {
				fmt.Println()
			}
		}
		_ = writeResult(io.Discard, os.Stderr, "text", executor.Result{
			CompileError: res.CompileError,
			ExecuteError: res.ExecuteError,
		})
	}
	return nil
}

// evalEntry runs one prompt entry under an identity derived from its text.
func evalEntry(ctx context.Context, engine *executor.Engine, code string, references, namespaces []string) (executor.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Engine.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Engine.Timeout)
		defer cancel()
	}
	return engine.Execute(ctx, executor.Request{
		Code:       code,
		References: references,
		Namespaces: namespaces,
		FileName:   contentName("repl", code, scriptExt(engine.Language())),
	})
}
