package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/scriptbox/cache"
	"github.com/caffeineduck/scriptbox/executor"
	"github.com/caffeineduck/scriptbox/internal/config"
	"github.com/caffeineduck/scriptbox/internal/logger"
	"github.com/caffeineduck/scriptbox/language/golang"
	"github.com/caffeineduck/scriptbox/language/javascript"
)

// errScriptFailed sets the exit status without printing anything more; the
// command has already reported the failure.
var errScriptFailed = errors.New("script failed")

var cfg = defaultConfig()

var rootCmd = &cobra.Command{
	Use:   "scriptbox [file]",
	Short: "Compile, cache and run sandboxed scripts",
	Long: `scriptbox - Run JavaScript and Go scripts inside a capability sandbox.

Each script is compiled once and its artifact cached under the code
directory, keyed by file name. Later runs with the same name reuse the
artifact. Scripts may use the console, outbound HTTP, DNS lookups and
network probes. They have no filesystem or process access.`,
	Args:              cobra.ArbitraryArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runRun,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errScriptFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: console, json")
	rootCmd.PersistentFlags().StringP("lang", "l", "", "Language: js, go (default: auto-detect)")

	addRunFlags(rootCmd)
}

func defaultConfig() *config.Config {
	c, err := config.Load("")
	if err != nil {
		return &config.Config{}
	}
	return c
}

// setup loads configuration and the logger. Flags win over the file and
// the environment.
func setup(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = loaded

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	return logger.Init(cfg.Log)
}

// getLanguage picks the language from the flag, or from the file extension
// when the flag is empty. goOpts apply only to Go.
func getLanguage(langFlag string, filename string, goOpts ...golang.Option) (executor.Language, error) {
	lang := langFlag

	if lang == "" && filename != "" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".js", ".mjs":
			lang = "js"
		case ".go":
			lang = "go"
		}
	}

	if lang == "" {
		return nil, fmt.Errorf("language required: use --lang js or --lang go")
	}

	switch strings.ToLower(lang) {
	case "js", "javascript":
		return javascript.New(), nil
	case "go", "golang":
		return golang.New(append([]golang.Option{golang.WithLogger(logger.Get())}, goOpts...)...), nil
	default:
		return nil, fmt.Errorf("unknown language %q: use js or go", lang)
	}
}

func goOptions(memory string) []golang.Option {
	if pages := parseMemoryLimit(memory); pages > 0 {
		return []golang.Option{golang.WithMemoryLimit(pages)}
	}
	return nil
}

// parseMemoryLimit converts a size to 64KB wasm pages. Zero keeps the
// runtime default.
func parseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "1mb":
		return 16
	case "16mb":
		return 256
	case "64mb":
		return 1024
	case "256mb":
		return 4096
	case "1gb":
		return 16384
	default:
		return 0
	}
}

type engineSettings struct {
	baseDir string
	codeDir string
}

// newEngine builds an engine from the loaded config, overridden by any
// non-empty settings. The returned closer releases language resources.
func newEngine(lang executor.Language, s engineSettings) (*executor.Engine, io.Closer, error) {
	fs, err := cache.NewOSFS()
	if err != nil {
		return nil, nil, err
	}

	codeDir := cfg.Engine.CodeDir
	if s.codeDir != "" {
		codeDir = s.codeDir
	}
	baseDir := cfg.Engine.BaseDir
	if s.baseDir != "" {
		baseDir = s.baseDir
	}
	if baseDir != "" {
		if abs, err := filepath.Abs(baseDir); err == nil {
			baseDir = abs
		}
	}

	opts := []executor.Option{
		executor.WithFS(fs),
		executor.WithLogger(logger.Get()),
		executor.WithCodeDir(codeDir),
	}
	if baseDir != "" {
		opts = append(opts, executor.WithBaseDirectory(baseDir))
	}
	if cfg.Engine.Assembly != "" {
		opts = append(opts, executor.WithAssembly(cfg.Engine.Assembly))
	}
	if cfg.Engine.LanguageVersion != "" {
		opts = append(opts, executor.WithLanguageVersion(cfg.Engine.LanguageVersion))
	}

	engine, err := executor.New(lang, opts...)
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer = nopCloser{}
	if c, ok := lang.(io.Closer); ok {
		closer = c
	}
	return engine, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
