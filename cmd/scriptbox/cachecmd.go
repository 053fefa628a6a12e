package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the artifact cache",
	Long: `Inspect compiled artifacts. Artifacts are never invalidated or removed by
scriptbox; rename a script or delete its artifact to force a rebuild.`,
}

var cacheListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List cached artifacts",
	Args:    cobra.NoArgs,
	RunE:    runCacheList,
}

var cachePathCmd = &cobra.Command{
	Use:   "path <file>",
	Short: "Print the artifact path for a script file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCachePath,
}

func init() {
	cacheCmd.PersistentFlags().String("code-dir", "", "Artifact cache directory")
	cacheCmd.AddCommand(cacheListCmd, cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	codeDir, _ := cmd.Flags().GetString("code-dir")
	lang, _ := cmd.Flags().GetString("lang")

	// Every language shares the directory; the suffix tells them apart.
	suffix := ""
	if lang != "" {
		language, err := getLanguage(lang, "")
		if err != nil {
			return err
		}
		suffix = language.ArtifactSuffix()
	}

	language, err := getLanguage("js", "")
	if err != nil {
		return err
	}
	engine, closer, err := newEngine(language, engineSettings{codeDir: codeDir})
	if err != nil {
		return err
	}
	defer closer.Close()

	entries, err := engine.Store().List(suffix)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "No artifacts in %s\n", engine.Store().Dir())
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Name, e.Size, e.ModTime.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func runCachePath(cmd *cobra.Command, args []string) error {
	codeDir, _ := cmd.Flags().GetString("code-dir")
	lang, _ := cmd.Flags().GetString("lang")

	language, err := getLanguage(lang, args[0])
	if err != nil {
		return err
	}
	engine, closer, err := newEngine(language, engineSettings{codeDir: codeDir})
	if err != nil {
		return err
	}
	defer closer.Close()

	fmt.Fprintln(cmd.OutOrStdout(), engine.ArtifactPath(filepath.Base(args[0])))
	return nil
}
