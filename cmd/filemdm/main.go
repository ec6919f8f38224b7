package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tendant/file-metadata/pkg/filemeta"
	"github.com/tendant/file-metadata/pkg/filemeta/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	var configFile string
	var cacheURL string
	var verbose bool
	var noColor bool

	rootCmd := &cobra.Command{
		Use:   "filemdm",
		Short: "File metadata CLI - read and edit cached file metadata",
		Long: `File metadata command line interface

Reads EXIF tags, image dimensions and sidecar fields of local files,
keeps extracted metadata in a persistent cache, and writes sidecar
changes back to disk.

Configuration is read from an optional YAML file and FILEMDM_*
environment variables. Run "filemdm env" for the list.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (optional)")
	rootCmd.PersistentFlags().StringVar(&cacheURL, "cache", "", "cache url, overrides FILEMDM_CACHE_URL")
	rootCmd.PersistentFlags().StringP("extractor", "e", "exif", "extractor id")
	rootCmd.PersistentFlags().String("local-path", "", "read and write this file instead of the one named by the uri")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	// Add subcommands
	rootCmd.AddCommand(NewGetCommand())
	rootCmd.AddCommand(NewSetCommand())
	rootCmd.AddCommand(NewRemoveCommand())
	rootCmd.AddCommand(NewKeysCommand())
	rootCmd.AddCommand(NewNamespacesCommand())
	rootCmd.AddCommand(NewEnvCommand())

	return rootCmd
}

// newRuntimeFromFlags loads the configuration and builds the manager
func newRuntimeFromFlags(cmd *cobra.Command) (*config.Runtime, error) {
	configFile, _ := cmd.Flags().GetString("config")
	cacheURL, _ := cmd.Flags().GetString("cache")
	verbose, _ := cmd.Flags().GetBool("verbose")

	opts := []config.Option{config.WithFile(configFile), config.WithEnv()}
	if cacheURL != "" {
		opts = append(opts, config.WithCacheURL(cacheURL))
	}
	if verbose {
		opts = append(opts, config.WithLogLevel("debug"))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := cfg.NewLogger(cmd.ErrOrStderr())
	logger.Debug("Configuration loaded", "cache", maskPassword(cfg.CacheURL), "extractors", cfg.Extractors)

	rt, err := cfg.BuildManager(contextOf(cmd), filemeta.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// openSession resolves the file argument to a session of the extractor
// selected by --extractor
func openSession(cmd *cobra.Command, rt *config.Runtime, file string) (*filemeta.Session, string, error) {
	extractorID, _ := cmd.Flags().GetString("extractor")
	if _, err := rt.Manager.Extractor(extractorID); err != nil {
		return nil, "", err
	}

	uri := file
	if !hasScheme(file) {
		abs, err := filepath.Abs(file)
		if err != nil {
			return nil, "", fmt.Errorf("invalid path %s: %w", file, err)
		}
		uri = abs
	}

	session := rt.Manager.Use(uri)
	if local, _ := cmd.Flags().GetString("local-path"); local != "" {
		session.SetLocalPath(local)
	}
	return session, extractorID, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
