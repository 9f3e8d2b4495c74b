package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/dusk-indust/callreach/internal/config"
	"github.com/dusk-indust/callreach/internal/provider"
	"github.com/spf13/cobra"
)

// Output formats accepted by --format.
const (
	formatText    = "text"
	formatJSON    = "json"
	formatMermaid = "mermaid"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	Root      string
	ConfigDir string
	Format    string
	Verbose   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "callreach",
		Short: "Query a project's call graph for reachable database access",
		Long: `callreach reads the call graph stored under a project's state directory
(either a single legacy graph file or a sharded index with one shard per
source file) and answers reachability questions over it:

- which tables and sensitive fields a function can reach
- which entry points can reach a given table or field
- function lookups by id or by file and line

It can also serve the same queries as MCP tools.`,
		Version: version,
		// Don't show usage when there's an error
		SilenceUsage: true,
		// Don't show errors (main prints them)
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch flags.Format {
			case formatText, formatJSON, formatMermaid:
				return nil
			default:
				return fmt.Errorf("unknown --format %q (want text, json or mermaid)", flags.Format)
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.Root, "root", ".", "project root containing the call graph state directory")
	pf.StringVar(&flags.ConfigDir, "config", "", "directory holding callreach.yml (default: the project root)")
	pf.StringVarP(&flags.Format, "format", "f", formatText, "output format: text, json or mermaid")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging on stderr")

	cmd.AddCommand(
		newReachCmd(flags),
		newPathsCmd(flags),
		newFunctionCmd(flags),
		newStatsCmd(flags),
		newStatusCmd(flags),
		newServeMCPCmd(flags),
	)
	return cmd
}

// absRoot resolves the --root flag.
func (f *rootFlags) absRoot() (string, error) {
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", f.Root, err)
	}
	return root, nil
}

// loadConfig reads callreach.yml from --config, falling back to the root.
func (f *rootFlags) loadConfig(root string) (*config.ProjectConfig, error) {
	dir := f.ConfigDir
	if dir == "" {
		dir = root
	}
	return config.Load(dir)
}

// logger writes structured logs to w; warnings only unless --verbose.
func (f *rootFlags) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if f.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openProvider builds and initializes a provider for the command's project.
// The caller must Close it.
func (f *rootFlags) openProvider(ctx context.Context, cmd *cobra.Command, watch bool) (*provider.Provider, *config.ProjectConfig, error) {
	root, err := f.absRoot()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := f.loadConfig(root)
	if err != nil {
		return nil, nil, err
	}
	opts := provider.OptionsFromConfig(cfg, f.logger(cmd.ErrOrStderr()))
	opts.Watch = watch && cfg.Watch

	p := provider.New(root, opts)
	if err := p.Initialize(ctx); err != nil {
		p.Close()
		return nil, nil, err
	}
	return p, cfg, nil
}
