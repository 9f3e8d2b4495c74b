package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/callreach/internal/export"
	"github.com/dusk-indust/callreach/internal/status"
	"github.com/dusk-indust/callreach/internal/storage"
	"github.com/spf13/cobra"
)

func newStatsCmd(flags *rootFlags) *cobra.Command {
	var warm bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print call graph counts and shard cache counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.Format == formatMermaid {
				return fmt.Errorf("stats does not support --format mermaid")
			}
			ctx := cmd.Context()
			p, _, err := flags.openProvider(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer p.Close()
			warnUnavailable(cmd, p)

			if warm {
				entries, err := p.EntryPoints(ctx)
				if err == nil {
					files := make([]string, 0, len(entries))
					for _, id := range entries {
						if fn, err := p.GetFunction(ctx, id); err == nil && fn != nil {
							files = append(files, fn.File)
						}
					}
					if err := p.Warm(ctx, files); err != nil {
						return err
					}
				}
			}

			ps := p.ProviderStats(ctx)
			if flags.Format == formatJSON {
				return export.WriteJSON(cmd.OutOrStdout(), export.NewStatsExport(p.Root(), p.Format(), ps))
			}
			return export.WriteStatsText(cmd.OutOrStdout(), ps)
		},
	}
	cmd.Flags().BoolVar(&warm, "warm", false, "load the shards of every entry point before reporting")
	return cmd
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which call graph artifacts exist and which format is used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.Format == formatMermaid {
				return fmt.Errorf("status does not support --format mermaid")
			}
			root, err := flags.absRoot()
			if err != nil {
				return err
			}
			cfg, err := flags.loadConfig(root)
			if err != nil {
				return err
			}
			st := status.Inspect(storage.NewLayout(root, cfg.StateDir))
			if flags.Format == formatJSON {
				return export.WriteJSON(cmd.OutOrStdout(), st)
			}
			return writeStatusText(cmd.OutOrStdout(), st)
		},
	}
}

func writeStatusText(w io.Writer, st status.StorageStatus) error {
	if _, err := fmt.Fprintf(w, "State directory: %s\nFormat: %s\n\n", st.StateDir, st.Format); err != nil {
		return err
	}
	for _, a := range []status.ArtifactInfo{st.Index, st.ShardDir, st.Legacy} {
		state := "missing"
		if a.Present {
			state = "present"
			if !a.ModTime.IsZero() {
				state += ", modified " + a.ModTime.Format(time.RFC3339)
			}
		}
		if _, err := fmt.Fprintf(w, "  %-16s [%s]\n", a.Name, state); err != nil {
			return err
		}
	}
	if st.ShardDir.Present {
		if _, err := fmt.Fprintf(w, "\nShards: %d\n", st.ShardCount); err != nil {
			return err
		}
	}
	if st.Shadowed {
		if _, err := fmt.Fprintln(w, "\nBoth formats are present; the legacy graph is ignored."); err != nil {
			return err
		}
	}
	return nil
}
