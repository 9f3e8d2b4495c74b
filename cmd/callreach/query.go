package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dusk-indust/callreach/internal/export"
	"github.com/dusk-indust/callreach/internal/graph"
	"github.com/dusk-indust/callreach/internal/provider"
	"github.com/spf13/cobra"
)

func newReachCmd(flags *rootFlags) *cobra.Command {
	var (
		maxDepth      int
		sensitiveOnly bool
	)
	cmd := &cobra.Command{
		Use:   "reach <file> <line>",
		Short: "List the data reachable from the function at file:line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := parseLine(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, _, err := flags.openProvider(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer p.Close()
			warnUnavailable(cmd, p)

			opts := p.DefaultReachOptions()
			if cmd.Flags().Changed("max-depth") {
				opts.MaxDepth = maxDepth
			}
			opts.SensitiveOnly = sensitiveOnly

			res, err := p.ReachableData(ctx, args[0], line, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch flags.Format {
			case formatJSON:
				return export.WriteJSON(out, export.NewReachabilityExport(p.Root(), p.Format(), res))
			case formatMermaid:
				_, err := io.WriteString(out, export.ReachabilityMermaid(res))
				return err
			default:
				return export.WriteReachabilityText(out, res)
			}
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "deepest call level to follow (default: configured depth, 0 = starting function only)")
	cmd.Flags().BoolVar(&sensitiveOnly, "sensitive-only", false, "only list accesses to sensitive tables")
	return cmd
}

func newPathsCmd(flags *rootFlags) *cobra.Command {
	var (
		field    string
		maxDepth int
	)
	cmd := &cobra.Command{
		Use:   "paths <table>",
		Short: "List entry points whose call paths reach a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, _, err := flags.openProvider(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer p.Close()
			warnUnavailable(cmd, p)

			opts := p.DefaultInverseOptions(args[0], field)
			if cmd.Flags().Changed("max-depth") {
				opts.MaxDepth = maxDepth
			}

			res, err := p.PathsToData(ctx, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch flags.Format {
			case formatJSON:
				return export.WriteJSON(out, export.NewInverseExport(p.Root(), p.Format(), res))
			case formatMermaid:
				_, err := io.WriteString(out, export.InverseMermaid(res))
				return err
			default:
				return export.WriteInverseText(out, res)
			}
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "only follow accesses that list this field")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "caller levels to walk from each accessor (default: configured depth)")
	return cmd
}

func newFunctionCmd(flags *rootFlags) *cobra.Command {
	var (
		file string
		line int
	)
	cmd := &cobra.Command{
		Use:   "function [id]",
		Short: "Show one function by id, or the innermost function at --file/--line",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && file == "" {
				return fmt.Errorf("pass a function id or --file and --line")
			}
			if len(args) == 1 && file != "" {
				return fmt.Errorf("pass either a function id or --file, not both")
			}
			if flags.Format == formatMermaid {
				return fmt.Errorf("function does not support --format mermaid")
			}
			ctx := cmd.Context()
			p, _, err := flags.openProvider(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer p.Close()
			if !p.IsAvailable() {
				return fmt.Errorf("no call graph found under %s", p.Root())
			}

			var fn *graph.UnifiedFunction
			if len(args) == 1 {
				fn, err = p.GetFunction(ctx, args[0])
			} else {
				fn, err = p.FunctionAtLine(ctx, file, line)
			}
			if err != nil {
				return err
			}
			if fn == nil {
				return fmt.Errorf("function not found")
			}
			if flags.Format == formatJSON {
				return export.WriteJSON(cmd.OutOrStdout(), fn)
			}
			return writeFunctionText(cmd.OutOrStdout(), fn)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "project-relative source file")
	cmd.Flags().IntVar(&line, "line", 0, "1-indexed line inside the function")
	cmd.MarkFlagsRequiredTogether("file", "line")
	return cmd
}

func writeFunctionText(w io.Writer, fn *graph.UnifiedFunction) error {
	_, err := fmt.Fprintf(w, "%s\n  id:       %s\n  location: %s:%d-%d\n  calls:    %d\n  callers:  %d\n  data:     %d\n",
		fn.Name, fn.ID, fn.File, fn.StartLine, fn.EndLine, len(fn.CalleeIDs), len(fn.CallerIDs), len(fn.DataAccess))
	return err
}

func parseLine(s string) (int, error) {
	line, err := strconv.Atoi(s)
	if err != nil || line < 1 {
		return 0, fmt.Errorf("line must be a positive integer, got %q", s)
	}
	return line, nil
}

// warnUnavailable tells the user why a query is about to come back empty.
func warnUnavailable(cmd *cobra.Command, p *provider.Provider) {
	if !p.IsAvailable() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: no call graph found under %s\n", p.Root())
	}
}
