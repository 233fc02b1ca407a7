// Command speshctl is an offline driver for the planner: it loads a
// static frame's statistics snapshot from a YAML fixture and prints the
// specialization plan PlanBuilder would produce for it, without needing a
// live interpreter. It exists for operators tuning config.Config thresholds
// and for support engineers reproducing a planning decision from a
// collected profile.
package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/scovit/spesh/internal/config"
	"github.com/scovit/spesh/internal/fixture"
	"github.com/scovit/spesh/internal/logflags"
	"github.com/scovit/spesh/internal/trace"
	"github.com/scovit/spesh/pkg/spesh"
)

var (
	cfgPath string
	logSpec string
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "speshctl",
		Short: "Inspect and replay speculative-specialization planning decisions",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logflags.Setup(logSpec)
			logflags.SetupFromEnv()
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML threshold config (defaults baked in if unset)")
	root.PersistentFlags().StringVar(&logSpec, "log", "", "comma-separated logger names to enable (deopt,plan,all)")

	root.AddCommand(newPlanCmd())
	root.AddCommand(newDeoptTraceCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print speshctl's version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "speshctl (dev build)")
		},
	}
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <fixture.yaml>",
		Short: "Build and print the specialization plan for a statistics fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if cfgPath != "" {
				loaded, err := config.Load(cfgPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			sfs, err := fixture.Load(args[0])
			if err != nil {
				return err
			}

			b := spesh.NewPlanBuilder(cfg)
			plan, counters := b.Plan(sfs)
			printPlan(cmd, plan, counters)
			return nil
		},
	}
}

func newDeoptTraceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deopt-trace <trace.yaml>",
		Short: "Replay a recorded DeoptOne/DeoptOneDirect/DeoptAll call against a synthetic frame graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := trace.Load(args[0])
			if err != nil {
				return err
			}
			result, err := trace.Replay(doc)
			if err != nil {
				return err
			}
			printTraceResult(cmd, result)
			return nil
		},
	}
}

func printTraceResult(cmd *cobra.Command, result *trace.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "frame chain after replay (innermost first):\n")
	for _, fs := range result.Chain {
		state := "generic"
		if fs.Specialized {
			state = "specialized"
		}
		fmt.Fprintf(out, "  %-20s %-12s return=%d\n", fs.Name, state, fs.ReturnAddress)
	}
}

// printPlan writes the plan as plain text. When stdout is a terminal
// (checked with isatty) the output goes through a go-colorable writer;
// otherwise it is written directly. No ANSI color codes are emitted.
func printPlan(cmd *cobra.Command, plan *spesh.SpeshPlan, counters spesh.Counters) {
	out := cmd.OutOrStdout()
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = colorable.NewColorable(f)
	}

	fmt.Fprintf(out, "plan: %d entries (certain=%d observed=%d osr=%d)\n",
		len(plan.Planned), counters.Certain, counters.ObservedType, counters.OSR)
	for i, p := range plan.Planned {
		kind := "observed-types"
		if p.Kind == spesh.PlannedCertain {
			kind = "certain"
		}
		fmt.Fprintf(out, "  %2d. %-20s depth=%-3d kind=%s\n", i+1, p.SF.CUID+"/"+p.SF.Name, p.MaxDepth, kind)
	}
	if logflags.Plan() {
		logflags.PlanLogger().WithField("count", len(plan.Planned)).Debug("plan printed")
	}
}
