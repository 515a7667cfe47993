package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/polyedge/internal/pipeline"
)

func newRootCmd(a *app) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "polyedge",
		Short:         "Prediction-market snapshot pipeline and edge scoring",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file (empty for defaults)")

	root.AddCommand(
		normalizeCmd(a),
		classifyCmd(a),
		stageCmd("join", "Attach Gamma outcome metadata to normalized books", a.stage(func(r *pipeline.Runner) stageFunc { return r.Join })),
		stageCmd("signal", "Score resolution markets into the signal report", a.stage(func(r *pipeline.Runner) stageFunc { return r.Signal })),
		stageCmd("delta", "Diff the two newest signal reports", a.stage(func(r *pipeline.Runner) stageFunc { return r.Delta })),
		stageCmd("arb", "Score deviations from category consensus", a.stage(func(r *pipeline.Runner) stageFunc { return r.Arb })),
		runCmd(a),
		captureCmd(a),
		runsCmd(a),
	)
	return root
}

type stageFunc func(context.Context) (*pipeline.Summary, error)

// stage defers picking the runner method until the runner exists.
func (a *app) stage(pick func(*pipeline.Runner) stageFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := pick(a.runner)(cmd.Context())
		return a.report(cmd.Context(), err, s)
	}
}

func stageCmd(use, short string, run func(*cobra.Command, []string) error) *cobra.Command {
	return &cobra.Command{Use: use, Short: short, Args: cobra.NoArgs, RunE: run}
}

func normalizeCmd(a *app) *cobra.Command {
	sources := map[string]func(*pipeline.Runner) stageFunc{
		"kalshi":     func(r *pipeline.Runner) stageFunc { return r.NormalizeKalshi },
		"bookmaker":  func(r *pipeline.Runner) stageFunc { return r.NormalizeBookmaker },
		"polymarket": func(r *pipeline.Runner) stageFunc { return r.NormalizeBooks },
		"ws":         func(r *pipeline.Runner) stageFunc { return r.NormalizeWS },
	}
	return &cobra.Command{
		Use:       "normalize {kalshi|bookmaker|polymarket|ws}",
		Short:     "Normalize the latest raw snapshot of one source",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"kalshi", "bookmaker", "polymarket", "ws"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stage(sources[args[0]])(cmd, args)
		},
	}
}

func classifyCmd(a *app) *cobra.Command {
	var inspect string
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Tag the latest flattened Kalshi markets with taxonomy labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if inspect == "" {
				return a.stage(func(r *pipeline.Runner) stageFunc { return r.Classify })(cmd, args)
			}
			found, err := a.runner.Inspect(cmd.Context(), strings.ToUpper(inspect))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "EVENT\tMARKET\tPRICE FIELDS\tRAW KEYS")
			for _, in := range found {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", in.Event, in.Market,
					strings.Join(in.PriceFields, ","), strings.Join(in.RawKeys, ","))
			}
			fmt.Fprintf(tw, "\n%d markets tagged %s\n", len(found), strings.ToUpper(inspect))
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&inspect, "inspect", "", "List how markets with this tag carry prices instead of classifying")
	return cmd
}

func runCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the Kalshi chain: normalize, classify, signal, arb, delta",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := a.runner.RunAll(cmd.Context())
			return a.report(cmd.Context(), err, summaries...)
		},
	}
}

func runsCmd(a *app) *cobra.Command {
	var (
		stage string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded stage runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.store == nil {
				return fmt.Errorf("the run ledger is disabled (storage.enabled=false)")
			}
			runs, err := a.store.ListRuns(cmd.Context(), stage, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSTAGE\tSTATUS\tPROCESSED\tSKIPPED\tWRITTEN\tDURATION\tOUTPUT")
			for _, r := range runs {
				output := r.Output
				if r.Error != "" {
					output = r.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					r.StartedAt.UTC().Format("2006-01-02 15:04:05"), r.Stage, r.Status,
					r.Processed, r.Skipped, r.Written, r.Duration.Round(time.Millisecond), output)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "Only list runs of this stage")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	return cmd
}
