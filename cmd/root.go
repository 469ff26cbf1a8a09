package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/chunksim/sim"
	"github.com/inference-sim/chunksim/sim/runner"
	"github.com/inference-sim/chunksim/sim/trace"
	"github.com/inference-sim/chunksim/sim/tracestore"
	"github.com/inference-sim/chunksim/sim/workload"
)

var (
	// CLI flags for the run command
	logLevel         string // Log verbosity level
	workloadPath     string // Path to the workload YAML
	policyConfigPath string // Path to the policy bundle YAML
	policyName       string // Eviction policy, overrides the bundle
	seed             int64  // Master seed, overrides the bundle and workload
	steps            int    // Training steps, overrides the workload
	traceLevel       string // Decision trace level, overrides the bundle
	traceDBPath      string // SQLite database of warm-up traces
	printMetrics     bool   // Dump prometheus counters after the run
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "chunksim",
	Short: "Predictive chunk eviction simulator for iterative training workloads",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q", logLevel)
		}
		logrus.SetLevel(level)
		return nil
	},
}

// runCmd replays a workload through the eviction engine using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a training workload through the eviction engine",
	Run: func(cmd *cobra.Command, args []string) {
		opts := runOptions{
			WorkloadPath:     workloadPath,
			PolicyConfigPath: policyConfigPath,
			TraceDBPath:      traceDBPath,
			PrintMetrics:     printMetrics,
		}
		if cmd.Flags().Changed("policy") {
			opts.Policy = &policyName
		}
		if cmd.Flags().Changed("seed") {
			opts.Seed = &seed
		}
		if cmd.Flags().Changed("steps") {
			opts.Steps = &steps
		}
		if cmd.Flags().Changed("trace-level") {
			opts.TraceLevel = &traceLevel
		}

		startTime := time.Now()
		if err := runSimulation(cmd.Context(), opts, os.Stdout); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete in %s.", time.Since(startTime).Round(time.Millisecond))
	},
}

// runOptions carries the resolved run inputs. Nil pointers mean "flag not set".
type runOptions struct {
	WorkloadPath     string
	PolicyConfigPath string
	TraceDBPath      string
	PrintMetrics     bool
	Policy           *string
	Seed             *int64
	Steps            *int
	TraceLevel       *string
}

// runSimulation loads the workload and policy, runs every step, and writes the
// summary (plus optional trace summary and metrics) to out.
func runSimulation(ctx context.Context, opts runOptions, out io.Writer) error {
	spec, err := workload.LoadWorkloadSpec(opts.WorkloadPath)
	if err != nil {
		return err
	}
	if opts.Steps != nil {
		spec.Steps = *opts.Steps
	}

	cfg, err := resolveEngineConfig(opts, spec)
	if err != nil {
		return err
	}
	var reg *prometheus.Registry
	if opts.PrintMetrics {
		reg = prometheus.NewRegistry()
		cfg.Metrics = sim.NewMetrics()
		if err := cfg.Metrics.Register(reg); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}
	engine := sim.NewEngine(cfg)

	var store runner.TraceStore
	if opts.TraceDBPath != "" {
		s, err := tracestore.Open(opts.TraceDBPath)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		store = s
	}

	logrus.Infof("Starting workload %q: %d steps, %d chunks, policy=%s",
		spec.Name, spec.Steps, spec.TotalChunks(), engine.PolicyName())
	r, err := runner.New(spec, engine, store)
	if err != nil {
		return err
	}
	metrics, err := r.Run(ctx)
	if err != nil {
		return err
	}
	metrics.Print(out)

	if decisions := engine.Decisions(); decisions != nil {
		printTraceSummary(out, trace.Summarize(decisions))
	}
	if reg != nil {
		families, err := reg.Gather()
		if err != nil {
			return fmt.Errorf("gathering metrics: %w", err)
		}
		if err := writeMetricFamilies(out, families); err != nil {
			return err
		}
	}
	return nil
}

func printTraceSummary(out io.Writer, s *trace.TraceSummary) {
	fmt.Fprintln(out, "=== Eviction Trace Summary ===")
	fmt.Fprintf(out, "Plans                : %d (%d during warm-up)\n", s.TotalPlans, s.WarmupPlans)
	fmt.Fprintf(out, "Underfilled plans    : %d\n", s.UnderfilledPlans)
	fmt.Fprintf(out, "Chunks chosen        : %d (mean %.2f, max %d)\n", s.ChosenChunks, s.MeanChosen, s.MaxChosen)
	fmt.Fprintf(out, "Fill ratio           : %.4f\n", s.FillRatio)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&workloadPath, "workload", "", "Path to workload YAML")
	runCmd.Flags().StringVar(&policyConfigPath, "policy-config", "", "Path to policy bundle YAML")
	runCmd.Flags().StringVar(&policyName, "policy", "predictive", "Eviction policy (predictive, recency, random)")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for the shuffled pattern and the random policy")
	runCmd.Flags().IntVar(&steps, "steps", 0, "Number of training steps (overrides the workload)")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Eviction decision trace level (none, decisions)")
	runCmd.Flags().StringVar(&traceDBPath, "trace-db", "", "SQLite file for saving and restoring warm-up traces")
	runCmd.Flags().BoolVar(&printMetrics, "print-metrics", false, "Print eviction counters in prometheus text format")
	_ = runCmd.MarkFlagRequired("workload")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
