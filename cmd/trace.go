package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/chunksim/sim"
	"github.com/inference-sim/chunksim/sim/runner"
	"github.com/inference-sim/chunksim/sim/tracestore"
	"github.com/inference-sim/chunksim/sim/workload"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Manage recorded warm-up traces",
}

// --- chunksim trace export ---

var (
	exportHeaderPath string
	exportDataPath   string
)

var traceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a workload's warm-up trace as a YAML header and CSV data",
	Long: "Export the warm-up access trace of a workload. The trace is read from --trace-db when " +
		"present there, otherwise recorded by running the workload's warm-up step.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := exportTrace(cmd.Context(), workloadPath, traceDBPath, exportHeaderPath, exportDataPath); err != nil {
			logrus.Fatalf("Trace export failed: %v", err)
		}
	},
}

// exportTrace loads or records the warm-up trace for the workload at specPath and exports it.
func exportTrace(ctx context.Context, specPath, dbPath, headerPath, dataPath string) error {
	spec, err := workload.LoadWorkloadSpec(specPath)
	if err != nil {
		return err
	}

	var (
		snap sim.Snapshot
		ok   bool
	)
	if dbPath != "" {
		store, err := tracestore.Open(dbPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		if snap, ok, err = store.Load(ctx, spec.Name); err != nil {
			return err
		}
	}
	if !ok {
		logrus.Infof("No stored trace for %q; recording warm-up", spec.Name)
		if snap, err = recordWarmup(ctx, spec); err != nil {
			return err
		}
	}

	if err := tracestore.Export(spec.Name, snap, headerPath, dataPath); err != nil {
		return err
	}
	logrus.Infof("Exported %d streams (period %d) to %s and %s", len(snap.Entries), snap.TotalMoment, headerPath, dataPath)
	return nil
}

// recordWarmup runs only the warm-up step of spec with the predictive policy.
func recordWarmup(ctx context.Context, spec *workload.WorkloadSpec) (sim.Snapshot, error) {
	spec.Steps = 1
	engine := sim.NewEngine(sim.EngineConfig{Policy: "predictive", Seed: spec.Seed})
	r, err := runner.New(spec, engine, nil)
	if err != nil {
		return sim.Snapshot{}, err
	}
	if _, err := r.Run(ctx); err != nil {
		return sim.Snapshot{}, err
	}
	snap, ok := engine.Snapshot()
	if !ok {
		return sim.Snapshot{}, fmt.Errorf("workload %q recorded no warm-up trace", spec.Name)
	}
	return snap, nil
}

// --- chunksim trace import ---

var (
	importHeaderPath string
	importDataPath   string
	importName       string
)

var traceImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load an exported warm-up trace into --trace-db",
	Long: "Import a YAML header and CSV data pair written by `trace export`. The trace is stored " +
		"under the header's workload name unless --name is given.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := importTrace(cmd.Context(), traceDBPath, importHeaderPath, importDataPath, importName); err != nil {
			logrus.Fatalf("Trace import failed: %v", err)
		}
	},
}

// importTrace validates an exported trace and saves it to the store at dbPath.
func importTrace(ctx context.Context, dbPath, headerPath, dataPath, name string) error {
	if dbPath == "" {
		return fmt.Errorf("--trace-db is required")
	}
	header, snap, err := tracestore.Import(headerPath, dataPath)
	if err != nil {
		return err
	}
	if name == "" {
		name = header.Workload
	}
	if name == "" {
		return fmt.Errorf("trace header names no workload; pass --name")
	}

	store, err := tracestore.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Save(ctx, name, snap); err != nil {
		return err
	}
	logrus.Infof("Imported %d streams (period %d) as %q", len(snap.Entries), snap.TotalMoment, name)
	return nil
}

// --- chunksim trace show ---

var traceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List the warm-up traces stored in --trace-db",
	Run: func(cmd *cobra.Command, args []string) {
		if err := showTraces(cmd.Context(), traceDBPath, os.Stdout); err != nil {
			logrus.Fatalf("Listing traces failed: %v", err)
		}
	},
}

func showTraces(ctx context.Context, dbPath string, out io.Writer) error {
	if dbPath == "" {
		return fmt.Errorf("--trace-db is required")
	}
	store, err := tracestore.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	summaries, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(out, "no stored traces")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKLOAD\tPERIOD\tSTREAMS\tACCESSES\tCREATED")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", s.Workload, s.TotalMoment, s.Streams, s.Accesses,
			s.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

// --- chunksim trace delete ---

var deleteWorkloadName string

var traceDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove a workload's stored warm-up trace",
	Run: func(cmd *cobra.Command, args []string) {
		if traceDBPath == "" {
			logrus.Fatalf("--trace-db is required")
		}
		store, err := tracestore.Open(traceDBPath)
		if err != nil {
			logrus.Fatalf("Opening trace store failed: %v", err)
		}
		defer func() { _ = store.Close() }()
		if err := store.Delete(cmd.Context(), deleteWorkloadName); err != nil {
			logrus.Fatalf("Deleting trace failed: %v", err)
		}
	},
}

func init() {
	traceCmd.PersistentFlags().StringVar(&traceDBPath, "trace-db", "", "SQLite file holding warm-up traces")

	traceExportCmd.Flags().StringVar(&workloadPath, "workload", "", "Path to workload YAML")
	traceExportCmd.Flags().StringVar(&exportHeaderPath, "header", "trace_header.yaml", "Output path for the YAML trace header")
	traceExportCmd.Flags().StringVar(&exportDataPath, "data", "trace_data.csv", "Output path for the CSV trace data")
	_ = traceExportCmd.MarkFlagRequired("workload")

	traceImportCmd.Flags().StringVar(&importHeaderPath, "header", "trace_header.yaml", "Path to the YAML trace header")
	traceImportCmd.Flags().StringVar(&importDataPath, "data", "trace_data.csv", "Path to the CSV trace data")
	traceImportCmd.Flags().StringVar(&importName, "name", "", "Workload name to store the trace under (defaults to the header's)")

	traceDeleteCmd.Flags().StringVar(&deleteWorkloadName, "name", "", "Workload name whose trace to delete")
	_ = traceDeleteCmd.MarkFlagRequired("name")

	traceCmd.AddCommand(traceExportCmd, traceImportCmd, traceShowCmd, traceDeleteCmd)
	rootCmd.AddCommand(traceCmd)
}
