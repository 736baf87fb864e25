package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/tracking"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs recorded by the sqlite tracking backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Tracking.Backend != "" && cfg.Tracking.Backend != tracking.BackendSQLite {
				return errors.NewValidationError("tracking.backend", "runs can only be listed from the sqlite backend", cfg.Tracking.Backend)
			}
			store, err := tracking.NewSQLiteStore(cfg.Tracking.DSN, cfg.Tracking.ArtifactRoot)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			experiment, _ := cmd.Flags().GetString("experiment")
			if all, _ := cmd.Flags().GetBool("all"); !all && experiment == "" {
				experiment = cfg.Experiment
			}
			records, err := store.ListRuns(cmd.Context(), experiment)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tNAME\tSTATUS\tSTARTED\tMETRICS")
			for _, rec := range records {
				metrics := make([]string, 0, len(rec.Metrics))
				for _, k := range rec.MetricKeys() {
					metrics = append(metrics, fmt.Sprintf("%s=%.4f", k, rec.Metrics[k]))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					rec.ID, rec.Name, rec.Status,
					rec.StartTime.Local().Format("2006-01-02 15:04:05"),
					strings.Join(metrics, " "))
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("experiment", "", "experiment to list (default: --experiment-name)")
	cmd.Flags().Bool("all", false, "list runs of every experiment")
	return cmd
}
