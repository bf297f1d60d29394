// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/geolocate/internal/report"
	"github.com/pdiddy/geolocate/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run history (list, show, export, delete)",
	Long: `Runs reads the history of past locate runs from the store configured
under store: (SQLite by default, Postgres with store.driver: postgres).`,
}

// --- list subcommand ---

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE:  runRunsList,
}

func runRunsList(cmd *cobra.Command, args []string) error {
	st, err := store.Open(appConfig.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := st.ListRuns(context.Background(), limit)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return report.JSON(os.Stdout, runs)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-24s  %-20s  %-23s  %-23s  %-6s  %s\n",
		"ID", "Started", "Status", "Best", "Conf", "Elapsed")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 115))
	for _, r := range runs {
		best := "-"
		if r.Best != nil {
			best = r.Best.String()
		}
		fmt.Fprintf(os.Stdout, "%-24s  %-20s  %-23s  %-23s  %-6.3f  %s\n",
			r.ID, r.Started.Local().Format("2006-01-02 15:04:05"), r.Status, best, r.BestConfidence, r.Elapsed)
	}
	fmt.Fprintf(os.Stdout, "\n%d runs\n", len(runs))
	return nil
}

// --- show subcommand ---

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	st, err := store.Open(appConfig.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	dec, err := st.LoadRun(context.Background(), args[0])
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	return report.Write(os.Stdout, dec, format)
}

// --- export subcommand ---

var runsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Write a run's JSON, YAML, CSV and GeoJSON files",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsExport,
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	st, err := store.Open(appConfig.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	dec, err := st.LoadRun(context.Background(), args[0])
	if err != nil {
		return err
	}
	outDir, _ := cmd.Flags().GetString("out")
	if outDir == "" {
		outDir = filepath.Join(appConfig.OutputDir, args[0])
	}
	paths, err := report.Save(outDir, dec)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println("Exported to", p)
	}
	return nil
}

// --- delete subcommand ---

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a run from the history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(appConfig.Store)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.DeleteRun(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Println("Deleted", args[0])
		return nil
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs (0 for all)")
	runsListCmd.Flags().Bool("json", false, "output as JSON")
	runsShowCmd.Flags().String("format", "table", "output: table, json, yaml, csv, geojson")
	runsExportCmd.Flags().String("out", "", "output directory (default: output_dir/<id>)")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsExportCmd, runsDeleteCmd)
	rootCmd.AddCommand(runsCmd)
}
