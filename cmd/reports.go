package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/optexplore/internal/bench"
	"github.com/cwbudde/optexplore/internal/store"
	"github.com/spf13/cobra"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
	showTrace     string
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Manage saved run reports",
	Long: `Manage reports saved by 'run --save' and 'bench --save', including
listing, inspecting traces and cleaning old reports.`,
}

var listReportsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved reports",
	RunE:  runListReports,
}

var showReportCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a report and its traces",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowReport,
}

var cleanReportsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old reports",
	Long: `Delete old reports based on retention policy.
You can keep the N most recent reports or delete reports older than N days.`,
	RunE: runCleanReports,
}

func init() {
	rootCmd.AddCommand(reportsCmd)

	reportsCmd.AddCommand(listReportsCmd)
	reportsCmd.AddCommand(showReportCmd)
	reportsCmd.AddCommand(cleanReportsCmd)

	showReportCmd.Flags().StringVar(&showTrace, "trace", "", "Print the trace of this method")

	cleanReportsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the last N reports (0 = keep all)")
	cleanReportsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete reports older than N days (0 = no age limit)")
	cleanReportsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func openStore() (*store.FSStore, error) {
	fsStore, err := store.NewFSStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create report store: %w", err)
	}
	return fsStore, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func runListReports(cmd *cobra.Command, args []string) error {
	fsStore, err := openStore()
	if err != nil {
		return err
	}

	infos, err := fsStore.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No reports found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMESTAMP\tOBJECTIVE\tMETHODS\tBEST\tBEST COST\tSIZE")
	fmt.Fprintln(w, "--\t---------\t---------\t-------\t----\t---------\t----")

	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := getDirSize(fsStore.RunDir(info.ID)); err == nil {
			sizeStr = formatBytes(size)
		}

		best := info.Best
		if best == "" {
			best = "-"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%.6g\t%s\n",
			shortID(info.ID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Objective,
			info.Methods,
			best,
			info.BestCost,
			sizeStr,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal reports: %d\n", len(infos))
	return nil
}

// resolveReportID accepts a full ID or a unique prefix of one.
func resolveReportID(infos []store.ReportInfo, prefix string) (string, error) {
	prefix = strings.TrimSuffix(prefix, "...")
	var matches []string
	for _, info := range infos {
		if info.ID == prefix {
			return info.ID, nil
		}
		if strings.HasPrefix(info.ID, prefix) {
			matches = append(matches, info.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", &store.NotFoundError{ID: prefix}
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("report id %q is ambiguous (%d matches)", prefix, len(matches))
}

func runShowReport(cmd *cobra.Command, args []string) error {
	fsStore, err := openStore()
	if err != nil {
		return err
	}
	infos, err := fsStore.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}
	id, err := resolveReportID(infos, args[0])
	if err != nil {
		return err
	}

	report, err := fsStore.LoadReport(id)
	if err != nil {
		return fmt.Errorf("failed to load report: %w", err)
	}

	out := cmd.OutOrStdout()
	if showTrace != "" {
		return printTrace(out, fsStore.BaseDir(), report.ID, showTrace)
	}

	o := report.Objective
	fmt.Fprintf(out, "Report %s\n", report.ID)
	fmt.Fprintf(out, "  Created:    %s\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "  Objective:  %s(a=%g, b=%g, n=%d)\n", o.Name, o.A, o.B, o.Dim)
	fmt.Fprintf(out, "  Init:       %v\n", report.Init)
	fmt.Fprintf(out, "  Iterations: %d\n\n", report.Iterations)

	if err := bench.Render(out, fromStoreRows(report.Rows)); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	traces, err := store.ListTraces(fsStore.BaseDir(), report.ID)
	if err != nil {
		return err
	}
	if len(traces) > 0 {
		fmt.Fprintf(out, "\nTraces: %s\n", strings.Join(traces, ", "))
	}
	return nil
}

func printTrace(w io.Writer, baseDir, id, method string) error {
	reader, err := store.NewTraceReader(baseDir, id, method)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITERATION\tCOST\tPARAMS")
	for _, e := range entries {
		params := "-"
		if e.Params != nil {
			params = fmt.Sprint(e.Params)
		}
		fmt.Fprintf(tw, "%d\t%.6g\t%s\n", e.Iteration, e.Cost, params)
	}
	return tw.Flush()
}

func runCleanReports(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	fsStore, err := openStore()
	if err != nil {
		return err
	}
	infos, err := fsStore.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No reports to clean.")
		return nil
	}

	toDelete := selectReportsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No reports match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d report(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s, %s)\n",
			shortID(info.ID),
			info.Objective,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean && !confirm(cmd.InOrStdin(), out, "\nProceed with deletion? [y/N]: ") {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := fsStore.DeleteReport(info.ID); err != nil {
			slog.Error("Failed to delete report", "id", info.ID, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted report", "id", info.ID)
		deleted++
	}

	fmt.Fprintf(out, "\nDeleted %d report(s), %d failed.\n", deleted, failed)
	return nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y"
}

// selectReportsForDeletion applies the age and count retention rules.
// A report matching both rules is listed once.
func selectReportsForDeletion(infos []store.ReportInfo, keepLast, olderThanDays int, now time.Time) []store.ReportInfo {
	var toDelete []store.ReportInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.ReportInfo, len(infos))
		copy(sorted, infos)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.ID] {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	return toDelete
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
