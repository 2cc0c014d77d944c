package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vagueness/app/analysis"
	"vagueness/app/report"
	"vagueness/app/server"
	"vagueness/types"
)

var (
	analyzePages     string
	analyzeThreshold float64
	analyzeFormat    string
	analyzeOut       string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Flag vague language in a document",
	Long: `Classifies every chunk touching the selected pages and suggests precise
rewrites for vague phrases. Ctrl-C stops the run and still writes what was
finished, marked incomplete.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzePages, "pages", "p", "", `pages to analyze: "4", "3-5" or empty for all`)
	analyzeCmd.Flags().Float64VarP(&analyzeThreshold, "threshold", "t", -1, "vagueness threshold in [0,1] (default from config)")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "json", "report format: json or csv")
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "report file (default stdout)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	sel, err := parsePages(analyzePages)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(analyzeFormat)
	if err != nil {
		return err
	}
	var threshold *float64
	if cmd.Flags().Changed("threshold") {
		threshold = &analyzeThreshold
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := server.Build(ctx, cfg, server.Models{})
	if err != nil {
		return err
	}
	defer c.Close()

	doc, err := c.Orchestrator.Load(ctx, titleOf(args[0]), filepath.Base(args[0]), data)
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	run, runErr := c.Orchestrator.Analyze(ctx, analysis.Request{
		DocumentID: doc.ID,
		Selection:  sel,
		Threshold:  threshold,
	}, func(p types.Progress) {
		if !p.Done {
			fmt.Fprintf(stderr, "\rclassified %d/%d chunks", p.Processed, p.Total)
		}
	})
	fmt.Fprintln(stderr)
	if runErr != nil && (run == nil || !errors.Is(runErr, types.ErrCancelled)) {
		return runErr
	}

	if err := writeReport(cmd.OutOrStdout(), run, format); err != nil {
		return err
	}
	printSummary(stderr, run)
	return runErr
}

func writeReport(stdout io.Writer, run *types.AnalysisRun, format report.Format) error {
	if analyzeOut == "" {
		return report.Write(stdout, run, format)
	}
	f, err := os.Create(analyzeOut)
	if err != nil {
		return err
	}
	if err := report.Write(f, run, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(w io.Writer, run *types.AnalysisRun) {
	s := run.Summary
	if run.Empty() {
		fmt.Fprintln(w, "no chunks in the selected pages")
		return
	}
	rate := color.GreenString("%.2f%%", s.VaguenessRate)
	if s.VaguenessRate > 30 {
		rate = color.RedString("%.2f%%", s.VaguenessRate)
	} else if s.VaguenessRate > 10 {
		rate = color.YellowString("%.2f%%", s.VaguenessRate)
	}
	fmt.Fprintf(w, "%s, %d chunks: %d vague (%s), mean score %.2f, %d suggestions, %d unsupported\n",
		run.Selection, s.SelectedChunks, s.VagueChunks, rate, s.MeanScore, s.Suggestions, s.UnsupportedPhrases)
	if s.FailedChunks > 0 {
		fmt.Fprintln(w, color.RedString("%d chunks failed classification", s.FailedChunks))
	}
	if run.RetrievalDegraded {
		fmt.Fprintln(w, color.YellowString("reference index unavailable, suggestions are unsupported"))
	}
	if run.Incomplete {
		fmt.Fprintln(w, color.YellowString("run was stopped early, report is incomplete"))
	}
}

// parsePages reads "" as all pages, "4" as one page and "3-5" as a range.
func parsePages(s string) (types.PageSelection, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return types.AllPages(), nil
	}
	from, to, isRange := strings.Cut(s, "-")
	start, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return types.PageSelection{}, types.NewConfigError("pages", "%q is not a page number", from)
	}
	if !isRange {
		return types.SinglePage(start), nil
	}
	end, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil {
		return types.PageSelection{}, types.NewConfigError("pages", "%q is not a page number", to)
	}
	return types.PageRange(start, end), nil
}
