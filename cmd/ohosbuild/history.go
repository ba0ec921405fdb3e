// File: cmd/ohosbuild/history.go
// Brief: CLI command listing recorded runs from the run ledger.

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/miscdec/flutter-engine/internal/runlog"
)

const historyErrorWidth = 60

func newHistoryCommand(a *app) *cobra.Command {
	var (
		limit int
		runID int64
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent build and setup runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ledgerPath(a.root)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintf(cmd.OutOrStdout(), "no runs recorded in %s\n", path)
				return nil
			}
			ledger, err := runlog.Open(path)
			if err != nil {
				return err
			}
			defer ledger.Close()
			if runID > 0 {
				results, err := ledger.Stages(cmd.Context(), runID)
				if err != nil {
					return err
				}
				rows := [][]string{{"TYPE", "STAGE", "CODE", "FATAL", "DURATION", "ERROR"}}
				for _, r := range results {
					rows = append(rows, []string{r.BuildType, r.Stage, strconv.Itoa(r.ExitCode), strconv.FormatBool(r.Fatal), r.Duration.Round(time.Second).String(), r.Error})
				}
				renderTable(cmd.OutOrStdout(), rows)
				return nil
			}
			runs, err := ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			rows := [][]string{{"ID", "STARTED", "COMMAND", "BRANCH", "EXIT", "DURATION", "ERROR"}}
			for _, r := range runs {
				rows = append(rows, []string{
					strconv.FormatInt(r.ID, 10),
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Command,
					r.Branch,
					exitText(r),
					durationText(r),
					r.Error,
				})
			}
			renderTable(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to list")
	cmd.Flags().Int64Var(&runID, "run", 0, "Show the stage results of one run")
	decorateCommandHelp(cmd, "History Flags")
	return cmd
}

func exitText(r runlog.Run) string {
	if r.FinishedAt.IsZero() {
		return "-"
	}
	return strconv.Itoa(r.ExitCode)
}

func durationText(r runlog.Run) string {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}

// renderTable pads columns by display width so branch names and tool messages in
// CJK stay aligned. The last column is truncated.
func renderTable(w io.Writer, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		last := len(row) - 1
		row[last] = runewidth.Truncate(strings.ReplaceAll(row[last], "\n", " "), historyErrorWidth, "...")
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}
	for _, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]))
			b.WriteString("  ")
		}
		fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}
}
