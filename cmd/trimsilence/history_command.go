package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gwlsn/trimsilence/internal/jobs"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer st.Close()

			list, err := st.ListJobs(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No jobs yet")
				return nil
			}
			fmt.Fprintln(out, historyTable(list))

			stats, err := st.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d %s, %d done, %d failed, %d cancelled. %s of silence removed\n",
				stats.Total, plural(stats.Total, "job", "jobs"), stats.Done, stats.Failed, stats.Cancelled,
				formatSeconds(stats.RemovedSeconds))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of jobs to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print jobs as JSON")
	return cmd
}

func historyTable(list []*jobs.Job) string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		id := job.ID
		if len(id) > 8 {
			id = id[:8]
		}
		removed, size := "-", "-"
		if job.State == jobs.StateDone {
			removed = formatSeconds(job.RemovedSeconds())
			size = humanize.Bytes(uint64(job.OutputSize))
		}
		rows = append(rows, []string{
			id,
			humanize.Time(job.CreatedAt),
			string(job.State),
			filepath.Base(job.InputPath),
			removed,
			fmt.Sprintf("%d", job.SegmentCount),
			size,
			job.Encoder,
		})
	}
	headers := []string{"ID", "Created", "State", "Input", "Removed", "Segments", "Size", "Encoder"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}
	return renderTable(headers, rows, aligns)
}
