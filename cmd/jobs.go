package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"audioconv/internal/clix"
	"audioconv/internal/models"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	jobsListLimit  int
	jobsListOffset int
	jobsListLive   bool
	jobsListState  string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect conversion jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversion jobs",
	Long: `Lists conversion jobs from the job history database. With --live the
jobs are read from the Redis queue instead, filtered by --state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		page, err := clix.ParsePagination(cmd.Flags())
		if err != nil {
			return err
		}

		if jobsListLive {
			state, err := clix.ParseTaskState(cmd.Flags())
			if err != nil {
				return err
			}
			jobs, err := appInstance.TaskQueue.ListTasks(ctx, state, page.Limit)
			if err != nil {
				return fmt.Errorf("failed to list %s tasks: %w", state, err)
			}
			if len(jobs) == 0 {
				fmt.Printf("No %s tasks in queue %s.\n", state, appInstance.Config.Queue.Name)
				return nil
			}
			renderLiveJobs(os.Stdout, jobs)
			return nil
		}

		if !appInstance.HasDatabase() {
			return fmt.Errorf("job history requires database.dsn (DATABASE_URL); use --live to read the queue")
		}
		records, err := appInstance.JobStore.ListJobs(ctx, page.Limit, page.Offset)
		if err != nil {
			return fmt.Errorf("failed to list jobs: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No jobs found.")
			return nil
		}
		renderJobRecords(os.Stdout, records)
		return nil
	},
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <task_id>",
	Short: "Show the state of one conversion job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		job, err := appInstance.TaskQueue.Lookup(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to look up task: %w", err)
		}

		fmt.Printf("Task:  %s\n", job.ID)
		fmt.Printf("State: %s\n", colorState(job.State))
		if job.Info != "" {
			fmt.Printf("Info:  %s\n", job.Info)
		}
		if job.Result != nil {
			b, err := json.MarshalIndent(job.Result, "", "  ")
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			fmt.Printf("Result:\n%s\n", b)
		}
		if !job.State.IsTerminal() {
			fmt.Println("Job has not finished yet.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)

	jobsListCmd.Flags().IntVarP(&jobsListLimit, "limit", "n", 20, "Maximum number of jobs to list")
	jobsListCmd.Flags().IntVarP(&jobsListOffset, "offset", "o", 0, "Number of jobs to skip (history only)")
	jobsListCmd.Flags().BoolVar(&jobsListLive, "live", false, "Read jobs from the queue instead of the history database")
	jobsListCmd.Flags().StringVar(&jobsListState, "state", "pending", "Queue state for --live: pending, active, scheduled, retry, archived, completed")
}

func renderJobRecords(w io.Writer, records []*models.JobRecord) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Job ID", "Filename", "Queue", "Status", "Created At", "Updated At"})
	table.SetBorder(true)
	table.SetRowLine(true)

	for _, r := range records {
		table.Append([]string{
			r.JobID.String(),
			r.Filename,
			r.Queue,
			colorStatus(r.Status),
			r.CreatedAt.Format(time.RFC3339),
			r.UpdatedAt.Format(time.RFC3339),
		})
	}
	table.Render()
}

func renderLiveJobs(w io.Writer, jobs []*models.Job) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Task ID", "State", "Detail"})
	table.SetBorder(true)

	for _, j := range jobs {
		detail := j.Info
		if j.Result != nil {
			if j.Result.IsError() {
				detail = j.Result.Message
			} else {
				detail = fmt.Sprintf("%d file(s)", j.Result.FileCount)
			}
		}
		table.Append([]string{j.ID, colorState(j.State), detail})
	}
	table.Render()
}

func colorState(s models.JobState) string {
	switch s {
	case models.JobStateSuccess:
		return color.GreenString(string(s))
	case models.JobStateFailure:
		return color.RedString(string(s))
	case models.JobStateRetry, models.JobStateRunning:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func colorStatus(status string) string {
	switch status {
	case models.JobStatusCompleted:
		return color.GreenString(status)
	case models.JobStatusFailed:
		return color.RedString(status)
	default:
		return status
	}
}
