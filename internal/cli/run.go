package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для работы с runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunShowCmd(clientFn, outputFn),
		newRunStepsCmd(clientFn, outputFn),
		newRunLogCmd(clientFn, outputFn),
		newRunCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "STATE", "WORKER", "ERROR", "STARTED", "FINISHED"},
				[][]string{{run.ID, run.State, run.WorkerID, run.ErrorMessage, run.StartedAt, run.FinishedAt}},
				run,
			)
			return nil
		},
	}
}

func newRunStepsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "steps RUN_ID",
		Short: "List steps in a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			steps, err := client.ListRunSteps(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "JOB_ID", "EXIT_REASON", "STARTED", "FINISHED"}
			rows := make([][]string, len(steps))
			for i, s := range steps {
				rows[i] = []string{s.ID, s.JobID, s.ExitReason, s.StartedAt, s.FinishedAt}
			}

			out.Print(headers, rows, steps)
			return nil
		},
	}
}

func newRunLogCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "log RUN_ID",
		Short: "Show the run log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			lines, err := client.GetRunLog(args[0])
			if err != nil {
				return err
			}

			headers := []string{"TIMESTAMP", "STEP_ID", "MESSAGE"}
			rows := make([][]string, len(lines))
			for i, l := range lines {
				rows[i] = []string{l.Timestamp, l.StepID, l.Message}
			}

			out.Print(headers, rows, lines)
			return nil
		},
	}
}

func newRunCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a run that has not started yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.CancelRun(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run cancelled: %s", args[0]))
			return nil
		},
	}
}
