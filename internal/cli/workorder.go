package cli

import (
	"github.com/spf13/cobra"
)

// NewWorkOrderCmd создаёт группу команд для работы с work orders.
func NewWorkOrderCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workorder",
		Aliases: []string{"wo"},
		Short:   "Manage work orders",
	}

	cmd.AddCommand(
		newWorkOrderListCmd(clientFn, outputFn),
		newWorkOrderShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkOrderListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var workflowID string
	var state string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			orders, err := client.ListWorkOrders(ListWorkOrdersOpts{
				WorkflowID: workflowID,
				State:      state,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "WORKFLOW_ID", "STATE", "INSERTED"}
			rows := make([][]string, len(orders))
			for i, wo := range orders {
				rows[i] = []string{wo.ID, wo.WorkflowID, wo.State, wo.InsertedAt}
			}

			out.Print(headers, rows, orders)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Filter by workflow ID")
	cmd.Flags().StringVar(&state, "state", "", "Filter by state (pending, running, success, failed, ...)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newWorkOrderShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show work order details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			detail, err := client.GetWorkOrder(args[0])
			if err != nil {
				return err
			}

			runID, runState := "", ""
			if detail.Run != nil {
				runID, runState = detail.Run.ID, detail.Run.State
			}
			out.Print(
				[]string{"ID", "WORKFLOW_ID", "STATE", "RUN_ID", "RUN_STATE", "INSERTED"},
				[][]string{{detail.ID, detail.WorkflowID, detail.State, runID, runState, detail.InsertedAt}},
				detail,
			)
			return nil
		},
	}
}
