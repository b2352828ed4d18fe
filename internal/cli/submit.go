package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewSubmitCmd создаёт команду отправки события в webhook-триггер.
func NewSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var bodyJSON string
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "submit TRIGGER_ID",
		Short: "Submit an event to a webhook trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			body, err := readSubmitBody(bodyJSON, fromStdin)
			if err != nil {
				return err
			}

			result, err := client.Submit(args[0], body)
			if err != nil {
				return err
			}

			out.Print(
				[]string{"WORK_ORDER_ID", "RUN_ID"},
				[][]string{{result.WorkOrderID, result.RunID}},
				result,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&bodyJSON, "body", "", "Event body as a JSON object")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the event body from stdin")

	return cmd
}

func readSubmitBody(bodyJSON string, fromStdin bool) (map[string]any, error) {
	var raw []byte
	switch {
	case fromStdin:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = data
	case bodyJSON != "":
		raw = []byte(bodyJSON)
	default:
		return nil, nil
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("parse body: %w", err)
	}
	return body, nil
}
