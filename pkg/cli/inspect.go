package cli

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/renkit/renotize/pkg/checkpoint"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect CHECKPOINT",
	Short: "Print the stages recorded in a checkpoint",
	Long: `Print the input, bundle identifier and per-stage progress recorded in
a full-run checkpoint file, including notarization submission IDs.`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := checkpoint.Load(args[0])
		if err != nil {
			return failure.Wrap(failure.Input, err)
		}
		printState(cmd, state)
		return nil
	},
}

func printState(cmd *cobra.Command, state *checkpoint.State) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Input:     %s\n", state.Input)
	fmt.Fprintf(out, "Bundle ID: %s\n", state.BundleID)
	fmt.Fprintf(out, "Output:    %s\n", state.OutputDir)
	fmt.Fprintf(out, "Updated:   %s\n\n", state.UpdatedAt.Format(time.RFC3339))

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Stage", "Status", "Output", "Submission", "Completed", "Error"})
	table.SetAutoWrapText(false)
	for _, s := range state.Stages {
		completed := ""
		if s.CompletedAt != nil {
			completed = s.CompletedAt.Format(time.RFC3339)
		}
		table.Append([]string{s.Name, s.Status, s.Output, s.SubmissionID, completed, s.Error})
	}
	table.Render()

	if next := state.FirstIncomplete(); next != nil {
		fmt.Fprintf(out, "\nNext stage: %s\n", next.Name)
	} else {
		fmt.Fprintln(out, "\nAll stages complete")
	}
}
