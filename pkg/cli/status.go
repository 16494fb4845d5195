package cli

import (
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/notarize"
	"github.com/renkit/renotize/pkg/pipe"
	"github.com/renkit/renotize/pkg/pipeline"
	"github.com/renkit/renotize/pkg/validate"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var statusCmd = &cobra.Command{
	Use:   "status -u UUID [-u UUID...]",
	Short: "Show the notarization status of submissions",
	Long: `Query the notary service for one or more submissions and print their
status together with the developer log URL of rejected ones. With --wait
each submission is polled until the service reaches a verdict.`,
	Args: exactArgs(0),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ids, _ := cmd.Flags().GetStringArray("uuid")
	if len(ids) == 0 {
		return failure.New(failure.Input, "at least one submission ID (-u) is required")
	}
	for _, id := range ids {
		if err := validate.SubmissionID(id, "-u"); err != nil {
			return failure.Wrap(failure.Input, err)
		}
	}
	wait, _ := cmd.Flags().GetBool("wait")

	ctx, err := newContext(cmd)
	if err != nil {
		return err
	}
	applyAPIKeyFlags(cmd, ctx.Config, "api-key")
	if err := pipeline.Run(ctx, pipe.CredentialPipes()); err != nil {
		return err
	}

	svc, err := ctx.NotaryService()
	if err != nil {
		return err
	}
	poller, err := ctx.Poller(svc)
	if err != nil {
		return err
	}

	statuses := make([]notarize.Status, len(ids))
	g, gctx := errgroup.WithContext(ctx.StdCtx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			var err error
			if wait {
				statuses[i], err = poller.AwaitVerdict(gctx, id, time.Time{})
			} else {
				statuses[i], err = poller.Query(gctx, id)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Submission", "Status", "Developer log"})
	table.SetAutoWrapText(false)
	for _, s := range statuses {
		table.Append([]string{s.SubmissionID, s.State.String(), s.LogURL})
	}
	table.Render()

	for _, s := range statuses {
		if s.State == notarize.Rejected {
			return notarize.RejectionError(s)
		}
	}
	return nil
}
