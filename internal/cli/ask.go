package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/convoscope/internal/report"
)

func newAskCmd(r *root) *cobra.Command {
	var (
		ids    []string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the stored conversations",
		Long: `Embeds the question, ranks conversations by similarity, filters the
rest for relevance and asks the model for a single grounded answer.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := r.services()
			if err != nil {
				return err
			}
			defer r.close()
			resp, err := svc.Reports.Ask(cmd.Context(), report.Request{
				Question: strings.Join(args, " "),
				IDs:      ids,
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			printReport(cmd, resp)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "conversation ids to focus on")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "only consider the first n conversations (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, resp report.Response) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, heading("Question:"), resp.Question)
	if resp.FilterQuestion != "" {
		fmt.Fprintln(out, faint("Filter question: "+resp.FilterQuestion))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, resp.Answer)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %d conversations (%d highly relevant, %d relevant unselected, %d other), filter stage %s\n",
		heading("Based on"), resp.RelevantDocumentsCount,
		resp.Tiers.HighlyRelevant, resp.Tiers.RelevantUnselected, resp.Tiers.Other,
		resp.FilterStage)
}
