package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgallion1/convoscope/internal/pipeline"
)

func newSummarizeCmd(r *root) *cobra.Command {
	var (
		ids    []string
		limit  int
		save   bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Write a one-line summary for each selected conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("limit must not be negative")
			}
			svc, err := r.services()
			if err != nil {
				return err
			}
			defer r.close()
			docs, err := pipeline.LoadSelection(cmd.Context(), svc.Corpus, ids, limit)
			if err != nil {
				return err
			}
			results, err := svc.Summarizer.Run(cmd.Context(), docs, save)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			out := cmd.OutOrStdout()
			updated := 0
			for _, res := range results {
				fmt.Fprintf(out, "%s %s\n", heading(res.DocID), res.Summary)
				if res.WasUpdated {
					updated++
				}
			}
			if save {
				fmt.Fprintln(out, success(fmt.Sprintf("%d of %d summaries updated", updated, len(results))))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "conversation ids to summarize")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "summarize the first n conversations when no ids are given (0 for all)")
	cmd.Flags().BoolVar(&save, "save", false, "store the summaries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func newEmbedCmd(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "embed",
		Short: "Compute and store an embedding for every conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := r.services()
			if err != nil {
				return err
			}
			defer r.close()
			sum, err := svc.Embedder.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d of %d conversations", success("embedded"), sum.Embedded, sum.Documents)
			if sum.Skipped > 0 {
				fmt.Fprint(cmd.OutOrStdout(), warning(fmt.Sprintf(" (%d empty, skipped)", sum.Skipped)))
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func newProjectCmd(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "project",
		Short: "Recompute the 2-D map coordinates from stored embeddings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := r.services()
			if err != nil {
				return err
			}
			defer r.close()
			sum, err := svc.Projector.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d conversations from %d dimensions", success("projected"), sum.Projected, sum.Dimensions)
			if sum.Skipped > 0 {
				fmt.Fprint(cmd.OutOrStdout(), warning(fmt.Sprintf(" (%d skipped)", sum.Skipped)))
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}
