package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dgallion1/convoscope/internal/importer"
)

func newImportCmd(r *root) *cobra.Command {
	var meta importer.Meta
	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Import transcripts from text, markdown, csv, html, pdf, docx or json files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if !importer.IsSupportedExtension(path) {
					return fmt.Errorf("%s: unsupported file type %q", path, filepath.Ext(path))
				}
			}
			svc, err := r.services()
			if err != nil {
				return err
			}
			defer r.close()
			out := cmd.OutOrStdout()
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				doc, err := importer.Import(f, filepath.Base(path), meta, svc.Import)
				f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := svc.Corpus.Save(cmd.Context(), doc); err != nil {
					return fmt.Errorf("%s: save: %w", path, err)
				}
				fmt.Fprintf(out, "%s %s %s\n", success("imported"), doc.ID, faint(fmt.Sprintf("(%d messages)", len(doc.Messages))))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&meta.Model, "model", "", "model that produced the conversations")
	cmd.Flags().StringVar(&meta.Language, "language", "", "conversation language")
	return cmd
}
