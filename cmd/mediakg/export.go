package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/mediakg/internal/tabular"
	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

func newExportCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export [FILE]",
		Short: "Export every quad, to stdout unless a file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := tabular.ParseFormat(format)
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				file, err := os.Create(args[0])
				if err != nil {
					return kgerr.Wrap(err, kgerr.CodeCLIInputInvalid, "creating output", kgerr.FieldPath(args[0]))
				}
				defer func() { _ = file.Close() }()
				out = file
			}
			return writeSet(out, f, a, s)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "tsv", "output format: tsv or csv")
	return cmd
}

func writeSet(w io.Writer, f tabular.Format, a *app, set store.QuadSet) error {
	quads, err := set.Quads()
	if err != nil {
		return err
	}
	return tabular.WriteAll(w, f, a.codec, quads)
}
