package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/mediakg/internal/tabular"
	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
	"github.com/aleksaelezovic/mediakg/pkg/model"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		format string
		batch  int
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import quads from a tab or comma separated file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := tabular.ParseFormat(format)
			if err != nil {
				return err
			}
			if batch < 1 {
				return kgerr.Errorf(kgerr.CodeCLIInputInvalid, "--batch must be positive, got %d", batch)
			}

			in, err := os.Open(args[0])
			if err != nil {
				return kgerr.Wrap(err, kgerr.CodeCLIInputInvalid, "opening input", kgerr.FieldPath(args[0]))
			}
			defer func() { _ = in.Close() }()

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			before, err := s.Len()
			if err != nil {
				return err
			}

			r := tabular.NewReader(in, f, a.codec)
			pending := make([]model.Quad, 0, batch)
			read := 0
			flush := func() error {
				if len(pending) == 0 {
					return nil
				}
				if _, err := s.AddAll(pending); err != nil {
					return err
				}
				a.logger.Debug("batch imported", "quads", len(pending), "read", read)
				pending = pending[:0]
				return nil
			}
			for {
				q, err := r.Read()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				read++
				pending = append(pending, q)
				if len(pending) == batch {
					if err := flush(); err != nil {
						return err
					}
				}
			}
			if err := flush(); err != nil {
				return err
			}
			if syncer, ok := s.Primary().(interface{ Sync() error }); ok {
				if err := syncer.Sync(); err != nil {
					return err
				}
			}

			after, err := s.Len()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = green.Fprintf(out, "✓ imported %d new quads", after-before)
			_, _ = fmt.Fprintf(out, " (%d read, %d total)\n", read, after)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "tsv", "input format: tsv or csv")
	cmd.Flags().IntVar(&batch, "batch", 1000, "quads per write batch")
	return cmd
}
