package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show quad counts and store metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			primary, err := s.Primary().Len()
			if err != nil {
				return err
			}
			search, err := s.Search().Len()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = bold.Fprintln(out, "Store")
			_, _ = fmt.Fprintf(out, "  primary (%s) ", a.cfg.Primary.Backend)
			_, _ = cyan.Fprintf(out, "%d quads\n", primary)
			_, _ = fmt.Fprintf(out, "  search  (%s) ", a.cfg.Search.Backend)
			_, _ = cyan.Fprintf(out, "%d quads\n", search)
			return printMetrics(out)
		},
	}
}
