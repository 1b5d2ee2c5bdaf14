package main

import (
	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/mediakg/internal/tabular"
	"github.com/aleksaelezovic/mediakg/pkg/model"
)

func newSearchCmd(a *app) *cobra.Command {
	var predicate, format string
	cmd := &cobra.Command{
		Use:   "search TEXT",
		Short: "Print quads whose string object contains every word of TEXT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := tabular.ParseFormat(format)
			if err != nil {
				return err
			}
			var p model.Value
			if predicate != "" {
				p = a.codec.Parse(predicate)
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			result, err := s.TextFilter(p, args[0])
			if err != nil {
				return err
			}
			return writeSet(cmd.OutOrStdout(), f, a, result)
		},
	}
	cmd.Flags().StringVarP(&predicate, "predicate", "p", "", "only match quads with this predicate")
	cmd.Flags().StringVarP(&format, "format", "f", "tsv", "output format: tsv or csv")
	return cmd
}
