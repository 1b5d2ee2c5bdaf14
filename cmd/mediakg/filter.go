package main

import (
	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/mediakg/internal/tabular"
	"github.com/aleksaelezovic/mediakg/pkg/model"
)

func newFilterCmd(a *app) *cobra.Command {
	var (
		subjects, predicates, objects []string
		format                        string
	)
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Print quads matching the given positions",
		Long: `Print quads matching the given positions. Each flag may be repeated;
a quad matches when every given position holds one of the listed values.
Values use the same form as import files, e.g. "<http://ex.org/a>" or "7^^Long".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := tabular.ParseFormat(format)
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			flags := cmd.Flags()
			result, err := s.Filter(
				a.values(subjects, flags.Changed("subject")),
				a.values(predicates, flags.Changed("predicate")),
				a.values(objects, flags.Changed("object")),
			)
			if err != nil {
				return err
			}
			return writeSet(cmd.OutOrStdout(), f, a, result)
		},
	}
	cmd.Flags().StringArrayVarP(&subjects, "subject", "s", nil, "subject value (repeatable)")
	cmd.Flags().StringArrayVarP(&predicates, "predicate", "p", nil, "predicate value (repeatable)")
	cmd.Flags().StringArrayVarP(&objects, "object", "o", nil, "object value (repeatable)")
	cmd.Flags().StringVarP(&format, "format", "f", "tsv", "output format: tsv or csv")
	return cmd
}

// values parses flag values. An unset flag leaves the position unconstrained.
func (a *app) values(texts []string, set bool) []model.Value {
	if !set {
		return nil
	}
	out := make([]model.Value, 0, len(texts))
	for _, t := range texts {
		out = append(out, a.codec.Parse(t))
	}
	return out
}
