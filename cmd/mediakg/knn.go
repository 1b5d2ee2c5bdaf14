package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
	"github.com/aleksaelezovic/mediakg/pkg/model"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

// metricValue adapts store.DistanceMetric to pflag.Value
type metricValue store.DistanceMetric

var _ pflag.Value = (*metricValue)(nil)

func (m *metricValue) String() string { return store.DistanceMetric(*m).String() }
func (m *metricValue) Type() string   { return "metric" }

func (m *metricValue) Set(s string) error {
	metric, err := store.ParseDistanceMetric(s)
	if err != nil {
		return err
	}
	*m = metricValue(metric)
	return nil
}

func newKNNCmd(a *app) *cobra.Command {
	var (
		count  int
		metric = metricValue(store.Cosine)
	)
	cmd := &cobra.Command{
		Use:     "knn PREDICATE VECTOR",
		Short:   "Find the subjects whose vectors are nearest to VECTOR",
		Example: `  mediakg knn "<http://ex.org/embedding>" "[0.1,0.9,0.0]^^DoubleVector" --count 5`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			predicate := a.codec.Parse(args[0])
			query, ok := a.codec.Parse(args[1]).(model.VectorValue)
			if !ok {
				return kgerr.New(kgerr.CodeCLIInputInvalid, "VECTOR is not a vector value", kgerr.Field("value", args[1]))
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			result, err := s.NearestNeighbor(predicate, query, count, store.DistanceMetric(metric))
			if err != nil {
				return err
			}
			quads, err := result.Quads()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(quads) == 0 {
				_, _ = dim.Fprintln(out, "no neighbors")
				return nil
			}
			for i, q := range quads {
				_, _ = fmt.Fprintf(out, "%2d. %s ", i+1, a.codec.Render(q.Subject))
				_, _ = cyan.Fprintf(out, "%s\n", a.codec.Render(q.Object))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "k", 10, "number of neighbors")
	cmd.Flags().Var(&metric, "metric", "distance metric (COSINE)")
	return cmd
}
