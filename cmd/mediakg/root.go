package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/mediakg/internal/config"
	"github.com/aleksaelezovic/mediakg/internal/metrics"
	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
	"github.com/aleksaelezovic/mediakg/pkg/model"
)

// app is the state shared by all subcommands after PersistentPreRunE
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	codec  *model.Codec
}

var (
	green = color.New(color.FgGreen)
	cyan  = color.New(color.FgCyan)
	bold  = color.New(color.Bold)
	dim   = color.New(color.Faint)
)

// NewRootCmd creates the root mediakg command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "mediakg",
		Short:         "mediakg - multimedia knowledge graph store",
		Long:          "mediakg stores facts about media objects as dictionary-encoded quads with similarity and text search.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if show, _ := cmd.Flags().GetBool("metrics"); show && cmd.Name() != "stats" {
				return printMetrics(cmd.ErrOrStderr())
			}
			return nil
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().Bool("no-color", false, "disable colored output")
	root.PersistentFlags().Bool("metrics", false, "print store metrics after the command")

	root.AddCommand(
		newImportCmd(a),
		newExportCmd(a),
		newFilterCmd(a),
		newKNNCmd(a),
		newSearchCmd(a),
		newStatsCmd(a),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		color.NoColor = true
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	a.cfg = cfg
	a.logger = slog.New(handler)
	a.codec = model.NewCodec(cfg.Store.LocalBase)
	return nil
}

func printMetrics(w io.Writer) error {
	samples, err := metrics.Snapshot()
	if err != nil {
		return kgerr.Wrap(err, kgerr.CodeCLISetupFailure, "gathering metrics")
	}
	_, _ = bold.Fprintln(w, "Metrics")
	for _, s := range samples {
		if s.Labels != "" {
			_, _ = dim.Fprintf(w, "  %s{%s} ", s.Name, s.Labels)
		} else {
			_, _ = dim.Fprintf(w, "  %s ", s.Name)
		}
		_, _ = cyan.Fprintf(w, "%g\n", s.Value)
	}
	return nil
}
