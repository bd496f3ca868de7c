package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/plot/plotter"

	"github.com/Noofbiz/seriesfeed/datasets"
	"github.com/Noofbiz/seriesfeed/simple"
)

func newTrainCmd(opts *rootOptions) *cobra.Command {
	var (
		flags       datasetFlags
		steps       int
		plotDir     string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the MLP on a streamed dataset",
		Example: `  seriesfeed train --config seriesfeed.yaml --steps 500 --plot output`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg := opts.cfg
			flags.apply(cmd, &cfg.Dataset)
			if cmd.Flags().Changed("steps") {
				cfg.Training.Steps = steps
			}
			span := startSpan(cmd, cfg)
			defer func() { endSpan(span, err) }()
			logger := zerolog.Ctx(cmd.Context())
			if metricsAddr != "" {
				serveMetrics(metricsAddr, logger)
			}

			ds, err := openDataset(cfg, logger)
			if err != nil {
				return err
			}
			defer ds.Close()

			model, err := simple.NewModel(simple.Config{
				HiddenSizes:  cfg.Training.HiddenSizes,
				InputDim:     cfg.Dataset.TimeWindow * ds.NumFeatures(),
				LearningRate: cfg.Training.LearningRate,
				Seed:         cfg.Training.Seed,
				LogEvery:     max(cfg.Training.Steps/10, 1),
				Logger:       logger,
			})
			if err != nil {
				return err
			}

			losses, err := model.Train(ds, cfg.Training.Steps)
			if err != nil {
				return err
			}
			span.SetAttributes(attribute.Int("train.steps", len(losses)), attribute.Int("train.epochs", ds.Epoch()))
			if len(losses) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "steps: %d  first loss: %.6g  last loss: %.6g  epochs: %d\n",
					len(losses), losses[0], losses[len(losses)-1], ds.Epoch())
			}

			if plotDir == "" {
				return nil
			}
			labels, preds, err := predictEpoch(ds, model)
			if err != nil {
				return err
			}
			if err := plotPredictions(plotDir, labels, preds); err != nil {
				return err
			}
			if err := plotLoss(plotDir, losses); err != nil {
				return err
			}
			logger.Info().Str("dir", plotDir).Msg("plots written")
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&steps, "steps", 0, "training steps (overrides training.steps)")
	cmd.Flags().StringVar(&plotDir, "plot", "", "directory for label and loss plots")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while training")
	return cmd
}

// predictEpoch rewinds ds and runs the model over one full epoch, indexing
// points by the first row of each example's window.
func predictEpoch(ds *datasets.WindowDataset, model *simple.Model) (labels, preds plotter.XYs, err error) {
	if err := ds.Restart(); err != nil {
		return nil, nil, err
	}
	for {
		b, err := ds.NextBatch()
		if err != nil {
			return nil, nil, err
		}
		p, err := model.PredictBatch(b)
		if err != nil {
			return nil, nil, err
		}
		for i := 0; i < b.Size; i++ {
			x := float64(b.FirstRow) + float64(i)
			labels = append(labels, plotter.XY{X: x, Y: float64(b.Labels[i])})
			preds = append(preds, plotter.XY{X: x, Y: float64(p[i])})
		}
		if b.EndOfEpoch {
			return labels, preds, nil
		}
	}
}
