package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var (
		flags   datasetFlags
		batches int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Pull batches from a dataset and report their shape",
		Example: `  seriesfeed inspect --config seriesfeed.yaml
  seriesfeed inspect --file series.parquet --prediction-column b --batches 20 --debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg := opts.cfg
			flags.apply(cmd, &cfg.Dataset)
			span := startSpan(cmd, cfg)
			defer func() { endSpan(span, err) }()
			logger := zerolog.Ctx(cmd.Context())

			ds, err := openDataset(cfg, logger)
			if err != nil {
				return err
			}
			defer ds.Close()

			n := batches
			if n <= 0 {
				// one full epoch
				bs := cfg.Dataset.BatchSize
				n = (ds.ExamplesPerEpoch() + bs - 1) / bs
			}
			served := 0
			for i := 0; i < n; i++ {
				b, err := ds.NextBatch()
				if err != nil {
					return err
				}
				served += b.Size
				logger.Info().
					Int("batch", i).
					Int("size", b.Size).
					Int64("first_row", b.FirstRow).
					Int("epoch", b.Epoch).
					Bool("end_of_epoch", b.EndOfEpoch).
					Int("buffer_len", ds.BufferLen()).
					Msg("batch")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rows per epoch:     %d\n", ds.TotalRows())
			fmt.Fprintf(out, "examples per epoch: %d\n", ds.ExamplesPerEpoch())
			fmt.Fprintf(out, "window shape:       [%d, %d]\n", cfg.Dataset.TimeWindow, ds.NumFeatures())
			fmt.Fprintf(out, "batches pulled:     %d (%d examples)\n", n, served)
			fmt.Fprintf(out, "max buffered rows:  %d\n", ds.MaxBufferLen())
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&batches, "batches", 0, "batches to pull, 0 for one epoch")
	return cmd
}
