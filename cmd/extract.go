package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tastebase/capture-cli/internal/extract"
	"github.com/tastebase/capture-cli/internal/model"
	"github.com/tastebase/capture-cli/internal/photo"
	"github.com/tastebase/capture-cli/internal/provider"
)

var (
	extractDomain      string
	extractProvider    string
	extractConcurrency int
)

var extractCmd = &cobra.Command{
	Use:   "extract [image]...",
	Short: "Extract structured records from photo files",
	Long:  "Runs provider extraction for one or more photo files and prints one JSON result line per file.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		domain, err := model.ParseDomain(extractDomain)
		if err != nil {
			return err
		}

		env, err := initExtract(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := extractConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Extract.Concurrency
		}

		outcomes := processFiles(ctx, args, concurrency, func(ctx context.Context, path string) (*extract.Result, error) {
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, eris.Wrapf(err, "read %s", path)
			}
			jpeg, info, err := photo.Normalize(raw, env.PhotoOpts)
			if err != nil {
				return nil, err
			}
			img := provider.Image{JPEG: jpeg, Width: info.Width, Height: info.Height}
			return env.Orchestrator.Extract(ctx, img, domain, extractProvider)
		})

		enc := json.NewEncoder(os.Stdout)
		for _, out := range outcomes {
			if err := enc.Encode(out); err != nil {
				return eris.Wrap(err, "encode result")
			}
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractDomain, "domain", "", "record domain: recipe or wine (required)")
	extractCmd.Flags().StringVar(&extractProvider, "provider", "", "provider override (default from config)")
	extractCmd.Flags().IntVar(&extractConcurrency, "concurrency", 0, "max files in flight (default from config)")
	_ = extractCmd.MarkFlagRequired("domain")
	rootCmd.AddCommand(extractCmd)
}

// extractFunc runs one extraction attempt for a photo file.
type extractFunc func(ctx context.Context, path string) (*extract.Result, error)

// fileOutcome is the per-file result line printed by the extract command.
type fileOutcome struct {
	File         string                  `json:"file"`
	Record       *model.StructuredRecord `json:"record,omitempty"`
	Confidence   *model.ConfidenceScore  `json:"confidence,omitempty"`
	Match        *model.MatchResult      `json:"match,omitempty"`
	EntryID      string                  `json:"entry_id,omitempty"`
	FallbackUsed bool                    `json:"fallback_used,omitempty"`
	Enriched     []string                `json:"enriched,omitempty"`
	CostUSD      float64                 `json:"cost_usd"`
	Error        string                  `json:"error,omitempty"`
}

// processFiles extracts every file with at most concurrency in flight and
// returns one outcome per input, input order preserved. Individual failures
// never abort the batch.
func processFiles(ctx context.Context, paths []string, concurrency int, fn extractFunc) []fileOutcome {
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("files", len(paths)),
		zap.Int("concurrency", concurrency),
	)

	outcomes := make([]fileOutcome, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i, path := range paths {
		g.Go(func() error {
			log := zap.L().With(zap.String("file", path))
			out := fileOutcome{File: path}

			res, err := fn(gctx, path)
			if err != nil {
				failed.Add(1)
				out.Error = err.Error()
				log.Error("extraction failed", zap.Error(err))
			} else {
				succeeded.Add(1)
				out.Record = res.Record
				out.Confidence = &res.Confidence
				out.Match = res.Match
				out.EntryID = res.EntryID
				out.FallbackUsed = res.FallbackUsed
				out.Enriched = res.Enriched
				out.CostUSD = res.Metadata.CostUSD
				log.Info("extraction complete",
					zap.String("entry_id", res.EntryID),
					zap.Float64("confidence", res.Confidence.Value),
					zap.Bool("fallback_used", res.FallbackUsed),
				)
			}

			outcomes[i] = out
			return nil
		})
	}

	_ = g.Wait()

	var totalCost float64
	for _, out := range outcomes {
		totalCost += out.CostUSD
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Float64("cost_usd", totalCost),
	)
	return outcomes
}
