package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arcadehq/listing-harvester/internal/app"
	"github.com/arcadehq/listing-harvester/internal/dedupe"
	"github.com/arcadehq/listing-harvester/internal/harvest"
	"github.com/arcadehq/listing-harvester/internal/logging"
	"github.com/arcadehq/listing-harvester/internal/orchestrator"
	"github.com/arcadehq/listing-harvester/internal/progress"
	"github.com/arcadehq/listing-harvester/internal/report"
	"github.com/arcadehq/listing-harvester/internal/sources"
)

// flushTimeout bounds persistence and publishing after the run context is
// gone, so an interrupt still leaves complete output files behind.
const flushTimeout = 30 * time.Second

// newCollectCmd creates the 'collect' subcommand, which executes one full
// harvest run: every enabled source is fetched, the records merged and
// deduplicated, and the outputs written.
func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Runs every enabled source and writes the merged game list",
		Long: `Fetches every enabled source concurrently, merges and deduplicates
the discovered records, and writes the JSON and CSV outputs. An
interrupt stops fetching but still persists everything collected so
far before the command exits non-zero.`,
		RunE: runCollect,
	}
}

func runCollect(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := a.Cfg
	logger := a.Logger

	runID, err := a.IDs.NewRawID()
	if err != nil {
		return fmt.Errorf("allocate run id: %w", err)
	}

	srcs, err := sources.Build(cfg.Sources, logging.Named(logger, "sources"))
	if err != nil {
		return fmt.Errorf("build sources: %w", err)
	}
	if len(srcs) == 0 {
		return errors.New("no sources enabled")
	}

	logger.Info("run starting",
		zap.String("run_id", runID.String()),
		zap.Int("sources", len(srcs)),
		zap.Int("workers", cfg.Run.MaxConcurrency))

	started := a.Clock.Now()
	a.Hub.Emit(progress.Event{
		RunID: progress.UUIDToBytes(runID),
		TS:    started,
		Stage: progress.StageRunStart,
	})

	orch := orchestrator.New(orchestrator.Config{
		Workers:       cfg.Run.MaxConcurrency,
		SourceTimeout: cfg.Run.PerSourceTimeout,
	}, progress.ObserveEngine(a.Engine, a.Hub, runID), a.Clock, logging.Named(logger, "orchestrator"))
	for _, src := range srcs {
		orch.Register(progress.ObserveSource(src, a.Hub, runID))
	}

	results, runErr := orch.Run(cmd.Context())

	merged := len(results.Records)
	records := dedupe.Records(results.Records)
	duplicates := merged - len(records)
	finished := a.Clock.Now()

	// The command context may already be canceled; persistence gets its own
	// deadline so partial results survive an interrupt.
	flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	resultsURI, err := persistResults(flushCtx, a, runID.String(), records, results.Stats, finished)
	if err != nil {
		emitRunEnd(a, runID, started, finished, len(records), err)
		return err
	}

	summary := report.Summarize(records, results.Stats, cfg.Sources.Order, duplicates, finished)
	fmt.Fprint(cmd.OutOrStdout(), summary.Render())

	publishSummary(flushCtx, a, runID.String(), summary, started, finished, resultsURI)

	emitRunEnd(a, runID, started, finished, len(records), runErr)
	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}

	logger.Info("run complete",
		zap.String("run_id", runID.String()),
		zap.Int("records", len(records)),
		zap.Int("duplicates", duplicates),
		zap.Duration("duration", finished.Sub(started)))
	return nil
}

// persistResults writes the run outputs: the JSON results document, the CSV
// summary, the optional blob upload of the results document, and the catalog
// batch. Upload failures only warn; the local files remain authoritative.
func persistResults(
	ctx context.Context,
	a *app.App,
	runID string,
	records []harvest.GameRecord,
	stats map[string]harvest.SourceStats,
	now time.Time,
) (string, error) {
	cfg := a.Cfg

	if cfg.Output.ResultsPath != "" {
		if err := report.WriteJSON(cfg.Output.ResultsPath, records, stats, now); err != nil {
			return "", fmt.Errorf("write results: %w", err)
		}
		a.Logger.Info("results written",
			zap.String("path", cfg.Output.ResultsPath),
			zap.Int("records", len(records)))
	}
	if cfg.Output.SummaryCSV != "" {
		if err := report.WriteCSV(cfg.Output.SummaryCSV, records); err != nil {
			return "", fmt.Errorf("write summary csv: %w", err)
		}
	}

	var resultsURI string
	if cfg.Archive.UploadResults && a.Blobs != nil && cfg.Output.ResultsPath != "" {
		data, err := os.ReadFile(cfg.Output.ResultsPath)
		if err != nil {
			a.Logger.Warn("read results for upload failed", zap.Error(err))
		} else {
			key := fmt.Sprintf("%s.json", runID)
			if prefix := strings.Trim(cfg.Archive.ResultsPrefix, "/"); prefix != "" {
				key = prefix + "/" + key
			}
			uri, err := a.Blobs.PutObject(ctx, key, "application/json", bytes.NewReader(data))
			if err != nil {
				a.Logger.Warn("upload results failed", zap.Error(err))
			} else {
				resultsURI = uri
				a.Logger.Info("results uploaded", zap.String("uri", uri))
			}
		}
	}

	if err := a.Catalog.StoreBatch(ctx, runID, records); err != nil {
		return resultsURI, fmt.Errorf("store catalog batch: %w", err)
	}
	return resultsURI, nil
}

// publishSummary pushes the compact run summary to the configured publisher.
// Failures only warn; the summary is advisory fanout, not run output.
func publishSummary(
	ctx context.Context,
	a *app.App,
	runID string,
	summary report.Summary,
	started, finished time.Time,
	resultsURI string,
) {
	payload := map[string]any{
		"run_id":      runID,
		"total_games": summary.Total,
		"with_embed":  summary.WithEmbed,
		"duplicates":  summary.Duplicates,
		"sources":     summary.Sources,
		"started_at":  started.UTC(),
		"finished_at": finished.UTC(),
	}
	if resultsURI != "" {
		payload["results_uri"] = resultsURI
	}

	msgID, err := a.Publisher.Publish(ctx, a.Cfg.Publisher.Topic, payload)
	if err != nil {
		a.Logger.Warn("publish run summary failed", zap.Error(err))
		return
	}
	if msgID != "" {
		a.Logger.Info("run summary published", zap.String("message_id", msgID))
	}
}

func emitRunEnd(a *app.App, runID uuid.UUID, started, finished time.Time, records int, runErr error) {
	evt := progress.Event{
		RunID:   progress.UUIDToBytes(runID),
		TS:      finished,
		Stage:   progress.StageRunDone,
		Records: int64(records),
		Dur:     finished.Sub(started),
	}
	if runErr != nil {
		evt.Stage = progress.StageRunError
		evt.Note = runErr.Error()
	}
	a.Hub.Emit(evt)
}
