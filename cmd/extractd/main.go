// Package main implements the extractd CLI: it runs the extraction
// pipeline over a transcript file and prints the structured result.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/freightmind/extractd/internal/config"
	"github.com/freightmind/extractd/internal/inference"
	"github.com/freightmind/extractd/internal/logging"
	"github.com/freightmind/extractd/internal/orchestrator"
	"github.com/freightmind/extractd/internal/stages"
	"github.com/freightmind/extractd/internal/telemetry"
	"github.com/freightmind/extractd/internal/transcript"
)

var version = "dev"

var (
	configPath     string
	transcriptPath string
	callID         string
	orgID          string
	userID         string
	callType       string
	offline        bool
	pretty         bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "extractd",
	Short: "Multi-stage call transcript extraction for freight brokerages",
	Long: `extractd runs a transcribed broker call through an ordered set of
extraction stages (classification, speakers, loads, rates, carrier and
shipper identity, negotiation resolution, validation) and emits one
confidence-scored extraction result.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/extractd/config.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stagesCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run extraction over a transcript file",
	Long: `Run the full extraction pipeline over a transcript JSON file.

The file carries {"text": string, "utterances": [{"speaker", "text",
"start_ms", "end_ms", "confidence"}]} as produced by the transcription
service.

Examples:
  # Extract a carrier call
  extractd run --transcript call.json --call-id call-77 --org org-9 --user user-3 --call-type carrier

  # Offline smoke test with the stub provider
  extractd run --transcript call.json --call-id c1 --org o1 --user u1 --offline`,
	RunE: runExtraction,
}

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Print the pipeline stages in execution order",
	RunE:  printStages,
}

func init() {
	runCmd.Flags().StringVar(&transcriptPath, "transcript", "", "transcript JSON file (required)")
	runCmd.Flags().StringVar(&callID, "call-id", "", "call identifier (required)")
	runCmd.Flags().StringVar(&orgID, "org", "", "organization identifier (required)")
	runCmd.Flags().StringVar(&userID, "user", "", "user identifier (required)")
	runCmd.Flags().StringVar(&callType, "call-type", "unknown", "call type hint: shipper, carrier, check_call or unknown")
	runCmd.Flags().BoolVar(&offline, "offline", false, "use the deterministic stub provider instead of a live model")
	runCmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON result")
	_ = runCmd.MarkFlagRequired("transcript")
	_ = runCmd.MarkFlagRequired("call-id")
	_ = runCmd.MarkFlagRequired("org")
	_ = runCmd.MarkFlagRequired("user")
}

func runExtraction(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if offline {
		cfg.Inference.Provider = "stub"
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := newLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics := telemetry.NewMetrics()
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn(ctx, "metrics listener stopped", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	client, err := inference.New(cfg.Inference)
	if err != nil {
		return fmt.Errorf("building inference client: %w", err)
	}

	reg, err := stages.NewRegistry(client, stages.Config{
		MaxTokens:         cfg.Inference.MaxTokens,
		ChunkSize:         cfg.Engine.ChunkSize,
		ChunkOverlap:      cfg.Engine.ChunkOverlap,
		CarrierConfidence: cfg.Engine.CarrierConfidence,
	})
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	engine, err := orchestrator.New(reg, orchestrator.Config{
		MaxAttempts:      cfg.Engine.MaxAttempts,
		RetryBaseBackoff: cfg.Engine.RetryBaseBackoff.Duration(),
	},
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithTracer(tel.Tracer("extractd/orchestrator")),
	)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return fmt.Errorf("reading transcript: %w", err)
	}
	tr, err := transcript.ParsePayload(data)
	if err != nil {
		return fmt.Errorf("parsing transcript: %w", err)
	}

	result, err := engine.Run(ctx, tr, transcript.RunMetadata{
		CallID:   callID,
		OrgID:    orgID,
		UserID:   userID,
		CallType: transcript.ParseCallType(callType),
		CallDate: time.Now(),
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if result.Status == orchestrator.RunFailed {
		return fmt.Errorf("extraction failed; see outcomes for details")
	}
	return nil
}

func newLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logCfg.Level = level
	logCfg.Format = cfg.Logging.Format
	if lp := tel.LoggerProvider(); lp != nil {
		logCfg.OTEL = true
	}
	return logging.NewLogger(logCfg, tel.LoggerProvider())
}

func printStages(cmd *cobra.Command, args []string) error {
	reg, err := stages.NewRegistry(inference.NewStubClient(nil), stages.DefaultConfig())
	if err != nil {
		return err
	}
	order, err := reg.ResolveOrder()
	if err != nil {
		return err
	}

	for i, name := range order {
		s, _ := reg.Get(name)
		mode := "best-effort"
		if s.Critical() {
			mode = "critical"
		}
		deps := "none"
		if d := s.Dependencies(); len(d) > 0 {
			deps = fmt.Sprintf("%v", d)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %-16s %-12s deps: %s\n", i+1, name, mode, deps)
	}
	return nil
}
