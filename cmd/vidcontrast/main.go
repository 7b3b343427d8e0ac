package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keagan/vidcontrast/internal/config"
	"github.com/keagan/vidcontrast/internal/logging"
	"github.com/keagan/vidcontrast/internal/pipeline"
	"github.com/keagan/vidcontrast/internal/server"
	"github.com/keagan/vidcontrast/internal/source"
	"github.com/keagan/vidcontrast/internal/version"
	"github.com/keagan/vidcontrast/internal/watcher"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	cfgFile string
	verbose bool

	inputVideo string
	outputSRT  string
	decoder    string
	contrast   string

	serveHost string
	servePort int
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		if source.IsOpenError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "vidcontrast",
	Short:        "vidcontrast - perceptual video metrics as subtitles",
	Long:         "Measures contrast, lightness, brightness, color count and temperature for every distinct instant of a video and writes them as SubRip cues.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			logging.Init(logging.Options{Verbose: verbose})
			return err
		}

		logging.Init(logging.Options{
			Level:   cfg.Log.Level,
			Format:  cfg.Log.Format,
			Verbose: verbose,
		})

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./vidcontrast.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	analyzeCmd.Flags().StringVarP(&inputVideo, "input-video", "i", "", "video to analyze")
	analyzeCmd.Flags().StringVarP(&outputSRT, "output-srt", "o", "", "subtitle file to write")
	analyzeCmd.Flags().StringVar(&decoder, "decoder", "", "decoder backend (ffmpeg, mpeg, opencv)")
	analyzeCmd.Flags().StringVar(&contrast, "contrast", "", "contrast strategy (stddev, local)")
	_ = analyzeCmd.MarkFlagRequired("input-video")
	_ = analyzeCmd.MarkFlagRequired("output-srt")

	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")

	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Write the metric report of one video",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context()).Clone()
		if decoder != "" {
			cfg.Decoder.Backend = decoder
		}
		if contrast != "" {
			cfg.Metrics.Contrast = contrast
		}

		pipe, err := pipeline.New(logging.WithComponent("pipeline"), cfg)
		if err != nil {
			return err
		}

		if err := pipe.Analyze(cmd.Context(), inputVideo, outputSRT); err != nil {
			log.Error().Err(err).Str("input", inputVideo).Msg("analysis failed")
			return err
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context()).Clone()
		if serveHost != "" {
			cfg.Server.Host = serveHost
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		srv := server.New(logging.WithComponent("server"), cfg, pipeline.Runner(logging.WithComponent("pipeline")))
		return srv.ListenAndServe(cmd.Context())
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Analyze videos announced on the object queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)
		if err := cfg.Validate(); err != nil {
			return err
		}

		queue, err := watcher.NewRedisQueue(ctx, cfg.Watcher.RedisURL, cfg.Watcher.QueueKey, cfg.Watcher.ProcessingKey)
		if err != nil {
			return err
		}
		defer queue.Close()

		store, err := watcher.NewGCSStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		notifier, err := watcher.NewNotifier(ctx, logging.WithComponent("mqtt"), cfg.MQTT)
		if err != nil {
			return err
		}
		defer notifier.Close()

		logger := logging.WithComponent("watcher")
		handler := watcher.NewHandler(logger, cfg, store, pipeline.Runner(logging.WithComponent("pipeline")))
		worker := watcher.NewWorker(logger, queue, handler, notifier, cfg.Watcher.PollInterval)
		worker.Start(ctx)

		<-ctx.Done()
		logger.Info().Msg("shutting down watcher")
		worker.Stop()

		counts := worker.Counts()
		logger.Info().
			Uint64("processed", counts.Processed).
			Uint64("failed", counts.Failed).
			Msg("watcher stopped")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(config.FromContext(cmd.Context()))
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vidcontrast %s (decoders: %v)\n", version.Version, source.Backends())
	},
}
