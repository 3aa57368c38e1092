// Embedpool serves pooled embedding, sparse, image and rerank models.
//
// Usage:
//
//	# Serve the configured model over HTTP
//	embedpool serve
//
//	# One-shot embeddings without a server
//	embedpool embed "hello world"
//	embedpool rerank --query "go pools" doc1.txt doc2.txt
//
// Configuration is read from ~/.config/embedpool/config.yaml and EMBEDPOOL_*
// environment variables. A .env file in the working directory is loaded
// first.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/embedpool/internal/config"
	"github.com/fyrsmithlabs/embedpool/internal/logging"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by subcommands.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "embedpool",
		Short: "Pooled embedding, sparse, image and rerank models",
		Long: `embedpool keeps a bounded pool of model instances and serves them over
HTTP or from the command line.

All models run in-process on ONNX Runtime. Sparse and rerank models can
instead be served by a Text Embeddings Inference server (model.endpoint),
which must report the configured model.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ~/.config/embedpool/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: json or console")

	root.AddCommand(
		newServeCmd(a),
		newEmbedCmd(a),
		newSparseCmd(a),
		newImageCmd(a),
		newRerankCmd(a),
		newModelsCmd(a),
		newInitCmd(a),
		newHealthCmd(a),
		newTopCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and builds the logger. Logs go to stderr so
// command output on stdout stays machine readable.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}

	lc, err := logging.FromConfig(cfg.Logging)
	if err != nil {
		return err
	}
	lc.Writer = os.Stderr
	lc.OTEL = cfg.Observability.EnableTelemetry
	if cmd.Name() != "serve" {
		lc.Sampling.Enabled = false
	}

	logger, err := logging.NewLogger(lc, global.GetLoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// zap returns the underlying logger for libraries that take a *zap.Logger.
func (a *app) zap() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger.Underlying()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// Skip config loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("embedpool by Fyrsmith Labs\n")
			cmd.Printf("Version:    %s\n", version)
			cmd.Printf("Commit:     %s\n", gitCommit)
			cmd.Printf("Build Date: %s\n", buildDate)
		},
	}
}

// writeOutput encodes v as json or yaml.
func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}
