// Package main provides the compliscan binary entry point.
// Compliscan analyzes PDF policy documents against regulatory control
// frameworks and persists positioned compliance annotations.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/veridoc/compliscan/llm/providers"

	"github.com/veridoc/compliscan/analysis"
	"github.com/veridoc/compliscan/api"
	"github.com/veridoc/compliscan/config"
	"github.com/veridoc/compliscan/controls"
	"github.com/veridoc/compliscan/llm"
	"github.com/veridoc/compliscan/metrics"
	"github.com/veridoc/compliscan/storage"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "compliscan"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "compliscan",
		Short: "Compliance document analyzer",
		Long: `Compliscan extracts text blocks from PDF policy documents, checks
them against a regulatory framework's controls using an LLM, and places
severity-scored annotations back onto page coordinates.

Supported frameworks: GDPR, SOC2, HIPAA.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(logLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(&configPath))
	cmd.AddCommand(analyzeCmd(&configPath))
	cmd.AddCommand(controlsCmd(&configPath))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func configureLogging(logLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return config.NewLoader(slog.Default()).Load()
}

// app bundles the wired-up runtime pieces shared by serve and analyze.
type app struct {
	cfg      *config.Config
	store    *storage.Store
	controls *controls.FileRepository
	analyzer *analysis.Analyzer
	metrics  *metrics.Metrics
	nc       *nats.Conn
}

func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	nc, err := nats.Connect(cfg.NATS.URL, nats.Name(appName))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	store, err := storage.NewStore(ctx, js)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create store: %w", err)
	}

	repo, err := controls.NewFileRepository(cfg.Controls.Dir, cfg.Controls.Pattern, slog.Default())
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("load controls from %s: %w", cfg.Controls.Dir, err)
	}

	client := llm.NewClient(llm.Endpoint{
		Provider: cfg.Model.Provider,
		BaseURL:  cfg.Model.Endpoint,
		Model:    cfg.Model.Name,
	}, llm.WithTimeout(cfg.Model.Timeout))

	m := metrics.New(nil)
	analyzer, err := analysis.NewAnalyzer(analysis.Deps{
		Documents:   store,
		Blobs:       store,
		Controls:    repo,
		Annotations: store,
		Cache:       store,
		Status:      store,
		Model:       client,
	}, cfg.Analysis,
		analysis.WithLogger(slog.Default()),
		analysis.WithMetrics(m),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create analyzer: %w", err)
	}

	return &app{
		cfg:      cfg,
		store:    store,
		controls: repo,
		analyzer: analyzer,
		metrics:  m,
		nc:       nc,
	}, nil
}

func (a *app) close() {
	a.nc.Close()
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP analysis API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Controls.Watch {
				watcher, err := controls.NewWatcher(a.controls, slog.Default())
				if err != nil {
					slog.Warn("controls hot-reload unavailable", "error", err)
				} else {
					defer watcher.Close()
					go watcher.Run(ctx)
				}
			}

			mux := http.NewServeMux()
			api.NewServer(a.analyzer, a.store, slog.Default()).RegisterHTTPHandlers(mux)

			srv := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("compliscan API listening", "addr", a.cfg.Server.Addr, "version", Version)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				slog.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}

func analyzeCmd(configPath *string) *cobra.Command {
	var (
		documentID string
		pdfPath    string
		framework  string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one document against a framework",
		Long: `Analyze runs a single compliance check and prints the result as JSON.

Pass --document-id for an already-uploaded document, or --file to upload
a local PDF first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if documentID == "" && pdfPath == "" {
				return fmt.Errorf("either --document-id or --file is required")
			}

			a, err := buildApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if documentID == "" {
				pdfBytes, err := os.ReadFile(pdfPath)
				if err != nil {
					return fmt.Errorf("read %s: %w", pdfPath, err)
				}
				doc, err := a.store.CreateDocument(ctx, filepath.Base(pdfPath), pdfBytes)
				if err != nil {
					return fmt.Errorf("upload document: %w", err)
				}
				documentID = doc.ID
				slog.Info("document uploaded", "document_id", documentID)
			}

			res := a.analyzer.Analyze(ctx, analysis.Request{
				DocumentID:      documentID,
				FrameworkID:     framework,
				ForceReanalysis: force,
			})

			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			fmt.Println(string(out))

			if !res.Success {
				return fmt.Errorf("analysis failed: %s", res.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&documentID, "document-id", "", "ID of an already-uploaded document")
	cmd.Flags().StringVar(&pdfPath, "file", "", "Local PDF to upload and analyze")
	cmd.Flags().StringVar(&framework, "framework", "GDPR", "Framework to check against (GDPR, SOC2, HIPAA)")
	cmd.Flags().BoolVar(&force, "force", false, "Bypass the analysis cache")

	return cmd
}

func controlsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "controls",
		Short: "Inspect the loaded control frameworks",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List controls per framework",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			repo, err := controls.NewFileRepository(cfg.Controls.Dir, cfg.Controls.Pattern, slog.Default())
			if err != nil {
				return fmt.Errorf("load controls: %w", err)
			}

			for _, fw := range controls.Frameworks() {
				ctrls, err := repo.ListControls(cmd.Context(), fw)
				if err != nil {
					fmt.Printf("%s: no controls loaded\n", fw)
					continue
				}
				fmt.Printf("%s: %d control(s)\n", fw, len(ctrls))
				for _, c := range ctrls {
					fmt.Printf("  [%s] (%s, %s) %s\n", c.ControlID, c.Severity, c.Category, c.Requirement)
				}
			}
			return nil
		},
	})

	return cmd
}
