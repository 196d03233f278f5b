package main

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/agentstation/codescope/internal/server"
)

var serveAddr string

// serveCmd runs the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the review API over HTTP",
	Long: `Serve the review API:

  GET  /          service status and model
  GET  /health    liveness check
  POST /evaluate  review {"code": "..."}
  GET  /metrics   Prometheus metrics`,
	Example: `  codescope serve
  codescope serve --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.ListenAddr = serveAddr
		}
		logger := cfg.Logger(cmd.ErrOrStderr())
		logger.Info("configuration loaded", "config", cfg)

		def, err := loadDefinition(cfg.Workflow)
		if err != nil {
			return err
		}
		gen, err := newGenerator(cfg)
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		wf, err := buildWorkflow(cfg, def, gen, logger, reg)
		if err != nil {
			return err
		}

		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := server.New(wf, server.Options{
			Model:         cfg.Model,
			MaxInputBytes: int64(cfg.MaxInputBytes),
			Logger:        logger,
			Registry:      reg,
		})
		return srv.ListenAndServe(cmd.Context(), cfg.ListenAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides CODESCOPE_LISTEN_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
