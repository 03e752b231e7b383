package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/mythwright/nexus-config-backup/pkg/engine"
	"github.com/mythwright/nexus-config-backup/pkg/metrics"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
)

// cronLogger adapts plog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	plog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	plog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

func newScheduleCommand(opts *globalOptions) *cobra.Command {
	var (
		source      string
		spec        string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run backup and cleanup on a cron schedule until interrupted",
		Long: `schedule runs a backup followed by a cleanup every time the cron expression fires.
Settings are re-read on every run, so edits to the settings file apply to the next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := resolveSource(source)
			if err != nil {
				return err
			}
			// Fail early on a broken settings file.
			if _, err := opts.loadConfig(); err != nil {
				return err
			}
			return runSchedule(cmd.Context(), opts, src, spec, metricsAddr)
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "Folder to back up")
	cmd.Flags().StringVar(&spec, "cron", "@daily", "Cron expression (standard five fields or a descriptor such as @hourly)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

func runSchedule(ctx context.Context, opts *globalOptions, source, spec, metricsAddr string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return err
	}

	runMetrics := metrics.NewRunMetrics()
	e := engine.New(engine.Options{Metrics: runMetrics})
	defer e.Close()

	job := func() {
		cfg, err := opts.loadConfig()
		if err != nil {
			plog.Error("Skipping scheduled run, settings are invalid", "error", err)
			return
		}
		if _, err := e.RunBackup(ctx, cfg, source); err != nil {
			plog.Error("Scheduled backup failed", "error", err)
		}
		if _, err := e.CleanupOldBackups(ctx, cfg); err != nil {
			plog.Error("Scheduled cleanup failed", "error", err)
		}
		runMetrics.Log()
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, job); err != nil {
		return err
	}

	var srv *http.Server
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(runMetrics)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				plog.Error("Metrics server stopped", "error", err)
			}
		}()
		plog.Info("Serving metrics", "addr", metricsAddr)
	}

	c.Start()
	plog.Info("Scheduler started", "cron", spec, "source", source)

	<-ctx.Done()
	plog.Info("Stopping scheduler")
	<-c.Stop().Done()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			plog.Warn("Metrics server shutdown failed", "error", err)
		}
	}
	return nil
}
