package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/nozo-moto/tcpcount/internal/collector"
	"github.com/nozo-moto/tcpcount/internal/config"
	"github.com/nozo-moto/tcpcount/internal/logging"
	"github.com/nozo-moto/tcpcount/internal/metrics"
	"github.com/nozo-moto/tcpcount/internal/notice"
	"github.com/nozo-moto/tcpcount/internal/tracker"
	"github.com/nozo-moto/tcpcount/internal/ui"
)

func newRootCommand() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)

	var cfgFile string
	cmd := &cobra.Command{
		Use:   "tcpcount",
		Short: "Count TCP connections per process and remote host",
		Long: `tcpcount polls the TCP socket table and keeps active, total and peak
connection counts per remote host, per process and per process and host pair.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/tcpcount/config.yaml)")
	if err := config.BindFlags(v, cmd); err != nil {
		panic(err)
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &config.Error{Key: "flags", Err: err}
	})
	return cmd
}

// exitCode is 2 for configuration errors and 1 for anything else.
func exitCode(err error) int {
	var cerr *config.Error
	if errors.As(err, &cerr) {
		return 2
	}
	return 1
}

func run(ctx context.Context, cfg *config.Config) error {
	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return errors.Wrap(err, "failed to set up logging")
	}
	defer closeLog()

	log.Infof("starting: filter=[%s] interval=%s refresh=%s history=%d resolve=%t metrics=%q config=%q",
		cfg.Filter, cfg.Interval, cfg.Refresh, cfg.HistorySize, cfg.Resolve, cfg.MetricsAddr, cfg.File)

	procs := collector.NewProcessCollector(0)
	var hosts collector.HostLookup
	if cfg.Resolve {
		resolver := collector.NewHostResolver(collector.ResolverOptions{Logger: log})
		defer resolver.Close()
		hosts = resolver
	}

	monitor := metrics.New()
	engine := tracker.NewEngine(collector.NewNetworkCollector(procs, hosts), tracker.Options{
		Interval:    cfg.Interval,
		HistorySize: cfg.HistorySize,
		Filter:      cfg.Filter,
		Logger:      log,
		Notices:     notice.NewBoard(32),
		Recorder:    monitor,
		Prober:      procs,
	})
	dashboard := ui.NewDashboard(engine, ui.Options{Refresh: cfg.Refresh, Logger: log})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Run(gctx)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return monitor.Serve(gctx, cfg.MetricsAddr, log)
		})
	}
	g.Go(func() error {
		// quitting the dashboard stops everything else
		defer cancel()
		return dashboard.Run(gctx)
	})

	err = g.Wait()
	if err != nil {
		log.Errorf("stopped: %v", err)
	} else {
		log.Info("stopped")
	}
	return err
}
