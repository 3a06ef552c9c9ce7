// Command socest estimates battery state of charge from telemetry.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	soc "github.com/milosgajdos/go-soc"
	"github.com/milosgajdos/go-soc/cache"
	"github.com/milosgajdos/go-soc/config"
	"github.com/milosgajdos/go-soc/fusion"
	"github.com/milosgajdos/go-soc/internal/logging"
	"github.com/milosgajdos/go-soc/metrics"
	"github.com/milosgajdos/go-soc/observe"
	"github.com/milosgajdos/go-soc/sim"
	"github.com/milosgajdos/go-soc/source/influx"
	"github.com/milosgajdos/go-soc/telemetry"
)

const pingTimeout = 10 * time.Second

var version = "No version provided"

type argSpec struct {
	Config     string `arg:"-c, --config" help:"Path to config file (toml, yaml or json)"`
	Device     string `arg:"-d, --device" help:"Device identifier"`
	Start      string `arg:"--start" help:"Range start, e.g. -7d or RFC3339 time"`
	Stop       string `arg:"--stop" help:"Range stop, e.g. now()"`
	Resolution string `arg:"--resolution" help:"Downsampling window, e.g. 5s"`
	Labels     bool   `arg:"--labels" help:"Seed the estimate from SOC labels when available"`
	Synthetic  bool   `arg:"--synthetic" help:"Estimate synthetic discharge instead of querying InfluxDB"`
	Backend    string `arg:"--backend" help:"Observation model backend (gru, double)"`
	PlotDir    string `arg:"--plot-dir" help:"Directory to save SOC and voltage plots into"`
	Output     string `arg:"-o, --output" help:"Write JSON result to this file instead of stdout"`
	Metrics    string `arg:"--metrics-addr" help:"Expose Prometheus metrics on this address"`
	LogLevel   string `arg:"-l, --log-level" help:"Set the logging level (debug, info, warn, error)"`
}

func (argSpec) Version() string {
	return version
}

func procArgs() argSpec {
	var args argSpec
	arg.MustParse(&args)
	return args
}

func main() {
	if err := runMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMain() error {
	args := procArgs()

	c, err := config.Load(args.Config)
	if err != nil {
		return err
	}
	if args.LogLevel != "" {
		c.Log.Level = args.LogLevel
	}
	if args.Backend != "" {
		c.Model.Backend = args.Backend
	}
	if args.Metrics != "" {
		c.Metrics.Addr = args.Metrics
	}

	logger := logging.New(c.LogConfig())
	slog.SetDefault(logger)
	logger.Info("running version", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if c.Metrics.Addr != "" {
		shutdown := m.Expose(c.Metrics.Addr, logger)
		defer shutdown()
		logger.Info("exposing metrics", "addr", c.Metrics.Addr)
	}

	engine, err := fusion.NewEngine(c.Params(), observe.NewLoader(c.ObserveConfig(), logger),
		fusion.WithLogger(logger),
		fusion.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	if !engine.Available() {
		return engine.Err()
	}

	src, closeSrc, err := newSource(ctx, c, args.Synthetic, logger)
	if err != nil {
		return err
	}
	defer closeSrc()

	if c.Cache.Enabled {
		src = cache.NewSource(src, cache.New(), c.Cache.TTL, logger, m)
	}

	q := telemetry.Query{
		Device:     args.Device,
		Start:      args.Start,
		Stop:       args.Stop,
		Resolution: args.Resolution,
	}.WithDefaults()

	res, err := engine.EstimateQuery(ctx, src, q, fusion.Options{UseLabels: args.Labels})
	if err != nil {
		return err
	}

	if args.PlotDir != "" {
		if err := os.MkdirAll(args.PlotDir, 0o755); err != nil {
			return err
		}
		paths, err := sim.SavePlots(res, args.PlotDir)
		if err != nil {
			return err
		}
		logger.Info("saved plots", "paths", paths)
	}

	return writeResult(res, args.Output)
}

// newSource returns the telemetry source and a function releasing it.
// InfluxDB must be reachable.
func newSource(ctx context.Context, c config.Config, synthetic bool, logger *slog.Logger) (soc.DataSource, func(), error) {
	if synthetic {
		d, err := sim.NewDischarge(c.SimConfig())
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using synthetic discharge source")
		return d, func() {}, nil
	}

	s, err := influx.New(c.InfluxConfig(), logger)
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		s.Close()
		return nil, nil, fmt.Errorf("influxdb health check failed: %w", err)
	}
	logger.Info("influxdb reachable", "url", c.Influx.URL)

	return s, s.Close, nil
}

func writeResult(res *fusion.Result, path string) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
