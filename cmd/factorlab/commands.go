package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"factorlab/internal/config"
	"factorlab/internal/domain"
	"factorlab/internal/engine"
	"factorlab/internal/gather"
	"factorlab/internal/gather/us"
	"factorlab/internal/report"
	"factorlab/internal/store"
	"factorlab/internal/util"
)

// session holds what every command needs: the loaded config and an open
// log sink. close must be deferred by the caller.
type session struct {
	cfg  *config.Config
	sink *util.LogSink
	log  *slog.Logger
}

func (s *session) close() {
	if err := s.sink.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "closing log file: %v\n", err)
	}
}

// openSession loads the config and opens the log sink. A sink that cannot be
// opened is fatal; a config that cannot be loaded is logged to the console
// and returned.
func openSession() (*session, error) {
	cfg, cfgErr := config.LoadOrDefault(configPath)
	if cfgErr != nil {
		cfg = config.Default()
	}

	sink, err := util.OpenLogSink(os.Stderr, cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("failed to open log sink: %v", err)
	}
	util.SetDefault(sink.Logger)

	s := &session{cfg: cfg, sink: sink, log: sink.Logger}
	if cfgErr != nil {
		s.log.Error("failed to load config", "path", configPath, "err", cfgErr)
		return s, cfgErr
	}
	return s, nil
}

// demoAction runs the default demo: sample bars, the full pipeline, the
// metrics printout and the portfolio plot.
func demoAction(c *cli.Context) error {
	if c.Args().Present() {
		return fmt.Errorf("unknown command %q", c.Args().First())
	}

	s, err := openSession()
	defer s.close()
	if err != nil {
		return nil
	}
	s.cfg.Data.Source = config.SourceSample
	return backtest(c, s)
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "run a backtest with the configured strategy",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "source", Usage: "bar source: sample, alpaca or parquet"},
		&cli.StringFlag{Name: "symbol", Usage: "symbol to backtest"},
		&cli.StringFlag{Name: "start", Usage: "first date, YYYY-MM-DD"},
		&cli.StringFlag{Name: "end", Usage: "last date, YYYY-MM-DD (default today)"},
		&cli.IntFlag{Name: "days", Usage: "number of sample bars"},
		&cli.Int64Flag{Name: "seed", Usage: "sample generator seed"},
		&cli.StringFlag{Name: "mode", Usage: "accounting mode: daily-debit or trade-only"},
		&cli.StringFlag{Name: "plot", Usage: "portfolio chart output path; empty string disables"},
		&cli.StringFlag{Name: "equity-out", Usage: "write the position table to this Parquet file"},
		&cli.BoolFlag{Name: "no-history", Usage: "do not record the run in the SQLite history (recorded by default, see report.record_history)"},
	},
	Action: func(c *cli.Context) error {
		s, err := openSession()
		defer s.close()
		if err != nil {
			return nil
		}
		applyRunFlags(c, s.cfg)
		return backtest(c, s)
	},
}

func applyRunFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("source") {
		cfg.Data.Source = c.String("source")
	}
	if c.IsSet("symbol") {
		cfg.Data.Symbol = strings.ToUpper(c.String("symbol"))
	}
	if c.IsSet("start") {
		cfg.Data.StartDate = c.String("start")
	}
	if c.IsSet("end") {
		cfg.Data.EndDate = c.String("end")
	}
	if c.IsSet("days") {
		cfg.Data.NumDays = c.Int("days")
	}
	if c.IsSet("seed") {
		cfg.Data.Seed = c.Int64("seed")
	}
	if c.IsSet("mode") {
		cfg.Strategy.AccountingMode = c.String("mode")
	}
	if c.IsSet("plot") {
		cfg.Report.PlotPath = c.String("plot")
	}
	if c.IsSet("equity-out") {
		cfg.Report.EquityPath = c.String("equity-out")
	}
	if c.Bool("no-history") {
		cfg.Report.RecordHistory = false
	}
}

// backtest runs one configured backtest and prints the metrics. Pipeline
// failures are logged, never returned, so the process exits 0.
func backtest(c *cli.Context, s *session) error {
	cfg := s.cfg
	if err := cfg.Validate(); err != nil {
		s.log.Error("error running strategy", "err", err)
		return nil
	}

	src, err := engine.NewSource(cfg)
	if err != nil {
		s.log.Error("error running strategy", "err", err)
		return nil
	}

	var runs store.RunStore
	if cfg.Report.RecordHistory {
		db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			s.log.Error("opening run history, continuing without it", "path", cfg.Storage.SQLitePath, "err", err)
		} else {
			defer db.Close()
			runs = db
		}
	}

	req, err := engine.NewRunRequest(cfg)
	if err != nil {
		s.log.Error("error running strategy", "err", err)
		return nil
	}

	out, err := engine.NewEngine(cfg, src, runs, s.log).Run(c.Context, req)
	if err != nil {
		if errors.Is(err, engine.ErrNoData) {
			s.log.Error("no data to backtest", "symbol", req.Symbol, "source", src.Name(), "err", err)
		} else {
			s.log.Error("error running strategy", "err", err)
		}
		return nil
	}

	w := c.App.Writer
	fmt.Fprintln(w, "Performance Metrics:")
	for _, line := range report.FormatPerformance(out.Result.Performance, cfg.Report.Precision) {
		fmt.Fprintln(w, line)
	}
	if n := len(out.Positions); n > 0 {
		last := out.Positions[n-1]
		s.log.Info("final portfolio",
			"total", report.FormatMoney(last.Total),
			"return", report.FormatPct(out.Result.TotalReturn),
			"trades", out.Result.TotalTrades,
		)
	}
	return nil
}

var fetchCommand = &cli.Command{
	Name:      "fetch",
	Usage:     "download daily bars from Alpaca into the Parquet cache",
	ArgsUsage: "[SYMBOL...]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "start", Usage: "first date, YYYY-MM-DD"},
		&cli.StringFlag{Name: "end", Usage: "last date, YYYY-MM-DD (default: latest finished trading day)"},
		&cli.BoolFlag{Name: "missing-only", Usage: "skip symbols that already have cached bars"},
	},
	Action: func(c *cli.Context) error {
		s, err := openSession()
		defer s.close()
		if err != nil {
			return nil
		}
		cfg := s.cfg

		symbols := c.Args().Slice()
		if len(symbols) == 0 {
			symbols = []string{cfg.Data.Symbol}
		}
		for i := range symbols {
			symbols[i] = strings.ToUpper(symbols[i])
		}

		if c.IsSet("start") {
			cfg.Data.StartDate = c.String("start")
		}
		if c.IsSet("end") {
			cfg.Data.EndDate = c.String("end")
		}
		start, end, err := cfg.Data.Range()
		if err != nil {
			s.log.Error("invalid date range", "err", err)
			return nil
		}
		if cfg.Data.EndDate == "" {
			cal := us.NewCalendarClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
			if day, err := us.LatestFinishedTradingDay(cal, time.Now()); err != nil {
				s.log.Warn("trading calendar unavailable, using today", "err", err)
			} else {
				end = day
			}
		}

		cache := store.NewParquetStore(cfg.Storage.DataDir)
		if c.Bool("missing-only") {
			missing, err := gather.Missing(c.Context, cache, domain.MarketUS, symbols)
			if err != nil {
				s.log.Error("fetch failed", "err", err)
				return nil
			}
			s.log.Info("skipping cached symbols", "requested", len(symbols), "missing", len(missing))
			if len(missing) == 0 {
				return nil
			}
			symbols = missing
		}

		src := us.NewAlpacaSource(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed,
			cfg.Data.BatchSize, cfg.Data.RateLimitPerMin, cfg.Data.MaxAttempts,
		)
		n, err := gather.Cache(c.Context, src, cache, s.log, symbols, start, end)
		if err != nil {
			s.log.Error("fetch failed", "err", err)
			return nil
		}
		s.log.Info("fetch complete", "symbols", len(symbols), "bars", n,
			"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))
		return nil
	},
}

var runsCommand = &cli.Command{
	Name:  "runs",
	Usage: "list recorded backtest runs, newest first",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum runs to list; 0 lists all"},
	},
	Action: func(c *cli.Context) error {
		s, err := openSession()
		defer s.close()
		if err != nil {
			return nil
		}

		db, err := store.NewSQLiteStore(s.cfg.Storage.SQLitePath)
		if err != nil {
			s.log.Error("opening run history", "path", s.cfg.Storage.SQLitePath, "err", err)
			return nil
		}
		defer db.Close()

		runs, err := db.ListRuns(c.Context, c.Int("limit"))
		if err != nil {
			s.log.Error("listing runs", "err", err)
			return nil
		}

		prec := s.cfg.Report.Precision
		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tSYMBOL\tSOURCE\tMODE\tBARS\tTRADES\tSHARPE\tMAX DD\tRETURN")
		for _, r := range runs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
				r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Symbol, r.Source, r.AccountingMode,
				r.Bars, r.TotalTrades,
				report.FormatFloat(r.SharpeRatio, prec),
				report.FormatFloat(r.MaxDrawdown, prec),
				report.FormatFloat(r.TotalReturn, prec),
			)
		}
		return tw.Flush()
	},
}
