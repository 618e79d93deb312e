package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/programme-lv/judge/internal/compiler"
	"github.com/programme-lv/judge/internal/config"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/grader"
	"github.com/programme-lv/judge/internal/judge"
	"github.com/programme-lv/judge/internal/logging"
	"github.com/programme-lv/judge/internal/runner"
	"github.com/programme-lv/judge/internal/sink"
	"github.com/programme-lv/judge/internal/sink/natssink"
	"github.com/programme-lv/judge/internal/sink/recorder"
	"github.com/programme-lv/judge/internal/sink/sqssink"
	"github.com/programme-lv/judge/internal/sink/termsink"
	"github.com/programme-lv/judge/internal/stress"
	"github.com/programme-lv/judge/internal/tmpstore"
	"github.com/urfave/cli/v3"
)

// app holds everything a command needs, built from the resolved config
type app struct {
	cfg    config.Config
	log    *slog.Logger
	pool   *tmpstore.Pool
	exec   *execute.Executor
	comp   *compiler.Compiler
	runner *runner.Runner

	// exactly one of term and rec is set, depending on --json
	term *termsink.Sink
	rec  *recorder.Recorder

	closers []func()
}

// loadConfig resolves the config file and applies the global flags on top
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return cfg, err
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("cache-dir") {
		cfg.CacheDir = cmd.String("cache-dir")
	}
	if cmd.IsSet("strategy") {
		cfg.Runner.Strategy = cmd.String("strategy")
	}
	if cmd.Bool("no-color") {
		cfg.Log.NoColor = true
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(os.Stderr, level, cfg.Log.NoColor), nil
}

func newApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	a.pool, err = tmpstore.New(filepath.Join(cfg.CacheDir, "tmp"), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp pool: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := a.pool.Close(); err != nil {
			log.Warn("failed to clean temp pool", "error", err)
		}
	})
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	a.closers = append(a.closers, stopMonitor)
	go a.pool.Monitor(monitorCtx, 30*time.Second)

	exec := execute.New(a.pool, cfg.TimeAddition(), log)
	a.exec = exec
	strategy, err := execute.NewStrategy(cfg.Runner.Strategy, exec, cfg.StrategyOptions())
	if err != nil {
		a.close()
		return nil, err
	}
	comp, err := compiler.New(cfg.Registry(), exec, compiler.Options{
		CacheDir:   cfg.CacheDir,
		Timeout:    cfg.CompileTimeout(),
		UseWrapper: cfg.Runner.Strategy == execute.StrategyWrapper,
	}, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.comp = comp
	judges := judge.New(judge.Options{
		Strategy:        strategy,
		Exec:            exec,
		Checker:         grader.NewCheckerRunner(exec, cfg.CheckerLimit(), log),
		Compare:         cfg.CompareOptions(),
		InteractorGrace: cfg.InteractorGrace(),
		InlineMax:       cfg.Output.InlineMaxBytes,
	}, log)
	st := stress.New(exec, judges, stress.Options{
		GeneratorLimit:  cfg.GeneratorLimit(),
		BruteForceLimit: cfg.BruteForceLimit(),
		Seed:            cfg.BfCompare.Seed,
	}, log)

	sinks, err := a.sinks(ctx, cmd)
	if err != nil {
		a.close()
		return nil, err
	}
	a.runner = runner.New(comp, judges, st, exec, sinks, runner.Options{
		Concurrency: cfg.Runner.Concurrency,
	}, log)
	return a, nil
}

func (a *app) sinks(ctx context.Context, cmd *cli.Command) (sink.Multi, error) {
	var sinks sink.Multi
	if cmd.Bool("json") {
		a.rec = recorder.New()
		sinks = append(sinks, a.rec)
	} else {
		a.term = termsink.New(os.Stdout, a.cfg.Log.NoColor, cmd.Bool("verbose"))
		sinks = append(sinks, a.term)
	}

	if url := a.cfg.Nats.URL; url != "" {
		ns, err := natssink.Connect(url, a.cfg.Nats.Subject, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ns.Close)
		sinks = append(sinks, ns)
		a.log.Debug("publishing events to NATS", "url", url, "subject", a.cfg.Nats.Subject)
	}
	if queue := a.cfg.Sqs.QueueURL; queue != "" {
		client, err := sqssink.Connect(ctx, a.cfg.Sqs.Region)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sqssink.New(client, queue, a.log))
		a.log.Debug("sending events to SQS", "queue", queue)
	}
	return sinks, nil
}

// close releases resources in reverse order of acquisition
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
