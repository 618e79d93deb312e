// Package config resolves the settings of the judge from built-in
// defaults, a TOML file, a .env file and JUDGE_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/grader"
	"github.com/programme-lv/judge/internal/lang"
	"github.com/programme-lv/judge/internal/logging"
	"github.com/programme-lv/judge/internal/xdg"
)

type Config struct {
	CacheDir string `toml:"cache_dir"`

	Log        LogConfig        `toml:"log"`
	Compile    CompileConfig    `toml:"compile"`
	Runner     RunnerConfig     `toml:"runner"`
	Compare    CompareConfig    `toml:"compare"`
	BfCompare  BfCompareConfig  `toml:"bf_compare"`
	Interactor InteractorConfig `toml:"interactor"`
	Checker    CheckerConfig    `toml:"checker"`
	Output     OutputConfig     `toml:"output"`
	Nats       NatsConfig       `toml:"nats"`
	Sqs        SqsConfig        `toml:"sqs"`

	Languages []LanguageConfig `toml:"languages"`
}

type LogConfig struct {
	Level   string `toml:"level"`
	NoColor bool   `toml:"no_color"`
}

type CompileConfig struct {
	TimeoutMs int64 `toml:"timeout_ms"`
}

type RunnerConfig struct {
	// TimeAdditionMs is the grace added to every time limit before a
	// process is killed
	TimeAdditionMs int64    `toml:"time_addition_ms"`
	Strategy       string   `toml:"strategy"`
	WrapperCmd     []string `toml:"wrapper_cmd"`
	ExternalRunner string   `toml:"external_runner"`
	UnlimitedStack bool     `toml:"unlimited_stack"`
	Concurrency    int      `toml:"concurrency"`
}

type CompareConfig struct {
	Mode          string  `toml:"mode"`
	StderrIsError bool    `toml:"stderr_is_error"`
	OleFactor     float64 `toml:"ole_factor"`
	RegardPEAsAC  bool    `toml:"regard_pe_as_ac"`
}

type BfCompareConfig struct {
	GeneratorTimeLimitMs  int64 `toml:"generator_time_limit_ms"`
	BruteForceTimeLimitMs int64 `toml:"brute_force_time_limit_ms"`
	Seed                  int64 `toml:"seed"`
}

type InteractorConfig struct {
	GraceMs int64 `toml:"grace_ms"`
}

type CheckerConfig struct {
	TimeLimitMs int64 `toml:"time_limit_ms"`
}

type OutputConfig struct {
	InlineMaxBytes int64 `toml:"inline_max_bytes"`
}

type NatsConfig struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

type SqsConfig struct {
	QueueURL string `toml:"queue_url"`
	Region   string `toml:"region"`
}

// LanguageConfig declares a language in the configuration file
type LanguageConfig struct {
	ID          string   `toml:"id"`
	Name        string   `toml:"name"`
	Extensions  []string `toml:"extensions"`
	Compile     string   `toml:"compile"`
	Flags       string   `toml:"flags"`
	ArtifactExt string   `toml:"artifact_ext"`
	Run         string   `toml:"run"`
	RunArgs     string   `toml:"run_args"`
	// Sample is a program printing "hello", used by the health check
	Sample      string   `toml:"sample"`
}

// Environment variables read by Load
const (
	EnvCacheDir    = "JUDGE_CACHE_DIR"
	EnvLogLevel    = "JUDGE_LOG_LEVEL"
	EnvStrategy    = "JUDGE_STRATEGY"
	EnvNatsURL     = "JUDGE_NATS_URL"
	EnvNatsSubject = "JUDGE_NATS_SUBJECT"
	EnvSqsQueueURL = "JUDGE_SQS_QUEUE_URL"
	EnvSqsRegion   = "JUDGE_SQS_REGION"
)

func Default() Config {
	return Config{
		CacheDir: xdg.New().AppCacheDir(),
		Log:      LogConfig{Level: "info"},
		Compile:  CompileConfig{TimeoutMs: 10000},
		Runner: RunnerConfig{
			TimeAdditionMs: 1000,
			Strategy:       execute.StrategyNormal,
			WrapperCmd:     []string{"judge-wrapper"},
			Concurrency:    runtime.NumCPU(),
		},
		Compare: CompareConfig{Mode: grader.ModeLines},
		BfCompare: BfCompareConfig{
			GeneratorTimeLimitMs:  2000,
			BruteForceTimeLimitMs: 10000,
		},
		Interactor: InteractorConfig{GraceMs: 1000},
		Checker:    CheckerConfig{TimeLimitMs: 10000},
		Output:     OutputConfig{InlineMaxBytes: 16 << 10},
		Nats:       NatsConfig{Subject: "judge.events"},
		Sqs:        SqsConfig{Region: "eu-central-1"},
	}
}

// DefaultPath is the configuration file used when none is given
func DefaultPath() string {
	return filepath.Join(xdg.New().AppConfigDir(), "config.toml")
}

// Load resolves the configuration. An empty path reads DefaultPath if it
// exists. dotenv files default to .env in the working directory; missing
// dotenv files are skipped.
func Load(path string, dotenv ...string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.CacheDir, EnvCacheDir)
	set(&c.Log.Level, EnvLogLevel)
	set(&c.Runner.Strategy, EnvStrategy)
	set(&c.Nats.URL, EnvNatsURL)
	set(&c.Nats.Subject, EnvNatsSubject)
	set(&c.Sqs.QueueURL, EnvSqsQueueURL)
	set(&c.Sqs.Region, EnvSqsRegion)
}

// Validate rejects settings the judge cannot work with
func (c Config) Validate() error {
	if c.CacheDir == "" {
		return errors.New("cache_dir is empty")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Runner.Strategy {
	case execute.StrategyNormal:
	case execute.StrategyWrapper:
		if len(c.Runner.WrapperCmd) == 0 {
			return errors.New("runner.wrapper_cmd is required by the wrapper strategy")
		}
	case execute.StrategyExternal:
		if c.Runner.ExternalRunner == "" {
			return errors.New("runner.external_runner is required by the external strategy")
		}
	default:
		return fmt.Errorf("unknown runner.strategy %q", c.Runner.Strategy)
	}
	if !grader.ValidMode(c.Compare.Mode) {
		return fmt.Errorf("unknown compare.mode %q", c.Compare.Mode)
	}
	if c.Compare.OleFactor < 0 {
		return errors.New("compare.ole_factor must not be negative")
	}
	if c.Runner.Concurrency < 1 {
		return errors.New("runner.concurrency must be at least 1")
	}
	for _, n := range []struct {
		name string
		v    int64
	}{
		{"compile.timeout_ms", c.Compile.TimeoutMs},
		{"runner.time_addition_ms", c.Runner.TimeAdditionMs},
		{"bf_compare.generator_time_limit_ms", c.BfCompare.GeneratorTimeLimitMs},
		{"bf_compare.brute_force_time_limit_ms", c.BfCompare.BruteForceTimeLimitMs},
		{"interactor.grace_ms", c.Interactor.GraceMs},
		{"checker.time_limit_ms", c.Checker.TimeLimitMs},
		{"output.inline_max_bytes", c.Output.InlineMaxBytes},
	} {
		if n.v < 0 {
			return fmt.Errorf("%s must not be negative", n.name)
		}
	}
	for i, l := range c.Languages {
		if l.ID == "" || len(l.Extensions) == 0 {
			return fmt.Errorf("languages[%d] needs an id and at least one extension", i)
		}
	}
	return nil
}

// Registry returns the configured languages followed by the built-in ones
func (c Config) Registry() *lang.Registry {
	reg := lang.NewRegistry()
	for _, lc := range c.Languages {
		l := lang.New(lc.ID, lc.Name, lc.Extensions...)
		if l.Name == "" {
			l.Name = lc.ID
		}
		l.CompileCmd = lc.Compile
		l.Flags = lc.Flags
		l.ArtifactExt = lc.ArtifactExt
		if lc.Run != "" {
			l.RunCmd = lc.Run
		}
		l.RunArgs = lc.RunArgs
		reg.Register(l)
	}
	for _, l := range lang.Defaults() {
		reg.Register(l)
	}
	return reg
}

// Samples returns the health check programs of the configured languages
func (c Config) Samples() map[string]string {
	out := map[string]string{}
	for _, lc := range c.Languages {
		if lc.Sample != "" {
			out[lc.ID] = lc.Sample
		}
	}
	return out
}

func ms(v int64) time.Duration { return time.Duration(v) * time.Millisecond }

func (c Config) CompileTimeout() time.Duration { return ms(c.Compile.TimeoutMs) }
func (c Config) TimeAddition() time.Duration { return ms(c.Runner.TimeAdditionMs) }
func (c Config) GeneratorLimit() time.Duration { return ms(c.BfCompare.GeneratorTimeLimitMs) }
func (c Config) BruteForceLimit() time.Duration { return ms(c.BfCompare.BruteForceTimeLimitMs) }
func (c Config) InteractorGrace() time.Duration { return ms(c.Interactor.GraceMs) }
func (c Config) CheckerLimit() time.Duration { return ms(c.Checker.TimeLimitMs) }

// CompareOptions returns the output comparison settings
func (c Config) CompareOptions() grader.Options {
	return grader.Options{
		Mode:          c.Compare.Mode,
		StderrIsError: c.Compare.StderrIsError,
		OleFactor:     c.Compare.OleFactor,
		RegardPEAsAC:  c.Compare.RegardPEAsAC,
	}
}

// StrategyOptions returns the execution strategy settings
func (c Config) StrategyOptions() execute.StrategyOptions {
	return execute.StrategyOptions{
		WrapperCmd:     c.Runner.WrapperCmd,
		ExternalRunner: c.Runner.ExternalRunner,
		UnlimitedStack: c.Runner.UnlimitedStack,
	}
}
