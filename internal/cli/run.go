package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/faithtech/sitewalk/internal/behavior"
	"github.com/faithtech/sitewalk/internal/logging"
	"github.com/faithtech/sitewalk/internal/performance/config"
	"github.com/faithtech/sitewalk/internal/performance/engine"
	"github.com/faithtech/sitewalk/internal/performance/metrics"
	"github.com/faithtech/sitewalk/internal/performance/output"
	"github.com/faithtech/sitewalk/internal/performance/report"
)

// ErrTestFailed is returned when the run finished but did not pass.
var ErrTestFailed = errors.New("load test failed")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run simulated visitors against a website",
	Long: `Run simulated visitors against a website and check every response.

Config file mode:
  sitewalk run --config site.yaml

Quick CLI mode:
  sitewalk run --host http://localhost:3000 --vus 10 --duration 1m

Ramping mode:
  sitewalk run --host http://localhost:3000 --stages "30s:20,1m:20,30s:0"

Flags override values from the config file. Every flag can also be set
through the environment, e.g. SITEWALK_HOST or SITEWALK_MAX_RPS.`,
	RunE: runLoadTest,
}

func runLoadTest(cmd *cobra.Command, args []string) error {
	v := newViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	logger, err := logging.New(v.GetString("log-level"), v.GetString("log-format"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := buildConfig(v)
	if err != nil {
		return err
	}

	var opts []engine.Option
	opts = append(opts, engine.WithLogger(logger))

	if addr := v.GetString("metrics-addr"); addr != "" {
		prom := metrics.NewPrometheusReporter()
		opts = append(opts, engine.WithReporter(prom), engine.WithObserver(prom))
		stop := serveMetrics(addr, prom, logger)
		defer stop()
	}

	eng, err := engine.NewEngine(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg = eng.GetConfig()
	console := output.NewConsole(output.ConsoleConfig{
		TestName:      cfg.Name,
		ExecutorType:  cfg.Executor,
		TotalDuration: cfg.TotalDuration(),
		Writer:        cmd.OutOrStdout(),
		Quiet:         v.GetBool("quiet"),
		NoColor:       v.GetBool("no-color"),
	})
	console.PrintHeader(cfg.Host)

	result, runErr := runWithProgress(ctx, eng, console)
	if result == nil {
		return runErr
	}
	if runErr != nil {
		logger.Error("load test ended with an error", zap.Error(runErr))
	}

	console.PrintSummary(result)

	if path := v.GetString("json"); path != "" {
		if err := output.WriteJSONFile(path, result); err != nil {
			return err
		}
		logger.Info("results written", zap.String("path", path))
	}
	if path := v.GetString("html"); path != "" {
		if err := report.GenerateHTML(result, path); err != nil {
			return err
		}
		logger.Info("report written", zap.String("path", path))
	}

	if runErr != nil {
		return runErr
	}
	if !result.Passed {
		return ErrTestFailed
	}
	return nil
}

// runWithProgress runs eng and refreshes the console once a second.
func runWithProgress(ctx context.Context, eng *engine.Engine, console *output.Console) (*engine.TestResult, error) {
	var (
		result *engine.TestResult
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, runErr = eng.Run(ctx)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return result, runErr
		case <-ticker.C:
			if eng.IsRunning() {
				console.Update(output.ProgressFrom(eng.GetMetrics(), eng.GetStats(), eng.GetProgress()))
			}
		}
	}
}

// serveMetrics exposes the Prometheus registry on addr until the returned
// func is called.
func serveMetrics(addr string, prom *metrics.PrometheusReporter, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
}

// buildConfig loads the config file, if any, and applies flag and
// environment overrides on top of it.
func buildConfig(v *viper.Viper) (*config.TestConfig, error) {
	cfg := &config.TestConfig{}
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v.IsSet("name") {
		cfg.Name = v.GetString("name")
	}
	if v.IsSet("host") {
		cfg.Host = v.GetString("host")
	}
	if v.IsSet("executor") {
		cfg.Executor = v.GetString("executor")
	}
	if v.IsSet("vus") {
		cfg.VUs = v.GetInt("vus")
	}
	if v.IsSet("duration") {
		cfg.Duration = config.Duration(v.GetDuration("duration"))
	}
	if v.IsSet("stages") {
		stages, err := config.ParseStages(v.GetString("stages"))
		if err != nil {
			return nil, fmt.Errorf("invalid --stages: %w", err)
		}
		cfg.Stages = stages
	}
	if v.IsSet("think-min") || v.IsSet("think-max") {
		if cfg.ThinkTime == nil {
			cfg.ThinkTime = &config.ThinkTimeConfig{
				Min: config.Duration(behavior.DefaultThinkMin),
				Max: config.Duration(behavior.DefaultThinkMax),
			}
		}
		if v.IsSet("think-min") {
			cfg.ThinkTime.Min = config.Duration(v.GetDuration("think-min"))
		}
		if v.IsSet("think-max") {
			cfg.ThinkTime.Max = config.Duration(v.GetDuration("think-max"))
		}
	}
	if v.IsSet("max-rps") {
		cfg.MaxRPS = v.GetInt("max-rps")
	}
	if v.IsSet("timeout") {
		cfg.Timeout = config.Duration(v.GetDuration("timeout"))
	}
	if v.IsSet("header-checks") {
		cfg.HeaderChecks = v.GetBool("header-checks")
	}

	return cfg, nil
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Configuration file (YAML or JSON)")
	fs.String("name", "", "Test name used in reports")
	fs.String("host", "", "Base URL of the website, e.g. http://localhost:3000")
	fs.String("executor", "", "Load profile: constant-vus or ramping-vus")
	fs.Int("vus", 0, "Number of virtual users (constant-vus)")
	fs.Duration("duration", 0, "Test duration (constant-vus), e.g. 1m")
	fs.String("stages", "", "Ramping stages as 'duration:target,...', e.g. 30s:20,1m:20,30s:0")
	fs.Duration("think-min", behavior.DefaultThinkMin, "Minimum think time between page visits")
	fs.Duration("think-max", behavior.DefaultThinkMax, "Maximum think time between page visits")
	fs.Int("max-rps", 0, "Cap on requests per second across all VUs (0 = unlimited)")
	fs.DurationP("timeout", "t", config.DefaultTimeout, "HTTP client timeout")
	fs.Bool("header-checks", false, "Log advisory warnings for missing response headers")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	fs.String("json", "", "Write results as JSON to this file")
	fs.String("html", "", "Write an HTML report to this file")
	fs.BoolP("quiet", "q", false, "Disable live progress output, show only PASSED/FAILED")
	fs.Bool("no-color", false, "Disable colored output")
}

func init() {
	addRunFlags(runCmd.Flags())
}
