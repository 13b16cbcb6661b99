// cmd/gigscrapexter/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/valpere/GigScrapexter/internal/classifier"
	"github.com/valpere/GigScrapexter/internal/config"
	"github.com/valpere/GigScrapexter/internal/confidence"
	"github.com/valpere/GigScrapexter/internal/dispatch"
	"github.com/valpere/GigScrapexter/internal/extract"
	"github.com/valpere/GigScrapexter/internal/fetch"
	"github.com/valpere/GigScrapexter/internal/monitoring"
	"github.com/valpere/GigScrapexter/internal/ocr"
	"github.com/valpere/GigScrapexter/internal/orchestrator"
	"github.com/valpere/GigScrapexter/internal/registry"
	"github.com/valpere/GigScrapexter/internal/resilience"
	"github.com/valpere/GigScrapexter/internal/statestore"
	"github.com/valpere/GigScrapexter/internal/store"
	"github.com/valpere/GigScrapexter/internal/utils"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// main handles CLI arguments and routes to appropriate functions
func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "run":
		configFile, overrides, err := parseRunArgs(os.Args[2:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := runScraper(configFile, overrides); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "validate":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Error: config file required\n")
			fmt.Fprintf(os.Stderr, "Usage: gigscrapexter validate <config.yaml>\n")
			os.Exit(1)
		}
		if err := validateConfig(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "targets":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Error: targets file required\n")
			fmt.Fprintf(os.Stderr, "Usage: gigscrapexter targets <targets.yaml>\n")
			os.Exit(1)
		}
		if err := validateTargets(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "sessions":
		configFile := ""
		if len(os.Args) > 2 {
			configFile = os.Args[2]
		}
		if err := showSessions(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "version", "--version", "-v":
		printVersion()

	case "help", "--help", "-h":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", command)
		printUsage()
		os.Exit(1)
	}
}

// runOverrides holds command-line overrides for the run command.
// Zero values mean "use the config file value".
type runOverrides struct {
	mode        string
	maxTargets  int
	maxDuration time.Duration
	verbose     bool
}

// parseRunArgs splits the run command's arguments into an optional
// config file path and flag overrides. The config file, when given,
// must come before the flags.
func parseRunArgs(args []string) (string, *runOverrides, error) {
	configFile := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		configFile = args[0]
		args = args[1:]
	}

	overrides := &runOverrides{}
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&overrides.mode, "mode", "", "run mode: weekly, backup or test")
	fs.IntVar(&overrides.maxTargets, "max-targets", 0, "cap the number of targets processed")
	fs.DurationVar(&overrides.maxDuration, "max-duration", 0, "overall run deadline, e.g. 90m")
	fs.BoolVar(&overrides.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}
	return configFile, overrides, nil
}

// loadConfig reads the config file, or the defaults when none is
// given.
func loadConfig(configFile string) (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(configFile)
}

// runScraper builds the pipeline and executes one run
func runScraper(configFile string, overrides *runOverrides) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if overrides != nil {
		if overrides.mode != "" {
			cfg.Mode = overrides.mode
		}
		if overrides.maxTargets > 0 {
			cfg.MaxTargets = overrides.maxTargets
		}
		if overrides.maxDuration > 0 {
			cfg.MaxDuration = overrides.maxDuration
		}
		if overrides.verbose {
			cfg.LogLevel = "debug"
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := utils.NewLoggerWithLevel(logLevel(cfg.LogLevel))

	state, err := statestore.New(&statestore.Config{Dir: cfg.StateDir}, logger)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}

	reg := registry.New(logger)
	if _, err := os.Stat(cfg.TargetsFile); err == nil {
		if err := reg.LoadFile(cfg.TargetsFile); err != nil {
			return fmt.Errorf("loading targets: %w", err)
		}
		// Runs can last hours; pick up targets file edits on the fly.
		watcher, err := config.NewWatcher(cfg.TargetsFile, logger)
		if err != nil {
			logger.Warnf("targets file watching disabled: %v", err)
		} else {
			defer watcher.Close()
			watcher.OnChange(func(path string) {
				if err := reg.LoadFile(path); err != nil {
					logger.Errorf("reloading targets: %v", err)
				}
			})
		}
	} else {
		logger.Warnf("targets file %s not found, using built-in targets only", cfg.TargetsFile)
	}

	db, err := store.Open(cfg.DatabaseDSN, logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	httpFetcher := fetch.NewHTTPFetcher(nil, logger)
	browser := fetch.NewBrowserFetcher(&fetch.BrowserConfig{
		Headless:      !cfg.Browser.Headed,
		DisableImages: !cfg.Browser.LoadImages,
	}, logger)
	defer browser.Close()

	cls := classifier.New(state, logger)

	var dispatcher *dispatch.Dispatcher
	if cfg.RespectRobots {
		robots := fetch.NewRobotsAgent(&fetch.RobotsConfig{Respect: true}, logger)
		dispatcher = dispatch.New(httpFetcher, browser, cls, robots, logger)
	} else {
		dispatcher = dispatch.New(httpFetcher, browser, cls, nil, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *monitoring.MetricsManager
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetricsManager(monitoring.MetricsConfig{})
		health := monitoring.NewHealthManager(0)
		health.Register("database", func(ctx context.Context) monitoring.HealthCheckResult {
			if err := db.Ping(ctx); err != nil {
				return monitoring.HealthCheckResult{Status: monitoring.HealthStatusUnhealthy, Message: err.Error()}
			}
			return monitoring.HealthCheckResult{Status: monitoring.HealthStatusHealthy}
		})
		health.Register("state_dir", func(ctx context.Context) monitoring.HealthCheckResult {
			if _, err := os.Stat(cfg.StateDir); err != nil {
				return monitoring.HealthCheckResult{Status: monitoring.HealthStatusDegraded, Message: err.Error()}
			}
			return monitoring.HealthCheckResult{Status: monitoring.HealthStatusHealthy}
		})
		go func() {
			err := metrics.StartMetricsServer(ctx, cfg.Metrics.ListenAddress, cfg.Metrics.Path, health)
			if err != nil && ctx.Err() == nil {
				logger.Warnf("metrics server: %v", err)
			}
		}()
	}

	o, err := orchestrator.New(&orchestrator.Config{
		Mode:        cfg.Mode,
		Parallelism: cfg.Parallelism,
		MaxTargets:  cfg.MaxTargets,
		MaxDuration: cfg.MaxDuration,
	}, orchestrator.Deps{
		Registry:   reg,
		Dispatcher: dispatcher,
		Extractor:  extract.New(logger),
		Bands:      extract.NewBandExtractor(),
		Confidence: confidence.New(db, logger),
		Store:      db,
		State:      state,
		Breaker:    resilience.NewCircuitBreaker(nil, logger),
		Blacklist:  resilience.NewBlacklist(state, logger),
		Limiter:    resilience.NewAdaptiveRateLimiter(state, logger),
		Memory:     resilience.NewMemoryMonitor(0, logger),
		OCR:        ocr.NewChain(ocr.DefaultEngines(cfg.OCR.ScriptDir, logger), state, logger),
		PDF:        ocr.NewPDFProcessor(logger),
		Downloader: httpFetcher,
		Metrics:    metrics,
	}, logger)
	if err != nil {
		return err
	}

	summary, err := o.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println(summary)
	return nil
}

// validateConfig checks a configuration file
func validateConfig(configFile string) error {
	if _, err := config.LoadFromFile(configFile); err != nil {
		return err
	}
	fmt.Printf("Configuration file '%s' is valid\n", configFile)
	return nil
}

// validateTargets checks a targets registry file
func validateTargets(targetsFile string) error {
	reg := registry.New(utils.NewLoggerWithLevel(utils.WarnLevel))
	if err := reg.LoadFile(targetsFile); err != nil {
		return err
	}
	fmt.Printf("Targets file '%s' is valid: %d targets registered\n", targetsFile, reg.Len())
	return nil
}

// showSessions prints the recent run log
func showSessions(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	state, err := statestore.New(&statestore.Config{Dir: cfg.StateDir}, utils.NewLoggerWithLevel(utils.WarnLevel))
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}

	sessions, err := state.Sessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No recorded sessions")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%s  mode=%-6s  targets=%d/%d  errors=%d  saved=%d  %.1fm\n",
			s.StartedAt.Format("2006-01-02 15:04"), s.Mode,
			s.TargetsComplete, s.TargetsPlanned, s.Errors, s.EventsSaved, s.DurationMinutes)
	}
	return nil
}

func logLevel(level string) utils.LogLevel {
	switch level {
	case "debug":
		return utils.DebugLevel
	case "warn":
		return utils.WarnLevel
	case "error":
		return utils.ErrorLevel
	default:
		return utils.InfoLevel
	}
}

// printUsage displays help information
func printUsage() {
	fmt.Println("GigScrapexter - Live Music Schedule Scraper")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  gigscrapexter run [config.yaml]       Run a scraping pass")
	fmt.Println("  gigscrapexter validate <config.yaml>  Validate configuration file")
	fmt.Println("  gigscrapexter targets <targets.yaml>  Validate targets registry file")
	fmt.Println("  gigscrapexter sessions [config.yaml]  Show recent run history")
	fmt.Println("  gigscrapexter version                 Show version information")
	fmt.Println("  gigscrapexter help                    Show this help message")
	fmt.Println()
	fmt.Println("Run flags (after the config file):")
	fmt.Println("  -mode weekly|backup|test   Override the configured run mode")
	fmt.Println("  -max-targets N             Cap the number of targets processed")
	fmt.Println("  -max-duration 90m          Override the overall run deadline")
	fmt.Println("  -v                         Debug logging")
}

// printVersion displays version information
func printVersion() {
	fmt.Printf("GigScrapexter %s\n", version)
	fmt.Printf("Build time: %s\n", buildTime)
	fmt.Printf("Git commit: %s\n", gitCommit)
}
