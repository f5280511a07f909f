// cmd/carscrapexter/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/valpere/CarScrapexter/internal/config"
	"github.com/valpere/CarScrapexter/internal/errors"
	"github.com/valpere/CarScrapexter/internal/monitoring"
	"github.com/valpere/CarScrapexter/internal/output"
	"github.com/valpere/CarScrapexter/internal/scraper"
	"github.com/valpere/CarScrapexter/internal/utils"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Global error service instance
var errorService = errors.NewService()

// runScraper runs the pipeline over the configured dealers and exits non-zero
// on a run-fatal error.
func runScraper(configFile string) {
	verbose := hasFlag("-v") || hasFlag("--verbose")
	errorService = errorService.WithVerbose(verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := executeRun(ctx, configFile, verbose)
	if snap != nil {
		printSummary(os.Stdout, *snap, hasFlag("--json"))
	}
	if err != nil {
		fmt.Fprint(os.Stderr, errorService.FormatErrorForCLI(err))
		os.Exit(errorService.GetExitCode(err))
	}
}

// validateConfig loads a configuration and reports every problem in it.
func validateConfig(configFile string) {
	verbose := hasFlag("-v") || hasFlag("--verbose")
	errorService = errorService.WithVerbose(verbose)

	if err := executeValidation(os.Stdout, configFile, verbose); err != nil {
		fmt.Fprint(os.Stderr, errorService.FormatErrorForCLI(err))
		os.Exit(errorService.GetExitCode(err))
	}

	fmt.Printf("✓ Configuration file '%s' is valid\n", configFile)
}

// generateTemplate renders a starter configuration for the given store type.
func generateTemplate(args []string) (string, error) {
	templateType := "memory"
	if len(args) > 1 && args[0] == "--type" {
		templateType = args[1]
	}

	template := config.GenerateTemplate(templateType)

	var b strings.Builder
	if err := config.SaveToWriter(&template, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// executeRun wires the fetch session, the store and the engine, then runs.
// The returned summary is nil only when the run never started.
func executeRun(ctx context.Context, configFile string, verbose bool) (*scraper.SummarySnapshot, error) {
	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		return nil, err
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := utils.Configure(cfg.Logging); err != nil {
		return nil, errors.Config("logging", err)
	}
	logger := utils.NewComponentLogger("cli")
	logger.Infof("configuration %s loaded: %d dealers, store %s", cfg.Name, len(cfg.Dealers), cfg.Store.Type)

	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetrics(monitoring.MetricsConfig{Namespace: cfg.Metrics.Namespace, EnableGoMetrics: true})
	}

	store, err := output.NewStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Errorf("failed to close store: %v", cerr)
		}
	}()

	session, err := scraper.NewClientFactory(metrics).CreateSession(cfg)
	if err != nil {
		return nil, errors.Config("session", err)
	}
	defer session.Close()

	summary := scraper.NewSummary(metrics)
	engine, err := scraper.NewEngine(cfg, session, store, summary)
	if err != nil {
		return nil, errors.Config("engine", err)
	}

	if cfg.Metrics.Enabled {
		health := monitoring.NewHealthManager()
		health.RegisterCheck(monitoring.HealthCheck{
			Name:     "store",
			Critical: true,
			Timeout:  5 * time.Second,
			Check:    store.Ping,
		})
		server := monitoring.NewServer(monitoring.ServerConfig{
			ListenAddress: cfg.Metrics.ListenAddress,
			MetricsPath:   cfg.Metrics.MetricsPath,
		}, metrics, health, summary)
		if err := server.Start(ctx); err != nil {
			logger.Warnf("ops server disabled: %v", err)
		}
	}

	if verbose {
		fmt.Printf("Starting run over %d dealers (render mode %s)...\n", len(cfg.Dealers), session.Mode())
	}

	snap, err := engine.Run(ctx)
	return &snap, err
}

// executeValidation performs configuration validation
func executeValidation(w io.Writer, configFile string, verbose bool) error {
	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(w, "Configuration details:\n")
		fmt.Fprintf(w, "  Name: %s\n", cfg.Name)
		fmt.Fprintf(w, "  Dealers: %d\n", len(cfg.Dealers))
		for _, d := range cfg.Dealers {
			fmt.Fprintf(w, "    - %s (%s)\n", d.Name, d.URL)
		}
		fmt.Fprintf(w, "  Render mode: %s\n", cfg.Browser.Mode)
		fmt.Fprintf(w, "  Store: %s\n", cfg.Store.Type)
		if len(cfg.Extraction.Transforms) > 0 {
			fmt.Fprintf(w, "  Field transforms: %d\n", len(cfg.Extraction.Transforms))
		}
	}

	return nil
}

// printSummary writes the run report, as text or as JSON.
func printSummary(w io.Writer, snap scraper.SummarySnapshot, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(snap)
		return
	}

	fmt.Fprintf(w, "Run finished in %s\n", utils.FormatDuration(snap.Duration))
	fmt.Fprintf(w, "  Dealers:     %d attempted, %d succeeded, %d empty, %d failed\n",
		snap.DealersAttempted, snap.DealersSucceeded, snap.DealersEmpty, snap.DealersFailed)
	fmt.Fprintf(w, "  Pages:       %d fetched (%d detail)\n", snap.PagesFetched, snap.DetailPagesFetched)
	fmt.Fprintf(w, "  Candidates:  %d discovered, %d accepted, %d deferred, %d rejected\n",
		snap.CandidatesDiscovered, snap.CandidatesAccepted, snap.CandidatesDeferred, snap.CandidatesRejected)
	fmt.Fprintf(w, "  Images:      %d fetched, %d accepted, %d rejected, %d failed\n",
		snap.ImagesFetched, snap.ImagesAccepted, snap.ImagesRejected, snap.ImagesFailed)
	fmt.Fprintf(w, "  Records:     %d stored, %d duplicates suppressed\n", snap.RecordsStored, snap.DuplicatesSuppressed)

	if len(snap.ErrorsByKind) > 0 {
		kinds := make([]string, 0, len(snap.ErrorsByKind))
		for k := range snap.ErrorsByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		parts := make([]string, 0, len(kinds))
		for _, k := range kinds {
			parts = append(parts, fmt.Sprintf("%s=%d", k, snap.ErrorsByKind[k]))
		}
		fmt.Fprintf(w, "  Errors:      %s\n", strings.Join(parts, ", "))
	}

	for _, d := range snap.Dealers {
		line := fmt.Sprintf("  - %s: %s, %d stored", d.Name, d.Outcome, d.Stored)
		if d.Platform != "" {
			line += fmt.Sprintf(" [%s]", d.Platform)
		}
		if d.Error != "" {
			line += ": " + d.Error
		}
		fmt.Fprintln(w, line)
	}
}

// hasFlag checks if a flag is present in command line arguments
func hasFlag(flag string) bool {
	for _, arg := range os.Args {
		if arg == flag {
			return true
		}
	}
	return false
}

// main function handles CLI arguments and routes to appropriate functions
func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "run":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Error: config file required\n")
			fmt.Fprintf(os.Stderr, "Usage: carscrapexter run <config.yaml>\n")
			os.Exit(1)
		}
		runScraper(os.Args[2])

	case "validate":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Error: config file required\n")
			fmt.Fprintf(os.Stderr, "Usage: carscrapexter validate <config.yaml>\n")
			os.Exit(1)
		}
		validateConfig(os.Args[2])

	case "template":
		template, err := generateTemplate(os.Args[2:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(template)

	case "version", "--version":
		printVersion()

	case "help", "--help", "-h":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", command)
		printUsage()
		os.Exit(1)
	}
}

// printUsage displays help information
func printUsage() {
	fmt.Println("CarScrapexter - Dealer Inventory Extraction")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  carscrapexter run <config.yaml>        Visit every configured dealer and store vehicles")
	fmt.Println("  carscrapexter validate <config.yaml>   Validate configuration file")
	fmt.Println("  carscrapexter template [--type <type>] Generate configuration template")
	fmt.Println("  carscrapexter version                  Show version information")
	fmt.Println("  carscrapexter help                     Show this help message")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -v, --verbose                          Enable verbose output and debug logging")
	fmt.Println("  --json                                 Print the run summary as JSON")
	fmt.Println()
	fmt.Println("Template types (the record store):")
	fmt.Println("  memory (default), mongodb, postgres, mysql, sqlite, json, csv, excel")
}

// printVersion displays version information
func printVersion() {
	fmt.Printf("CarScrapexter %s\n", version)
	fmt.Printf("Build time: %s\n", buildTime)
	fmt.Printf("Git commit: %s\n", gitCommit)
}
