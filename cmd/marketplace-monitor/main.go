package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/aleister1102/marketplace-monitor/internal/datastore"
	"github.com/aleister1102/marketplace-monitor/internal/logger"
	"github.com/aleister1102/marketplace-monitor/internal/models"
	"github.com/aleister1102/marketplace-monitor/internal/monitor"
	"github.com/aleister1102/marketplace-monitor/internal/notifier"
	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags, err := ParseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 2
	}

	if flags.LogLevel != "" && !logger.IsValidLevel(flags.LogLevel) {
		fmt.Fprintf(stderr, "Error: invalid log level '%s'\n", flags.LogLevel)
		return 2
	}

	if flags.Command == cmdInit {
		return report(stderr, runInit(flags, stdout))
	}

	bootLogger, err := newLogger(logger.NewDefaultFileLogConfig(), flags.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Error: could not initialize logger: %v\n", err)
		return 1
	}

	cfg, err := config.LoadConfig(flags.ConfigFile, bootLogger)
	if err != nil {
		return report(stderr, err)
	}

	zLogger, err := newLogger(cfg.EffectiveLogConfig(), flags.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Error: could not initialize logger: %v\n", err)
		return 1
	}

	switch flags.Command {
	case cmdStart:
		return report(stderr, runStart(ctx, cfg, zLogger, stdout))
	case cmdCheck:
		return runCheck(ctx, cfg, zLogger, flags, stdout, stderr)
	case cmdTestNotifications:
		return runTestNotifications(ctx, cfg, zLogger, stdout, stderr)
	case cmdStatus:
		return report(stderr, runStatus(ctx, cfg, zLogger, stdout))
	case cmdConfig:
		return report(stderr, runConfig(cfg, flags, stdout))
	case cmdExport:
		return report(stderr, runExport(cfg, zLogger, flags, stdout))
	}
	return 2
}

func report(stderr io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func newLogger(cfg logger.FileLogConfig, levelOverride string) (zerolog.Logger, error) {
	if levelOverride != "" {
		cfg.LogLevel = levelOverride
	}
	return logger.New(cfg)
}

func runStart(ctx context.Context, cfg *config.AppConfig, zLogger zerolog.Logger, stdout io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, zLogger, appOptions{cooldown: true, notify: true, history: true, server: true, guard: true})
	if err != nil {
		return err
	}
	defer app.Close()

	if len(app.engine.Sites()) == 0 {
		return common.NewConfigurationError("", "sites", "no valid enabled sites to monitor")
	}

	if app.server != nil {
		if err := app.server.Start(); err != nil {
			return err
		}
	}

	if err := app.engine.Start(ctx); err != nil {
		return err
	}
	zLogger.Info().Strs("sites", app.engine.Sites()).Msg("Monitoring started, press Ctrl+C to stop")

	<-ctx.Done()
	zLogger.Info().Msg("Shutdown signal received")

	var collector common.ErrorCollector
	collector.Add(app.engine.Stop())
	if app.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		collector.Add(app.server.Shutdown(shutdownCtx))
		cancel()
	}

	printStats(stdout, app.engine.Stats(), time.Now())
	return collector.Error()
}

func printStats(w io.Writer, stats models.MonitorStats, now time.Time) {
	fmt.Fprintf(w, "Monitoring stopped after %s\n", stats.Uptime(now).Round(time.Second))
	fmt.Fprintf(w, "  Total checks:       %d\n", stats.TotalChecks)
	fmt.Fprintf(w, "  Successful:         %d (%.1f%%)\n", stats.SuccessfulChecks, stats.SuccessRate())
	fmt.Fprintf(w, "  Failed:             %d\n", stats.FailedChecks)
	fmt.Fprintf(w, "  Sizes found:        %d\n", stats.SizesFound)
	fmt.Fprintf(w, "  Notifications sent: %d\n", stats.NotificationsSent)
}

func runCheck(ctx context.Context, cfg *config.AppConfig, zLogger zerolog.Logger, flags AppFlags, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, zLogger, appOptions{cooldown: !flags.NoNotify, notify: !flags.NoNotify, history: true})
	if err != nil {
		return report(stderr, err)
	}
	defer app.Close()

	if flags.Site == "" {
		for _, ex := range app.engine.Excluded() {
			fmt.Fprintf(stderr, "Skipped %s: %s\n", ex.Site, ex.Reason)
		}
	}

	results, err := app.engine.Check(ctx, flags.Site)
	if err != nil {
		return report(stderr, err)
	}
	if stopErr := app.engine.Stop(); stopErr != nil {
		zLogger.Warn().Err(stopErr).Msg("Engine did not stop cleanly")
	}

	failed := printCheckResults(stdout, results)
	if failed > 0 {
		return 1
	}
	return 0
}

// printCheckResults writes one line per site plus a summary and returns the number of failed sites
func printCheckResults(w io.Writer, results []monitor.CheckResult) int {
	failed, events := 0, 0
	for _, r := range results {
		events += len(r.Events)
		switch {
		case r.Cancelled:
			failed++
			fmt.Fprintf(w, "[CANCELLED] %s\n", r.Site)
		case !r.Success:
			failed++
			fmt.Fprintf(w, "[FAIL] %s (%s): %s\n", r.Site, r.Parser, r.Error())
		default:
			sizes := availableSizes(r.Snapshots)
			available := "none"
			if len(sizes) > 0 {
				available = strings.Join(sizes, ", ")
			}
			fmt.Fprintf(w, "[OK]   %s (%s): available sizes: %s, new: %d\n", r.Site, r.Parser, available, len(r.Events))
		}
	}
	fmt.Fprintf(w, "Checked %d site(s): %d ok, %d failed, %d new availability event(s)\n",
		len(results), len(results)-failed, failed, events)
	return failed
}

func availableSizes(snapshots []models.AvailabilitySnapshot) []string {
	seen := make(map[string]bool)
	var sizes []string
	for _, snap := range snapshots {
		for _, size := range snap.AvailableSizes() {
			if !seen[size] {
				seen[size] = true
				sizes = append(sizes, size)
			}
		}
	}
	sort.Strings(sizes)
	return sizes
}

func runTestNotifications(ctx context.Context, cfg *config.AppConfig, zLogger zerolog.Logger, stdout, stderr io.Writer) int {
	dispatcher, err := notifier.FromConfig(cfg, zLogger)
	if err != nil {
		return report(stderr, err)
	}
	if len(dispatcher.Channels()) == 0 {
		return report(stderr, common.NewConfigurationError("", "notifications", "no notification channels are enabled"))
	}

	exitCode := 0
	for _, result := range dispatcher.TestChannels(ctx) {
		status := "OK"
		if !result.OK {
			status = "FAILED"
			exitCode = 1
		}
		fmt.Fprintf(stdout, "%-10s %s\n", result.Channel, status)
	}
	return exitCode
}

func runStatus(ctx context.Context, cfg *config.AppConfig, zLogger zerolog.Logger, stdout io.Writer) error {
	app, err := newApplication(ctx, cfg, zLogger, appOptions{history: true})
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Fprintf(stdout, "Configuration: %s\n", cfg.SourcePath)
	fmt.Fprintf(stdout, "Max concurrent checks: %d\n\n", cfg.MaxConcurrentChecks)

	for _, status := range app.engine.Status() {
		fmt.Fprintf(stdout, "%s\n", status.Name)
		fmt.Fprintf(stdout, "  parser:   %s\n", status.Parser)
		fmt.Fprintf(stdout, "  interval: %s\n", status.NominalInterval)
		fmt.Fprintf(stdout, "  sizes:    %s\n", strings.Join(status.Sizes, ", "))
		fmt.Fprintf(stdout, "  urls:     %d\n", len(status.URLs))
		if app.history != nil {
			fmt.Fprintf(stdout, "  last:     %s\n", describeLastCheck(app.history, status.Name))
		}
	}

	for _, site := range cfg.Sites {
		if !site.IsEnabled() {
			fmt.Fprintf(stdout, "%s\n  disabled\n", site.Name)
		}
	}
	for _, ex := range app.engine.Excluded() {
		fmt.Fprintf(stdout, "%s\n  excluded: %s\n", ex.Site, ex.Reason)
	}
	return nil
}

func describeLastCheck(history *datastore.HistoryStore, site string) string {
	last, err := history.LastCheck(site)
	if errors.Is(err, common.ErrNotFound) {
		return "never"
	}
	if err != nil {
		return "unknown (" + err.Error() + ")"
	}
	if !last.Success {
		return fmt.Sprintf("%s failed: %s", last.StartedAt.Local().Format(time.DateTime), last.Error)
	}
	available := "none available"
	if len(last.AvailableSizes) > 0 {
		available = "available " + strings.Join(last.AvailableSizes, ", ")
	}
	return fmt.Sprintf("%s ok, %s", last.StartedAt.Local().Format(time.DateTime), available)
}

func runInit(flags AppFlags, stdout io.Writer) error {
	if err := config.WriteExampleConfig(flags.InitPath, flags.Force); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Example configuration written to %s\n", flags.InitPath)
	fmt.Fprintln(stdout, "Edit the sites and notification settings, then run 'marketplace-monitor check --no-notify'.")
	return nil
}

func runConfig(cfg *config.AppConfig, flags AppFlags, stdout io.Writer) error {
	data, err := config.Dump(cfg, flags.Format)
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}

func runExport(cfg *config.AppConfig, zLogger zerolog.Logger, flags AppFlags, stdout io.Writer) error {
	if _, err := os.Stat(cfg.Storage.SQLitePath); err != nil {
		return common.WrapErrorf(common.ErrNotFound, "no history database at '%s'", cfg.Storage.SQLitePath)
	}

	history, err := datastore.NewHistoryStore(cfg.Storage.SQLitePath, zLogger)
	if err != nil {
		return err
	}
	defer history.Close()

	var since time.Time
	if flags.Since > 0 {
		since = time.Now().Add(-flags.Since)
	}

	written, err := history.ExportParquet(flags.ExportPath, since, datastore.DefaultExportOptions())
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Exported %d check(s) to %s\n", written, flags.ExportPath)
	return nil
}
