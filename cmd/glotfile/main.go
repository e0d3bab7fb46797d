// CLAUDE:SUMMARY Entry point: serve the polyglot API, or build/plan one polyglot from local files.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/hazyhaar/glotfile/api"
	"github.com/hazyhaar/glotfile/dbopen"
	"github.com/hazyhaar/glotfile/engine"
	"github.com/hazyhaar/glotfile/format"
	"github.com/hazyhaar/glotfile/observability"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	setupLogging(env("LOG_LEVEL", "info"))

	var err error
	switch os.Args[1] {
	case "serve":
		err = cmdServe(os.Args[2:])
	case "build":
		err = cmdBuild(os.Args[2:])
	case "plan":
		err = cmdPlan(os.Args[2:])
	case "formats":
		err = cmdFormats()
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `glotfile: build files that are valid in several formats at once

usage:
  glotfile serve   [--config file.yaml]
  glotfile build   -c <combination> [-o output] [--type t ...] <file>...
  glotfile plan    -c <combination> [--type t ...] <file>...
  glotfile formats

serve    Runs the HTTP API (and /mcp). PORT, METRICS_DB and GLOTFILE_CONFIG override the config.
build    Writes one validated polyglot.
plan     Prints the chosen layout as JSON without building.
formats  Lists the formats and the combination catalogue.
`)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func cmdServe(args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	configPath := fs.String("config", env("GLOTFILE_CONFIG", ""), "YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := api.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = api.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Listen = ":" + port
	}
	cfg.MetricsDB = env("METRICS_DB", cfg.MetricsDB)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	logger := slog.Default()

	engCfg := engine.Config{DeepPDF: cfg.DeepPDF, Logger: logger}
	var metrics *observability.MetricsManager
	if cfg.MetricsDB != "" {
		db, err := dbopen.Open(cfg.MetricsDB, cfg.MetricsOptions()...)
		if err != nil {
			return fmt.Errorf("metrics db: %w", err)
		}
		defer db.Close()

		metrics = observability.NewMetricsManager(db, 100, 5*time.Second)
		defer metrics.Close()
		generations := observability.NewGenerationLog(db, 256)
		defer generations.Close()

		hb := observability.NewHeartbeat(metrics, "glotfile", 15*time.Second)
		hb.Start(ctx)
		defer hb.Stop()
		// Registered after db.Close, so it runs first.
		stopRetention := startRetention(ctx, metrics, generations, cfg.MetricsRetentionDays)
		defer stopRetention()

		engCfg.Metrics = metrics
		engCfg.Generations = generations
		slog.Info("metrics enabled", "path", cfg.MetricsDB)
	}

	srv := api.NewServer(cfg, engine.New(engCfg), api.WithMetrics(metrics), api.WithLogger(logger))
	srv.StartGC(ctx.Done())

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("glotfile starting", "addr", cfg.Listen, "max_concurrent", cfg.MaxConcurrent, "deep_pdf", cfg.DeepPDF)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	// Refuse new work first; in-flight generations finish within the grace period.
	srv.Maintenance().Enable("shutting down")
	slog.Info("glotfile shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// startRetention prunes old rows once a day until the returned stop is
// called. stop waits for a prune in progress to finish.
func startRetention(ctx context.Context, mm *observability.MetricsManager, gl *observability.GenerationLog, days int) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		retention(ctx, mm, gl, days)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func retention(ctx context.Context, mm *observability.MetricsManager, gl *observability.GenerationLog, days int) {
	if days <= 0 {
		return
	}
	tick := time.NewTicker(24 * time.Hour)
	defer tick.Stop()
	for {
		if n, err := mm.Cleanup(ctx, days); err != nil {
			slog.Warn("metrics retention", "error", err)
		} else if n > 0 {
			slog.Info("metrics retention", "deleted", n)
		}
		if _, err := gl.Cleanup(ctx, days); err != nil {
			slog.Warn("generation log retention", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

type buildFlags struct {
	fs          *pflag.FlagSet
	combination *string
	types       *[]string
	deepPDF     *bool
}

func newBuildFlags(name string) *buildFlags {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	return &buildFlags{
		fs:          fs,
		combination: fs.StringP("combination", "c", "", "combination id, e.g. pdf-zip or pdf-video-image-zip"),
		types:       fs.StringSliceP("type", "t", nil, "per-file type overrides in file order (pdf, zip, mp4, image, html)"),
		deepPDF:     fs.Bool("deep-pdf", false, "validate PDF inputs with pdfcpu before planning"),
	}
}

func (b *buildFlags) request() (engine.Request, error) {
	paths := b.fs.Args()
	if len(paths) == 0 {
		return engine.Request{}, errors.New("no input files")
	}
	if len(*b.types) > len(paths) {
		return engine.Request{}, fmt.Errorf("%d --type values for %d files", len(*b.types), len(paths))
	}
	req := engine.Request{Combination: *b.combination}
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return engine.Request{}, err
		}
		f := format.InputFile{Name: filepath.Base(p), Data: data}
		if i < len(*b.types) && (*b.types)[i] != "" {
			if f.Type, err = format.ParseType((*b.types)[i]); err != nil {
				return engine.Request{}, err
			}
		}
		req.Files = append(req.Files, f)
	}
	return req, nil
}

func cmdBuild(args []string) error {
	b := newBuildFlags("build")
	output := b.fs.StringP("output", "o", "", "output path (default: the suggested filename)")
	if err := b.fs.Parse(args); err != nil {
		return err
	}
	req, err := b.request()
	if err != nil {
		return err
	}

	out, err := engine.New(engine.Config{DeepPDF: *b.deepPDF}).Generate(context.Background(), req)
	if err != nil {
		return err
	}
	path := *output
	if path == "" {
		path = out.Filename
	}
	if err := os.WriteFile(path, out.Data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "done: %s (%d bytes, anchor %s)\n", path, len(out.Data), out.Anchor)
	fmt.Fprintf(os.Stderr, "  blake3: %s\n", out.Digest)
	for _, t := range out.Plan.Relaxed() {
		fmt.Fprintf(os.Stderr, "  note: %s opens in tolerant readers only\n", t.Label())
	}
	return nil
}

func cmdPlan(args []string) error {
	b := newBuildFlags("plan")
	if err := b.fs.Parse(args); err != nil {
		return err
	}
	req, err := b.request()
	if err != nil {
		return err
	}
	p, err := engine.New(engine.Config{DeepPDF: *b.deepPDF}).Plan(context.Background(), req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(p.Summary())
}

func cmdFormats() error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FORMAT\tMIME\tEXT\tTRAIL")
	for _, d := range engine.New(engine.Config{}).Formats() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Type, strings.Join(d.MIMEs(), ","), d.Extension, d.Trail)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "COMBINATION\tTITLE")
	for _, c := range engine.Combinations() {
		fmt.Fprintf(tw, "%s\t%s\n", c.ID, c.Title)
	}
	return tw.Flush()
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
