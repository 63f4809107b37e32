// Package main implements dynapatch, which patches a Dynalist desktop install
// so it stops checking for updates and renders notes in a chosen font.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"

	rootpkg "tools.zach/dev/dynapatch"
	"tools.zach/dev/dynapatch/internal/atomicfile"
	"tools.zach/dev/dynapatch/internal/config"
	"tools.zach/dev/dynapatch/internal/fsutil"
	"tools.zach/dev/dynapatch/internal/logger"
	"tools.zach/dev/dynapatch/internal/patcher"
	"tools.zach/dev/dynapatch/internal/paths"
)

const usageLine = "usage: dynapatch [flags] <path-to-dynalist> <font-name>"

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags (-X main.version=0.1.0). Bare go
// builds fall back to the VCS info embedded by the toolchain.
var version = "dev"

// resolveVersion returns [version] when set via ldflags, otherwise a
// "dev+<hash>" tag built from the embedded VCS revision.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Run Lock
// ///////////////////////////////////////////////

var errLocked = errors.New("locked by another process")

// lockError reports a run lock held by another dynapatch process.
type lockError struct {
	path string
	pid  int
}

func (e *lockError) Error() string {
	if e.pid > 0 {
		return fmt.Sprintf("%s is held by pid %d", e.path, e.pid)
	}
	return e.path + " is held by another process"
}

func (e *lockError) Unwrap() error { return errLocked }

// acquireLock opens the lock file at path, takes an exclusive non-blocking
// lock and records the current pid in it. The returned file must stay open
// until the run is over; pass it to [releaseLock].
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if errors.Is(err, errLocked) {
			return nil, &lockError{path: path, pid: lockHolder(path)}
		}
		return nil, err
	}
	if err := f.Truncate(0); err != nil {
		releaseLock(f)
		return nil, fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		releaseLock(f)
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return f, nil
}

// releaseLock unlocks and closes f. The file itself stays in place so a
// concurrent opener never locks an unlinked inode.
func releaseLock(f *os.File) {
	if f == nil {
		return
	}
	_ = unlockFile(f)
	f.Close()
}

// lockHolder returns the pid recorded in the lock file, or 0.
func lockHolder(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// ///////////////////////////////////////////////
// Signals
// ///////////////////////////////////////////////

// signalContext returns a context cancelled on the first interrupt. Routines
// finish their current step and stop.
func signalContext(log *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := signalChannel()
	go func() {
		select {
		case sig := <-ch:
			log.Warn("interrupted, stopping after the current step", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(ch)
		cancel()
	}
}

// ///////////////////////////////////////////////
// Entry Point
// ///////////////////////////////////////////////

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args, patches the install and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dynapatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Config file (default <path-to-dynalist>/resources/"+paths.ConfigFile+")")
	dryRun := fs.Bool("dry-run", false, "Show the edits without repacking archives (backups and resources/temp are still written)")
	logLevel := fs.String("log-level", "", "Log level: trace, debug, info, warn, error, fail (overrides config)")
	showVersion := fs.Bool("version", false, "Print the version and exit")
	writeConfig := fs.Bool("write-config", false, "Write the default config file and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, usageLine)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, "dynapatch", resolveVersion())
		return 0
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stdout, usageLine)
		return 0
	}
	if *logLevel != "" && !logger.ValidLevel(*logLevel) {
		fmt.Fprintf(stderr, "invalid -log-level %q\n", *logLevel)
		return 2
	}

	layout := paths.NewLayout(fs.Arg(0))
	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = layout.Config
	}

	if *writeConfig {
		if err := writeDefaultConfig(cfgPath); err != nil {
			fmt.Fprintf(stderr, "fatal: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "wrote", cfgPath)
		return 0
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		// Without a font argument the config was the only font source.
		if fs.NArg() < 2 {
			fmt.Fprintln(stdout, usageLine)
			fmt.Fprintf(stderr, "load config: %v\n", err)
			return 0
		}
		fmt.Fprintf(stderr, "fatal: load config: %v\n", err)
		return 1
	}

	font := cfg.Font.Family
	if fs.NArg() >= 2 {
		font = fs.Arg(1)
	}
	if font == "" {
		fmt.Fprintln(stdout, usageLine)
		return 0
	}

	level := cfg.Log.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logFile := cfg.Log.File
	if logFile != "" && !filepath.IsAbs(logFile) {
		logFile = filepath.Join(layout.Resources, logFile)
	}
	log, logCloser := logger.NewLogger(logger.Options{
		Console:   stdout,
		File:      logFile,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Level:     logger.ParseLevel(level),
	})
	defer logCloser.Close()

	log.Info("dynapatch starting", "version", resolveVersion(), "install", layout.Root, "font", font, "dry_run", *dryRun)

	if err := fsutil.ExistsDir(layout.Resources); err != nil {
		log.Error("resources directory not found", "path", layout.Resources, "error", err)
		return 1
	}
	if err := os.MkdirAll(layout.Temp, 0o755); err != nil {
		log.Error("create temp directory", "path", layout.Temp, "error", err)
		return 1
	}
	lock, err := acquireLock(layout.Lock)
	if err != nil {
		log.Error("another dynapatch run is active", "error", err)
		return 1
	}
	defer releaseLock(lock)

	ctx, stop := signalContext(log)
	defer stop()

	opts := patcher.Options{
		DryRun: *dryRun,
		Unpack: cfg.Archive.Unpack,
	}
	if *dryRun {
		opts.Preview = stdout
	}
	results := patcher.New(log, opts).RunAll(ctx, patcher.Jobs(layout, font)...)
	return exitCode(log, results)
}

// exitCode logs a summary of results and returns 1 if any job failed.
func exitCode(log *slog.Logger, results []patcher.Result) int {
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Job)
		}
	}
	if len(failed) > 0 {
		log.Error("finished with failures", "failed", strings.Join(failed, ","), "total", len(results))
		return 1
	}
	log.Info("finished", "total", len(results))
	return 0
}

// writeDefaultConfig writes the embedded default config to path. An existing
// file is never overwritten.
func writeDefaultConfig(path string) error {
	if _, err := fsutil.Exists(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := atomicfile.Write(path, rootpkg.DefaultConfigTOML, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
