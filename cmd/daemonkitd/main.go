/**
 * CONTEXT:   Entry point for the daemonkitd binary: the daemon process itself
 * INPUT:     CLI flags, an optional --config YAML file, and the environment
 * OUTPUT:    A running event loop, daemonized or foregrounded, until signaled to stop
 * BUSINESS:  This is the binary operators actually deploy; every other package supports it
 * CHANGE:    Initial implementation
 * RISK:      High - Main entry point; a mistake here affects every daemon deployment
 */

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/daemonkit/daemonkit/internal/config"
	"github.com/daemonkit/daemonkit/internal/daemonize"
	"github.com/daemonkit/daemonkit/internal/democomponent"
	"github.com/daemonkit/daemonkit/internal/engine"
	"github.com/daemonkit/daemonkit/internal/legacylog"
	"github.com/daemonkit/daemonkit/internal/opscomponent"
	"github.com/daemonkit/daemonkit/internal/pidfile"
	"github.com/daemonkit/daemonkit/internal/runlog"
	"github.com/daemonkit/daemonkit/internal/signalbridge"
	"github.com/daemonkit/daemonkit/internal/statefile"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	configFile    string
	noDaemon      bool
	chrootDir     string
	workDir       string
	pidFile       string
	stateFile     string
	umask         int
	statsInterval int
	parallel      bool
	logLevel      string
	logFormat     string
)

// octalValue parses the --umask flag in octal notation ("002", "0o022"),
// the way umask values are conventionally written, instead of pflag's
// decimal IntVar.
type octalValue int

var _ pflag.Value = (*octalValue)(nil)

func (o *octalValue) String() string { return fmt.Sprintf("%03o", int(*o)) }

func (o *octalValue) Set(s string) error {
	v, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(s), "0o"), 8, 32)
	if err != nil {
		return fmt.Errorf("invalid octal mask %q", s)
	}
	*o = octalValue(v)
	return nil
}

func (o *octalValue) Type() string { return "octal" }

var rootCmd = &cobra.Command{
	Use:   "daemonkitd",
	Short: "daemonkitd runs the event-driven daemon engine",
	Long: `daemonkitd is the daemon binary built on the dual-queue event engine:
a single-threaded loop dispatching FIFO and timed events to registered
components, daemonized via a re-exec detach sequence.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (built %s)", Version, BuildTime)
	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "path to an optional YAML config file")
	flags.BoolVar(&noDaemon, "no-daemon", false, "stay in foreground; use lite daemonize; log to console")
	flags.StringVar(&chrootDir, "chroot-dir", "", "chroot target before dropping into the loop")
	flags.StringVar(&workDir, "work-dir", config.DefaultWorkDir, "chdir target")
	flags.StringVar(&pidFile, "pid-file", config.DefaultPIDFile, "PID file location")
	flags.StringVar(&stateFile, "state-file", config.DefaultStateFile, "state snapshot location")
	umask = config.DefaultUmask
	flags.Var((*octalValue)(&umask), "umask", "file mode mask, octal")
	flags.IntVar(&statsInterval, "stats-interval", int(config.DefaultStatsInterval.Seconds()), "seconds between log_statistics events")
	flags.BoolVar(&parallel, "parallel", false, "enable PID/state/runlog suffixing by PID")
	flags.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", config.DefaultLogFormat, "log format (json, text, legacy)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg := config.NewDefaultConfig()
	if err := config.LoadFile(cfg, configFile); err != nil {
		return err
	}
	config.LoadEnv(cfg)
	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("daemonkitd: %w", err)
	}

	if cfg.Parallel {
		pid := os.Getpid()
		cfg.PIDFile = pidfile.Suffixed(cfg.PIDFile, pid)
		cfg.StateFile = pidfile.Suffixed(cfg.StateFile, pid)
		cfg.RunLogDir = pidfile.Suffixed(cfg.RunLogDir, pid)
	}

	logger := buildLogger(cfg)
	slog.SetDefault(logger)

	startedAt := time.Now()
	record := runlog.New(startedAt)

	comp := democomponent.New(0)
	ops := opscomponent.New(record, cfg.NoDaemon)
	eng := engine.New(
		[]engine.Component{comp, ops},
		engine.WithLogger(logger),
		engine.WithConfig(cfg),
		engine.WithStatsInterval(cfg.StatsInterval),
		engine.WithPaths(engine.Paths{
			PIDFile:   cfg.PIDFile,
			StateFile: cfg.StateFile,
			RunLogDir: cfg.RunLogDir,
		}),
	)

	var bridge *signalbridge.Bridge
	daemonizeCfg := daemonize.Config{
		WorkDir:   cfg.WorkDir,
		ChrootDir: cfg.ChrootDir,
		Umask:     cfg.Umask,
		PIDFile:   cfg.PIDFile,
	}

	install := func() error {
		bridge = signalbridge.Install(eng)
		return nil
	}

	var daemonErr error
	if cfg.NoDaemon {
		daemonErr = daemonize.Lite(daemonizeCfg, install)
	} else {
		daemonErr = daemonize.Full(daemonizeCfg, install)
	}
	if daemonErr != nil {
		return fmt.Errorf("daemonkitd: daemonize: %w", daemonErr)
	}

	record = record.WithChildPID(os.Getpid())
	ops.SetRecord(record)
	eng.SetLastRunlog(record.AsMap())

	runErr := eng.Run()

	if bridge != nil {
		bridge.Stop()
	}

	exitCode := eng.LastExitCode()
	finished := record.Finish(exitCode, runErr)
	if cfg.RunLogDir != "" {
		if _, err := runlog.Save(cfg.RunLogDir, finished); err != nil {
			logger.Warn("failed to save runlog", "error", err)
		}
	}
	if cfg.StateFile != "" {
		if err := statefile.Save(cfg.StateFile, eng.State()); err != nil {
			logger.Warn("failed to save state file", "error", err)
		}
	}
	_ = pidfile.Remove(cfg.PIDFile)

	return runErr
}

func applyFlags(cmd *cobra.Command, cfg *config.DaemonConfig) {
	flags := cmd.Flags()
	if flags.Changed("no-daemon") {
		cfg.NoDaemon = noDaemon
	}
	if flags.Changed("chroot-dir") {
		cfg.ChrootDir = chrootDir
	}
	if flags.Changed("work-dir") {
		cfg.WorkDir = workDir
	}
	if flags.Changed("pid-file") {
		cfg.PIDFile = pidFile
	}
	if flags.Changed("state-file") {
		cfg.StateFile = stateFile
	}
	if flags.Changed("umask") {
		cfg.Umask = umask
	}
	if flags.Changed("stats-interval") {
		cfg.StatsInterval = time.Duration(statsInterval) * time.Second
	}
	if flags.Changed("parallel") {
		cfg.Parallel = parallel
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
}

func buildLogger(cfg *config.DaemonConfig) *slog.Logger {
	level := legacylog.ParseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "legacy":
		handler = legacylog.NewHandler(os.Stdout, "daemonkitd", level)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
