package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"termrun/internal/adapter/environment"
	"termrun/internal/domain"
	"termrun/internal/infra/config"
	"termrun/internal/infra/logger"
	"termrun/internal/infra/metrics"
	"termrun/internal/infra/middleware"
	"termrun/internal/infra/tracer"
	"termrun/internal/usecase/eventbus"
	"termrun/internal/usecase/history"
	"termrun/internal/usecase/process"
	"termrun/internal/usecase/terminal"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes by terminal state.
const (
	exitCompleted = 0
	exitFailed    = 1
	exitUsage     = 2
	exitCancelled = 130
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage(os.Stdout)
			return
		case "version", "--version":
			fmt.Printf("termrun %s\n", version)
			return
		case "doctor":
			if err := runDoctor(os.Stdout, configPath(os.Args[2:])); err != nil {
				fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
				os.Exit(exitFailed)
			}
			return
		}
	}

	args, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "termrun: %v\n\nRun 'termrun --help' for usage information.\n", err)
		os.Exit(exitUsage)
	}
	os.Exit(run(args, os.Stdout))
}

func showUsage(w io.Writer) {
	fmt.Fprintln(w, `termrun - run a shell command and stream its output into a chat history

USAGE:
    termrun [FLAGS] -- <command>
    termrun [COMMAND]

COMMANDS:
    version     Print the version
    doctor      Check the configuration and environment

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./termrun.yaml)
    --file PATH        File the command runs against; its project root
                       becomes the working directory

CONFIGURATION:
    Config file: ./termrun.yaml
    Environment: TERMRUN_* variables override config

EXIT STATUS:
    0 finished, 1 failed, 130 cancelled (SIGINT/SIGTERM)

EXAMPLES:
    termrun -- echo hello
    termrun --file ./main.go -- go test ./...
    termrun --config /etc/termrun.yaml -- make build`)
}

// cliArgs is the parsed command line of a run.
type cliArgs struct {
	ConfigPath string
	FilePath   string
	Command    string
}

// parseArgs reads flags up to "--"; everything after it is the command text.
// Without "--", the first non-flag argument starts the command.
func parseArgs(argv []string) (cliArgs, error) {
	args := cliArgs{ConfigPath: configPath(nil)}
	for i := 0; i < len(argv); i++ {
		a := argv[i]
		switch {
		case a == "--":
			args.Command = strings.Join(argv[i+1:], " ")
			i = len(argv)
		case a == "--config" || a == "--file":
			if i+1 >= len(argv) {
				return args, fmt.Errorf("%s requires a value", a)
			}
			if a == "--config" {
				args.ConfigPath = argv[i+1]
			} else {
				args.FilePath = argv[i+1]
			}
			i++
		case strings.HasPrefix(a, "--config="):
			args.ConfigPath = strings.TrimPrefix(a, "--config=")
		case strings.HasPrefix(a, "--file="):
			args.FilePath = strings.TrimPrefix(a, "--file=")
		case strings.HasPrefix(a, "-"):
			return args, fmt.Errorf("unknown flag: %s", a)
		default:
			args.Command = strings.Join(argv[i:], " ")
			i = len(argv)
		}
	}
	if strings.TrimSpace(args.Command) == "" {
		return args, errors.New("no command given")
	}
	return args, nil
}

// configPath returns the --config value in argv, then $TERMRUN_CONFIG,
// then the default.
func configPath(argv []string) string {
	for i, arg := range argv {
		if arg == "--" {
			break
		}
		if arg == "--config" && i+1 < len(argv) {
			return argv[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("TERMRUN_CONFIG"); p != "" {
		return p
	}
	return "termrun.yaml"
}

func run(args cliArgs, out io.Writer) int {
	// 1. Config
	cfg, err := config.Load(args.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitFailed
	}
	if args.FilePath != "" {
		cfg.Environment.FilePath = args.FilePath
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return exitFailed
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer, os.Stderr)
	if err != nil {
		log.Error("tracer setup failed", "error", err)
		return exitFailed
	}
	defer tracerShutdown(ctx)

	// 3. Metrics
	var rec *metrics.Recorder
	if cfg.Metrics.Enabled {
		rec = metrics.New()
		stop := serveMetrics(ctx, cfg.Metrics, rec, log)
		defer stop()
	}

	// 4. Event bus, history, delegate
	bus := eventbus.New(log)
	defer bus.Close()
	hist := history.New(bus)
	ctx = domain.ContextWithSessionID(ctx, hist.ID())

	// 5. Plugin
	resolver := environment.NewResolver(cfg.Environment.FilePath,
		environment.WithMarkers(cfg.Environment.ProjectMarkers),
		environment.WithLogger(log),
	)
	runner := process.NewRunner(process.RunnerConfig{
		ReadBufferSize: cfg.Terminal.ReadBufferSize,
		KillOnCancel:   cfg.Terminal.KillOnCancel,
	}, log)
	printer := newEntryPrinter(out)
	plugin := terminal.NewPlugin(terminal.PluginDeps{
		History:   hist,
		Resolver:  resolver,
		Runner:    runner,
		Shell:     cfg.Terminal.Shell,
		ShellArgs: cfg.Terminal.ShellArgs,
		Delegate:  terminal.NewBusDelegate(bus, hist.ID(), log),
		Metrics:   rec,
		Logger:    log,
	}, terminal.WithUpdateHook(printer.Update))

	// 6. Signals cancel the invocation; the process may outlive us.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if sig, ok := <-sigCh; ok {
			log.Info("signal received, cancelling", "signal", sig.String())
			plugin.Cancel()
		}
	}()

	res := plugin.Send(ctx, args.Command)
	printer.Finish()
	return exitCode(res.State)
}

func exitCode(state domain.InvocationState) int {
	switch state {
	case domain.InvocationCompleted:
		return exitCompleted
	case domain.InvocationCancelled:
		return exitCancelled
	default:
		return exitFailed
	}
}

// serveMetrics exposes rec on cfg.Addr until the returned stop func is called.
func serveMetrics(ctx context.Context, cfg config.MetricsConfig, rec *metrics.Recorder, log *slog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	mux := http.NewServeMux()
	mux.Handle("/metrics", middleware.Chain(rec.Handler(),
		middleware.Recover(log),
		middleware.RateLimit(ctx, cfg.RatePerMin, cfg.RateBurst),
		middleware.NoStore,
	))
	addr := cfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()
	return func() {
		defer cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown", "error", err)
		}
	}
}
