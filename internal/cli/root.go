package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Paintersrp/procspawn/internal/process"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	ctx := &context{
		logLevel:  envOrDefault("PROCSPAWN_LOG_LEVEL", "warn"),
		logFormat: "auto",
		spawner:   os.Getenv("PROCSPAWN_SPAWNER"),
	}

	root := &cobra.Command{
		Use:   "procspawn",
		Short: "Launch and supervise child processes",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), ctx.logLevel, ctx.logFormat)
			if err != nil {
				return err
			}
			ctx.logger = logger
			return nil
		},
	}

	root.PersistentFlags().StringVar(&ctx.logLevel, "log-level", ctx.logLevel, "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&ctx.logFormat, "log-format", ctx.logFormat, "Log format (auto, text, json)")
	root.PersistentFlags().StringVar(&ctx.spawner, "spawner", ctx.spawner, "Spawner to use instead of the best available one")

	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newSignalsCmd())
	root.AddCommand(newCapsCmd(ctx))
	root.AddCommand(newProfileCmd())
	root.AddCommand(newVersionCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint. A child's exit code becomes the exit code
// of procspawn itself.
func Execute() {
	root := NewRootCmd()
	err := root.ExecuteContext(stdcontext.Background())
	os.Exit(exitCodeFor(err, os.Stderr))
}

func exitCodeFor(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintln(stderr, exitErr.err)
		}
		return exitErr.code
	}
	fmt.Fprintln(stderr, err)
	return 1
}

// exitError carries the exit code procspawn should terminate with.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

type context struct {
	logLevel  string
	logFormat string
	spawner   string
	logger    *slog.Logger
}

func (c *context) getLogger() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

func (c *context) launcher() *process.Launcher {
	opts := []process.LauncherOption{process.WithLogger(c.getLogger())}
	if c.spawner != "" {
		opts = append(opts, process.WithSpawner(c.spawner))
	}
	return process.NewLauncher(opts...)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "auto":
		if isTerminal(w) {
			return slog.New(slog.NewTextHandler(w, opts)), nil
		}
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// forwardedSignals are relayed from procspawn to the supervised child.
var forwardedSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGUSR1, syscall.SIGUSR2}

func notifyForwarded() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, len(forwardedSignals))
	signal.Notify(ch, forwardedSignals...)
	return ch, func() { signal.Stop(ch) }
}
