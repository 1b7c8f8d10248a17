package cli

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sys/unix"

	"github.com/Paintersrp/procspawn/internal/cliutil"
	"github.com/Paintersrp/procspawn/internal/config"
	"github.com/Paintersrp/procspawn/internal/logmux"
	"github.com/Paintersrp/procspawn/internal/metrics"
	"github.com/Paintersrp/procspawn/internal/pipe"
	"github.com/Paintersrp/procspawn/internal/process"
	"github.com/Paintersrp/procspawn/internal/sigmap"
)

const waitSlice = 100 * time.Millisecond

type runOptions struct {
	profilePath       string
	dir               string
	env               []string
	noInheritEnv      bool
	stdin             string
	stdout            string
	stderr            string
	keepFDs           []int
	timeout           time.Duration
	killOnTimeout     bool
	stopGrace         time.Duration
	suspended         bool
	resumeAfter       time.Duration
	newProcessGroup   bool
	killOnParentDeath bool
	dryRun            bool
	report            string
	reportFile        string
	output            string
	metricsAddr       string
	bufferSize        int
	lifecycle         bool
}

func newRunCmd(ctx *context) *cobra.Command {
	opts := &runOptions{
		output:      "text",
		reportFile:  "-",
		metricsAddr: os.Getenv("PROCSPAWN_METRICS_ADDR"),
		bufferSize:  256,
	}
	cmd := &cobra.Command{
		Use:   "run [flags] [--] [command [args...]]",
		Short: "Launch a program and wait for it to exit",
		Long: "Launch a program from a profile or the command line, relay its output and " +
			"forwarded signals, and exit with its exit code.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := opts.buildProfile(cmd, args)
			if err != nil {
				return err
			}
			if opts.dryRun {
				return printPlan(cmd.OutOrStdout(), profile, ctx.launcher())
			}
			return runProfile(cmd, ctx, opts, profile)
		},
	}

	flags := cmd.Flags()
	flags.SetInterspersed(false)
	flags.StringVarP(&opts.profilePath, "profile", "p", "", "Path to a launch profile")
	flags.StringVar(&opts.dir, "dir", "", "Working directory of the child")
	flags.StringArrayVarP(&opts.env, "env", "e", nil, "Set an environment variable (KEY=VALUE), repeatable")
	flags.BoolVar(&opts.noInheritEnv, "no-inherit-env", false, "Start from an empty environment")
	flags.StringVar(&opts.stdin, "stdin", "", "Stdin target (inherit, devnull, file:<path>)")
	flags.StringVar(&opts.stdout, "stdout", "", "Stdout target (inherit, devnull, pipe, file:<path>, append:<path>)")
	flags.StringVar(&opts.stderr, "stderr", "", "Stderr target (inherit, devnull, pipe, file:<path>, append:<path>)")
	flags.IntSliceVar(&opts.keepFDs, "keep-fd", nil, "Descriptor to keep open in the child, repeatable")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Maximum time to wait for the child")
	flags.BoolVar(&opts.killOnTimeout, "kill-on-timeout", false, "Kill the child when --timeout elapses")
	flags.DurationVar(&opts.stopGrace, "stop-grace", 0, "Time a timed-out child gets after SIGTERM before it is killed")
	flags.BoolVar(&opts.suspended, "suspended", false, "Hold the child before exec until resumed")
	flags.DurationVar(&opts.resumeAfter, "resume-after", 0, "Delay before resuming a suspended child")
	flags.BoolVar(&opts.newProcessGroup, "new-process-group", false, "Place the child in a new process group")
	flags.BoolVar(&opts.killOnParentDeath, "kill-on-parent-death", false, "Kill the child if procspawn dies")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the resolved launch plan without launching")
	flags.StringVar(&opts.report, "report", "", "Write an exit report (json, msgpack)")
	flags.StringVar(&opts.reportFile, "report-file", opts.reportFile, "Destination of the exit report, - for stdout")
	flags.StringVar(&opts.output, "output", opts.output, "Format of piped child output (text, json)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", opts.metricsAddr, "Serve Prometheus metrics on this address while running")
	flags.IntVar(&opts.bufferSize, "buffer", opts.bufferSize, "Number of output lines buffered ahead of the writer")
	flags.BoolVar(&opts.lifecycle, "lifecycle", false, "Interleave launch, resume, signal, timeout and exit events with the output")

	return cmd
}

func (o *runOptions) buildProfile(cmd *cobra.Command, args []string) (*config.Profile, error) {
	var profile *config.Profile
	if o.profilePath != "" {
		loaded, err := config.Load(o.profilePath)
		if err != nil {
			return nil, err
		}
		profile = loaded
		if len(args) > 0 {
			profile.Path = args[0]
			profile.Args = append([]string(nil), args...)
		}
	} else {
		if len(args) == 0 {
			return nil, errors.New("run: a command or --profile is required")
		}
		profile = &config.Profile{
			Version: "1",
			Path:    args[0],
			Args:    append([]string(nil), args...),
		}
	}

	flags := cmd.Flags()
	if flags.Changed("dir") {
		profile.Dir = o.dir
	}
	for _, kv := range o.env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("run: invalid --env %q, want KEY=VALUE", kv)
		}
		if profile.Env == nil {
			profile.Env = make(map[string]string)
		}
		profile.Env[key] = value
	}
	if flags.Changed("no-inherit-env") {
		inherit := !o.noInheritEnv
		profile.InheritEnv = &inherit
	}
	for _, target := range []struct {
		flag   string
		value  string
		stream *config.Stream
	}{
		{"stdin", o.stdin, &profile.Stdin},
		{"stdout", o.stdout, &profile.Stdout},
		{"stderr", o.stderr, &profile.Stderr},
	} {
		if !flags.Changed(target.flag) {
			continue
		}
		if err := target.stream.UnmarshalText([]byte(target.value)); err != nil {
			return nil, fmt.Errorf("run: --%s: %w", target.flag, err)
		}
	}
	profile.KeepFDs = append(profile.KeepFDs, o.keepFDs...)
	if flags.Changed("timeout") {
		profile.Timeout = config.Duration{Duration: o.timeout}
	}
	if flags.Changed("kill-on-timeout") {
		profile.KillOnTimeout = o.killOnTimeout
	}
	if flags.Changed("stop-grace") {
		profile.StopGrace = config.Duration{Duration: o.stopGrace}
	}
	if flags.Changed("suspended") {
		profile.StartSuspended = o.suspended
	}
	if flags.Changed("resume-after") {
		profile.ResumeAfter = config.Duration{Duration: o.resumeAfter}
	}
	if flags.Changed("new-process-group") {
		profile.NewProcessGroup = o.newProcessGroup
	}
	if flags.Changed("kill-on-parent-death") {
		profile.KillOnParentDeath = o.killOnParentDeath
	}

	switch o.report {
	case "", "json", "msgpack":
	default:
		return nil, fmt.Errorf("run: unsupported report format %q", o.report)
	}
	switch o.output {
	case "text", "json":
	default:
		return nil, fmt.Errorf("run: unsupported output format %q", o.output)
	}

	profile.ApplyDefaults()
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	return profile, nil
}

// resolvePath searches PATH for programs named without a directory, the way
// a shell would before exec.
func resolvePath(path string) string {
	if strings.Contains(path, "/") {
		return path
	}
	if found, err := exec.LookPath(path); err == nil {
		return found
	}
	return path
}

func printPlan(w io.Writer, profile *config.Profile, launcher *process.Launcher) error {
	spawner, err := launcher.Spawner()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "path: %s\n", resolvePath(profile.Path))
	fmt.Fprintf(w, "args: %q\n", profile.Args)
	if profile.Dir != "" {
		fmt.Fprintf(w, "dir: %s\n", profile.Dir)
	}
	fmt.Fprintf(w, "spawner: %s\n", spawner)
	fmt.Fprintf(w, "stdin: %s\nstdout: %s\nstderr: %s\n", profile.Stdin, profile.Stdout, profile.Stderr)
	if len(profile.KeepFDs) > 0 {
		fmt.Fprintf(w, "keepFds: %v\n", profile.KeepFDs)
	}
	fmt.Fprintf(w, "killOnParentDeath: %t\nstartSuspended: %t\nnewProcessGroup: %t\n",
		profile.KillOnParentDeath, profile.StartSuspended, profile.NewProcessGroup)
	if profile.Timeout.Duration > 0 {
		fmt.Fprintf(w, "timeout: %s (kill: %t, grace: %s)\n", profile.Timeout.Duration, profile.KillOnTimeout, profile.StopGrace.Duration)
	}
	fmt.Fprintln(w, "env:")
	for _, kv := range cliutil.RedactEnv(profile.Environment(os.Environ())) {
		fmt.Fprintf(w, "  %s\n", kv)
	}
	return nil
}

type runReport struct {
	Name         string         `json:"name,omitempty" msgpack:"name,omitempty"`
	Path         string         `json:"path" msgpack:"path"`
	Args         []string       `json:"args" msgpack:"args"`
	PID          int            `json:"pid,omitempty" msgpack:"pid,omitempty"`
	Spawner      string         `json:"spawner,omitempty" msgpack:"spawner,omitempty"`
	PidFD        bool           `json:"pidfd" msgpack:"pidfd"`
	ExitCode     int            `json:"exitCode" msgpack:"exitCode"`
	Signaled     bool           `json:"signaled" msgpack:"signaled"`
	Signal       string         `json:"signal,omitempty" msgpack:"signal,omitempty"`
	NativeSignal int            `json:"nativeSignal,omitempty" msgpack:"nativeSignal,omitempty"`
	CoreDumped   bool           `json:"coreDumped,omitempty" msgpack:"coreDumped,omitempty"`
	TimedOut     bool           `json:"timedOut,omitempty" msgpack:"timedOut,omitempty"`
	DurationMS   int64          `json:"durationMs" msgpack:"durationMs"`
	Failure      *failureReport `json:"failure,omitempty" msgpack:"failure,omitempty"`
}

type failureReport struct {
	Stage string `json:"stage" msgpack:"stage"`
	Error string `json:"error" msgpack:"error"`
}

func (r *runReport) setStatus(st process.ExitStatus) {
	r.ExitCode = st.Code
	r.Signaled = st.Signaled
	r.CoreDumped = st.CoreDumped
	if st.Signaled {
		r.NativeSignal = int(st.NativeSignal)
		if st.Signal != sigmap.None {
			r.Signal = st.Signal.String()
		}
	}
}

func writeReport(w io.Writer, format string, report *runReport) error {
	switch format {
	case "json":
		return json.NewEncoder(w).Encode(report)
	case "msgpack":
		return msgpack.NewEncoder(w).Encode(report)
	default:
		return nil
	}
}

func runProfile(cmd *cobra.Command, ctx *context, opts *runOptions, profile *config.Profile) (err error) {
	logger := ctx.getLogger()
	name := profile.Name
	if name == "" {
		name = filepath.Base(profile.Path)
	}
	report := &runReport{Name: profile.Name, Path: resolvePath(profile.Path), Args: profile.Args}

	defer func() {
		if opts.report == "" {
			return
		}
		if werr := emitReport(cmd, opts, report); werr != nil && err == nil {
			err = werr
		}
	}()

	if opts.metricsAddr != "" {
		shutdown, serr := serveMetrics(opts.metricsAddr, logger)
		if serr != nil {
			return serr
		}
		defer shutdown()
	}

	stdio, err := openStdio(profile)
	if err != nil {
		report.Failure = &failureReport{Stage: process.StagePrepare.String(), Error: err.Error()}
		return &exitError{code: 1, err: err}
	}
	defer stdio.closeParentEnds()

	spec := process.Spec{
		Path:              report.Path,
		Args:              profile.Args,
		Env:               profile.Environment(os.Environ()),
		Stdin:             stdio.fds[0],
		Stdout:            stdio.fds[1],
		Stderr:            stdio.fds[2],
		Dir:               profile.Dir,
		KillOnParentDeath: profile.KillOnParentDeath,
		StartSuspended:    profile.StartSuspended,
		NewProcessGroup:   profile.NewProcessGroup,
		KeepFDs:           profile.KeepFDs,
	}

	sigs, stop := notifyForwarded()
	defer stop()

	started := time.Now()
	h, err := ctx.launcher().Launch(spec)
	stdio.closeChildEnds()
	if err != nil {
		code := 1
		var launchErr *process.LaunchError
		if errors.As(err, &launchErr) {
			report.Failure = &failureReport{Stage: launchErr.Stage.String(), Error: err.Error()}
			code = launchExitCode(launchErr)
		} else {
			report.Failure = &failureReport{Error: err.Error()}
		}
		return &exitError{code: code, err: err}
	}
	defer h.Close()

	report.PID = h.Pid()
	report.Spawner = h.Spawner()
	report.PidFD = h.PidFD() >= 0
	logger.Info("launched process", slog.String("process", name), slog.Int("pid", h.Pid()), slog.String("spawner", h.Spawner()))

	events, finishOutput := relayOutput(cmd, opts, name, h.Pid(), stdio.pipes)
	events.emit("info", fmt.Sprintf("launched pid=%d spawner=%s", h.Pid(), h.Spawner()))

	if h.Suspended() {
		if err := resumeAfter(h, profile, sigs, logger, events); err != nil {
			logger.Warn("resume failed", slog.Int("pid", h.Pid()), slog.Any("error", err))
		}
	}

	st, timedOut, err := waitForExit(h, profile, sigs, logger, events)
	report.DurationMS = time.Since(started).Milliseconds()
	report.TimedOut = timedOut
	if err != nil {
		finishOutput()
		return &exitError{code: 1, err: err}
	}
	events.emit("info", "exited "+st.String())
	finishOutput()
	report.setStatus(st)
	logger.Info("process exited", slog.String("process", name), slog.Int("pid", report.PID), slog.String("status", st.String()))
	if st.Code != 0 {
		return &exitError{code: st.Code}
	}
	return nil
}

func emitReport(cmd *cobra.Command, opts *runOptions, report *runReport) error {
	if opts.reportFile == "" || opts.reportFile == "-" {
		return writeReport(cmd.OutOrStdout(), opts.report, report)
	}
	f, err := os.Create(opts.reportFile)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := writeReport(f, opts.report, report); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

// launchExitCode follows the shell's convention for programs that could not
// be executed.
func launchExitCode(err *process.LaunchError) int {
	if err.Stage != process.StageExec {
		return 1
	}
	if errors.Is(err, syscall.ENOENT) {
		return 127
	}
	return 126
}

func serveMetrics(addr string, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", slog.Any("error", err))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))
	return func() {
		shutdownCtx, cancel := stdcontext.WithTimeout(stdcontext.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}

type pipedStream struct {
	stream string
	r      *os.File
}

type stdioSet struct {
	fds        [3]int
	childEnds  []*os.File
	pipes      []pipedStream
	parentEnds []*os.File
}

func openStdio(profile *config.Profile) (*stdioSet, error) {
	set := &stdioSet{fds: [3]int{process.Inherit, process.Inherit, process.Inherit}}
	streams := []config.Stream{profile.Stdin, profile.Stdout, profile.Stderr}
	names := []string{"stdin", logmux.StreamStdout, logmux.StreamStderr}
	for i, s := range streams {
		var f *os.File
		var err error
		switch s.Kind {
		case config.StreamInherit, "":
			continue
		case config.StreamDevNull:
			flag := os.O_WRONLY
			if i == 0 {
				flag = os.O_RDONLY
			}
			f, err = os.OpenFile(os.DevNull, flag, 0)
		case config.StreamFile, config.StreamAppend:
			f, err = openTarget(s, i == 0)
		case config.StreamPipe:
			var pair pipe.Pair
			pair, err = pipe.New(0)
			if err == nil {
				set.pipes = append(set.pipes, pipedStream{stream: names[i], r: os.NewFile(uintptr(pair.R), names[i])})
				set.parentEnds = append(set.parentEnds, set.pipes[len(set.pipes)-1].r)
				f = os.NewFile(uintptr(pair.W), names[i])
			}
		default:
			err = fmt.Errorf("unsupported stream %q", s)
		}
		if err != nil {
			set.closeChildEnds()
			set.closeParentEnds()
			return nil, fmt.Errorf("%s: %w", names[i], err)
		}
		set.childEnds = append(set.childEnds, f)
		set.fds[i] = int(f.Fd())
	}
	return set, nil
}

func openTarget(s config.Stream, input bool) (*os.File, error) {
	if input {
		return os.Open(s.Path)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return nil, err
	}
	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if s.Kind == config.StreamAppend {
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	return os.OpenFile(s.Path, flag, 0o644)
}

func (s *stdioSet) closeChildEnds() {
	for _, f := range s.childEnds {
		f.Close()
	}
	s.childEnds = nil
}

func (s *stdioSet) closeParentEnds() {
	for _, f := range s.parentEnds {
		f.Close()
	}
	s.parentEnds = nil
}

// lifecycle carries events synthesized by run into the output mux. A nil
// lifecycle discards them.
type lifecycle struct {
	events  chan logmux.Event
	process string
	pid     int
}

func (l *lifecycle) emit(level, message string) {
	if l == nil {
		return
	}
	l.events <- logmux.Event{
		Process: l.process,
		PID:     l.pid,
		Stream:  logmux.StreamSystem,
		Level:   level,
		Message: message,
	}
}

// relayOutput writes piped child output, and lifecycle events when asked
// for, to the command's stdout. The returned function ends the lifecycle
// stream and waits until everything has been written.
func relayOutput(cmd *cobra.Command, opts *runOptions, name string, pid int, pipes []pipedStream) (*lifecycle, func()) {
	if len(pipes) == 0 && !opts.lifecycle {
		return nil, func() {}
	}
	mux := logmux.New(opts.bufferSize)
	for _, p := range pipes {
		mux.AddReader(name, pid, p.stream, p.r)
	}
	var events *lifecycle
	if opts.lifecycle {
		events = &lifecycle{events: make(chan logmux.Event, 8), process: name, pid: pid}
		mux.Add(events.events)
	}
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		out := cmd.OutOrStdout()
		var enc *json.Encoder
		if opts.output == "json" {
			enc = json.NewEncoder(out)
		}
		for evt := range mux.Output() {
			if enc != nil {
				cliutil.EncodeLogEvent(enc, cmd.ErrOrStderr(), evt)
				continue
			}
			cliutil.WriteLogEvent(out, evt)
		}
	}()
	done := make(chan struct{})
	go func() {
		mux.Close()
		<-consumed
		close(done)
	}()
	return events, func() {
		if events != nil {
			close(events.events)
		}
		<-done
	}
}

func resumeAfter(h *process.Handle, profile *config.Profile, sigs <-chan os.Signal, logger *slog.Logger, events *lifecycle) error {
	if delay := profile.ResumeAfter.Duration; delay > 0 {
		logger.Info("holding suspended process", slog.Int("pid", h.Pid()), slog.Duration("delay", delay))
		timer := time.NewTimer(delay)
		defer timer.Stop()
	hold:
		for {
			select {
			case <-timer.C:
				break hold
			case sig := <-sigs:
				forwardSignal(h, profile, sig, logger, events)
			}
		}
	}
	if err := h.Resume(); err != nil {
		return err
	}
	events.emit("info", "resumed")
	return nil
}

// waitForExit polls in short slices so forwarded signals and the overall
// timeout are handled on the goroutine that owns the handle.
func waitForExit(h *process.Handle, profile *config.Profile, sigs <-chan os.Signal, logger *slog.Logger, events *lifecycle) (process.ExitStatus, bool, error) {
	var deadline time.Time
	if profile.Timeout.Duration > 0 {
		deadline = time.Now().Add(profile.Timeout.Duration)
	}
	timedOut := false
	hangup := false
	for {
		st, done, err := awaitSlice(h, waitSlice, &hangup)
		if err != nil || done {
			return st, timedOut, err
		}
	drain:
		for {
			select {
			case sig := <-sigs:
				forwardSignal(h, profile, sig, logger, events)
			default:
				break drain
			}
		}
		if deadline.IsZero() || timedOut || time.Now().Before(deadline) {
			continue
		}
		timedOut = true
		events.emit("warn", "timeout after "+profile.Timeout.Duration.String())
		if profile.KillOnTimeout {
			if grace := profile.StopGrace.Duration; grace > 0 {
				logger.Warn("timeout elapsed, stopping process", slog.Int("pid", h.Pid()), slog.Duration("timeout", profile.Timeout.Duration), slog.Duration("grace", grace))
				st, err := h.Stop(grace)
				return st, true, err
			}
			logger.Warn("timeout elapsed, killing process", slog.Int("pid", h.Pid()), slog.Duration("timeout", profile.Timeout.Duration))
			st, err := h.WaitOrKill(0)
			return st, true, err
		}
		metrics.IncrementWaitTimeout()
		logger.Warn("timeout elapsed, still waiting", slog.Int("pid", h.Pid()), slog.Duration("timeout", profile.Timeout.Duration))
	}
}

// awaitSlice waits up to d for the child's pidfd or exit descriptor to become
// readable and then tries to reap it. Bytes the child wrote to the exit
// descriptor are discarded. End-of-file while the child is still running
// means the child closed it; later slices sleep.
func awaitSlice(h *process.Handle, d time.Duration, hangup *bool) (process.ExitStatus, bool, error) {
	fd := h.PidFD()
	exitFD := false
	if fd < 0 && !*hangup {
		fd = h.ExitFD()
		exitFD = true
	}
	var revents int16
	if fd >= 0 {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		if _, err := unix.Poll(fds, int(d.Milliseconds())); err != nil && !errors.Is(err, unix.EINTR) {
			return process.ExitStatus{}, false, os.NewSyscallError("poll", err)
		}
		revents = fds[0].Revents
	} else {
		time.Sleep(d)
	}
	st, done, err := h.TryWait()
	if !done && err == nil && exitFD && revents&(unix.POLLHUP|unix.POLLIN) != 0 {
		*hangup = exitFDClosed(fd)
	}
	return st, done, err
}

// exitFDClosed reads once from a readable exit descriptor and reports
// whether it is at end-of-file.
func exitFDClosed(fd int) bool {
	var buf [512]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return n == 0 && err == nil
	}
}

func forwardSignal(h *process.Handle, profile *config.Profile, sig os.Signal, logger *slog.Logger, events *lifecycle) {
	native, ok := sig.(syscall.Signal)
	if !ok {
		return
	}
	neutral, err := sigmap.ToNeutral(native)
	if err != nil {
		logger.Debug("signal not forwarded", slog.String("signal", native.String()), slog.Any("error", err))
		return
	}
	if profile.NewProcessGroup {
		err = h.SignalGroup(neutral)
	} else {
		err = h.Signal(neutral)
	}
	switch {
	case err == nil:
		logger.Info("forwarded signal", slog.Int("pid", h.Pid()), slog.String("signal", neutral.String()))
		events.emit("info", "forwarded "+neutral.String())
	case errors.Is(err, process.ErrProcessGone):
		logger.Debug("signal target already exited", slog.Int("pid", h.Pid()), slog.String("signal", neutral.String()))
	default:
		logger.Warn("forward signal", slog.Int("pid", h.Pid()), slog.String("signal", neutral.String()), slog.Any("error", err))
	}
}
