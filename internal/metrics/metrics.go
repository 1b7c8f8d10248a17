package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	launches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procspawn",
		Name:      "launches_total",
		Help:      "Total number of successful launches per spawner.",
	}, []string{"spawner"})

	launchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procspawn",
		Name:      "launch_failures_total",
		Help:      "Total number of failed launches by failing stage.",
	}, []string{"stage"})

	launchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "procspawn",
		Name:      "launch_latency_seconds",
		Help:      "Time from launch request until the child reached exec or its suspension point.",
		Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
	}, []string{"spawner"})

	exits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procspawn",
		Name:      "exits_total",
		Help:      "Total number of reaped children by kind of exit (exited, signaled).",
	}, []string{"kind"})

	waitTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "procspawn",
		Name:      "wait_timeouts_total",
		Help:      "Total number of bounded waits that elapsed with the child still running.",
	})

	signalsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procspawn",
		Name:      "signals_sent_total",
		Help:      "Total number of signals delivered to children by signal and result.",
	}, []string{"signal", "result"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procspawn",
		Name:      "build_info",
		Help:      "Build metadata for the running procspawn binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(launches, launchFailures, launchLatency, exits, waitTimeouts, signalsSent, buildInfo)
}

// Registry returns the Prometheus registry containing all procspawn metrics.
func Registry() *prometheus.Registry {
	return registry
}

// ObserveLaunch records a successful launch and how long it took.
func ObserveLaunch(spawner string, d time.Duration) {
	label := spawner
	if label == "" {
		label = "unknown"
	}
	launches.WithLabelValues(label).Inc()
	launchLatency.WithLabelValues(label).Observe(d.Seconds())
}

// IncrementLaunchFailure counts a launch that failed at the given stage.
func IncrementLaunchFailure(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	launchFailures.WithLabelValues(stage).Inc()
}

// IncrementExit counts a reaped child. Signaled selects the kind label.
func IncrementExit(signaled bool) {
	kind := "exited"
	if signaled {
		kind = "signaled"
	}
	exits.WithLabelValues(kind).Inc()
}

// IncrementWaitTimeout counts a bounded wait that expired.
func IncrementWaitTimeout() {
	waitTimeouts.Inc()
}

// IncrementSignal counts a signal delivery attempt. Result is one of
// "delivered", "gone" or "error".
func IncrementSignal(signal, result string) {
	if signal == "" {
		return
	}
	signalsSent.WithLabelValues(signal, result).Inc()
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
