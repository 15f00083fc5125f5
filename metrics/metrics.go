// Package metrics exposes Prometheus instrumentation for the host-side
// protocol: frame traffic, serviced RPCs and session outcomes.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all protocol metrics.
type Registry struct {
	FramesRead    *prometheus.CounterVec // by device→host kind
	FramesWritten *prometheus.CounterVec // by host→device kind

	RPCServed     prometheus.Counter
	RPCExceptions prometheus.Counter

	KernelsFinished  prometheus.Counter
	KernelExceptions prometheus.Counter

	SessionErrors prometheus.Counter
}

// Get returns the global metrics registry, creating it on first use.
func Get() *Registry {
	once.Do(func() {
		registry = &Registry{
			FramesRead: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "corelink",
				Name:      "frames_read_total",
				Help:      "Device-to-host frames read, by message kind.",
			}, []string{"kind"}),
			FramesWritten: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "corelink",
				Name:      "frames_written_total",
				Help:      "Host-to-device frames written, by message kind.",
			}, []string{"kind"}),
			RPCServed: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "corelink",
				Name:      "rpc_served_total",
				Help:      "Device-initiated RPC requests serviced successfully.",
			}),
			RPCExceptions: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "corelink",
				Name:      "rpc_exceptions_total",
				Help:      "RPC requests answered with an exception reply.",
			}),
			KernelsFinished: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "corelink",
				Name:      "kernels_finished_total",
				Help:      "Serve loops terminated by a clean kernel finish.",
			}),
			KernelExceptions: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "corelink",
				Name:      "kernel_exceptions_total",
				Help:      "Serve loops terminated by a device-reported kernel fault.",
			}),
			SessionErrors: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "corelink",
				Name:      "session_errors_total",
				Help:      "Sessions ended by an I/O or protocol error.",
			}),
		}
	})
	return registry
}
