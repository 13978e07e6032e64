// Package metrics exposes protocol counters of the device session.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skobkin/isxgo/internal/protocol"
)

const namespace = "isx3"

type Collector struct {
	registry        *prometheus.Registry
	framesWritten   *prometheus.CounterVec // labels: family
	bytesRead       prometheus.Counter
	statusMessages  *prometheus.CounterVec // labels: code
	resultsParsed   prometheus.Counter
	malformedFrames prometheus.Counter
	captureTimeouts prometheus.Counter
	runs            prometheus.Counter
}

// New registers the session counters on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		framesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_written_total",
			Help:      "Command frames written to the device by family.",
		}, []string{"family"}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Bytes read from the serial link.",
		}),
		statusMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_messages_total",
			Help:      "System messages received by status code.",
		}, []string{"code"}),
		resultsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurement_results_total",
			Help:      "Measurement result frames parsed.",
		}),
		malformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Response frames that could not be decoded.",
		}),
		captureTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_timeouts_total",
			Help:      "Measurement captures that ended before all results arrived.",
		}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurement_runs_total",
			Help:      "Completed measurement runs.",
		}),
	}
	c.registry.MustRegister(
		c.framesWritten,
		c.bytesRead,
		c.statusMessages,
		c.resultsParsed,
		c.malformedFrames,
		c.captureTimeouts,
		c.runs,
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) FrameWritten(family protocol.Family) {
	c.framesWritten.WithLabelValues(family.String()).Inc()
}

func (c *Collector) BytesRead(n int) {
	if n > 0 {
		c.bytesRead.Add(float64(n))
	}
}

func (c *Collector) StatusReceived(code protocol.StatusCode) {
	c.statusMessages.WithLabelValues(code.String()).Inc()
}

func (c *Collector) ResultsParsed(n int) {
	if n > 0 {
		c.resultsParsed.Add(float64(n))
	}
}

func (c *Collector) MalformedFrames(n int) {
	if n > 0 {
		c.malformedFrames.Add(float64(n))
	}
}

func (c *Collector) CaptureTimedOut() {
	c.captureTimeouts.Inc()
}

func (c *Collector) RunCompleted() {
	c.runs.Inc()
}

// WriteTextfile writes the current values in the node_exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}
