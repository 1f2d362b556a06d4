// Package metrics provides Prometheus metrics for the transfer engine.
// A nil *Transfers is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "adrive"

// Upload outcomes, used as the "outcome" label.
const (
	OutcomeRapid     = "rapid"
	OutcomeUploaded  = "uploaded"
	OutcomeResumed   = "resumed"
	OutcomeFailed    = "failed"
	OutcomeCompleted = "completed"
)

// Transfers holds the transfer counters and histograms.
type Transfers struct {
	bytesUploaded   prometheus.Counter
	bytesDownloaded prometheus.Counter
	partsUploaded   prometheus.Counter
	negotiations    *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	downloads       *prometheus.CounterVec
	duration        *prometheus.HistogramVec
}

// New registers the transfer metrics on reg. A nil reg uses a private
// registry so the counters work without being exported.
func New(reg prometheus.Registerer) *Transfers {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	f := promauto.With(reg)

	return &Transfers{
		bytesUploaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_uploaded_total",
			Help:      "Total part bytes sent to upload URLs",
		}),
		bytesDownloaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_downloaded_total",
			Help:      "Total bytes written from download responses",
		}),
		partsUploaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parts_uploaded_total",
			Help:      "Total parts acknowledged by upload URLs",
		}),
		negotiations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negotiations_total",
			Help:      "Dedup negotiations by terminal state",
		}, []string{"state"}),
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload attempts by outcome",
		}, []string{"outcome"}),
		downloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Download attempts by mode and outcome",
		}, []string{"mode", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Wall time of whole uploads and downloads",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"direction"}),
	}
}

// PartUploaded records one acknowledged part of n bytes.
func (t *Transfers) PartUploaded(n int64) {
	if t == nil {
		return
	}

	t.partsUploaded.Inc()
	t.bytesUploaded.Add(float64(n))
}

// BytesDownloaded records n bytes written to a download target.
func (t *Transfers) BytesDownloaded(n int64) {
	if t == nil || n <= 0 {
		return
	}

	t.bytesDownloaded.Add(float64(n))
}

// Negotiated records the terminal state a negotiation reached.
func (t *Transfers) Negotiated(state string) {
	if t == nil {
		return
	}

	t.negotiations.WithLabelValues(state).Inc()
}

// UploadFinished records an upload outcome and its duration.
func (t *Transfers) UploadFinished(outcome string, d time.Duration) {
	if t == nil {
		return
	}

	t.uploads.WithLabelValues(outcome).Inc()
	t.duration.WithLabelValues("upload").Observe(d.Seconds())
}

// DownloadFinished records a download outcome and its duration.
func (t *Transfers) DownloadFinished(mode, outcome string, d time.Duration) {
	if t == nil {
		return
	}

	t.downloads.WithLabelValues(mode, outcome).Inc()
	t.duration.WithLabelValues("download").Observe(d.Seconds())
}
