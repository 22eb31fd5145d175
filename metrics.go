package resq

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "resq"

// statsExporter exposes push/perform counters as prometheus metrics.
type statsExporter struct {
	jobsOk        *uint64
	jobsErr       *uint64
	jobsCancelled *uint64
	pushOk        *uint64
	pushErr       *uint64

	jobsOkDesc        *prometheus.Desc
	jobsErrDesc       *prometheus.Desc
	jobsCancelledDesc *prometheus.Desc
	pushOkDesc        *prometheus.Desc
	pushErrDesc       *prometheus.Desc

	performLatencyHistogram *prometheus.HistogramVec
}

// MetricsCollector exposes the client's collectors for registration on a
// prometheus registry.
func (c *Client) MetricsCollector() []prometheus.Collector {
	return []prometheus.Collector{c.metrics}
}

func newStatsExporter() *statsExporter {
	return &statsExporter{
		jobsOk:        toPtr(uint64(0)),
		jobsErr:       toPtr(uint64(0)),
		jobsCancelled: toPtr(uint64(0)),
		pushOk:        toPtr(uint64(0)),
		pushErr:       toPtr(uint64(0)),

		jobsOkDesc:        prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "jobs_ok"), "Number of successfully performed jobs", nil, nil),
		jobsErrDesc:       prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "jobs_err"), "Number of jobs which failed while performing", nil, nil),
		jobsCancelledDesc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "jobs_cancelled"), "Number of jobs skipped by a cancellation signal", nil, nil),
		pushOkDesc:        prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "push_ok"), "Number of jobs pushed to the store", nil, nil),
		pushErrDesc:       prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "push_err"), "Number of jobs which failed to push", nil, nil),

		performLatencyHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: prometheus.BuildFQName(namespace, "", "perform_latency"),
			Help: "Histogram represents latency for the perform operation",
		}, []string{"queue", "class"}),
	}
}

func (se *statsExporter) CountJobOk() {
	atomic.AddUint64(se.jobsOk, 1)
}

func (se *statsExporter) CountJobErr() {
	atomic.AddUint64(se.jobsErr, 1)
}

func (se *statsExporter) CountJobCancelled() {
	atomic.AddUint64(se.jobsCancelled, 1)
}

func (se *statsExporter) CountPushOk() {
	atomic.AddUint64(se.pushOk, 1)
}

func (se *statsExporter) CountPushErr() {
	atomic.AddUint64(se.pushErr, 1)
}

func (se *statsExporter) ObservePerform(queue, class string, seconds float64) {
	se.performLatencyHistogram.WithLabelValues(queue, class).Observe(seconds)
}

func (se *statsExporter) Describe(d chan<- *prometheus.Desc) {
	d <- se.jobsOkDesc
	d <- se.jobsErrDesc
	d <- se.jobsCancelledDesc
	d <- se.pushOkDesc
	d <- se.pushErrDesc

	se.performLatencyHistogram.Describe(d)
}

func (se *statsExporter) Collect(ch chan<- prometheus.Metric) {
	// send the values to the prometheus
	ch <- prometheus.MustNewConstMetric(se.jobsOkDesc, prometheus.GaugeValue, float64(atomic.LoadUint64(se.jobsOk)))
	ch <- prometheus.MustNewConstMetric(se.jobsErrDesc, prometheus.GaugeValue, float64(atomic.LoadUint64(se.jobsErr)))
	ch <- prometheus.MustNewConstMetric(se.jobsCancelledDesc, prometheus.GaugeValue, float64(atomic.LoadUint64(se.jobsCancelled)))
	ch <- prometheus.MustNewConstMetric(se.pushOkDesc, prometheus.GaugeValue, float64(atomic.LoadUint64(se.pushOk)))
	ch <- prometheus.MustNewConstMetric(se.pushErrDesc, prometheus.GaugeValue, float64(atomic.LoadUint64(se.pushErr)))

	se.performLatencyHistogram.Collect(ch)
}

func toPtr[T any](v T) *T {
	return &v
}
