package dtnagg

import (
	"strconv"

	"github.com/dtnfabric/fabricprobe/portmap"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the 34-row DTN table as Prometheus metrics,
// grounded on psaab-bpfrx/pkg/api/metrics.go's Collector pattern: one
// *prometheus.Desc per metric family, one MustNewConstMetric call per
// (row, metric) at scrape time.
type Collector struct {
	agg *Aggregator

	goodTotal      *prometheus.Desc
	badTotal       *prometheus.Desc
	lostTotal      *prometheus.Desc
	shortTotal     *prometheus.Desc
	bitErrorsTotal *prometheus.Desc
	berGauge       *prometheus.Desc
	txGbpsGauge    *prometheus.Desc
	rxGbpsGauge    *prometheus.Desc
	rowUp          *prometheus.Desc
}

// NewCollector wraps agg as a prometheus.Collector.
func NewCollector(agg *Aggregator) *Collector {
	labels := []string{"dtn_port", "server_port"}
	return &Collector{
		agg:            agg,
		goodTotal:      prometheus.NewDesc("fabricprobe_dtn_good_packets_total", "Good PRBS-verified packets per DTN row.", labels, nil),
		badTotal:       prometheus.NewDesc("fabricprobe_dtn_bad_packets_total", "PRBS-mismatched packets per DTN row.", labels, nil),
		lostTotal:      prometheus.NewDesc("fabricprobe_dtn_lost_packets_total", "Net lost packets per DTN row.", labels, nil),
		shortTotal:     prometheus.NewDesc("fabricprobe_dtn_short_packets_total", "Short (unverifiable) packets per DTN row.", labels, nil),
		bitErrorsTotal: prometheus.NewDesc("fabricprobe_dtn_bit_errors_total", "Bit errors detected per DTN row.", labels, nil),
		berGauge:       prometheus.NewDesc("fabricprobe_dtn_bit_error_rate", "Computed bit error rate per DTN row.", labels, nil),
		txGbpsGauge:    prometheus.NewDesc("fabricprobe_dtn_tx_gbps", "Hardware TX rate per DTN row.", labels, nil),
		rxGbpsGauge:    prometheus.NewDesc("fabricprobe_dtn_rx_gbps", "Hardware RX rate per DTN row.", labels, nil),
		rowUp:          prometheus.NewDesc("fabricprobe_dtn_row_up", "1 if the row's last snapshot succeeded, 0 if degraded to N/A.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.goodTotal
	ch <- c.badTotal
	ch <- c.lostTotal
	ch <- c.shortTotal
	ch <- c.bitErrorsTotal
	ch <- c.berGauge
	ch <- c.txGbpsGauge
	ch <- c.rxGbpsGauge
	ch <- c.rowUp
}

// Collect implements prometheus.Collector, reading the aggregator's
// last computed tick without forcing a new one.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.agg.mu.Lock()
	rows := c.agg.last
	c.agg.mu.Unlock()

	for i, r := range rows {
		if r.Row == (portmap.DTNRow{}) && i != 0 {
			continue
		}
		dtnPort := strconv.Itoa(r.Row.DTNPort)
		serverPort := strconv.Itoa(r.Row.ServerPort)

		up := 1.0
		if r.Unavailable {
			up = 0.0
		}
		ch <- prometheus.MustNewConstMetric(c.rowUp, prometheus.GaugeValue, up, dtnPort, serverPort)
		if r.Unavailable {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.goodTotal, prometheus.CounterValue, float64(r.Good), dtnPort, serverPort)
		ch <- prometheus.MustNewConstMetric(c.badTotal, prometheus.CounterValue, float64(r.Bad), dtnPort, serverPort)
		ch <- prometheus.MustNewConstMetric(c.lostTotal, prometheus.CounterValue, float64(r.Lost), dtnPort, serverPort)
		ch <- prometheus.MustNewConstMetric(c.shortTotal, prometheus.CounterValue, float64(r.ShortPkts), dtnPort, serverPort)
		ch <- prometheus.MustNewConstMetric(c.bitErrorsTotal, prometheus.CounterValue, float64(r.BitErrors), dtnPort, serverPort)
		ch <- prometheus.MustNewConstMetric(c.berGauge, prometheus.GaugeValue, r.BER, dtnPort, serverPort)
		ch <- prometheus.MustNewConstMetric(c.txGbpsGauge, prometheus.GaugeValue, r.TxGbps, dtnPort, serverPort)
		ch <- prometheus.MustNewConstMetric(c.rxGbpsGauge, prometheus.GaugeValue, r.RxGbps, dtnPort, serverPort)
	}
}
