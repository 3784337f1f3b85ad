// Package metrics exposes broker counters in the Prometheus text format
// (text/plain; version=0.0.4).
//
// Counter, Gauge and Histogram are safe for concurrent use. Init builds the
// default registry with the stompd_* broker metrics plus a few go_* runtime
// gauges that are refreshed on every scrape:
//
//	reg := metrics.Init()
//	metrics.IncCounter(metrics.FramesReceived, "SEND")
//	metrics.AddGauge(metrics.ConnectionsActive, 1, "tcp")
//	http.Handle("/metrics", reg.Handler())
//
// The helpers accept nil metrics, so code paths stay the same whether or not
// Init ran.
package metrics
