// Package sinks implements concrete progress consumers: the on-page bar,
// structured logging, and Prometheus metrics. Each satisfies progress.Sink.
package sinks
