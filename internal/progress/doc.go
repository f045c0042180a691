// Package progress fans viewport states out to renderers. The tracking loop
// hands each state to a Hub, which never blocks it; the Hub batches updates on
// its own goroutine and delivers them to pluggable sinks such as the progress
// bar, structured logs, Prometheus metrics, or websocket clients.
package progress
