package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/pretty"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
)

// Export formats.
const (
	FormatJSON       = "json"
	FormatPrometheus = "prometheus"
	FormatCSV        = "csv"
)

// ExportMetrics serializes a fresh cluster aggregate in the requested
// format: pretty-printed JSON, Prometheus text exposition, or CSV.
func (c *Collector) ExportMetrics(ctx context.Context, format string) (string, error) {
	cm := c.GetClusterMetrics(ctx)
	switch format {
	case FormatJSON, "":
		data, err := json.Marshal(cm)
		if err != nil {
			return "", fmt.Errorf("failed to encode metrics: %w", err)
		}
		return string(pretty.Pretty(data)), nil
	case FormatPrometheus:
		return encodePrometheus(cm), nil
	case FormatCSV:
		return encodeCSV(cm), nil
	default:
		return "", fmt.Errorf("unknown export format %q", format)
	}
}

func encodePrometheus(cm *model.ClusterMetrics) string {
	var b strings.Builder

	gauge := func(name, help string, value float64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n", name, help, name, name, value)
	}
	counter := func(name, help string, value float64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %g\n", name, help, name, name, value)
	}

	gauge("cluster_workers_active", "Number of workers currently serving.", float64(cm.ActiveWorkers))
	gauge("cluster_workers_total", "Number of workers in the registry.", float64(cm.TotalWorkers))
	gauge("cluster_workers_healthy", "Number of routable workers.", float64(cm.HealthyWorkers))
	counter("cluster_requests_total", "Total requests served by all workers.", float64(cm.TotalRequests))
	counter("cluster_errors_total", "Total errors reported by all workers.", float64(cm.TotalErrors))
	gauge("cluster_error_rate", "Errors divided by total requests.", cm.ErrorRate)
	gauge("cluster_requests_queued", "Requests waiting for dispatch.", float64(cm.QueuedRequests))
	gauge("cluster_cpu_percent_avg", "Average worker CPU usage percent.", cm.AvgCPUPercent)
	gauge("cluster_memory_percent_avg", "Average worker memory usage percent.", cm.AvgMemoryPercent)
	gauge("cluster_memory_bytes_total", "Summed worker memory footprint.", float64(cm.TotalMemoryBytes))
	gauge("cluster_response_time_ms_avg", "Average response time in milliseconds.", cm.AvgResponseTime)

	fmt.Fprintf(&b, "# HELP worker_cpu_percent Per-worker CPU usage percent.\n# TYPE worker_cpu_percent gauge\n")
	for _, wm := range cm.Workers {
		fmt.Fprintf(&b, "worker_cpu_percent{worker=%q} %g\n", wm.WorkerID, wm.CPUPercent)
	}
	fmt.Fprintf(&b, "# HELP worker_active_requests Per-worker in-flight requests.\n# TYPE worker_active_requests gauge\n")
	for _, wm := range cm.Workers {
		fmt.Fprintf(&b, "worker_active_requests{worker=%q} %d\n", wm.WorkerID, wm.ActiveRequests)
	}
	return b.String()
}

func encodeCSV(cm *model.ClusterMetrics) string {
	var b strings.Builder
	b.WriteString("worker_id,pid,cpu_percent,memory_percent,memory_bytes,active_requests,queued_requests,total_requests,error_count,avg_response_time_ms,health,consecutive_failures\n")
	for _, wm := range cm.Workers {
		fmt.Fprintf(&b, "%s,%d,%.2f,%.2f,%d,%d,%d,%d,%d,%.2f,%s,%d\n",
			wm.WorkerID, wm.PID, wm.CPUPercent, wm.MemoryPercent, wm.MemoryBytes,
			wm.ActiveRequests, wm.QueuedRequests, wm.TotalRequests, wm.ErrorCount,
			wm.AvgResponseTime, wm.Health, wm.ConsecutiveFailures)
	}
	return b.String()
}
