package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.opentelemetry.io/otel"
)

// InstrumentPerfStats records process and host usage every 30 seconds until
// ctx is done. Headless browsers make host memory the number worth watching.
func InstrumentPerfStats(ctx context.Context) {
	meter := otel.Meter("pricewise.perf_stats")
	cpuGauge, _ := meter.Float64Gauge("cpu_usage")
	hostMemoryGauge, _ := meter.Float64Gauge("host_memory_used_percent")
	allocatedGauge, _ := meter.Int64Gauge("allocated_mb")
	goroutineGauge, _ := meter.Int64Gauge("goroutine_count")

	go func() {
		var memStats runtime.MemStats
		ticker := time.NewTicker(time.Second * 30)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runtime.ReadMemStats(&memStats)
				allocatedGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
				goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))

				cpuUsage, err := cpu.PercentWithContext(ctx, 5*time.Second, false)
				if err == nil && len(cpuUsage) > 0 {
					cpuGauge.Record(ctx, cpuUsage[0])
				} else if err != nil {
					slog.Debug("failed to read cpu usage", "err", err)
				}

				vm, err := mem.VirtualMemoryWithContext(ctx)
				if err == nil {
					hostMemoryGauge.Record(ctx, vm.UsedPercent)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
