package metrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
	log "github.com/sirupsen/logrus"
)

const bytesPerGB = 1024 * 1024 * 1024

// PIDFinder reports the PIDs of the protected backend's serve processes.
// Implemented by backend.ProcessController; substituted in tests.
type PIDFinder interface {
	FindServePIDs() []int32
}

// Collector produces one SystemMetrics snapshot per call. Every probe is
// best effort: a failed reading degrades to its zero value so that a broken
// sensor can never take down the watchdog.
type Collector struct {
	config Config
	finder PIDFinder
	logger *log.Logger
}

func NewCollector(config Config, finder PIDFinder, logger *log.Logger) *Collector {
	return &Collector{
		config: config,
		finder: finder,
		logger: logger,
	}
}

// Collect never returns an error and never blocks beyond the fixed CPU
// sample duration plus the cheap instantaneous reads.
func (c *Collector) Collect(ctx context.Context) SystemMetrics {
	m := SystemMetrics{Timestamp: time.Now()}

	if memoryInfo, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		c.logger.Debugf("memory probe failed: %v", err)
	} else {
		m.RAMPct = memoryInfo.UsedPercent
		m.RAMGB = float64(memoryInfo.Used) / bytesPerGB
	}

	// Report the average CPU usage over the configured sample window
	if cpuPercentage, err := cpu.PercentWithContext(ctx, c.config.CPUSample, false); err != nil || len(cpuPercentage) == 0 {
		c.logger.Debugf("cpu probe failed: %v", err)
	} else {
		m.CPUPct = cpuPercentage[0]
	}

	if diskUsage, err := disk.UsageWithContext(ctx, "/"); err != nil {
		c.logger.Debugf("disk probe failed: %v", err)
	} else {
		m.DiskPct = diskUsage.UsedPercent
	}

	m.TempC = c.readTemperature(ctx)

	if c.finder != nil {
		m.BackendPIDs = c.finder.FindServePIDs()
	}

	return m
}

// readTemperature returns nil on hosts without a matching thermal sensor.
func (c *Collector) readTemperature(ctx context.Context) *float64 {
	temps, err := sensors.TemperaturesWithContext(ctx)
	if err != nil || len(temps) == 0 {
		return nil
	}

	var fallback *float64
	for i := range temps {
		t := temps[i]
		if t.Temperature <= 0 {
			continue
		}
		if c.config.TemperatureSensor != "" && t.SensorKey == c.config.TemperatureSensor {
			v := t.Temperature
			return &v
		}
		if fallback == nil {
			v := t.Temperature
			fallback = &v
		}
	}
	return fallback
}
