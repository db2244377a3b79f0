package metrics

import (
	"context"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"arbflow/logger"
)

type venueStat struct {
	fetches  int64
	failures int64
}

var (
	cycleTally int64
	fxRateBits uint64
	venueStats sync.Map // map[string]*venueStat
)

func recordVenueFetch(name string, ok bool) {
	v, _ := venueStats.LoadOrStore(name, &venueStat{})
	vs := v.(*venueStat)
	if ok {
		atomic.AddInt64(&vs.fetches, 1)
	} else {
		atomic.AddInt64(&vs.failures, 1)
	}
}

func recordCycle() {
	atomic.AddInt64(&cycleTally, 1)
}

func recordFxRate(mid float64) {
	atomic.StoreUint64(&fxRateBits, math.Float64bits(mid))
}

func lastFxRate() float64 {
	return math.Float64frombits(atomic.LoadUint64(&fxRateBits))
}

func snapshotVenueStats() map[string]map[string]int64 {
	out := map[string]map[string]int64{}
	venueStats.Range(func(k, v any) bool {
		name := k.(string)
		vs := v.(*venueStat)
		out[name] = map[string]int64{
			"fetches":  atomic.LoadInt64(&vs.fetches),
			"failures": atomic.LoadInt64(&vs.failures),
		}
		return true
	})
	return out
}

func startReport(ctx context.Context, log *logger.Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and fetch statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *logger.Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *logger.Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	venueData := snapshotVenueStats()

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	memoryMB := int64(0)
	if memStats != nil {
		memoryMB = int64(memStats.Used) / 1024 / 1024
	}
	diskMB := int64(0)
	if diskStats != nil {
		diskMB = int64(diskStats.Used) / 1024 / 1024
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	warns := logger.WarnCount()
	errors := logger.ErrorCount()
	cycles := atomic.LoadInt64(&cycleTally)

	fields := logger.Fields{
		"warnings":       warns,
		"errors":         errors,
		"cycles":         cycles,
		"fx_rate":        lastFxRate(),
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      memoryMB,
		"disk_mb":        diskMB,
		"venues":         venueData,
		"log_components": logger.CountsByComponent(),
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("Arbflow-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("Arbflow-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memoryMB))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbflow-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskMB))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbflow-Warnings"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(warns))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbflow-Errors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(errors))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbflow-Cycles"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(cycles))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbflow-FxRate"), Unit: cwtypes.StandardUnitNone, Value: aws.Float64(lastFxRate())},
		cwtypes.MetricDatum{MetricName: aws.String("Arbflow-Goroutines"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(runtime.NumGoroutine()))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbflow-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("Arbflow-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range venueData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("Arbflow-VenueFetches"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Venue"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["fetches"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("Arbflow-VenueFailures"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Venue"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["failures"])),
			},
		)
	}

	publishMetricsFunc(ctx, cwState.Load(), data)
}
