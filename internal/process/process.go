package process

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"tally.dev/internal/config"
	"tally.dev/internal/log"
	"tally.dev/internal/static"
)

var (
	logger = log.New("process")
)

// Entry describes one live process at the time a snapshot was taken.
type Entry struct {
	// Pid is only unique among live processes, the OS may reuse it later.
	Pid  uint32 `json:"pid"`
	Name string `json:"name"`
	// CpuUsage is a ranking signal rather than an exact measurement, see config.CpuScale.
	CpuUsage float64 `json:"cpu_usage"`
	// MemoryUsage is the resident set size, in bytes.
	MemoryUsage uint64 `json:"memory_usage"`
}

// NaN isn't valid JSON, so an unknown CPU usage is sent as null.
func (entry Entry) MarshalJSON() ([]byte, error) {
	type wireEntry struct {
		Pid         uint32   `json:"pid"`
		Name        string   `json:"name"`
		CpuUsage    *float64 `json:"cpu_usage"`
		MemoryUsage uint64   `json:"memory_usage"`
	}

	out := wireEntry{
		Pid:         entry.Pid,
		Name:        entry.Name,
		MemoryUsage: entry.MemoryUsage,
	}
	if !math.IsNaN(entry.CpuUsage) && !math.IsInf(entry.CpuUsage, 0) {
		cpuUsage := entry.CpuUsage
		out.CpuUsage = &cpuUsage
	}

	return json.Marshal(out)
}

// Source enumerates the processes currently visible to the caller.
type Source interface {
	Processes() ([]Entry, error)
}

// Reporter takes ranked process snapshots. It holds no state between calls,
// so one Reporter can be shared by any number of callers.
type Reporter struct {
	source Source

	// When non-zero, CPU usage is divided by this so that 100 is the whole machine.
	cores int
}

var logicalCores = static.CreateOnce(func() (int, error) {
	count, err := cpu.Counts(true)
	if err == nil && count < 1 {
		err = fmt.Errorf("got %d logical cores", count)
	}
	return count, err
})

func NewReporter(source Source, scale config.CpuScale) (*Reporter, error) {
	reporter := &Reporter{source: source}

	if scale == config.CpuScaleSystem {
		cores, err := logicalCores.GetValue()
		if err != nil {
			return nil, fmt.Errorf("failed to count logical cores: %w", err)
		}
		reporter.cores = cores
	}

	return reporter, nil
}

// List takes a fresh snapshot of the process table, ordered by CPU usage from
// highest to lowest.
func (r *Reporter) List() ([]Entry, error) {
	startTime := time.Now()

	entries, err := r.source.Processes()
	if err != nil {
		logger.Err(err, "Failed to enumerate processes", log.Ctx{})
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	if entries == nil {
		entries = []Entry{}
	}

	if r.cores > 0 {
		for i := range entries {
			entries[i].CpuUsage /= float64(r.cores)
		}
	}

	Rank(entries)

	logger.Debug("Took process snapshot", log.Ctx{
		"count":    len(entries),
		"duration": time.Since(startTime).String(),
	})

	return entries, nil
}
