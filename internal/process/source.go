package process

import (
	"context"

	psprocess "github.com/shirou/gopsutil/v4/process"
)

type systemSource struct{}

// SystemSource reads the real process table of this machine.
func SystemSource() Source {
	return systemSource{}
}

func (systemSource) Processes() ([]Entry, error) {
	ctx := context.Background()

	procs, err := psprocess.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(procs))
	for _, proc := range procs {
		if entry, ok := readEntry(ctx, proc); ok {
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

func readEntry(ctx context.Context, proc *psprocess.Process) (Entry, bool) {
	name, err := proc.NameWithContext(ctx)
	if err != nil {
		// The process most likely exited after the listing was taken
		return Entry{}, false
	}

	entry := Entry{
		Pid:  uint32(proc.Pid),
		Name: name,
	}

	// Metrics that can't be read are left at zero
	if cpuUsage, err := proc.CPUPercentWithContext(ctx); err == nil {
		entry.CpuUsage = cpuUsage
	}
	if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
		entry.MemoryUsage = memInfo.RSS
	}

	return entry, true
}
