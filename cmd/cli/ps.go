package main

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
	"tally.dev/internal/config"
	"tally.dev/internal/process"
)

var (
	psHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			PaddingLeft(1).
			PaddingRight(1)

	psRowStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			PaddingRight(1)

	psFooterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true).
			PaddingLeft(1)
)

type PsCommand struct {
	limit  int
	asJson bool
	scale  string
}

func (cmd *PsCommand) Parse(flagSet *pflag.FlagSet, args []string) error {
	flagSet.IntVarP(&cmd.limit, "limit", "n", 20, "Maximum number of processes to show, 0 shows all of them")
	flagSet.BoolVar(&cmd.asJson, "json", false, "Print the snapshot as JSON, the same shape get_processes returns")
	flagSet.StringVar(&cmd.scale, "scale", "", "What 100% CPU means, either 'core' or 'system' (default from config)")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if cmd.limit < 0 {
		return fmt.Errorf("Invalid limit: %d", cmd.limit)
	}
	if cmd.scale != "" {
		if _, err := config.ParseCpuScale(cmd.scale); err != nil {
			return err
		}
	}

	return nil
}

func (cmd *PsCommand) Name() string {
	return "ps"
}

func (cmd *PsCommand) Description() string {
	return "Print a snapshot of running processes, busiest first"
}

func (cmd *PsCommand) Run() error {
	shellConfig, err := config.LoadShellConfig()
	if err != nil {
		return err
	}

	scale := shellConfig.CpuScale
	if cmd.scale != "" {
		scale = config.CpuScale(cmd.scale)
	}

	reporter, err := process.NewReporter(process.SystemSource(), scale)
	if err != nil {
		return err
	}

	entries, err := reporter.List()
	if err != nil {
		return err
	}

	total := len(entries)
	if cmd.limit > 0 && len(entries) > cmd.limit {
		entries = entries[:cmd.limit]
	}

	if cmd.asJson {
		buf, err := json.MarshalIndent(entries, "", "\t")
		if err != nil {
			return fmt.Errorf("failed to marshal processes: %w", err)
		}

		fmt.Printf("%s\n", buf)
		return nil
	}

	fmt.Print(renderProcessTable(entries, total))
	return nil
}

func renderProcessTable(entries []process.Entry, total int) string {
	var content strings.Builder

	header := fmt.Sprintf("%-8s %-24s %8s %10s", "PID", "NAME", "CPU%", "MEMORY")
	content.WriteString(psHeaderStyle.Render(header))
	content.WriteString("\n")

	for _, entry := range entries {
		row := fmt.Sprintf("%-8d %-24s %8s %10s",
			entry.Pid, truncateString(entry.Name, 24), formatCpu(entry.CpuUsage), formatBytes(entry.MemoryUsage))
		content.WriteString(psRowStyle.Render(row))
		content.WriteString("\n")
	}

	content.WriteString("\n")
	content.WriteString(psFooterStyle.Render(fmt.Sprintf("Showing %d of %d processes", len(entries), total)))
	content.WriteString("\n")

	return content.String()
}

func formatCpu(usage float64) string {
	if math.IsNaN(usage) || math.IsInf(usage, 0) {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", usage)
}

func formatBytes(size uint64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := uint64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

// truncateString cuts on rune boundaries, process names aren't always ASCII
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen < 4 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
