package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/vietddude/runguard/internal/host"
	"github.com/vietddude/runguard/internal/stability/perf"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run the device capability check and show the thresholds in effect",
	Run:   runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	probed, err := perf.SystemProbe{}.Probe(ctx)
	if err != nil {
		slog.Error("Capability probe failed", "error", err)
		os.Exit(1)
	}
	c := perf.Classify(probed, cfg.Perf)

	startMode := "nominal"
	if c.LowEnd && cfg.Perf.CapabilityCheck {
		startMode = "reduced"
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Logical CPUs", fmt.Sprintf("%d (min %d)", c.LogicalCPUs, cfg.Perf.MinLogicalCPUs))
	table.Append("Total memory", fmt.Sprintf("%s (min %s)", formatBytes(c.TotalMemory), formatBytes(cfg.Perf.MinMemoryBytes)))
	table.Append("Available memory", formatBytes(c.AvailableMemory))
	table.Append("Low-end", fmt.Sprintf("%t", c.LowEnd))
	if c.Reason != "" {
		table.Append("Reason", c.Reason)
	}
	table.Append("Starting mode", startMode)
	table.Append("Degrade below", fmt.Sprintf("%.0f fps x%d samples", cfg.Perf.LowFPS, cfg.Perf.LowSamplesToDegrade))
	table.Append("Recover above", fmt.Sprintf("%.0f fps", cfg.Perf.RecoverFPS))
	table.Append("Sample window", cfg.Perf.Window.String())
	table.Render()

	profiles := tablewriter.NewWriter(os.Stdout)
	profiles.Header("Profile", "Phases")
	for _, name := range host.ProfileNames() {
		p, _ := host.Profile(name)
		var phases string
		for i, ph := range p.Phases {
			if i > 0 {
				phases += ", "
			}
			phases += fmt.Sprintf("%s %v", ph.Name, ph.Cost)
		}
		profiles.Append(name, phases)
	}
	profiles.Render()
}

func formatBytes(b uint64) string {
	const gib = 1 << 30
	if b == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%.1f GiB", float64(b)/gib)
}
