package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/procspawn/internal/process"
)

type capsReport struct {
	Capabilities process.Capabilities  `json:"capabilities"`
	Spawners     []process.SpawnerInfo `json:"spawners"`
	Selected     string                `json:"selected,omitempty"`
	Error        string                `json:"error,omitempty"`
}

func newCapsCmd(ctx *context) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "caps",
		Short: "Print the launch capabilities of the running kernel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report := capsReport{
				Capabilities: process.ProbeCapabilities(),
				Spawners:     process.Spawners(),
			}
			selected, selErr := ctx.launcher().Spawner()
			if selErr != nil {
				report.Error = selErr.Error()
			} else {
				report.Selected = selected
			}

			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			case "text":
				writeCaps(cmd, report)
			default:
				return fmt.Errorf("unsupported output format %q", output)
			}
			return selErr
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json)")
	return cmd
}

func writeCaps(cmd *cobra.Command, report capsReport) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	caps := report.Capabilities
	fmt.Fprintf(tw, "pidfd\t%t\n", caps.PidFD)
	fmt.Fprintf(tw, "close_range\t%t\n", caps.CloseRange)
	fmt.Fprintf(tw, "atomic pipe\t%t\n", caps.AtomicPipe)
	fmt.Fprintf(tw, "kqueue\t%t\n", caps.Kqueue)
	fmt.Fprintf(tw, "parent death signal\t%t\n", caps.ParentDeathSignal)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "SPAWNER\tAVAILABLE\tSELECTED")
	for _, s := range report.Spawners {
		mark := ""
		if s.Name == report.Selected {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\n", s.Name, s.Available, mark)
	}
	tw.Flush()
}
