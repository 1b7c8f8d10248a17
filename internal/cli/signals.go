package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/procspawn/internal/sigmap"
)

type signalEntry struct {
	Name    string `json:"name"`
	Neutral int    `json:"neutral"`
	Native  int    `json:"native"`
}

func signalTable() ([]signalEntry, error) {
	all := sigmap.All()
	entries := make([]signalEntry, 0, len(all))
	for _, sig := range all {
		native, err := sigmap.ToNative(sig)
		if err != nil {
			return nil, err
		}
		entries = append(entries, signalEntry{Name: sig.String(), Neutral: int(sig), Native: int(native)})
	}
	return entries, nil
}

func newSignalsCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Print the neutral to native signal mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := signalTable()
			if err != nil {
				return err
			}
			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			case "text":
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tNEUTRAL\tNATIVE")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%d\t%d\n", e.Name, e.Neutral, e.Native)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unsupported output format %q", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json)")
	return cmd
}
