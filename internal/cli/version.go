package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version, revision, modified := "(devel)", "", false
			goVersion := runtime.Version()
			if info, ok := debug.ReadBuildInfo(); ok {
				if info.Main.Version != "" {
					version = info.Main.Version
				}
				if info.GoVersion != "" {
					goVersion = info.GoVersion
				}
				for _, setting := range info.Settings {
					switch setting.Key {
					case "vcs.revision":
						revision = setting.Value
					case "vcs.modified":
						modified = setting.Value == "true"
					}
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "procspawn %s\n", version)
			fmt.Fprintf(out, "go: %s %s/%s\n", goVersion, runtime.GOOS, runtime.GOARCH)
			if revision != "" {
				suffix := ""
				if modified {
					suffix = " (modified)"
				}
				fmt.Fprintf(out, "revision: %s%s\n", revision, suffix)
			}
		},
	}
}
