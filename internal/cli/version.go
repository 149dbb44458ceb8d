package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/mrz1836/cutover/internal/tui"
)

// AddVersionCommand adds the version command to the root command.
func AddVersionCommand(root *cobra.Command, flags *GlobalFlags, info BuildInfo) {
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if flags.Output == tui.FormatJSON {
				return tui.NewOutput(w, flags.Output).JSON(map[string]string{
					"version": info.Version,
					"commit":  info.Commit,
					"date":    info.Date,
					"go":      runtime.Version(),
				})
			}
			_, err := fmt.Fprintf(w, "cutover %s %s/%s\n", formatVersion(info), runtime.GOOS, runtime.GOARCH)
			return err
		},
	})
}
