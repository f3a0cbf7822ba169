package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-medforce/pkg/audioio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture and playback devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(cmd); err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, dir := range []audioio.Direction{audioio.Capture, audioio.Playback} {
			devices, err := audioio.ListDevices(cmd.Context(), dir)
			if err != nil {
				return fmt.Errorf("list %s devices: %w", dir, err)
			}
			fmt.Fprintf(w, "%s devices:\n", dir)
			for _, d := range devices {
				fmt.Fprintf(w, "  %s\t%s\n", d.Name, d.Description)
			}
		}
		return w.Flush()
	},
}
