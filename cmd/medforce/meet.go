package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-medforce/internal/log"
	"github.com/teslashibe/go-medforce/pkg/meet"
)

var (
	meetProfile  string
	meetHeadless bool
	meetTabTitle string
)

var meetCmd = &cobra.Command{
	Use:   "meet <call-url>",
	Short: "Join a call in Chrome and present the board",
	Long: `Open the call in Chrome using a saved, signed-in profile, join it, open
the board in a second tab and start presenting it. Steps that fail are logged
with instructions to finish them by hand. The browser stays open until
interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		mcfg := cfg.Meet
		mcfg.MeetURL = args[0]
		flags := cmd.Flags()
		if flags.Changed("profile") {
			mcfg.ProfileDir = meetProfile
		}
		if flags.Changed("headless") {
			mcfg.Headless = meetHeadless
		}
		if flags.Changed("share-title") {
			mcfg.ShareTabTitle = meetTabTitle
		}

		driver, err := meet.New(mcfg, log.L())
		if err != nil {
			return err
		}
		defer driver.Close()

		report, err := driver.Join(cmd.Context())
		if err != nil {
			return err
		}
		for _, step := range report.Failed() {
			fmt.Fprintf(cmd.OutOrStdout(), "manual step needed: %s (%s)\n", step.Fallback, step.Name)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "browser is open; press Ctrl+C to close it")
		<-cmd.Context().Done()
		return nil
	},
}

func init() {
	f := meetCmd.Flags()
	f.StringVar(&meetProfile, "profile", meet.DefaultProfileDir, "Chrome user data directory")
	f.BoolVar(&meetHeadless, "headless", false, "run Chrome headless")
	f.StringVar(&meetTabTitle, "share-title", "", "tab title to auto-select when presenting")
}
