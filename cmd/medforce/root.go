package main

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-medforce/internal/log"
	"github.com/teslashibe/go-medforce/pkg/medforce"
)

var (
	configPath    string
	logLevelFlag  string
	boardURLFlag  string
	inputDevFlag  string
	outputDevFlag string
)

var rootCmd = &cobra.Command{
	Use:   "medforce",
	Short: "Voice bridge between a live call and the clinical board",
	Long: `medforce streams call audio to a Gemini Live session, plays the spoken
replies back into the call, and executes the model's tool calls against the
board service (navigation, tasks, lab results, knowledge queries).

Configuration is read from defaults, then --config (.yaml or .toml), then the
environment (GOOGLE_API_KEY, OPENAI_API_KEY, MEDFORCE_*), then flags.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (.yaml or .toml)")
	pf.StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&boardURLFlag, "board-url", "", "board service base URL")
	pf.StringVar(&inputDevFlag, "input-device", "", "capture device name substring")
	pf.StringVar(&outputDevFlag, "output-device", "", "playback device name substring")

	rootCmd.AddCommand(serveCmd, indexCmd, queryCmd, devicesCmd, meetCmd)
}

// loadConfig builds the config and initializes logging. Flags win over
// the environment and the config file.
func loadConfig(cmd *cobra.Command) (medforce.Config, error) {
	cfg, err := medforce.Load(configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevelFlag
	}
	if flags.Changed("board-url") {
		cfg.Board.BaseURL = boardURLFlag
		cfg.Meet.BoardURL = boardURLFlag
	}
	if flags.Changed("input-device") {
		cfg.Input.Device = inputDevFlag
	}
	if flags.Changed("output-device") {
		cfg.Output.Device = outputDevFlag
	}

	log.Init(cfg.LogLevel)
	return cfg, nil
}
