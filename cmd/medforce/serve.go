package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-medforce/internal/log"
	"github.com/teslashibe/go-medforce/pkg/medforce"
	"github.com/teslashibe/go-medforce/pkg/voice"
)

const shutdownTimeout = 10 * time.Second

var (
	noConsole   bool
	consoleAddr string
	voiceName   string
	keepAlive   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the audio bridge and tool dispatcher",
	Long: `Connect to the live session and bridge audio between the configured
devices until interrupted or the session ends. The operator console is served
on --console-addr unless --no-console is set.

When the session ends the command exits non-zero; restart it to reconnect.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.BoolVar(&noConsole, "no-console", false, "disable the operator console")
	f.StringVar(&consoleAddr, "console-addr", "", "operator console listen address")
	f.StringVar(&voiceName, "voice", "", "prebuilt voice name (Puck, Charon, Kore, Fenrir, Aoede)")
	f.BoolVar(&keepAlive, "keep-alive", true, "send a short text turn after tool results")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if noConsole {
		cfg.Console.Enabled = false
	}
	if flags.Changed("console-addr") {
		cfg.Console.Addr = consoleAddr
	}
	if flags.Changed("voice") {
		cfg.Voice.Voice = voiceName
	}
	if flags.Changed("keep-alive") {
		cfg.Dispatch.KeepAlive = keepAlive
	}

	logger := log.L()
	app, err := medforce.New(cfg, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Shutdown(ctx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	err = app.Run(cmd.Context())
	switch {
	case err == nil:
		logger.Info("stopped")
		return nil
	case errors.Is(err, voice.ErrSessionClosed):
		logger.Error("session ended, restart to reconnect", "error", err)
	default:
		logger.Error("runtime error", "error", err)
	}
	return err
}
