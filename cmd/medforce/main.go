// medforce bridges a live voice session to the clinical board.
// Audio from a virtual capture device is streamed to Gemini Live, spoken
// replies are played back, and tool calls are executed against the board.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
