package main

import (
	"os"

	"finbot/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	ctx, stop := cli.SignalContext()
	err := newRootCommand(openFromConfig).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
