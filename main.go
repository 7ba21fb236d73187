package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/syncwave/syncwave/cmd"
	"github.com/syncwave/syncwave/internal/buildinfo"
	runtimectx "github.com/syncwave/syncwave/internal/runtime"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   = ""
	buildDate = ""
)

func main() {
	os.Exit(run())
}

func run() int {
	build := buildinfo.NewContext(version, buildDate, "")
	rt := runtimectx.NewContext(build)
	defer func() {
		if err := rt.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.RootCommand(rt).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
