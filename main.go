package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/memberbridge/memberbridge/cmd"
	"github.com/memberbridge/memberbridge/internal/app"
	"github.com/memberbridge/memberbridge/internal/migration"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx := &app.Context{}
	err := appCtx.Run(func() error {
		return cmd.RootCommand(appCtx).ExecuteContext(ctx)
	})
	if err == nil {
		return 0
	}

	if migration.IsFatal(err) {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return 1
}
