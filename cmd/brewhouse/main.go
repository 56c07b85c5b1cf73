package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/brewhouse/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := app.LoadConfig()
	args, err := app.ParseFlags(&cfg, os.Args[1:])
	if err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "brewhouse: failed to start: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "brewhouse: %v\n", err)
		}
	}()

	err = application.Run(ctx, args)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, app.ErrUsage):
		return 2
	case errors.Is(err, app.ErrInvalidInput):
		return 1
	default:
		fmt.Fprintf(os.Stderr, "brewhouse: %s\n", app.Describe(err))
		return 1
	}
}
