package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Gunvolt24/amqp_receiver/config"
	"github.com/Gunvolt24/amqp_receiver/internal/app"
)

func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// SIGINT/SIGTERM отменяют контекст, App.Run начинает остановку
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, cleanup, err := app.Bootstrap(ctx, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
		os.Exit(1)
	}

	runErr := application.Run(ctx)
	cleanup()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "receiver service: %v\n", runErr)
		os.Exit(1)
	}
}
