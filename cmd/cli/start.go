package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"tally.dev/internal/config"
	"tally.dev/internal/log"
	"tally.dev/internal/process"
	"tally.dev/internal/server"
)

type StartCommand struct {
	port        int
	bindAddress string
}

func (cmd *StartCommand) Parse(flagSet *pflag.FlagSet, args []string) error {
	flagSet.IntVar(&cmd.port, "port", 0, fmt.Sprintf("The port to listen on (default from config, or %d)", config.DefaultPort))
	flagSet.StringVar(&cmd.bindAddress, "bind", "", fmt.Sprintf("The address to bind to (default from config, or %s)", config.DefaultBindAddress))

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if cmd.port < 0 || cmd.port > 65535 {
		return fmt.Errorf("Invalid port number: %d", cmd.port)
	}

	return nil
}

func (cmd *StartCommand) Name() string {
	return "start"
}

func (cmd *StartCommand) Description() string {
	return "Start the tally command server"
}

func (cmd *StartCommand) Run() error {
	shellConfig, err := config.LoadShellConfig()
	if err != nil {
		return err
	}

	if cmd.port != 0 {
		shellConfig.Port = cmd.port
	}
	if cmd.bindAddress != "" {
		shellConfig.BindAddress = cmd.bindAddress
	}
	if err := shellConfig.Validate(); err != nil {
		return err
	}

	if err := log.SetLevel(shellConfig.LogLevel); err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	app, err := server.New(shellConfig, process.SystemSource(), nil)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx)
}
