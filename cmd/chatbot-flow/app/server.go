// Package app provides the chatbot-flow server application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wbt-web-support/chatbot-flow/cmd/chatbot-flow/app/options"
)

const commandDesc = `The chatbot-flow service assembles AI chatbot prompts from configurable
flow nodes, retrieves relevant instructions by vector similarity, and drives
conversations against the configured model provider.`

// NewCommand creates the root cobra command.
func NewCommand() *cobra.Command {
	opts := options.NewServerOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:          "chatbot-flow",
		Short:        "Prompt-assembly and conversation service",
		Long:         commandDesc,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, configFile, opts); err != nil {
				return err
			}
			if err := opts.Complete(); err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			cfg, err := opts.Config()
			if err != nil {
				return fmt.Errorf("failed to build configuration: %w", err)
			}

			ctx := setupSignalContext()
			server, err := cfg.NewServer(ctx)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}
			return server.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file")
	opts.AddFlags(cmd.Flags())
	return cmd
}

// loadConfig layers configuration: defaults, then the config file, then
// environment variables (CHATBOT_FLOW_ prefix), then explicit flags.
func loadConfig(cmd *cobra.Command, configFile string, opts *options.ServerOptions) error {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("CHATBOT_FLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return v.Unmarshal(opts)
}

// setupSignalContext returns a context cancelled on SIGINT or SIGTERM. A
// second signal exits immediately.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}
