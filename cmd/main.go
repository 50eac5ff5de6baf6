package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/victornm/quizarena/internal/config"
	"github.com/victornm/quizarena/internal/server"
	"github.com/victornm/quizarena/internal/telemetry"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:          "quizarena",
	Short:        "Real-time multiplayer trivia server",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, websocket and gRPC servers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}

		if _, err := telemetry.SetupLogger(os.Stderr, c.Log); err != nil {
			return fmt.Errorf("setup logger: %w", err)
		}

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

		s, err := server.Init(c)
		if err != nil {
			return fmt.Errorf("init server: %w", err)
		}

		go s.Start()

		<-shutdown
		s.Shutdown()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file, defaults to $CONFIG_PATH")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("quizarena: %v", err)
	}
}

func loadConfig() (server.Config, error) {
	var c server.Config

	p := configFile
	if p == "" {
		p = os.Getenv("CONFIG_PATH")
	}
	if p == "" {
		return c, fmt.Errorf("no config file: use --config or set CONFIG_PATH")
	}

	if err := config.Load(p, &c, config.WithEnvPrefix("QUIZARENA")); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
