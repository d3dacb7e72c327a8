package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"snapvision/internal/app"
	"snapvision/internal/config"
	"snapvision/internal/logger"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

func newRootCmd() *cobra.Command {
	var (
		port      int
		streamURL string
		certFile  string
		keyFile   string
	)

	cmd := &cobra.Command{
		Use:   "snapvision",
		Short: "Detect cards on a live stream and classify them on demand",
		Long: `Snapvision samples a live video stream about once per second, detects the
cards visible in each sampled frame and publishes their boxes as Server-Sent
Events on /stream. Clients post a published box back to /classify_card to get
the card's name, description and image.

Configuration is read from the environment (and a .env file); flags override it.`,
		Example: `  # Serve on the default port using .env settings
  snapvision

  # Serve a different stream over TLS
  snapvision --stream rtsp://camera.local/live --cert cert.pem --key key.pem`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("stream") {
				cfg.StreamURL = streamURL
			}
			if cmd.Flags().Changed("cert") {
				cfg.CertFile = certFile
			}
			if cmd.Flags().Changed("key") {
				cfg.KeyFile = keyFile
			}

			log, err := logger.New(cfg.LogDirectory)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer log.Close()

			application, err := app.New(cfg, log)
			if err != nil {
				log.Error("Failed to start: %v", err)
				return err
			}
			defer application.Close()

			return application.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 5000, "Port to listen on")
	cmd.Flags().StringVar(&streamURL, "stream", "", "Video stream URL or device")
	cmd.Flags().StringVar(&certFile, "cert", "", "TLS certificate file")
	cmd.Flags().StringVar(&keyFile, "key", "", "TLS private key file")

	return cmd
}

func main() {
	if err := fang.Execute(
		context.Background(),
		newRootCmd(),
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
