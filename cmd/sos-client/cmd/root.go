package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shenikar/sos_broadcasting_system/internal/client"
)

var (
	cfgPath       string
	serverURL     string
	token         string
	holdFor       time.Duration
	latitude      float64
	longitude     float64
	locationError string

	rootCmd = &cobra.Command{
		Use:   "sos-client",
		Short: "Campus SOS button client.",
		Long: `Command line SOS button.

Drives the same press-and-hold trigger as the mobile app: the alarm fires only
when the button is held continuously for the configured duration (3s by default).`,
		SilenceUsage: true,
	}

	holdCmd = &cobra.Command{
		Use:   "hold",
		Short: "Press and hold the SOS button.",
		Long: `Presses the SOS button, holds it for --for and releases it.

Releasing before the hold duration cancels the alarm. When the alarm fires the
current location (or the fallback 0,0 with a reason) is sent to the server once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			flags := cmd.Flags()
			if flags.Changed("lat") != flags.Changed("lng") {
				return errors.New("--lat and --lng must be set together")
			}

			_, err := client.Hold(ctx, client.HoldOptions{
				SettingsPath: cfgPath,
				HoldFor:      holdFor,
				Out:          cmd.OutOrStdout(),
				Overrides: func(s *client.Settings) {
					if serverURL != "" {
						s.ServerURL = serverURL
					}
					if token != "" {
						s.Token = token
					}
					if flags.Changed("lat") {
						s.Latitude = &latitude
						s.Longitude = &longitude
					}
					if locationError != "" {
						s.LocationError = locationError
					}
				},
			})

			var rateLimited *client.RateLimitedError
			if errors.As(err, &rateLimited) {
				return fmt.Errorf("too many SOS requests, retry in %s", rateLimited.RetryAfter)
			}
			return err
		},
	}
)

// Execute запускает CLI и завершает процесс с ненулевым кодом при ошибке
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra регистрирует флаги в init.
func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", client.DefaultSettingsFilename, "path to settings file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server base URL, overrides settings")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("SOS_TOKEN"), "bearer token, defaults to $SOS_TOKEN")

	holdCmd.Flags().DurationVar(&holdFor, "for", 3200*time.Millisecond, "how long to hold the button")
	holdCmd.Flags().Float64Var(&latitude, "lat", 0, "fixed latitude instead of device location")
	holdCmd.Flags().Float64Var(&longitude, "lng", 0, "fixed longitude instead of device location")
	holdCmd.Flags().StringVar(&locationError, "location-error", "", "simulate location failure: permission-denied, position-unavailable, timeout, unsupported")

	rootCmd.AddCommand(holdCmd)
}
