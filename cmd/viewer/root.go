package main

import (
	"fmt"
	"os"
	"time"

	"github.com/MeNameek/camerasystem/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagConfig      string
	flagServer      string
	flagName        string
	flagLogLevel    string
	flagICEServers  []string
	flagIdleTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "camctl",
	Short: "Headless endpoint for the camera relay",
	Long: `camctl connects to a camera relay as a viewer or as a camera source.

A viewer creates or joins a room and negotiates a WebRTC session with every
source in it. Only one source is rendered at a time; type "next", "prev" or
"select <id>" on stdin to switch. A source streams an IVF file as its camera;
type "flip" to switch between the front and back file.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateCommon()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "YAML config file providing webrtc and session settings")
	rootCmd.PersistentFlags().StringVarP(&flagServer, "server", "s", "ws://localhost:8080/ws", "relay websocket URL")
	rootCmd.PersistentFlags().StringVarP(&flagName, "name", "n", "", "display name shown to other room members")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSliceVar(&flagICEServers, "ice", []string{"stun:stun.l.google.com:19302"}, "ICE server URLs")
	rootCmd.PersistentFlags().DurationVar(&flagIdleTimeout, "idle-timeout", 2*time.Minute, "drop sessions that make no progress for this long (0 disables)")

	rootCmd.AddCommand(watchCmd, sourceCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *zap.SugaredLogger {
	return logger.NewWithFormat(flagLogLevel, "console").Sugar()
}
