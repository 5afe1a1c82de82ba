package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/orchestrator"
	webrtcinfra "github.com/MeNameek/camerasystem/internal/infrastructure/webrtc"

	"github.com/spf13/cobra"
)

var flagReportInterval time.Duration

var watchCmd = &cobra.Command{
	Use:     "watch [room-code]",
	Aliases: []string{"w", "viewer"},
	Short:   "Watch the cameras in a room",
	Long: `Join a room as a viewer, or create a new one when no code is given.

Examples:
  camctl watch
  camctl watch AB12CD --name Desk`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var code domain.RoomCode
		if len(args) == 1 {
			var err error
			if code, err = parseRoomCode(args[0]); err != nil {
				return err
			}
		}
		return watch(cmd, code)
	},
}

func init() {
	watchCmd.Flags().DurationVar(&flagReportInterval, "report-interval", 10*time.Second, "how often to log stats of the rendered source")
}

func watch(cmd *cobra.Command, code domain.RoomCode) error {
	logger := newLogger()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	ep, err := connect(ctx, domain.RoleViewer, s, logger)
	if err != nil {
		return err
	}
	defer ep.close()

	sink := webrtcinfra.NewLogRenderSink(logger)
	viewer := orchestrator.NewViewer(ep.manager, sink, logger)
	go sink.Report(ctx, flagReportInterval)

	go readCommands(ctx, os.Stdin, func(line string) {
		if err := viewerCommand(viewer, os.Stdout, line); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	})

	h := ep.handlers(
		func(room domain.Room) {
			viewer.OnMembershipChanged(ctx, room)
		},
		func(env domain.SignalEnvelope) {
			if err := viewer.HandleEnvelope(ctx, env); err != nil {
				logger.Warnw("failed to handle signal", "from", env.From, "error", err)
			}
		},
	)

	return ep.run(ctx, h, func() error {
		if code == "" {
			return ep.client.Create(ctx, "", flagName)
		}
		return ep.client.Join(ctx, code, flagName, domain.RoleViewer)
	})
}
