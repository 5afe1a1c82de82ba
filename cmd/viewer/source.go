package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/orchestrator"
	webrtcinfra "github.com/MeNameek/camerasystem/internal/infrastructure/webrtc"

	"github.com/spf13/cobra"
)

var (
	flagFront  string
	flagBack   string
	flagFacing string
)

var sourceCmd = &cobra.Command{
	Use:     "source <room-code>",
	Aliases: []string{"cam"},
	Short:   "Stream a camera into a room",
	Long: `Join a room as a camera source. The camera is simulated by IVF (VP8 or
VP9) files: --front for the user facing camera, --back for the other one.

Examples:
  camctl source AB12CD --front front.ivf
  camctl source AB12CD --front front.ivf --back back.ivf --facing environment`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := parseRoomCode(args[0])
		if err != nil {
			return err
		}
		facing := domain.Facing(flagFacing)
		if facing != domain.FacingUser && facing != domain.FacingEnvironment {
			return fmt.Errorf("--facing must be %q or %q", domain.FacingUser, domain.FacingEnvironment)
		}
		if flagFront == "" && flagBack == "" {
			return fmt.Errorf("at least one of --front or --back is required")
		}
		return stream(cmd, code, facing)
	},
}

func init() {
	sourceCmd.Flags().StringVar(&flagFront, "front", "", "IVF file played by the user facing camera")
	sourceCmd.Flags().StringVar(&flagBack, "back", "", "IVF file played by the environment facing camera")
	sourceCmd.Flags().StringVar(&flagFacing, "facing", string(domain.FacingUser), "camera to start with (user or environment)")
}

func stream(cmd *cobra.Command, code domain.RoomCode, facing domain.Facing) error {
	logger := newLogger()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	ep, err := connect(ctx, domain.RoleSource, s, logger)
	if err != nil {
		return err
	}
	defer ep.close()

	capture := webrtcinfra.NewFileCapture(map[domain.Facing]string{
		domain.FacingUser:        flagFront,
		domain.FacingEnvironment: flagBack,
	}, logger)
	source := orchestrator.NewSource(ep.manager, capture, facing, logger)
	defer source.Close()

	if err := source.Start(ctx); err != nil {
		return err
	}

	go readCommands(ctx, os.Stdin, func(line string) {
		if err := sourceCommand(ctx, source, os.Stdout, line); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	})

	h := ep.handlers(
		func(room domain.Room) {
			if err := source.OnMembershipChanged(ctx, room); err != nil {
				logger.Warnw("failed to react to membership", "room", room.Code, "error", err)
			}
		},
		func(env domain.SignalEnvelope) {
			if err := source.HandleEnvelope(ctx, env); err != nil {
				logger.Warnw("failed to handle signal", "from", env.From, "error", err)
			}
		},
	)

	return ep.run(ctx, h, func() error {
		return ep.client.Join(ctx, code, flagName, domain.RoleSource)
	})
}
