package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/session"
	signalinfra "github.com/MeNameek/camerasystem/internal/infrastructure/signal"
	webrtcinfra "github.com/MeNameek/camerasystem/internal/infrastructure/webrtc"
	"github.com/MeNameek/camerasystem/pkg/config"
	"github.com/MeNameek/camerasystem/pkg/validation"

	"github.com/pion/webrtc/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const leaveTimeout = 2 * time.Second

// endpoint is one connected participant: the relay connection plus the
// sessions it negotiates.
type endpoint struct {
	client  *signalinfra.Client
	manager *session.Manager
	logger  *zap.SugaredLogger

	relayErr chan error
}

func validateCommon() error {
	if err := validation.ValidateURL(flagServer); err != nil {
		return fmt.Errorf("invalid --server: %w", err)
	}
	if err := validation.ValidateDisplayName(flagName); err != nil {
		return fmt.Errorf("invalid --name: %w", err)
	}
	if flagIdleTimeout < 0 {
		return fmt.Errorf("--idle-timeout must not be negative")
	}
	return nil
}

func parseRoomCode(arg string) (domain.RoomCode, error) {
	code := domain.NormalizeRoomCode(arg)
	if err := validation.ValidateRoomCode(code, 0, ""); err != nil {
		return "", err
	}
	return code, nil
}

// settings are the endpoint knobs; a --config file supplies them unless the
// matching flag was given.
type settings struct {
	webrtc           webrtcinfra.Config
	idleTimeout      time.Duration
	evictionInterval time.Duration
}

func loadSettings(cmd *cobra.Command) (settings, error) {
	s := settings{
		idleTimeout:      flagIdleTimeout,
		evictionInterval: session.DefaultEvictionInterval,
	}
	if len(flagICEServers) > 0 {
		s.webrtc.ICEServers = []webrtc.ICEServer{{URLs: flagICEServers}}
	}
	if flagConfig == "" {
		return s, nil
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return s, err
	}
	if !cmd.Flags().Changed("ice") {
		s.webrtc.ICEServers = nil
		for _, server := range cfg.WebRTC.ICEServers {
			s.webrtc.ICEServers = append(s.webrtc.ICEServers, webrtc.ICEServer{
				URLs:       server.URLs,
				Username:   server.Username,
				Credential: server.Credential,
			})
		}
	}
	if !cmd.Flags().Changed("idle-timeout") {
		s.idleTimeout = cfg.Session.IdleTimeout
	}
	s.evictionInterval = cfg.Session.EvictionInterval
	s.webrtc.PortRange.Min = cfg.WebRTC.PortRange.Min
	s.webrtc.PortRange.Max = cfg.WebRTC.PortRange.Max
	return s, nil
}

func connect(ctx context.Context, role domain.Role, s settings, logger *zap.SugaredLogger) (*endpoint, error) {
	opts := signalinfra.DefaultClientOptions()
	opts.Logger = logger
	client, err := signalinfra.Dial(ctx, flagServer, opts)
	if err != nil {
		return nil, err
	}

	factory, err := webrtcinfra.NewTransportFactory(s.webrtc, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	local := domain.NewParticipant(client.ID(), flagName, role)
	manager := session.New(local, factory, client, session.Options{
		IdleTimeout:      s.idleTimeout,
		EvictionInterval: s.evictionInterval,
		Logger:           logger,
	})

	return &endpoint{
		client:   client,
		manager:  manager,
		logger:   logger.With("participant_id", local.ID, "role", role),
		relayErr: make(chan error, 1),
	}, nil
}

// handlers wires relay messages to the role specific callbacks. A relay
// error ends the run: it is only sent for a rejected join or create.
func (e *endpoint) handlers(onMembership func(domain.Room), onSignal func(domain.SignalEnvelope)) signalinfra.Handlers {
	return signalinfra.Handlers{
		OnJoined: func(code domain.RoomCode) {
			e.logger.Infow("joined room", "room", code)
			fmt.Printf("room %s\n", code)
		},
		OnMembership: onMembership,
		OnSignal:     onSignal,
		OnError: func(code, message string) {
			select {
			case e.relayErr <- fmt.Errorf("relay rejected request: %s: %s", code, message):
			default:
			}
		},
	}
}

// run reads relay messages until ctx is done, the relay drops us or it
// rejects our join. enter is called once the read loop is up.
func (e *endpoint) run(ctx context.Context, h signalinfra.Handlers, enter func() error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.client.Run(ctx, h) }()
	go e.manager.Run(ctx)

	if err := enter(); err != nil {
		cancel()
		<-done
		return err
	}

	select {
	case err := <-done:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case err := <-e.relayErr:
		cancel()
		<-done
		return err
	}
}

func (e *endpoint) close() {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()

	if err := e.client.Leave(ctx); err != nil {
		e.logger.Debugw("leave not sent", "error", err)
	}
	e.manager.Close()
	e.client.Close()
}
