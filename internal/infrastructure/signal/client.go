package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"
	"github.com/MeNameek/camerasystem/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClientClosed is returned by sends after Close or a lost connection.
var ErrClientClosed = errors.New("signal client closed")

// Handlers are invoked from the client's read loop, one message at a time.
// Any of them may be nil.
type Handlers struct {
	OnJoined     func(code domain.RoomCode)
	OnMembership func(room domain.Room)
	OnSignal     func(env domain.SignalEnvelope)
	OnError      func(code, message string)
}

type ClientOptions struct {
	Retry        retry.Config
	WriteTimeout time.Duration
	Header       http.Header
	Logger       *zap.SugaredLogger
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Retry:        retry.DefaultConfig(),
		WriteTimeout: 10 * time.Second,
	}
}

// Client is an endpoint's connection to the relay.
type Client struct {
	conn *websocket.Conn
	id   domain.ParticipantID

	writeMu      sync.Mutex
	writeTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
	logger    *zap.SugaredLogger
}

// Dial connects to the relay, retrying transient failures, and waits for the
// welcome message carrying this endpoint's participant id.
func Dial(ctx context.Context, url string, opts ClientOptions) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultClientOptions().WriteTimeout
	}
	retryCfg := opts.Retry
	retryCfg.NonRetryable = append(retryCfg.NonRetryable, websocket.ErrBadHandshake)
	retryCfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		opts.Logger.Warnw("relay dial failed, retrying", "url", url, "attempt", attempt, "delay", delay, "error", err)
	}

	conn, err := retry.RetryWithResult(ctx, retryCfg, func() (*websocket.Conn, error) {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, opts.Header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return conn, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	var welcome Message
	if err := conn.ReadJSON(&welcome); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read welcome: %w", err)
	}
	if welcome.Type != TypeWelcome || welcome.ID == "" {
		conn.Close()
		return nil, fmt.Errorf("unexpected first message %q", welcome.Type)
	}

	opts.Logger.Infow("connected to relay", "url", url, "participant_id", welcome.ID)
	return &Client{
		conn:         conn,
		id:           welcome.ID,
		writeTimeout: opts.WriteTimeout,
		closed:       make(chan struct{}),
		logger:       opts.Logger,
	}, nil
}

func (c *Client) ID() domain.ParticipantID { return c.id }

// Run reads messages until the connection drops or ctx is done.
func (c *Client) Run(ctx context.Context, h Handlers) error {
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.closed:
		}
	}()

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			closedLocally := c.isClosed()
			c.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if closedLocally || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("relay connection lost: %w", err)
		}
		c.dispatch(msg, h)
	}
}

func (c *Client) dispatch(msg Message, h Handlers) {
	switch msg.Type {
	case TypeJoined:
		if h.OnJoined != nil {
			h.OnJoined(msg.Room)
		}
	case TypeMembership:
		if h.OnMembership != nil {
			h.OnMembership(msg.RoomSnapshot())
		}
	case TypeSignal:
		if h.OnSignal != nil {
			h.OnSignal(msg.Envelope())
		}
	case TypeError:
		c.logger.Warnw("relay reported error", "code", msg.Code, "message", msg.Message)
		if h.OnError != nil {
			h.OnError(msg.Code, msg.Message)
		}
	default:
		c.logger.Debugw("ignoring relay message", "type", msg.Type)
	}
}

func (c *Client) Join(ctx context.Context, code domain.RoomCode, name string, role domain.Role) error {
	return c.write(Message{Type: TypeJoin, Room: code, Name: name, Role: role})
}

// Create asks the relay to open a room; an empty code lets the relay pick one.
func (c *Client) Create(ctx context.Context, code domain.RoomCode, name string) error {
	return c.write(Message{Type: TypeCreate, Room: code, Name: name, Role: domain.RoleViewer})
}

func (c *Client) Leave(ctx context.Context) error {
	return c.write(Message{Type: TypeLeave})
}

func (c *Client) SendSignal(ctx context.Context, env domain.SignalEnvelope) error {
	return c.write(signalMessage(env))
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Client) write(msg Message) error {
	if c.isClosed() {
		return ErrClientClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

var _ ports.SignalSender = (*Client)(nil)
