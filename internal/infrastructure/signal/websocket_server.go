package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"
	apperrors "github.com/MeNameek/camerasystem/pkg/errors"
	rlog "github.com/MeNameek/camerasystem/pkg/logger"
	"github.com/MeNameek/camerasystem/pkg/tracing"
	"github.com/MeNameek/camerasystem/pkg/validation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ConnectionMetrics is implemented by the Prometheus collector.
type ConnectionMetrics interface {
	ConnectionOpened()
	ConnectionClosed()
	MessageReceived(messageType string)
	MessageRejected(reason string)
}

type Options struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	SendQueueSize     int
	MaxMessageSize    int64
	MessagesPerSecond float64 // 0 disables per-connection limiting
	Burst             int
	MaxConnections    int // 0 means unlimited
	AllowedOrigins    []string
}

func DefaultOptions() Options {
	return Options{
		PingInterval:   54 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendQueueSize:  64,
		MaxMessageSize: 64 * 1024,
	}
}

// WebSocketServer owns one connection per participant. It implements
// ports.Deliverer for the relay: deliveries are queued on the connection's
// send buffer and never block the caller.
type WebSocketServer struct {
	relay   ports.MessageRelay
	opts    Options
	metrics ConnectionMetrics

	upgrader websocket.Upgrader
	clients  map[domain.ParticipantID]*client
	mu       sync.RWMutex

	logger    *zap.SugaredLogger
	ctxLogger *rlog.ContextLogger
}

type client struct {
	id      domain.ParticipantID
	conn    *websocket.Conn
	send    chan Message
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
}

func (c *client) enqueue(msg Message) error {
	select {
	case <-c.done:
		return domain.ErrDeliveryRace
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return fmt.Errorf("send queue full: %w", domain.ErrDeliveryRace)
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func NewWebSocketServer(opts Options, logger *zap.SugaredLogger) *WebSocketServer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	defaults := DefaultOptions()
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaults.PingInterval
	}
	if opts.PongTimeout <= opts.PingInterval {
		opts.PongTimeout = opts.PingInterval + opts.PingInterval/9
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = defaults.SendQueueSize
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaults.MaxMessageSize
	}

	s := &WebSocketServer{
		opts:      opts,
		clients:   make(map[domain.ParticipantID]*client),
		logger:    logger,
		ctxLogger: rlog.NewContextLogger(logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetRelay must be called before the server accepts connections. The relay
// itself is built with this server as its Deliverer.
func (s *WebSocketServer) SetRelay(relay ports.MessageRelay) {
	s.relay = relay
}

func (s *WebSocketServer) SetMetrics(metrics ConnectionMetrics) {
	s.metrics = metrics
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.relay == nil {
		http.Error(w, "relay not ready", http.StatusServiceUnavailable)
		return
	}
	if s.opts.MaxConnections > 0 && s.ConnectionCount() >= s.opts.MaxConnections {
		s.rejected("max_connections")
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	limit := rate.Inf
	if s.opts.MessagesPerSecond > 0 {
		limit = rate.Limit(s.opts.MessagesPerSecond)
	}
	c := &client{
		id:      domain.ParticipantID(uuid.NewString()),
		conn:    conn,
		send:    make(chan Message, s.opts.SendQueueSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(limit, max(s.opts.Burst, 1)),
	}

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ConnectionOpened()
	}

	ctx := rlog.WithParticipant(context.Background(), string(c.id))
	s.ctxLogger.WithContext(ctx).Infow("participant connected", "remote_addr", r.RemoteAddr)

	_ = c.enqueue(Message{Type: TypeWelcome, ID: c.id})

	go s.writePump(c)
	s.readPump(ctx, c)
}

func (s *WebSocketServer) readPump(ctx context.Context, c *client) {
	defer s.disconnect(ctx, c)

	c.conn.SetReadLimit(s.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.ctxLogger.WithContext(ctx).Infow("error reading message", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if !c.limiter.Allow() {
			s.rejected("rate_limited")
			s.sendError(c, apperrors.NewRateLimitError())
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.rejected("malformed")
			s.sendError(c, apperrors.NewInvalidInputError("malformed message"))
			continue
		}

		s.handleMessage(ctx, c, msg)
	}
}

func (s *WebSocketServer) writePump(c *client) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				s.logger.Infow("error writing message", "participant_id", c.id, "error", err)
				c.close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "participant_id", c.id, "error", err)
				c.close()
				return
			}
		}
	}
}

func (s *WebSocketServer) handleMessage(ctx context.Context, c *client, msg Message) {
	ctx, span := tracing.TraceWebSocketMessage(ctx, string(msg.Type), string(c.id))
	defer span.End()

	if s.metrics != nil {
		s.metrics.MessageReceived(string(msg.Type))
	}

	var err error
	switch msg.Type {
	case TypeJoin:
		err = s.handleJoin(ctx, c, msg)
	case TypeCreate:
		err = s.handleCreate(ctx, c, msg)
	case TypeLeave:
		s.relay.Leave(ctx, c.id)
	case TypeSignal:
		env := msg.Envelope()
		tracing.AddSpanAttributes(ctx, tracing.DirectedKey.Bool(env.Directed()))
		if env.Directed() {
			tracing.AddSpanAttributes(ctx, tracing.TargetKey.String(string(env.To)))
		}
		s.relay.Route(ctx, c.id, env)
	default:
		s.rejected("unknown_type")
		err = apperrors.NewInvalidInputError(fmt.Sprintf("unknown message type: %s", msg.Type))
	}

	if err != nil {
		tracing.RecordError(ctx, err)
		s.sendError(c, err)
	}
}

func (s *WebSocketServer) handleJoin(ctx context.Context, c *client, msg Message) error {
	code := domain.NormalizeRoomCode(string(msg.Room))
	if err := validation.ValidateRoomCode(code, 0, ""); err != nil {
		return err
	}
	participant, err := s.participant(c.id, msg.Name, msg.Role)
	if err != nil {
		return err
	}
	tracing.AddSpanAttributes(ctx, tracing.RoomCodeKey.String(string(code)), tracing.RoleKey.String(string(participant.Role)))

	room, err := s.relay.Join(ctx, code, participant)
	if err != nil {
		return err
	}
	return c.enqueue(Message{Type: TypeJoined, Room: room.Code, ID: c.id})
}

// handleCreate opens a room as a viewer. Without a room field the relay
// picks a fresh code.
func (s *WebSocketServer) handleCreate(ctx context.Context, c *client, msg Message) error {
	var code domain.RoomCode
	if msg.Room != "" {
		code = domain.NormalizeRoomCode(string(msg.Room))
		if err := validation.ValidateRoomCode(code, 0, ""); err != nil {
			return err
		}
	}
	if msg.Role != "" && msg.Role != domain.RoleViewer {
		return fmt.Errorf("only viewers create rooms, got %q: %w", msg.Role, domain.ErrInvalidRole)
	}
	participant, err := s.participant(c.id, msg.Name, domain.RoleViewer)
	if err != nil {
		return err
	}

	room, err := s.relay.Create(ctx, code, participant)
	if err != nil {
		return err
	}
	tracing.AddSpanAttributes(ctx, tracing.RoomCodeKey.String(string(room.Code)))
	return c.enqueue(Message{Type: TypeJoined, Room: room.Code, ID: c.id})
}

func (s *WebSocketServer) participant(id domain.ParticipantID, name string, role domain.Role) (domain.Participant, error) {
	if err := validation.ValidateRole(role); err != nil {
		return domain.Participant{}, err
	}
	if err := validation.ValidateDisplayName(name); err != nil {
		return domain.Participant{}, apperrors.NewInvalidInputError(err.Error())
	}
	return domain.NewParticipant(id, name, role), nil
}

func (s *WebSocketServer) disconnect(ctx context.Context, c *client) {
	s.mu.Lock()
	if s.clients[c.id] == c {
		delete(s.clients, c.id)
	}
	s.mu.Unlock()

	c.close()
	s.relay.Leave(ctx, c.id)

	if s.metrics != nil {
		s.metrics.ConnectionClosed()
	}
	s.ctxLogger.WithContext(ctx).Infow("participant disconnected")
}

// sendError reports join/create and protocol failures to the client.
// Routing failures never reach this path.
func (s *WebSocketServer) sendError(c *client, err error) {
	appErr := apperrors.FromDomain(err)
	if appErr == nil {
		return
	}
	if qerr := c.enqueue(Message{Type: TypeError, Code: string(appErr.Code), Message: appErr.Message}); qerr != nil {
		s.logger.Debugw("dropping error message", "participant_id", c.id, "error", qerr)
	}
}

func (s *WebSocketServer) rejected(reason string) {
	if s.metrics != nil {
		s.metrics.MessageRejected(reason)
	}
}

func (s *WebSocketServer) lookup(id domain.ParticipantID) (*client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	return c, ok
}

func (s *WebSocketServer) DeliverSignal(to domain.ParticipantID, env domain.SignalEnvelope) error {
	c, ok := s.lookup(to)
	if !ok {
		return domain.ErrDeliveryRace
	}
	return c.enqueue(signalMessage(env))
}

func (s *WebSocketServer) DeliverMembership(to domain.ParticipantID, room domain.Room) error {
	c, ok := s.lookup(to)
	if !ok {
		return domain.ErrDeliveryRace
	}
	return c.enqueue(membershipMessage(room))
}

func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *WebSocketServer) IsConnected(id domain.ParticipantID) bool {
	_, ok := s.lookup(id)
	return ok
}

// Close sends a close frame to every connection. Their read loops then
// leave the relay as on any other disconnect.
func (s *WebSocketServer) Close() {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

var _ ports.Deliverer = (*WebSocketServer)(nil)
