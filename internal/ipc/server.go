package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"emojid/internal/logging"
)

// Handler processes request frames the server does not handle itself.
type Handler interface {
	HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, client *Client, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	return f(ctx, client, msg)
}

// Server accepts control connections on a unix socket.
type Server struct {
	mu          sync.RWMutex
	listener    net.Listener
	socketPath  string
	handler     Handler
	logger      *logging.Logger
	clients     map[string]*Client
	subscribers map[string]*subscription
	maxConns    int
	idle        time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	nextRequestID atomic.Uint32
	nextClientID  atomic.Uint64

	eventChan chan *Event
	dropped   atomic.Uint64
}

// Client is a connected peer.
type Client struct {
	mu           sync.Mutex
	ID           string
	conn         net.Conn
	ConnectedAt  time.Time
	LastActivity time.Time

	writeMu sync.Mutex
}

// subscription is a client's event filter and outbound queue.
type subscription struct {
	client *Client
	events map[string]bool
	queue  chan *Event
}

// ServerConfig configures the server.
type ServerConfig struct {
	SocketPath     string
	MaxConnections int
	// IdleTimeout pings a silent client; a client that stays silent through
	// a second timeout is dropped.
	IdleTimeout time.Duration
	Logger      *logging.Logger
}

// DefaultSocketPath returns the socket location inside dir.
func DefaultSocketPath(dir string) string {
	return filepath.Join(dir, "emojid.sock")
}

// NewServer creates a server. Start begins listening.
func NewServer(cfg ServerConfig, handler Handler) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 16
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath:  cfg.SocketPath,
		handler:     handler,
		logger:      cfg.Logger.WithComponent("ipc"),
		clients:     make(map[string]*Client),
		subscribers: make(map[string]*subscription),
		maxConns:    cfg.MaxConnections,
		idle:        cfg.IdleTimeout,
		ctx:         ctx,
		cancel:      cancel,
		eventChan:   make(chan *Event, 100),
	}
}

// Start listens on the socket. A live socket owned by another daemon is an
// error; a stale one is replaced.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if IsSocketListening(s.socketPath) {
		return fmt.Errorf("%w: %s", ErrDaemonRunning, s.socketPath)
	}
	if err := CleanupSocket(s.socketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.listener = listener
	s.running.Store(true)

	s.wg.Add(2)
	go s.eventBroadcaster()
	go s.acceptLoop()

	s.logger.Debug("control socket listening", "path", s.socketPath)
	return nil
}

// Stop closes every connection and removes the socket file.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	s.listener.Close()

	s.mu.Lock()
	for _, client := range s.clients {
		client.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("control socket shutdown timed out")
	}

	os.Remove(s.socketPath)
	return nil
}

// SocketPath returns the socket path.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast queues an event for subscribers. It never blocks.
func (s *Server) Broadcast(event *Event) {
	if !s.running.Load() {
		return
	}
	select {
	case s.eventChan <- event:
	default:
		s.dropped.Add(1)
	}
}

// Dropped counts events discarded because a queue was full.
func (s *Server) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		if ok, err := VerifyPeerIsCurrentUser(conn); err == nil && !ok {
			s.logger.Warn("rejected control connection from another user")
			conn.Close()
			continue
		}

		s.mu.RLock()
		count := len(s.clients)
		s.mu.RUnlock()
		if count >= s.maxConns {
			conn.Close()
			continue
		}

		now := time.Now()
		client := &Client{
			ID:           fmt.Sprintf("client-%d", s.nextClientID.Add(1)),
			conn:         conn,
			ConnectedAt:  now,
			LastActivity: now,
		}

		s.mu.Lock()
		s.clients[client.ID] = client
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(client)
	}
}

func (s *Server) handleConnection(client *Client) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, client.ID)
		if sub, ok := s.subscribers[client.ID]; ok {
			close(sub.queue)
			delete(s.subscribers, client.ID)
		}
		s.mu.Unlock()
		client.conn.Close()
	}()

	pinged := false
	for {
		if s.ctx.Err() != nil {
			return
		}

		client.conn.SetReadDeadline(time.Now().Add(s.idle))
		msg, err := ReadMessage(client.conn)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() && !pinged {
				pinged = true
				s.sendMessage(client, NewMessage(MsgPing, s.nextRequestID.Add(1), nil))
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && s.ctx.Err() == nil {
				s.logger.Debug("control connection closed", "client", client.ID, "error", err)
			}
			return
		}
		pinged = false

		client.mu.Lock()
		client.LastActivity = time.Now()
		client.mu.Unlock()

		response, err := s.processMessage(client, msg)
		if err != nil {
			response = NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
		}
		if response != nil {
			if err := s.sendMessage(client, response); err != nil {
				return
			}
		}
	}
}

func (s *Server) processMessage(client *Client, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, msg.Header.RequestID, nil), nil
	case MsgPong:
		return nil, nil
	case MsgSubscribe:
		return s.handleSubscribe(client, msg)
	default:
		if s.handler == nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "no handler"), nil
		}
		return s.handler.HandleMessage(s.ctx, client, msg)
	}
}

func (s *Server) handleSubscribe(client *Client, msg *Message) (*Message, error) {
	var req SubscribeRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid subscribe request"), nil
		}
	}

	sub := &subscription{
		client: client,
		events: make(map[string]bool, len(req.Events)),
		queue:  make(chan *Event, 64),
	}
	for _, et := range req.Events {
		sub.events[et] = true
	}

	s.mu.Lock()
	if old, ok := s.subscribers[client.ID]; ok {
		close(old.queue)
	}
	s.subscribers[client.ID] = sub
	s.mu.Unlock()

	s.wg.Add(1)
	go s.eventWriter(sub)

	return NewResponse(MsgSubscribeResp, msg.Header.RequestID, &SubscribeResponse{SubscriptionID: client.ID})
}

// eventBroadcaster fans events out to subscriber queues.
func (s *Server) eventBroadcaster() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.eventChan:
			s.mu.RLock()
			for _, sub := range s.subscribers {
				if len(sub.events) > 0 && !sub.events[event.Type] {
					continue
				}
				select {
				case sub.queue <- event:
				default:
					s.dropped.Add(1)
				}
			}
			s.mu.RUnlock()
		}
	}
}

// eventWriter sends one subscriber's events in order.
func (s *Server) eventWriter(sub *subscription) {
	defer s.wg.Done()

	for event := range sub.queue {
		payload, err := Encode(event)
		if err != nil {
			continue
		}
		if err := s.sendMessage(sub.client, NewMessage(MsgEvent, s.nextRequestID.Add(1), payload)); err != nil {
			return
		}
	}
}

func (s *Server) sendMessage(client *Client, msg *Message) error {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	client.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return msg.Write(client.conn)
}
