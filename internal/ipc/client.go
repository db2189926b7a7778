package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrConnectionLost   = errors.New("connection to daemon lost")
	ErrTimeout          = errors.New("request timeout")
	ErrDaemonNotRunning = errors.New("daemon is not running")
	ErrDaemonRunning    = errors.New("daemon is already running")
)

// RemoteError is an error frame returned by the daemon.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("daemon: %s (code %d)", e.Message, e.Code)
}

// ClientConfig configures a client.
type ClientConfig struct {
	SocketPath     string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// Conn is a client connection to the daemon.
type Conn struct {
	cfg  ClientConfig
	conn net.Conn

	writeMu   sync.Mutex
	pendingMu sync.Mutex
	pending   map[uint32]chan *Message
	lost      bool
	nextReqID atomic.Uint32

	events chan *Event

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the daemon socket.
func Dial(cfg ClientConfig) (*Conn, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}

	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	nc, err := d.Dial("unix", cfg.SocketPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, ErrDaemonNotRunning
		}
		return nil, fmt.Errorf("connect: %w", err)
	}

	c := &Conn{
		cfg:     cfg,
		conn:    nc,
		pending: make(map[uint32]chan *Message),
		events:  make(chan *Event, 100),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close closes the connection. Events() is closed once the reader exits.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		<-c.done
	})
	return err
}

// Events delivers streamed events after Subscribe.
func (c *Conn) Events() <-chan *Event {
	return c.events
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer close(c.events)
	defer c.failPending()

	for {
		msg, err := ReadMessage(c.conn)
		if err != nil {
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Conn) failPending() {
	c.pendingMu.Lock()
	c.lost = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

func (c *Conn) handleMessage(msg *Message) {
	switch msg.Header.Type {
	case MsgPing:
		c.write(NewMessage(MsgPong, msg.Header.RequestID, nil))

	case MsgEvent:
		var event Event
		if err := Decode(msg.Payload, &event); err != nil {
			return
		}
		select {
		case c.events <- &event:
		default:
		}

	default:
		c.pendingMu.Lock()
		ch, ok := c.pending[msg.Header.RequestID]
		if ok {
			delete(c.pending, msg.Header.RequestID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (c *Conn) write(msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.RequestTimeout))
	return msg.Write(c.conn)
}

// request sends a frame and waits for the frame answering it.
func (c *Conn) request(ctx context.Context, msgType MessageType, payload any) (*Message, error) {
	data, err := Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	reqID := c.nextReqID.Add(1)
	respChan := make(chan *Message, 1)

	c.pendingMu.Lock()
	if c.lost {
		c.pendingMu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[reqID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	if err := c.write(NewMessage(msgType, reqID, data)); err != nil {
		return nil, fmt.Errorf("write message: %w", err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrConnectionLost
		}
		if resp.Header.Type == MsgError {
			var e ErrorResponse
			if err := Decode(resp.Payload, &e); err != nil {
				return nil, fmt.Errorf("decode error response: %w", err)
			}
			return nil, &RemoteError{Code: e.Code, Message: e.Message}
		}
		return resp, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func expect(resp *Message, want MessageType, v any) error {
	if resp.Header.Type != want {
		return fmt.Errorf("unexpected response %s, want %s", resp.Header.Type, want)
	}
	if v == nil {
		return nil
	}
	return Decode(resp.Payload, v)
}

// Ping checks that the daemon answers.
func (c *Conn) Ping(ctx context.Context) error {
	resp, err := c.request(ctx, MsgPing, nil)
	if err != nil {
		return err
	}
	return expect(resp, MsgPong, nil)
}

// Status returns the daemon status.
func (c *Conn) Status(ctx context.Context) (*StatusResponse, error) {
	resp, err := c.request(ctx, MsgStatusRequest, nil)
	if err != nil {
		return nil, err
	}
	var status StatusResponse
	if err := expect(resp, MsgStatusResponse, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SetEnabled turns expansion on or off; nil toggles. It returns the new
// state.
func (c *Conn) SetEnabled(ctx context.Context, enabled *bool) (bool, error) {
	resp, err := c.request(ctx, MsgSetEnabled, &SetEnabledRequest{Enabled: enabled})
	if err != nil {
		return false, err
	}
	var out SetEnabledResponse
	if err := expect(resp, MsgSetEnabledResp, &out); err != nil {
		return false, err
	}
	return out.Enabled, nil
}

// Subscribe starts the event stream. Events arrive on Events().
func (c *Conn) Subscribe(ctx context.Context, events ...string) error {
	resp, err := c.request(ctx, MsgSubscribe, &SubscribeRequest{Events: events})
	if err != nil {
		return err
	}
	return expect(resp, MsgSubscribeResp, nil)
}
