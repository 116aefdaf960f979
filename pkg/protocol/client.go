// ABOUTME: WebSocket client for the level feed
// ABOUTME: Handles connection, handshake, and message routing
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when sending on a closed client
var ErrNotConnected = errors.New("protocol: not connected")

const handshakeTimeout = 5 * time.Second

// Config holds client configuration
type Config struct {
	ServerAddr string // host:port of the feed
	ClientID   string // generated when empty
	Name       string
	Logger     *zap.Logger
}

// Client is a level feed watcher
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex
	logger *zap.Logger

	// Message channels
	Levels  chan LevelsUpdate
	Formats chan FormatInfo
	States  chan StateUpdate

	// State
	hello     ServerHello
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient creates a new feed client
func NewClient(config Config) *Client {
	if config.ClientID == "" {
		config.ClientID = uuid.New().String()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:  config,
		logger:  logger.With(zap.String("client_id", config.ClientID)),
		Levels:  make(chan LevelsUpdate, 16),
		Formats: make(chan FormatInfo, 4),
		States:  make(chan StateUpdate, 4),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Connect dials the feed and performs the handshake
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: LevelsPath}
	c.logger.Info("connecting to level feed", zap.String("url", u.String()))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	return nil
}

// handshake sends client/hello and waits for server/hello
func (c *Client) handshake() error {
	hello := ClientHello{
		ClientID: c.config.ClientID,
		Name:     c.config.Name,
		Version:  ProtocolVersion,
	}
	if err := c.send(TypeClientHello, hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	msgType, payload, err := Decode(data)
	if err != nil {
		return err
	}
	switch msgType {
	case TypeServerHello:
	case TypeServerError:
		var serverErr ServerError
		if err := json.Unmarshal(payload, &serverErr); err != nil {
			return fmt.Errorf("failed to parse server/error: %w", err)
		}
		return fmt.Errorf("server rejected connection: %s", serverErr.Message)
	default:
		return fmt.Errorf("expected server/hello, got %s", msgType)
	}

	var serverHello ServerHello
	if err := json.Unmarshal(payload, &serverHello); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	c.mu.Lock()
	c.hello = serverHello
	c.mu.Unlock()

	c.logger.Info("handshake complete",
		zap.String("server", serverHello.Name),
		zap.String("session", serverHello.SessionID))
	return nil
}

// send writes one JSON message
func (c *Client) send(msgType string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(Message{Type: msgType, Payload: payload})
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer close(c.done)
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				c.logger.Warn("read error", zap.Error(err))
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text message", zap.Int("type", messageType))
			continue
		}
		c.handleJSONMessage(data)
	}
}

// handleJSONMessage routes JSON messages
func (c *Client) handleJSONMessage(data []byte) {
	msgType, payload, err := Decode(data)
	if err != nil {
		c.logger.Warn("failed to parse message", zap.Error(err))
		return
	}

	switch msgType {
	case TypeLevels:
		var levels LevelsUpdate
		if err := json.Unmarshal(payload, &levels); err != nil {
			c.logger.Warn("failed to parse levels", zap.Error(err))
			return
		}
		// Newer levels supersede dropped ones.
		select {
		case c.Levels <- levels:
		default:
		}

	case TypeFormat:
		var format FormatInfo
		if err := json.Unmarshal(payload, &format); err != nil {
			c.logger.Warn("failed to parse format", zap.Error(err))
			return
		}
		select {
		case c.Formats <- format:
		case <-c.ctx.Done():
		}

	case TypeState:
		var state StateUpdate
		if err := json.Unmarshal(payload, &state); err != nil {
			c.logger.Warn("failed to parse state", zap.Error(err))
			return
		}
		select {
		case c.States <- state:
		default:
		}

	default:
		c.logger.Debug("unknown message type", zap.String("type", msgType))
	}
}

// ServerHello returns the hello received during the handshake
func (c *Client) ServerHello() ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hello
}

// SendGoodbye sends a client/goodbye message before disconnecting
func (c *Client) SendGoodbye(reason string) error {
	return c.send(TypeClientGoodbye, ClientGoodbye{Reason: reason})
}

// Done is closed when the connection has ended
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		c.logger.Debug("connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
