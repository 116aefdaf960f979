// ABOUTME: Level feed server
// ABOUTME: Streams the capture format and peaks to websocket watchers
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-capture/internal/version"
	"github.com/Resonate-Protocol/resonate-capture/pkg/audio"
	"github.com/Resonate-Protocol/resonate-capture/pkg/capture"
	"github.com/Resonate-Protocol/resonate-capture/pkg/meter"
	"github.com/Resonate-Protocol/resonate-capture/pkg/protocol"
	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// DefaultInterval is the level broadcast period
	DefaultInterval = 50 * time.Millisecond

	// stateEvery is the number of level ticks between state broadcasts
	stateEvery = 20

	writeDeadline = 10 * time.Second
	sendBuffer    = 32
)

// ErrSendBufferFull is returned when a watcher is not keeping up
var ErrSendBufferFull = errors.New("feed: client send buffer full")

// Source is the capture session being published
type Source interface {
	ID() string
	State() capture.State
	Format() (audio.Format, error)
	Levels() meter.Reading
	Stats() capture.Stats
}

// Config holds feed configuration
type Config struct {
	Addr     string // listen address, ":0" picks a port
	Name     string
	Interval time.Duration
}

// Server publishes a capture source to websocket watchers
type Server struct {
	config   Config
	serverID string
	source   Source
	logger   *zap.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux
	listener   net.Listener

	clients   map[string]*Client
	clientsMu sync.RWMutex

	clockStart  time.Time
	tickMu      sync.Mutex
	lastUpdates uint64
	lastFormat  protocol.FormatInfo
	ticks       int

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client is a connected watcher
type Client struct {
	ID       string
	Name     string
	Conn     *websocket.Conn
	sendChan chan protocol.Message
}

// New creates a feed server for source
func New(config Config, source Source, logger *zap.Logger) *Server {
	if config.Interval == 0 {
		config.Interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		source:   source,
		logger:   logger,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Watchers run on the local network; browsers may connect from anywhere.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:    make(map[string]*Client),
		clockStart: time.Now(),
		stopChan:   make(chan struct{}),
	}
	s.mux.HandleFunc(protocol.LevelsPath, s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler serving the feed
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on the configured address and starts broadcasting
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s.mux}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("level feed server failed", zap.Error(err))
		}
	}()
	go func() {
		defer s.wg.Done()
		s.broadcastLoop()
	}()

	s.logger.Info("level feed listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", protocol.LevelsPath))
	return nil
}

// Addr returns the listening address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the listening port, or 0 before Start
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Stop disconnects watchers and shuts the server down
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.shutdownMu.Lock()
		s.isShutdown = true
		s.shutdownMu.Unlock()
		close(s.stopChan)

		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.logger.Warn("level feed shutdown error", zap.Error(err))
			}
		}

		s.clientsMu.RLock()
		for _, client := range s.clients {
			client.Conn.Close()
		}
		s.clientsMu.RUnlock()

		s.wg.Wait()
		s.logger.Info("level feed stopped")
	})
}

// ClientCount returns the number of connected watchers
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// broadcastLoop publishes levels every interval
func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-s.stopChan:
			return
		}
	}
}

// Tick broadcasts format changes, new levels and periodically the state
func (s *Server) Tick() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if format := s.formatInfo(); !sameFormat(format, s.lastFormat) {
		s.lastFormat = format
		s.broadcast(protocol.TypeFormat, format)
	}

	reading := s.source.Levels()
	if reading.Updates != s.lastUpdates && len(reading.Peaks) > 0 {
		s.lastUpdates = reading.Updates
		s.broadcast(protocol.TypeLevels, protocol.LevelsUpdate{
			Timestamp: s.clockMicros(),
			Peaks:     reading.Peaks,
			Levels:    reading.Quantized(),
			Updates:   reading.Updates,
		})
	}

	s.ticks++
	if s.ticks%stateEvery == 0 {
		s.broadcast(protocol.TypeState, s.stateUpdate())
	}
}

func (s *Server) formatInfo() protocol.FormatInfo {
	f, err := s.source.Format()
	if err != nil {
		return protocol.FormatInfo{}
	}
	return protocol.FormatInfo{
		SampleFormat: spa.AudioFormatName(f.SampleFormat),
		SampleRate:   int(f.SampleRate),
		Channels:     int(f.Channels),
		Positions:    f.Positions,
	}
}

func sameFormat(a, b protocol.FormatInfo) bool {
	if a.SampleFormat != b.SampleFormat || a.SampleRate != b.SampleRate ||
		a.Channels != b.Channels || len(a.Positions) != len(b.Positions) {
		return false
	}
	for i := range a.Positions {
		if a.Positions[i] != b.Positions[i] {
			return false
		}
	}
	return true
}

func (s *Server) stateUpdate() protocol.StateUpdate {
	stats := s.source.Stats()
	return protocol.StateUpdate{
		State:     s.source.State().String(),
		Processed: stats.Processed,
		Underruns: stats.Underruns,
		Malformed: stats.Malformed,
		Released:  stats.Released,
	}
}

// broadcast queues a message for every watcher
func (s *Server) broadcast(msgType string, payload interface{}) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, client := range s.clients {
		if err := s.sendMessage(client, msgType, payload); err != nil {
			s.logger.Debug("dropping message for slow watcher",
				zap.String("client", client.Name),
				zap.String("type", msgType))
		}
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}

	s.logger.Debug("new websocket connection", zap.String("remote", r.RemoteAddr))
	s.handleConnection(conn)
}

// handleConnection manages a watcher connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		s.logger.Debug("rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	conn.SetReadDeadline(time.Now().Add(writeDeadline))
	_, data, err := conn.ReadMessage()
	if err != nil {
		s.logger.Warn("error reading hello", zap.Error(err))
		return
	}
	conn.SetReadDeadline(time.Time{})

	msgType, payload, err := protocol.Decode(data)
	if err != nil {
		s.logger.Warn("error decoding hello", zap.Error(err))
		return
	}
	if msgType != protocol.TypeClientHello {
		s.logger.Warn("expected client/hello", zap.String("type", msgType))
		return
	}

	var hello protocol.ClientHello
	if err := json.Unmarshal(payload, &hello); err != nil {
		s.logger.Warn("error unmarshaling client hello", zap.Error(err))
		return
	}
	if hello.ClientID == "" {
		s.logger.Warn("client hello missing client id")
		return
	}

	client := &Client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		sendChan: make(chan protocol.Message, sendBuffer),
	}

	s.clientsMu.Lock()
	if existing, exists := s.clients[hello.ClientID]; exists {
		s.clientsMu.Unlock()
		s.logger.Warn("rejecting duplicate client id",
			zap.String("client_id", hello.ClientID),
			zap.String("existing", existing.Name))

		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		conn.WriteJSON(protocol.Message{
			Type: protocol.TypeServerError,
			Payload: protocol.ServerError{
				Error:   "duplicate_client_id",
				Message: "Client ID already connected",
			},
		})
		return
	}

	// server/hello and the current format go out before any broadcast can.
	client.sendChan <- protocol.Message{
		Type: protocol.TypeServerHello,
		Payload: protocol.ServerHello{
			ServerID:  s.serverID,
			SessionID: s.source.ID(),
			Name:      s.config.Name,
			Version:   protocol.ProtocolVersion,
			DeviceInfo: &protocol.DeviceInfo{
				ProductName:     version.Product,
				Manufacturer:    version.Manufacturer,
				SoftwareVersion: version.Version,
			},
		},
	}
	client.sendChan <- protocol.Message{Type: protocol.TypeFormat, Payload: s.formatInfo()}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	s.logger.Info("watcher connected", zap.String("name", client.Name), zap.String("client_id", client.ID))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.clientWriter(client)
	}()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		close(client.sendChan)
		s.clientsMu.Unlock()
		<-writerDone
		s.logger.Info("watcher disconnected", zap.String("name", client.Name))
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket error", zap.Error(err))
			}
			return
		}

		msgType, _, err := protocol.Decode(data)
		if err != nil {
			s.logger.Debug("error decoding message", zap.Error(err))
			continue
		}
		if msgType == protocol.TypeClientGoodbye {
			s.logger.Debug("watcher said goodbye", zap.String("name", client.Name))
			return
		}
	}
}

// clientWriter sends queued messages to the watcher
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := client.Conn.WriteJSON(msg); err != nil {
				s.logger.Debug("error writing message", zap.Error(err))
				client.Conn.Close()
				drain(client.sendChan)
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				client.Conn.Close()
				drain(client.sendChan)
				return
			}
		}
	}
}

// drain discards messages until the channel is closed
func drain(ch <-chan protocol.Message) {
	for range ch {
	}
}

// sendMessage queues a JSON message for a watcher
func (s *Server) sendMessage(client *Client, msgType string, payload interface{}) error {
	select {
	case client.sendChan <- protocol.Message{Type: msgType, Payload: payload}:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// clockMicros returns the feed clock in microseconds
func (s *Server) clockMicros() int64 {
	return time.Since(s.clockStart).Microseconds()
}
