// ABOUTME: Main capture application orchestration
// ABOUTME: Coordinates the session, transport, level feed, discovery and UI
package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-capture/internal/discovery"
	"github.com/Resonate-Protocol/resonate-capture/internal/feed"
	"github.com/Resonate-Protocol/resonate-capture/internal/ui"
	"github.com/Resonate-Protocol/resonate-capture/pkg/capture"
	"github.com/Resonate-Protocol/resonate-capture/pkg/transport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// Config holds capture application configuration
type Config struct {
	Backend     string
	Target      string
	Name        string
	Constraints capture.Constraints
	FeedAddr    string // empty disables the level feed
	MDNS        bool
	UseTUI      bool
}

// Capture is the running capture application
type Capture struct {
	config Config
	logger *zap.Logger

	session   *capture.Session
	stream    transport.Stream
	feed      *feed.Server
	discovery *discovery.Manager
	tuiProg   *tea.Program
	controls  *ui.Controls

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	fatal    chan error
}

// New creates a capture application
func New(config Config, logger *zap.Logger) *Capture {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Capture{
		config: config,
		logger: logger,
		session: capture.NewSession(capture.Config{
			Target:      config.Target,
			Name:        config.Name,
			Constraints: config.Constraints,
		}, logger.Named("capture")),
		ctx:    ctx,
		cancel: cancel,
		fatal:  make(chan error, 1),
	}
}

// Session returns the capture session
func (c *Capture) Session() *capture.Session {
	return c.session
}

// FeedPort returns the level feed port, or 0 when the feed is off
func (c *Capture) FeedPort() int {
	if c.feed == nil {
		return 0
	}
	return c.feed.Port()
}

// Start connects the stream and starts the optional components
func (c *Capture) Start(ctx context.Context) error {
	stream, err := transport.New(c.config.Backend, c.session.Events(), c.logger.Named(c.config.Backend))
	if err != nil {
		return err
	}
	c.stream = stream

	if c.config.UseTUI {
		c.controls = ui.NewControls()
		prog, err := ui.Run(c.controls)
		if err != nil {
			return fmt.Errorf("failed to start TUI: %w", err)
		}
		c.tuiProg = prog
		go func() {
			if _, err := prog.Run(); err != nil {
				c.logger.Error("TUI failed", zap.Error(err))
			}
		}()
		connected := false
		c.updateTUI(ui.StatusMsg{Connected: &connected, Target: c.config.Target, Backend: c.config.Backend})
	}

	if err := c.session.Connect(ctx, stream); err != nil {
		return err
	}

	if c.config.FeedAddr != "" {
		c.feed = feed.New(feed.Config{Addr: c.config.FeedAddr, Name: c.config.Name}, c.session, c.logger.Named("feed"))
		if err := c.feed.Start(); err != nil {
			return fmt.Errorf("failed to start level feed: %w", err)
		}

		if c.config.MDNS {
			c.discovery = discovery.NewManager(discovery.Config{
				ServiceName: c.config.Name,
				Port:        c.feed.Port(),
				SessionID:   c.session.ID(),
				Logger:      c.logger.Named("mdns"),
			})
			if err := c.discovery.Advertise(); err != nil {
				// The feed stays reachable by address.
				c.logger.Warn("failed to start mDNS advertisement", zap.Error(err))
			}
		}
	}

	go c.handleErrors()
	if c.tuiProg != nil {
		go c.statsUpdateLoop()
	}
	return nil
}

// Run starts the application and blocks until ctx is done, the TUI quits,
// or the stream fails
func (c *Capture) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		c.Stop()
		return err
	}

	var quit <-chan struct{}
	if c.controls != nil {
		quit = c.controls.Quit
	}

	var runErr error
	select {
	case <-ctx.Done():
		c.logger.Info("shutdown signal received")
	case <-quit:
		c.logger.Info("received quit signal from TUI")
	case runErr = <-c.fatal:
		c.logger.Error("capture failed", zap.Error(runErr))
	}

	if err := c.Stop(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// handleErrors logs transport failures and stops on a dead device
func (c *Capture) handleErrors() {
	for {
		select {
		case err := <-c.session.Errors():
			c.logger.Warn("transport error", zap.Error(err))
			if errors.Is(err, transport.ErrDeviceStopped) {
				select {
				case c.fatal <- err:
				default:
				}
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// updateTUI sends a status update when the TUI is running
func (c *Capture) updateTUI(msg ui.StatusMsg) {
	if c.tuiProg != nil {
		c.tuiProg.Send(msg)
	}
}

// statsUpdateLoop periodically updates the TUI with levels and counters
func (c *Capture) statsUpdateLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	// Runtime stats are expensive, collect them less often
	runtimeStatsTicker := time.NewTicker(2 * time.Second)
	defer runtimeStatsTicker.Stop()

	for {
		select {
		case <-runtimeStatsTicker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			c.updateTUI(ui.StatusMsg{
				Goroutines: runtime.NumGoroutine(),
				MemAlloc:   m.Alloc,
			})

		case <-ticker.C:
			c.updateTUI(c.status())

		case <-c.ctx.Done():
			return
		}
	}
}

// status builds a TUI update from the session
func (c *Capture) status() ui.StatusMsg {
	state := c.session.State()
	connected := state == capture.StateNegotiating || state == capture.StateStreaming
	stats := c.session.Stats()

	msg := ui.StatusMsg{
		Connected: &connected,
		State:     state.String(),
		Peaks:     c.session.Levels().Peaks,
		Processed: stats.Processed,
		Underruns: stats.Underruns,
		Malformed: stats.Malformed,
		Released:  stats.Released,
	}
	if f, err := c.session.Format(); err == nil {
		msg.Format = f.String()
	}
	if c.feed != nil {
		msg.FeedAddr = c.feed.Addr().String()
		msg.FeedClients = c.feed.ClientCount()
	}
	return msg
}

// Stop tears everything down. It is safe to call more than once.
func (c *Capture) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		c.cancel()

		if c.discovery != nil {
			c.discovery.Stop()
		}
		if c.feed != nil {
			c.feed.Stop()
		}
		err = c.session.Close()

		if c.tuiProg != nil {
			c.tuiProg.Quit()
		}

		stats := c.session.Stats()
		c.logger.Info("capture stopped",
			zap.Uint64("processed", stats.Processed),
			zap.Uint64("underruns", stats.Underruns),
			zap.Uint64("malformed", stats.Malformed))
	})
	return err
}
