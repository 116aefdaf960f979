// ABOUTME: Remote level watcher
// ABOUTME: Finds a level feed via mDNS or address and prints its meters
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/resonate-capture/internal/discovery"
	"github.com/Resonate-Protocol/resonate-capture/internal/logging"
	"github.com/Resonate-Protocol/resonate-capture/pkg/meter"
	"github.com/Resonate-Protocol/resonate-capture/pkg/protocol"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "resonate-levels [addr]",
	Short: "Watch the levels of a resonate-capture feed",
	Long: `Connects to a resonate-capture level feed and prints one meter line per
update. Without an address the first feed advertised via mDNS is used.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runWatch,
}

func init() {
	rootCmd.Flags().Duration("discover-timeout", 10*time.Second, "How long to browse for a feed")
	rootCmd.Flags().String("name", "resonate-levels", "Watcher name sent to the feed")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("discover-timeout")
	name, _ := cmd.Flags().GetString("name")

	logger := logging.New(os.Stderr)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var addr string
	if len(args) == 1 {
		addr = args[0]
	} else {
		logger.Info("browsing for level feeds", zap.String("type", discovery.ServiceType))
		disc := discovery.NewManager(discovery.Config{Logger: logger.Named("mdns")})
		disc.Browse()
		defer disc.Stop()

		select {
		case feed := <-disc.Feeds():
			addr = feed.Addr()
		case <-time.After(timeout):
			return fmt.Errorf("no level feed found after %s", timeout)
		case <-ctx.Done():
			return nil
		}
	}

	client := protocol.NewClient(protocol.Config{
		ServerAddr: addr,
		Name:       name,
		Logger:     logger.Named("feed"),
	})
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Connect(dialCtx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer client.Close()

	hello := client.ServerHello()
	fmt.Printf("Watching %s (session %s)\n", hello.Name, hello.SessionID)

	for {
		select {
		case f := <-client.Formats:
			if f.Channels == 0 {
				fmt.Println("format: negotiating")
			} else {
				fmt.Printf("format: %s %dHz %dch\n", f.SampleFormat, f.SampleRate, f.Channels)
			}
		case levels := <-client.Levels:
			fmt.Println(renderLevels(levels))
		case state := <-client.States:
			logger.Debug("capture state",
				zap.String("state", state.State),
				zap.Uint64("processed", state.Processed),
				zap.Uint64("underruns", state.Underruns))
		case <-client.Done():
			return fmt.Errorf("feed closed")
		case <-ctx.Done():
			_ = client.SendGoodbye("shutdown")
			return nil
		}
	}
}

// renderLevels prints one bar per channel on a single line
func renderLevels(update protocol.LevelsUpdate) string {
	bars := make([]string, len(update.Levels))
	for i, level := range update.Levels {
		bars[i] = strings.Repeat("#", level) + strings.Repeat(".", meter.MaxLevel-level)
	}
	return strings.Join(bars, " | ")
}
