// ABOUTME: Entry point for the resonate-capture client
// ABOUTME: Parses CLI flags and starts the capture application
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/resonate-capture/internal/app"
	"github.com/Resonate-Protocol/resonate-capture/internal/config"
	"github.com/Resonate-Protocol/resonate-capture/internal/logging"
	"github.com/Resonate-Protocol/resonate-capture/internal/version"
	"github.com/Resonate-Protocol/resonate-capture/pkg/capture"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "resonate-capture [target]",
	Short: "Capture audio and meter its level",
	Long: `Connects to an audio source, negotiates a float32 capture format and
shows per-channel peak levels. The optional target names the source to
capture from; without it the default source is used.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCapture,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	config.AddFlags(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cmd, cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(args) == 1 {
		cfg.Target = args[0]
	}

	useTUI := !cfg.NoTUI

	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	// TUI mode logs only to the file; streaming mode also logs to stdout
	var out io.Writer = f
	if !useTUI {
		out = io.MultiWriter(os.Stdout, f)
	}
	logger := logging.New(out)
	defer func() { _ = logger.Sync() }()

	name := cfg.DisplayName()
	logger.Info("starting capture",
		zap.String("name", name),
		zap.String("version", version.Version),
		zap.String("backend", cfg.Backend),
		zap.String("target", cfg.Target))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	capt := app.New(app.Config{
		Backend: cfg.Backend,
		Target:  cfg.Target,
		Name:    name,
		Constraints: capture.Constraints{
			Rate:     cfg.Rate,
			Channels: cfg.Channels,
		},
		FeedAddr: cfg.FeedAddr,
		MDNS:     cfg.MDNS,
		UseTUI:   useTUI,
	}, logger)

	if err := capt.Run(ctx); err != nil {
		logger.Error("capture failed", zap.Error(err))
		return err
	}
	return nil
}
