package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/mblog/internal/device"
	"github.com/srg/mblog/internal/microbit"
	"github.com/srg/mblog/internal/session"
	"github.com/srg/mblog/internal/webhook"
	"github.com/srg/mblog/pkg/config"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Log micro:bit telemetry",
	Long: fmt.Sprintf(`Connects to a BBC micro:bit, subscribes to its sensor and event
characteristics, and prints a snapshot of the latest decoded values once per
second. Listening stops after --duration, on Ctrl+C, or when the device
disconnects; pending values are flushed before exit.

Characteristics: %s

Examples:
  # Listen to the first advertiser named "BBC micro:bit" for 10 seconds
  mblog listen

  # Listen to a specific device by address, buttons only
  mblog listen --address C8:0F:10:2B:3C:4D -c button_a -c button_b

  # Forward one batched event per snapshot to a webhook
  mblog listen --duration 60s --webhook-url https://example.org/hook

  # Forward every temperature update individually, authenticated
  mblog listen --webhook-url https://example.org/hook --webhook-mode immediate \
    --webhook-characteristic temperature --webhook-security-key s3cret`,
		strings.Join(microbit.CharacteristicNames(), ", ")),
	Args: cobra.NoArgs,
	RunE: runListen,
}

var (
	listenAddress      string
	listenName         string
	listenScanTimeout  time.Duration
	listenDuration     time.Duration
	listenChars        []string
	listenConfigPath   string
	webhookURL         string
	webhookMode        string
	webhookChars       []string
	webhookTimeout     time.Duration
	webhookSecurityKey string
)

func init() {
	registerListenFlags(listenCmd)
}

// registerListenFlags binds the listen flags; re-registering after ResetFlags
// restores both the flag set and the bound variables to their defaults.
func registerListenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&listenAddress, "address", "", "Device address to connect to")
	cmd.Flags().StringVar(&listenName, "name", config.DefaultDeviceName, "Device name substring to scan for")
	cmd.Flags().DurationVar(&listenScanTimeout, "scan-timeout", 10*time.Second, "How long to scan for the device")
	cmd.Flags().DurationVarP(&listenDuration, "duration", "d", 10*time.Second, "Listening duration (0 until disconnect or Ctrl+C)")
	cmd.Flags().StringArrayVarP(&listenChars, "characteristic", "c", nil, "Characteristic to subscribe to (repeatable; default all)")
	cmd.Flags().StringVar(&listenConfigPath, "config", "", "YAML config file providing flag defaults")
	cmd.Flags().StringVar(&webhookURL, "webhook-url", "", "Forward decoded values to this URL")
	cmd.Flags().StringVar(&webhookMode, "webhook-mode", "batch", "Webhook mode: batch or immediate")
	cmd.Flags().StringArrayVar(&webhookChars, "webhook-characteristic", nil, "Characteristic to forward (repeatable; default the subscribed set)")
	cmd.Flags().DurationVar(&webhookTimeout, "webhook-timeout", 10*time.Second, "Webhook request timeout")
	cmd.Flags().StringVar(&webhookSecurityKey, "webhook-security-key", "", "Token attached to every webhook payload")
}

// buildListenConfig merges the config file (when given) with explicitly set
// flags; flags win.
func buildListenConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if listenConfigPath != "" {
		var err error
		cfg, err = config.Load(listenConfigPath)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.Address = listenAddress
	}
	if flags.Changed("name") {
		cfg.Name = listenName
	}
	if flags.Changed("scan-timeout") {
		cfg.ScanTimeout = listenScanTimeout
	}
	if flags.Changed("duration") {
		cfg.Duration = listenDuration
	}
	if flags.Changed("characteristic") {
		cfg.Characteristics = listenChars
	}
	if flags.Changed("webhook-url") {
		cfg.Webhook.URL = webhookURL
	}
	if flags.Changed("webhook-mode") {
		cfg.Webhook.Mode = webhookMode
	}
	if flags.Changed("webhook-characteristic") {
		cfg.Webhook.Characteristics = webhookChars
	}
	if flags.Changed("webhook-timeout") {
		cfg.Webhook.Timeout = webhookTimeout
	}
	if flags.Changed("webhook-security-key") {
		cfg.Webhook.SecurityKey = webhookSecurityKey
	}

	if flags.Changed("address") && flags.Changed("name") {
		return nil, fmt.Errorf("--address and --name are mutually exclusive")
	}
	if cfg.Address != "" {
		cfg.Name = ""
	}
	return cfg, nil
}

// buildSessionOptions validates the merged config and turns it into session
// options. All validation happens here, before any radio activity.
func buildSessionOptions(cfg *config.Config) (session.Options, error) {
	opts := session.Options{
		Address:     cfg.Address,
		Name:        cfg.Name,
		ScanTimeout: cfg.ScanTimeout,
		Duration:    cfg.Duration,
	}
	if cfg.Address == "" && cfg.Name == "" {
		return opts, fmt.Errorf("either --address or --name is required")
	}

	chars, err := parseCharacteristics(cfg.Characteristics)
	if err != nil {
		return opts, err
	}
	opts.Characteristics = chars

	if cfg.Webhook.URL == "" {
		return opts, nil
	}

	mode, err := webhook.ParseMode(cfg.Webhook.Mode)
	if err != nil {
		return opts, err
	}
	targets, err := parseCharacteristics(cfg.Webhook.Characteristics)
	if err != nil {
		return opts, err
	}
	opts.Webhook = &webhook.Options{
		URL:             cfg.Webhook.URL,
		Mode:            mode,
		Timeout:         cfg.Webhook.Timeout,
		SecurityKey:     cfg.Webhook.SecurityKey,
		Characteristics: targets,
	}
	return opts, nil
}

func parseCharacteristics(names []string) ([]microbit.Characteristic, error) {
	if len(names) == 0 {
		return nil, nil
	}
	chars := make([]microbit.Characteristic, 0, len(names))
	for _, name := range names {
		c, err := microbit.ParseCharacteristic(name)
		if err != nil {
			return nil, err
		}
		chars = append(chars, c)
	}
	return chars, nil
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := buildListenConfig(cmd)
	if err != nil {
		return err
	}

	opts, err := buildSessionOptions(cfg)
	if err != nil {
		return err
	}

	// Configure logger
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nCtrl+C pressed, stopping...")
		cancel()
	}()

	sess := session.New(opts, device.NewBLEClient(logger), logger)
	return sess.Run(ctx)
}
