package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/mblog/internal/device"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Useful for finding a micro:bit's address before running listen. Discovered
devices are shown with their names, addresses, RSSI values, and advertised
services.`,
	RunE: runScan,
}

var (
	scanDuration        time.Duration
	scanFormat          string
	scanConnectableOnly bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanConnectableOnly, "connectable", false, "Only show connectable devices")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	progress := NewCountdownProgressPrinter("Scanning for BLE devices", scanDuration)
	progress.Start()

	devices, err := device.NewBLEClient(logger).Discover(ctx, scanDuration)
	progress.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if scanConnectableOnly {
		connectable := devices[:0]
		for _, d := range devices {
			if d.Connectable {
				connectable = append(connectable, d)
			}
		}
		devices = connectable
	}

	sortDevices(devices)

	if scanFormat == "json" {
		return displayDevicesJSON(os.Stdout, devices)
	}
	return displayDevicesTable(os.Stdout, devices)
}

// sortDevices orders named devices first, strongest signal within each group.
func sortDevices(devices []device.DiscoveredDevice) {
	sort.Slice(devices, func(i, j int) bool {
		if (devices[i].Name != "") != (devices[j].Name != "") {
			return devices[i].Name != ""
		}
		return devices[i].RSSI > devices[j].RSSI
	})
}

func displayDevicesTable(out io.Writer, devices []device.DiscoveredDevice) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, dev := range devices {
		name := dev.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := strings.Join(dev.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		lastSeen := time.Since(dev.LastSeen).Truncate(time.Second)

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s ago\n",
			name, dev.Address, dev.RSSI, services, lastSeen)
	}

	return w.Flush()
}

func displayDevicesJSON(out io.Writer, devices []device.DiscoveredDevice) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}
