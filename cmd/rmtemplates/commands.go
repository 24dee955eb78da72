package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/rmtemplates/internal/config"
	"github.com/muurk/rmtemplates/internal/device"
	"github.com/muurk/rmtemplates/internal/discovery"
	"github.com/muurk/rmtemplates/internal/logging"
	"github.com/muurk/rmtemplates/internal/server"
	"github.com/muurk/rmtemplates/internal/session"
	"github.com/muurk/rmtemplates/internal/syncer"
	"github.com/muurk/rmtemplates/internal/templates"
	"github.com/muurk/rmtemplates/internal/ui"
)

// Global flags
var (
	deviceAddr     string
	keyPath        string
	healthInterval time.Duration
)

// Command flags
var (
	scanTimeout   time.Duration
	pushDeletes   []string
	pushName      string
	pushLandscape bool
	pushIcon      string
	pushCategory  []string
	backupDir     string
	rebootYes     bool
	listenAddr    string
	serveConnect  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&deviceAddr, "device", "", "Device address (skips saved config and discovery)")
	rootCmd.PersistentFlags().StringVar(&keyPath, "key", "", "SSH private key (default: saved key, then first key in ~/.ssh)")
	rootCmd.PersistentFlags().DurationVar(&healthInterval, "interval", 0, "Connection health check interval (default: from config, 10s)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}

// app wires one device session for a single command
type app struct {
	store *config.FileStore
	file  *config.File
	reg   *templates.Registry
	mon   *session.Monitor
	coord *syncer.Coordinator
	keys  *device.FileKeyManager
}

func newApp() (*app, error) {
	store, err := config.DefaultStore()
	if err != nil {
		return nil, err
	}
	file, err := store.LoadFile()
	if err != nil {
		return nil, err
	}

	interval := healthInterval
	if interval <= 0 {
		interval = file.Preferences.HealthIntervalDuration()
	}

	dev := device.NewSSHService()
	reg := templates.NewRegistry()
	mon := session.NewMonitor(dev, reg, session.Options{
		Interval: interval,
		Store:    store,
	})

	return &app{
		store: store,
		file:  file,
		reg:   reg,
		mon:   mon,
		coord: syncer.New(mon, dev, reg, store),
		keys:  device.NewFileKeyManager(),
	}, nil
}

// connect resolves the address and key and opens the session
func (a *app) connect(ctx context.Context) (string, error) {
	address, err := a.address(ctx)
	if err != nil {
		return "", err
	}
	key, err := resolveKey(keyPath, a.file.Device, a.keys)
	if err != nil {
		return "", err
	}

	fmt.Printf("Connecting to %s...\n", address)
	if err := a.mon.Connect(ctx, address, key); err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return address, nil
}

func (a *app) address(ctx context.Context) (string, error) {
	scanner := discovery.NewScanner()
	scanner.Timeout = a.file.Preferences.DiscoverTimeoutDuration()
	return resolveAddress(ctx, deviceAddr, a.file.Device, func(ctx context.Context) (*discovery.Device, error) {
		fmt.Println("No device configured, searching the network...")
		return scanner.FindFirst(ctx)
	})
}

// close ends the session if one is still open
func (a *app) close() {
	if st := a.mon.State(); st == session.StateConnected || st == session.StateLost {
		if err := a.mon.Disconnect(context.Background()); err != nil {
			logging.Debug("Disconnect on exit", zap.Error(err))
		}
	}
	a.mon.Close()
}

// resolveAddress picks the device address. The flag wins, then the saved
// device, then the first reMarkable found by mDNS.
func resolveAddress(ctx context.Context, flag string, saved *config.DeviceConfig, discover func(context.Context) (*discovery.Device, error)) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if saved != nil && saved.Address != "" {
		return saved.Address, nil
	}
	if discover != nil {
		found, err := discover(ctx)
		if err != nil {
			return "", fmt.Errorf("discovery failed: %w (over USB, use --device %s)", err, device.DefaultUSBAddress)
		}
		if found != nil {
			fmt.Printf("Found %s\n", found)
			return found.Address(), nil
		}
	}
	return "", fmt.Errorf("no device found; connect it over USB and use --device %s, or check that it is on this network", device.DefaultUSBAddress)
}

// resolveKey picks the SSH key. The flag wins, then the saved key, then the
// first private key in ~/.ssh.
func resolveKey(flag string, saved *config.DeviceConfig, keys device.KeyManager) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if saved != nil && saved.KeyPath != "" {
		return saved.KeyPath, nil
	}
	available, err := keys.ListKeys()
	if err != nil {
		return "", fmt.Errorf("failed to list SSH keys: %w", err)
	}
	if len(available) == 0 {
		return "", errors.New("no SSH key found; run 'rmtemplates keys generate' and 'rmtemplates keys upload' first")
	}
	return available[0].Path, nil
}

// commandContext is cancelled on SIGINT or SIGTERM
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// scanCmd discovers tablets on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for reMarkable tablets on the network",
	Long: `Scan for reMarkable tablets using mDNS/DNS-SD discovery.

Tablets advertise their SSH service on the local network once Wi-Fi is on.
A tablet on the USB cable is always at 10.11.99.1 and does not need a scan.`,
	Example: `  # Scan for 5 seconds (default)
  rmtemplates scan

  # Longer scan for slow networks
  rmtemplates scan --timeout 15s`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "Scan timeout")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	fmt.Printf("Scanning for reMarkable tablets (timeout: %s)...\n\n", scanTimeout)

	scanner := discovery.NewScanner()
	scanner.Timeout = scanTimeout
	devices, err := scanner.ScanForDevices(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure the tablet is awake and Wi-Fi is on")
		fmt.Println("  - Check that it is on the same network as this computer")
		fmt.Printf("  - Over USB, use --device %s\n", device.DefaultUSBAddress)
		return nil
	}

	fmt.Printf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		fmt.Printf("%d. %s\n", i+1, d.Hostname)
		fmt.Printf("   Address: %s\n", d.Address())
		if model := d.GetMetadata("model"); model != "" {
			fmt.Printf("   Model:   %s\n", model)
		}
		if len(d.Metadata) > 0 {
			fmt.Printf("   Metadata: %v\n", d.Metadata)
		}
		fmt.Println()
	}

	fmt.Println("Use 'rmtemplates list --device <address>' to view its templates")
	return nil
}

// listCmd shows the templates on the device
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates on the device",
	Long:  `Connect to the tablet and list the templates in its templates.json.`,
	Example: `  rmtemplates list
  rmtemplates list --device 10.11.99.1 --key ~/.ssh/id_rmtemplates`,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.connect(ctx); err != nil {
		return err
	}

	p := ui.NewPrinter(os.Stdout)
	p.Newline()
	p.PrintState(a.mon.State(), a.mon.Session())
	p.Newline()
	p.PrintTemplates(a.reg.Partition())
	return nil
}

// pushCmd queues files and deletions and syncs them
var pushCmd = &cobra.Command{
	Use:   "push [FILE...]",
	Short: "Upload templates and remove others in one sync",
	Long: `Add local template files (.png, .svg) to the device and remove existing
templates by filename. All changes are applied together: either the device
gets every change or it is left as it was.

Template names default to the file name without its extension.`,
	Example: `  # Upload two templates
  rmtemplates push dotted.png weekly.svg

  # Upload one with a display name
  rmtemplates push grid.png --name "Fine grid"

  # Remove a template by its filename
  rmtemplates push --delete Old_template`,
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringSliceVar(&pushDeletes, "delete", nil, "Filename of a device template to remove (repeatable)")
	pushCmd.Flags().StringVar(&pushName, "name", "", "Display name (only with a single file)")
	pushCmd.Flags().BoolVar(&pushLandscape, "landscape", false, "Mark uploaded templates as landscape")
	pushCmd.Flags().StringVar(&pushIcon, "icon", templates.DefaultIconCode, "Icon code for uploaded templates")
	pushCmd.Flags().StringSliceVar(&pushCategory, "category", templates.DefaultCategories, "Categories for uploaded templates")
}

func runPush(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && len(pushDeletes) == 0 {
		return errors.New("nothing to push: give template files or --delete")
	}
	if pushName != "" && len(args) != 1 {
		return errors.New("--name needs exactly one file")
	}

	// Check the files before touching the network
	selected := make([]*device.SelectedFile, 0, len(args))
	for _, path := range args {
		sel, err := device.SelectLocalFile(path)
		if err != nil {
			return err
		}
		if sel == nil {
			return errors.New("empty file name")
		}
		selected = append(selected, sel)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	address, err := a.connect(ctx)
	if err != nil {
		return err
	}

	for _, sel := range selected {
		t := templates.NewLocal(sel.Path)
		if pushName != "" {
			t.Name = pushName
		}
		t.Landscape = pushLandscape
		t.IconCode = pushIcon
		t.Categories = append([]string(nil), pushCategory...)
		if err := a.reg.Add(t); err != nil {
			return err
		}
	}

	p := ui.NewPrinter(os.Stdout)
	p.Newline()
	p.PrintHeader("Sync templates", "rmtemplates push", map[string]string{
		"Device":  address,
		"Uploads": fmt.Sprint(len(selected)),
		"Deletes": fmt.Sprint(len(pushDeletes)),
	})

	if len(pushDeletes) > 0 {
		marked, removed := a.reg.MarkForDeletion(pushDeletes...)
		if missing := len(pushDeletes) - marked - removed; missing > 0 {
			p.PrintResult(ui.NewWarningResult("Some deletions skipped",
				ui.Detail{Key: "Not on device", Value: fmt.Sprintf("%d of %d", missing, len(pushDeletes))},
			))
		}
	}

	p.PrintTemplates(a.reg.Partition())
	p.Newline()

	a.coord.AddObserver(ui.NewSyncProgress(os.Stdout))
	return syncWithRetry(ctx, a, p, address)
}

// syncWithRetry syncs and, on a terminal, offers a retry when the connection drops
func syncWithRetry(ctx context.Context, a *app, p *ui.Printer, address string) error {
	for {
		result, err := a.coord.Sync(ctx)
		if err == nil {
			p.PrintResult(ui.NewSyncResult(result))
			return nil
		}

		if !errors.Is(err, session.ErrConnectionLost) || !ui.IsInteractive() {
			p.PrintResult(ui.NewFailureResult("Sync failed", err, ui.Troubleshooting(err)))
			return err
		}

		part := a.reg.Partition()
		pending := len(part.Unsynced) + len(part.DeletionPending)
		choice, askErr := ui.AskLost(ctx, address, err, pending)
		if askErr != nil {
			return askErr
		}
		if choice != ui.ChoiceRetry {
			return err
		}
		if err := a.mon.Retry(ctx); err != nil {
			p.PrintResult(ui.NewFailureResult("Reconnect failed", err, ui.Troubleshooting(err)))
			return err
		}
	}
}

// backupCmd archives the device's templates
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the device's templates to a zip file",
	Long: `Download every file in the tablet's templates folder, including
templates.json, into a timestamped zip archive.

Without --dir the archive goes to the directory of the last backup, or the
current directory the first time.`,
	Example: `  rmtemplates backup
  rmtemplates backup --dir ~/remarkable-backups`,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringVar(&backupDir, "dir", "", "Directory for the archive")
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	dir, err := backupTarget(backupDir, a.file.LastBackupDir)
	if err != nil {
		return err
	}

	if _, err := a.connect(ctx); err != nil {
		return err
	}

	p := ui.NewPrinter(os.Stdout)
	p.PrintHeader("Backup templates", "rmtemplates backup", map[string]string{"Directory": dir})
	a.coord.AddObserver(ui.NewSyncProgress(os.Stdout))
	result, err := a.coord.Backup(ctx, dir)
	if err != nil {
		p.PrintResult(ui.NewFailureResult("Backup failed", err, ui.Troubleshooting(err)))
		return err
	}
	p.PrintResult(ui.NewBackupResult(result))
	return nil
}

// backupTarget returns the absolute backup directory: the flag, the last one used, or cwd
func backupTarget(flag, last string) (string, error) {
	dir := flag
	if dir == "" {
		dir = last
	}
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid backup directory %q: %w", dir, err)
	}
	return abs, nil
}

// rebootCmd restarts the tablet
var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Restart the tablet",
	Long: `Restart the tablet's interface so that new templates show up.

The session ends with the reboot; reconnect once the tablet is back.`,
	RunE: runReboot,
}

func init() {
	rebootCmd.Flags().BoolVarP(&rebootYes, "yes", "y", false, "Skip the confirmation")
}

func runReboot(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	address, err := a.connect(ctx)
	if err != nil {
		return err
	}

	if !rebootYes && !ui.ConfirmReboot(os.Stdin, os.Stdout, address) {
		fmt.Println("Reboot cancelled.")
		return nil
	}

	if err := a.mon.Reboot(ctx); err != nil {
		ui.NewPrinter(os.Stdout).PrintError("Reboot failed", err)
		return err
	}
	ui.NewPrinter(os.Stdout).PrintResult(ui.NewSuccessResult("Reboot requested", ui.Detail{Key: "Device", Value: address}))
	return nil
}

// keysCmd groups SSH key management
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage SSH keys for the tablet",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List private keys in ~/.ssh",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := device.NewFileKeyManager().ListKeys()
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Println("No SSH keys found. Run 'rmtemplates keys generate' to create one.")
			return nil
		}
		for _, k := range keys {
			fmt.Printf("  %-24s %s\n", k.Name, k.Path)
		}
		return nil
	},
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair for the tablet",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := device.NewFileKeyManager().GenerateKey()
		if err != nil {
			return err
		}
		ui.NewPrinter(os.Stdout).PrintResult(ui.NewSuccessResult("Key generated",
			ui.Detail{Key: "Private key", Value: key.Path},
			ui.Detail{Key: "Public key", Value: key.Path + ".pub"},
		))
		fmt.Println("Install it with 'rmtemplates keys upload --key " + key.Path + "'")
		return nil
	},
}

var keysUploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Install a public key on the tablet",
	Long: `Append the public key of --key to the tablet's authorized_keys.

The tablet's root password is shown under Settings > Help > Copyrights and
licenses. It is used once and never stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		address, err := a.address(ctx)
		if err != nil {
			return err
		}
		key, err := resolveKey(keyPath, nil, a.keys)
		if err != nil {
			return err
		}

		password, err := ui.ReadPassword(fmt.Sprintf("Password for root@%s: ", address))
		if err != nil {
			return err
		}
		if err := a.keys.UploadKey(ctx, key, address, password); err != nil {
			ui.NewPrinter(os.Stdout).PrintError("Key upload failed", err)
			return err
		}
		if err := a.store.Save(address, key); err != nil {
			logging.Warn("Failed to save device config", zap.Error(err))
		}
		ui.NewPrinter(os.Stdout).PrintResult(ui.NewSuccessResult("Key installed").
			AddDetail("Device", address).
			AddDetail("Key", key))
		return nil
	},
}

func init() {
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysGenerateCmd)
	keysCmd.AddCommand(keysUploadCmd)
}

// configCmd shows or clears the saved device
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or clear the saved device",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := config.DefaultStore()
		if err != nil {
			return err
		}
		f, err := store.LoadFile()
		if err != nil {
			return err
		}

		fmt.Printf("Config file: %s\n\n", store.Path())
		if f.Device == nil {
			fmt.Println("  Device:       (none)")
		} else {
			fmt.Printf("  Device:       %s\n", f.Device.Address)
			fmt.Printf("  Key:          %s\n", f.Device.KeyPath)
			if !f.Device.LastConnected.IsZero() {
				fmt.Printf("  Connected:    %s\n", f.Device.LastConnected.Local().Format(time.RFC1123))
			}
		}
		if f.LastBackupDir != "" {
			fmt.Printf("  Last backup:  %s\n", f.LastBackupDir)
		}
		fmt.Printf("  Health check: every %s\n", f.Preferences.HealthIntervalDuration())
		fmt.Printf("  Discovery:    %s timeout\n", f.Preferences.DiscoverTimeoutDuration())
		return nil
	},
}

var configClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the saved device",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := config.DefaultStore()
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Println("Saved configuration removed.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configClearCmd)
}

// watchCmd runs the interactive session screen
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the live connection and template state",
	Long: `Open an interactive screen that follows the connection state and the
templates waiting to sync. Sync, retry and disconnect from the keyboard.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	changes := make(chan session.Change, 16)
	a.mon.OnChange(func(ch session.Change) {
		select {
		case changes <- ch:
		default:
			logging.Debug("Watch screen behind, dropping state change", zap.String("to", ch.To.String()))
		}
	})

	address, err := a.connect(ctx)
	if err != nil {
		return err
	}

	return ui.RunWatch(ctx, address, ui.WatchActions{
		State:      a.mon.State,
		Partition:  a.reg.Partition,
		Sync:       a.coord.Sync,
		Retry:      a.mon.Retry,
		Disconnect: a.mon.Disconnect,
	}, changes)
}

// serveCmd runs the local HTTP bridge
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session over a local HTTP and WebSocket API",
	Long: `Run a local server that exposes connect, template editing, sync and
backup as a JSON API, and pushes state changes to WebSocket clients at /ws.

The server listens on the loopback interface only by default.`,
	Example: `  rmtemplates serve
  rmtemplates serve --listen 127.0.0.1:9000 --connect`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", server.DefaultListenAddr, "Listen address")
	serveCmd.Flags().StringVar(&backupDir, "backup-dir", "", "Default directory for backups")
	serveCmd.Flags().BoolVar(&serveConnect, "connect", false, "Connect to the device on start")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	dir, err := backupTarget(backupDir, a.file.LastBackupDir)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{Addr: listenAddr, BackupDir: dir}, a.mon, a.coord, a.keys)

	if serveConnect {
		if _, err := a.connect(ctx); err != nil {
			logging.Warn("Initial connect failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	fmt.Printf("Serving on http://%s (Ctrl+C to stop)\n", listenAddr)
	return srv.Start(ctx)
}
