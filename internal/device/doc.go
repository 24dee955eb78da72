// Package device talks to a reMarkable tablet.
//
// Service is the contract the sync engine depends on. SSHService implements it
// with golang.org/x/crypto/ssh, logging in as root with a private key:
//
//	svc := device.NewSSHService()
//	if err := svc.Connect(ctx, "~/.ssh/remarkable_ab12", device.DefaultUSBAddress); err != nil {
//	    fmt.Println(device.ShortMessage(err))
//	    fmt.Println(device.TroubleshootingHint(err))
//	}
//	defer svc.Disconnect()
//
// # templates.json
//
// The device lists its templates in /usr/share/remarkable/templates/templates.json.
// ApplySync uploads the new files, rewrites that manifest keeping every entry and
// field it does not change, and moves the new manifest into place. Deleting a
// template only removes its manifest entry; the file stays on the device.
//
// # Backups
//
// Backup streams the remote template directory into a deflate zip archive named
// remarkable-templates-backup-YYYYMMDD-HHMMSS.zip. WriteBackup accepts any
// RemoteTree, which keeps the archive logic testable without a device.
//
// # Errors
//
// Failures are returned as *DeviceError with an ErrorType and a Retryable flag.
// Use the Is* helpers or errors.As to inspect them.
package device
