package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// SSHPort is the port reMarkable tablets accept SSH connections on
const SSHPort = 22

// Device is a reMarkable tablet found on the local network
type Device struct {
	// Instance is the mDNS service instance name (e.g., "reMarkable")
	Instance string

	// Hostname is the mDNS hostname (e.g., "reMarkable.local.")
	Hostname string

	// IP is the device address, IPv4 when available
	IP string

	// Port is the advertised SSH port
	Port int

	// Metadata holds the TXT record, if any
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("reMarkable %s at %s", d.Hostname, d.Address())
}

// Address returns the value to pass as the device address when connecting.
// The port is omitted when it is the standard SSH port.
func (d *Device) Address() string {
	if d.Port == 0 || d.Port == SSHPort {
		return d.IP
	}
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
