// Package discovery finds reMarkable tablets on the local network over mDNS.
//
// Tablets on Wi-Fi advertise an "_ssh._tcp" service under a hostname like
// "reMarkable.local". A scan browses for that service type and keeps the
// entries whose hostname or instance name identifies a reMarkable.
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	devices, err := scanner.ScanForDevices(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, d := range devices {
//	    fmt.Println(d.Hostname, d.Address())
//	}
//
// Tablets connected over USB are reachable at 10.11.99.1 and usually do not
// show up in a scan.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
