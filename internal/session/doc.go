// Package session supervises the connection to a reMarkable.
//
// A Monitor drives the connection state machine:
//
//	disconnected -> connecting -> connected -> lost -> retrying -> connected
//	                     |             |          |
//	                     v             v          v
//	               disconnected  disconnected  disconnected
//
// Transitions are computed by the pure Transition function; the Monitor adds
// the side effects. While connected, a health loop checks the link every
// interval (10s by default). The first check runs right after connect, at
// most one check is in flight, and a tick that finds a check still running
// is skipped. A failed check moves the monitor to lost and stops the loop
// until Retry succeeds.
//
// Every network-bound operation (connect, retry, disconnect, reboot, and the
// sync and backup operations of package syncer) goes through one Gate. A
// request that arrives while another is running fails with ErrBusy.
package session
