// Package syncer reconciles the template registry with the device.
//
// A Coordinator runs one sync or backup at a time, sharing the session gate
// with connect, retry and disconnect. Sync follows a fixed order:
//
//  1. refuse unless the session is connected (no device call)
//  2. return early when nothing is pending
//  3. run a fresh health check
//  4. snapshot the pending work and send it in one ApplySync call
//  5. commit the snapshot on success, release it on failure
//
// Observers registered with AddObserver are notified as cycles start and
// finish. They drive progress displays and event streams.
package syncer
