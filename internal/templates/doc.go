// Package templates holds the authoritative in-memory model of reMarkable note templates.
//
// A Registry tracks every template known for one device session together with its
// sync state:
//   - synced: present on the device as of the last fetch or sync
//   - unsynced: added locally, waiting to be uploaded
//   - deletion-pending: on the device, scheduled for removal on the next sync
//
// No two templates share a filename or a display name, compared case-insensitively.
// Every mutating operation either keeps that invariant or is rejected without change.
//
// The package does no I/O. Syncs use an explicit Snapshot: the coordinator takes one,
// sends it to the device, and then either commits or releases it.
//
//	reg := templates.NewRegistry()
//	reg.ReplaceSynced(fetched)
//	if err := reg.AddFile("/home/me/Cornell.svg"); err != nil {
//	    return err
//	}
//	snap := reg.Snapshot()
//	if err := dev.ApplySync(ctx, snap.Uploads, snap.Deletions); err != nil {
//	    reg.Release(snap)
//	    return err
//	}
//	reg.Commit(snap)
package templates
