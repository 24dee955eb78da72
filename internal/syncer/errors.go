package syncer

import "errors"

var (
	// ErrSyncFailed means the device rejected or did not complete a sync; the registry is unchanged
	ErrSyncFailed = errors.New("sync failed")
	// ErrBackupFailed means the backup archive could not be produced
	ErrBackupFailed = errors.New("backup failed")
)
