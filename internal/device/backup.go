package device

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/muurk/rmtemplates/internal/logging"
)

// BackupNameFormat is the timestamp layout used in backup file names
const BackupNameFormat = "20060102-150405"

// RemoteTree is a read-only view of a remote directory tree.
// List returns entry names, with directories suffixed by "/" as ls -p prints them.
type RemoteTree interface {
	List(ctx context.Context, dir string) ([]string, error)
	Copy(ctx context.Context, file string, w io.Writer) error
}

// BackupFileName returns the archive name for a backup taken at t
func BackupFileName(t time.Time) string {
	return fmt.Sprintf("remarkable-templates-backup-%s.zip", t.Format(BackupNameFormat))
}

// WriteBackup streams every file under root into a deflate-compressed zip in targetDir.
// Archive paths are relative to root. A partial archive is removed on failure.
func WriteBackup(ctx context.Context, tree RemoteTree, root, targetDir string, now time.Time) (result *BackupResult, err error) {
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, NewBackupError("failed to create backup directory", err)
	}

	target := filepath.Join(targetDir, BackupFileName(now))
	out, err := os.Create(target)
	if err != nil {
		return nil, NewBackupError("failed to create archive file", err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(target)
		}
	}()

	zw := zip.NewWriter(out)
	files := 0

	var walk func(dir, prefix string) error
	walk = func(dir, prefix string) error {
		names, err := tree.List(ctx, dir)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return err
			}
			if sub, ok := strings.CutSuffix(name, "/"); ok {
				if err := walk(path.Join(dir, sub), path.Join(prefix, sub)); err != nil {
					return err
				}
				continue
			}

			w, err := zw.CreateHeader(&zip.FileHeader{
				Name:     path.Join(prefix, name),
				Method:   zip.Deflate,
				Modified: now,
			})
			if err != nil {
				return err
			}
			if err := tree.Copy(ctx, path.Join(dir, name), w); err != nil {
				return fmt.Errorf("failed to download %s: %w", name, err)
			}
			files++
		}
		return nil
	}

	if err := walk(root, ""); err != nil {
		return nil, NewBackupError("failed to download templates", err)
	}
	if err := zw.Close(); err != nil {
		return nil, NewBackupError("failed to finish archive", err)
	}
	if err := out.Close(); err != nil {
		return nil, NewBackupError("failed to write archive", err)
	}

	result = &BackupResult{FilePath: target, Files: files}
	if info, statErr := os.Stat(target); statErr == nil {
		result.SizeBytes = info.Size()
	} else {
		logging.Warn("Failed to get backup file size", zap.String("path", target), zap.Error(statErr))
	}

	logging.Info("Backup completed",
		zap.String("path", target),
		zap.Int("files", files),
		zap.Int64("size_bytes", result.SizeBytes),
	)
	return result, nil
}
