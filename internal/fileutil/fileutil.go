// Package fileutil provides filesystem helpers shared by the render pipeline:
// atomic file publication and best-effort removal of scratch artifacts.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"
)

const (
	removeAttempts = 3
	removeBackoff  = 200 * time.Millisecond
)

// ReplaceFile atomically moves src over dest. An existing dest is only ever
// replaced by a complete file; readers never observe a partial write. Falls
// back to copy+rename when src and dest sit on different filesystems.
func ReplaceFile(src, dest string) error {
	if src == dest {
		return nil
	}
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("rename %s: %w", src, err)
	}

	// Cross-device: stage a sibling of dest so the final rename stays atomic.
	tmp := dest + ".partial"
	if err := copyFile(src, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename staged copy: %w", err)
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// RemoveWithRetry deletes path, retrying a few times with fixed backoff when
// the file is still held open, which is common right after an external
// encoder exits.
// Missing files succeed. Non-transient errors are logged and abandoned;
// cleanup is best-effort, never fatal.
func RemoveWithRetry(path string, logger *slog.Logger) {
	if strings.TrimSpace(path) == "" {
		return
	}
	var err error
	for attempt := 1; attempt <= removeAttempts; attempt++ {
		err = os.Remove(path)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			return
		}
		if !isBusy(err) {
			break
		}
		if attempt < removeAttempts {
			time.Sleep(removeBackoff)
		}
	}
	if logger != nil {
		logger.Warn("cleanup failed", slog.String("path", path), slog.Any("error", err))
	}
}

func isBusy(err error) bool {
	if errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ETXTBSY) || errors.Is(err, syscall.EAGAIN) {
		return true
	}
	// Windows reports open handles with a sharing violation message.
	return strings.Contains(strings.ToLower(err.Error()), "used by another process")
}
