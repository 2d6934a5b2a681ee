package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var (
	ErrLockTimeout = errors.New("timed out waiting for file lock")
	ErrNoBackup    = errors.New("no backup file")
)

// staleAfter is how old a lock must be before its owner is checked
const staleAfter = 5 * time.Minute

// FileLock guards a settings file against concurrent writers using an
// exclusive sidecar .lock file holding the owner's pid.
type FileLock struct {
	path     string
	lockPath string
	file     *os.File
	locked   bool
}

// LockConfig controls how long Lock waits
type LockConfig struct {
	Timeout    time.Duration
	RetryDelay time.Duration
}

func DefaultLockConfig() LockConfig {
	return LockConfig{
		Timeout:    30 * time.Second,
		RetryDelay: 100 * time.Millisecond,
	}
}

func NewFileLock(path string) *FileLock {
	return &FileLock{
		path:     path,
		lockPath: path + ".lock",
	}
}

// Lock acquires the lock, retrying until cfg.Timeout elapses
func (fl *FileLock) Lock(cfg LockConfig) error {
	if fl.locked {
		return errors.New("file is already locked")
	}
	if err := os.MkdirAll(filepath.Dir(fl.lockPath), 0700); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	deadline := time.Now().Add(cfg.Timeout)
	for {
		err := fl.tryLock()
		if err == nil {
			fl.locked = true
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %v", ErrLockTimeout, fl.path, cfg.Timeout)
		}
		time.Sleep(cfg.RetryDelay)
	}
}

func (fl *FileLock) tryLock() error {
	file, err := os.OpenFile(fl.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if errors.Is(err, os.ErrExist) && fl.isStale() {
		os.Remove(fl.lockPath)
		file, err = os.OpenFile(fl.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	}
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return err
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if _, err := fmt.Fprintf(file, "pid:%d\n", os.Getpid()); err != nil {
		file.Close()
		os.Remove(fl.lockPath)
		return fmt.Errorf("failed to write lock info: %w", err)
	}
	fl.file = file
	return nil
}

// isStale reports whether an old lock belongs to a process that is gone
func (fl *FileLock) isStale() bool {
	info, err := os.Stat(fl.lockPath)
	if err != nil {
		return true
	}
	if time.Since(info.ModTime()) < staleAfter {
		return false
	}

	data, err := os.ReadFile(fl.lockPath)
	if err != nil {
		return true
	}
	pid, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(string(data), "pid:")))
	if err != nil {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	// Signal 0 only checks that the process exists
	return proc.Signal(syscall.Signal(0)) != nil
}

// Unlock releases the lock. Unlocking twice is a no-op.
func (fl *FileLock) Unlock() error {
	if !fl.locked {
		return nil
	}
	fl.locked = false

	var errs []error
	if fl.file != nil {
		errs = append(errs, fl.file.Close())
		fl.file = nil
	}
	if err := os.Remove(fl.lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (fl *FileLock) IsLocked() bool {
	return fl.locked
}

// WithLock runs fn while holding the lock for path
func WithLock(path string, cfg LockConfig, fn func() error) error {
	lock := NewFileLock(path)
	if err := lock.Lock(cfg); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	err := fn()
	if unlockErr := lock.Unlock(); unlockErr != nil && err == nil {
		err = fmt.Errorf("failed to release lock: %w", unlockErr)
	}
	return err
}

// AtomicWrite replaces path with data under a lock, keeping the previous
// contents in path.backup.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	return WithLock(path, DefaultLockConfig(), func() error {
		if previous, err := os.ReadFile(path); err == nil {
			if err := os.WriteFile(path+".backup", previous, 0600); err != nil {
				return fmt.Errorf("failed to create backup: %w", err)
			}
		}

		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, perm); err != nil {
			return fmt.Errorf("failed to write temporary file: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("failed to rename temporary file: %w", err)
		}
		return nil
	})
}

// ReadBackup returns the contents saved by the last AtomicWrite of path
func ReadBackup(path string) ([]byte, error) {
	data, err := os.ReadFile(path + ".backup")
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoBackup, path)
	}
	return data, err
}
