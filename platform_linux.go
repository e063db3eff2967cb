//go:build linux

package sharedevent

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// platformLinux realizes the §2/§6 host primitives on top of two POSIX
// facilities only: advisory flock(2) locks and mmap(2) shared mappings.
// See SPEC_FULL.md §0 for why this substitutes for Windows named kernel
// objects without changing any protocol invariant.
type platformLinux struct{}

func newPlatformImpl() platform { return platformLinux{} }

// --- GlobalMutex -----------------------------------------------------------

// flockMutex backs the Registration Lock with a single long-lived file
// descriptor. flock releases the lock automatically if the holding
// process dies without unlocking, which is exactly the "abandoned
// holder" tolerance §4.2 requires of a host-global mutex.
type flockMutex struct {
	file *os.File
}

func (platformLinux) OpenGlobalMutex(dir, name string) (globalMutex, error) {
	path := segmentPath(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, fmt.Errorf("%w: opening mutex file %q: %v", ErrInfrastructureUnavailable, path, err)
	}
	return &flockMutex{file: f}, nil
}

func (m *flockMutex) Lock() error {
	if err := unix.Flock(int(m.file.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("sharedevent: locking mutex %q: %w", m.file.Name(), err)
	}
	return nil
}

func (m *flockMutex) Unlock() error {
	if err := unix.Flock(int(m.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("sharedevent: unlocking mutex %q: %w", m.file.Name(), err)
	}
	return nil
}

func (m *flockMutex) Close() error {
	return m.file.Close()
}

// --- SharedRegion ------------------------------------------------------------

type mmapRegion struct {
	path string
	size int
}

func (platformLinux) OpenSharedRegion(dir, name string, size int) (sharedRegion, error) {
	path := segmentPath(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, fmt.Errorf("%w: opening shared region %q: %v", ErrInfrastructureUnavailable, path, err)
	}
	defer f.Close()

	// Guard initial sizing against a concurrent first-opener with a brief
	// exclusive flock; this is not the Registration Lock and is held only
	// for the duration of the size check, never across an operation.
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return nil, fmt.Errorf("%w: locking shared region %q for init: %v", ErrInfrastructureUnavailable, path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN) //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat shared region %q: %v", ErrInfrastructureUnavailable, path, err)
	}
	if info.Size() < int64(size) {
		// Zero-initialized on first creation: extending a sparse file
		// reads back as zero bytes.
		if err := f.Truncate(int64(size)); err != nil {
			return nil, fmt.Errorf("%w: sizing shared region %q: %v", ErrInfrastructureUnavailable, path, err)
		}
	}

	return &mmapRegion{path: path, size: size}, nil
}

func (r *mmapRegion) Size() int { return r.size }

func (r *mmapRegion) ReadAt() ([]byte, error) {
	f, err := os.OpenFile(r.path, os.O_RDONLY, 0o666)
	if err != nil {
		return nil, fmt.Errorf("sharedevent: opening %q for read: %w", r.path, err)
	}
	defer f.Close()

	view, err := unix.Mmap(int(f.Fd()), 0, r.size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("sharedevent: mapping %q for read: %w", r.path, err)
	}
	defer unix.Munmap(view) //nolint:errcheck

	out := make([]byte, r.size)
	copy(out, view)
	return out, nil
}

func (r *mmapRegion) WriteAt(data []byte) error {
	if len(data) > r.size {
		return fmt.Errorf("sharedevent: write of %d bytes exceeds region size %d", len(data), r.size)
	}
	f, err := os.OpenFile(r.path, os.O_RDWR, 0o666)
	if err != nil {
		return fmt.Errorf("sharedevent: opening %q for write: %w", r.path, err)
	}
	defer f.Close()

	view, err := unix.Mmap(int(f.Fd()), 0, r.size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("sharedevent: mapping %q for write: %w", r.path, err)
	}
	defer unix.Munmap(view) //nolint:errcheck

	copy(view, data)
	return nil
}

func (r *mmapRegion) Close() error { return nil }

// --- WaitObject --------------------------------------------------------------
//
// Each named wait object is backed by two files: "<name>" (the liveness
// token: the owning process holds a non-blocking exclusive flock on it for
// as long as it is alive, released by the kernel on crash or exit) and
// "<name>_FLAG" (a one-byte shared region carrying the signaled bit,
// mutated under a brief, independent flock so Set/Reset/Wait never
// contend with the liveness token).

type linuxWaitObject struct {
	kind      waitKind
	aliveFile *os.File // held locked iff owned; nil otherwise
	flagPath string
	flagSize int
}

func waitObjectPaths(dir, name string) (alive, flag string) {
	return segmentPath(dir, name), segmentPath(dir, name+"_FLAG")
}

func (platformLinux) AcquireWaitObject(dir, name string, kind waitKind) (waitObject, bool, error) {
	alivePath, flagPath := waitObjectPaths(dir, name)

	f, err := os.OpenFile(alivePath, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, false, fmt.Errorf("%w: opening wait object %q: %v", ErrInfrastructureUnavailable, alivePath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			// A live owner already holds this name.
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: claiming wait object %q: %v", ErrInfrastructureUnavailable, alivePath, err)
	}

	if err := ensureFlagRegion(flagPath); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN) //nolint:errcheck
		f.Close()
		return nil, false, err
	}
	// Newly claimed: start unsignaled, except a freshly-acquired
	// read-complete-signal is set per §4.8 step 4 by the caller.
	obj := &linuxWaitObject{kind: kind, aliveFile: f, flagPath: flagPath, flagSize: 1}
	if err := obj.writeFlag(0); err != nil {
		obj.CloseOwned() //nolint:errcheck
		return nil, false, err
	}
	return obj, true, nil
}

func (platformLinux) OpenWaitObject(dir, name string, kind waitKind) (waitObject, bool, error) {
	alivePath, flagPath := waitObjectPaths(dir, name)

	f, err := os.OpenFile(alivePath, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, false, fmt.Errorf("%w: opening wait object %q: %v", ErrInfrastructureUnavailable, alivePath, err)
	}
	defer f.Close()

	// Probe: if we can claim the lock ourselves, nobody owns it alive.
	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		// Nobody home; release immediately and report absent. Best-effort
		// cleanup of the stale name so it doesn't linger forever.
		unix.Flock(int(f.Fd()), unix.LOCK_UN) //nolint:errcheck
		os.Remove(alivePath)                  //nolint:errcheck
		os.Remove(flagPath)                   //nolint:errcheck
		return nil, false, nil
	}
	if err != unix.EWOULDBLOCK {
		return nil, false, fmt.Errorf("%w: probing wait object %q: %v", ErrInfrastructureUnavailable, alivePath, err)
	}

	if statErr := ensureFlagRegion(flagPath); statErr != nil {
		return nil, false, statErr
	}
	return &linuxWaitObject{kind: kind, aliveFile: nil, flagPath: flagPath, flagSize: 1}, true, nil
}

func ensureFlagRegion(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return fmt.Errorf("%w: opening flag region %q: %v", ErrInfrastructureUnavailable, path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat flag region %q: %v", ErrInfrastructureUnavailable, path, err)
	}
	if info.Size() < 1 {
		if err := f.Truncate(1); err != nil {
			return fmt.Errorf("%w: sizing flag region %q: %v", ErrInfrastructureUnavailable, path, err)
		}
	}
	return nil
}

func (w *linuxWaitObject) Kind() waitKind { return w.kind }

func (w *linuxWaitObject) withFlagLock(fn func(f *os.File) error) error {
	f, err := os.OpenFile(w.flagPath, os.O_RDWR, 0o666)
	if err != nil {
		return fmt.Errorf("sharedevent: opening flag %q: %w", w.flagPath, err)
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("sharedevent: locking flag %q: %w", w.flagPath, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN) //nolint:errcheck
	return fn(f)
}

func (w *linuxWaitObject) readFlag() (bool, error) {
	var signaled bool
	err := w.withFlagLock(func(f *os.File) error {
		var b [1]byte
		if _, err := f.ReadAt(b[:], 0); err != nil {
			return err
		}
		signaled = b[0] != 0
		return nil
	})
	return signaled, err
}

func (w *linuxWaitObject) writeFlag(value byte) error {
	return w.withFlagLock(func(f *os.File) error {
		_, err := f.WriteAt([]byte{value}, 0)
		return err
	})
}

func (w *linuxWaitObject) Set() error   { return w.writeFlag(1) }
func (w *linuxWaitObject) Reset() error { return w.writeFlag(0) }

func (w *linuxWaitObject) Wait(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var woke bool
		err := w.withFlagLock(func(f *os.File) error {
			var b [1]byte
			if _, err := f.ReadAt(b[:], 0); err != nil {
				return err
			}
			if b[0] != 0 {
				woke = true
				if w.kind == autoReset {
					_, err := f.WriteAt([]byte{0}, 0)
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if woke {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *linuxWaitObject) Release() error {
	// Opened (not Acquired) handles hold nothing beyond the probe; nothing
	// to release.
	return nil
}

func (w *linuxWaitObject) CloseOwned() error {
	if w.aliveFile == nil {
		return nil
	}
	name := w.aliveFile.Name()
	unix.Flock(int(w.aliveFile.Fd()), unix.LOCK_UN) //nolint:errcheck
	err := w.aliveFile.Close()
	os.Remove(name)        //nolint:errcheck
	os.Remove(w.flagPath)  //nolint:errcheck
	w.aliveFile = nil
	return err
}
