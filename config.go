package sharedevent

import (
	"fmt"
	"os"
	"time"
)

// ChannelConfig configures a Channel. Fields map onto spec concepts:
// MaxListeners is the roster capacity fixed at channel-open time (§3);
// the wait timeouts resolve the §9 open question about bounding the
// publisher's wait on a live-but-stuck listener; RuntimeDir selects where
// the named shared-memory segments and lock files live.
type ChannelConfig struct {
	// MaxListeners bounds the roster. All participants sharing a channel
	// name MUST agree on this value; a mismatch is undefined per §3.
	MaxListeners int `toml:"max_listeners"`

	// RegisterRetryAttempts bounds the total number of registration
	// attempts Join makes, re-reading the roster after each ErrSlotCollision
	// (§9 "Races on Register"). The original source does not retry at all
	// (bound of 1).
	RegisterRetryAttempts int `toml:"register_retry_attempts"`

	// ReadCompleteWaitTimeout bounds how long Emit waits on a single live
	// listener's read-complete-signal before evicting it as unresponsive.
	// Zero means wait indefinitely, preserving the original source's
	// behavior; see §9's open question.
	ReadCompleteWaitTimeout time.Duration `toml:"read_complete_wait_timeout"`

	// PollInterval is the backoff between polls of a wait object's
	// signaled flag. See platform_linux.go.
	PollInterval time.Duration `toml:"poll_interval"`

	// RuntimeDir is the directory backing named shared-memory segments and
	// lock files. Defaults to /dev/shm when empty and that directory is
	// writable, else os.TempDir().
	RuntimeDir string `toml:"runtime_dir"`
}

// DefaultConfig returns the configuration the reference implementation
// uses: MaxListeners 1024 (per §3), up to 3 registration attempts,
// and an infinite read-complete wait (preserving original behavior).
func DefaultConfig() ChannelConfig {
	return ChannelConfig{
		MaxListeners:            1024,
		RegisterRetryAttempts:   3,
		ReadCompleteWaitTimeout: 0,
		PollInterval:            2 * time.Millisecond,
		RuntimeDir:              defaultRuntimeDir(),
	}
}

// Validate checks the configuration for internal consistency.
func (c ChannelConfig) Validate() error {
	if c.MaxListeners <= 0 {
		return fmt.Errorf("%w: max_listeners must be > 0, got %d", ErrInvalidConfig, c.MaxListeners)
	}
	if c.RegisterRetryAttempts < 1 {
		return fmt.Errorf("%w: register_retry_attempts must be >= 1, got %d", ErrInvalidConfig, c.RegisterRetryAttempts)
	}
	if c.ReadCompleteWaitTimeout < 0 {
		return fmt.Errorf("%w: read_complete_wait_timeout must be >= 0, got %s", ErrInvalidConfig, c.ReadCompleteWaitTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be > 0, got %s", ErrInvalidConfig, c.PollInterval)
	}
	if c.RuntimeDir == "" {
		return fmt.Errorf("%w: runtime_dir must not be empty", ErrInvalidConfig)
	}
	return nil
}

// defaultRuntimeDir prefers /dev/shm (tmpfs, matches the spirit of the
// original's in-memory-backed file mappings) and falls back to the OS temp
// directory on hosts that don't have it.
func defaultRuntimeDir() string {
	const shm = "/dev/shm"
	if info, err := os.Stat(shm); err == nil && info.IsDir() {
		return shm
	}
	return os.TempDir()
}
