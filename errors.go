package sharedevent

import "errors"

// Error kinds surfaced to callers. Failures of the OS primitives during
// Emit, panics in listener callbacks, and failures during Close are never
// surfaced: they are logged and swallowed. Emit itself returns only
// ErrChannelDisposed, ErrNotRegistered, or a codec encoding error.
var (
	// ErrCapacityExhausted is returned by Join when the roster already
	// holds MaxListeners participants.
	ErrCapacityExhausted = errors.New("sharedevent: roster at capacity")

	// ErrSlotCollision is returned by Join when a wait object for the
	// allocated slot id already exists, meaning another participant raced
	// us to the same roster snapshot. Join retries internally up to a
	// small bound before surfacing this.
	ErrSlotCollision = errors.New("sharedevent: slot id collision during registration")

	// ErrInfrastructureUnavailable is returned when the registration lock,
	// roster segment, or payload segment cannot be created or opened.
	ErrInfrastructureUnavailable = errors.New("sharedevent: shared infrastructure unavailable")

	// ErrChannelDisposed is returned by Emit when it is called on a Channel
	// after Close.
	ErrChannelDisposed = errors.New("sharedevent: channel is disposed")

	// ErrNotRegistered is returned by Emit when the participant never
	// successfully joined the channel.
	ErrNotRegistered = errors.New("sharedevent: participant is not registered")

	// ErrUnsupportedPlatform is returned by the platform primitives on any
	// host that isn't POSIX/Linux. See platform_other.go.
	ErrUnsupportedPlatform = errors.New("sharedevent: unsupported platform")

	// ErrInvalidConfig is returned by ChannelConfig.Validate.
	ErrInvalidConfig = errors.New("sharedevent: invalid configuration")
)
