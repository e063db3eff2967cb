package sharedevent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// EventHandler is a callback registered on a Channel. It runs on the
// channel's reader goroutine (§4.7), never the publisher's; a panicking
// handler is recovered and logged so it never takes down the reader loop
// or other callbacks (§4.7 step 3).
type EventHandler[T any] func(value T)

// Channel is one process's attachment to a named cross-process shared
// event bus (the Participant of §3). Construct with Open (reference
// TransactionEvent payload, §6) or OpenWithCodec (custom payload schema,
// §9 polymorphism note).
type Channel[T any] struct {
	name   string
	prefix string
	cfg    ChannelConfig
	codec  Codec[T]
	logger Logger
	plat   platform

	metrics *Metrics
	observe ObservabilityHandler

	lock     globalMutex
	roster   sharedRegion
	payload  sharedRegion
	slotMeta sharedRegion

	stateMu       sync.Mutex
	slotID        int // -1 when not registered
	registered    bool
	disposed      bool
	publishSignal waitObject
	readSignal    waitObject
	running       atomic.Bool
	readerCancel  context.CancelFunc
	readerDone    chan struct{}

	callbacksMu sync.Mutex
	callbacks   []EventHandler[T]
}

// Option configures optional Channel behavior.
type Option func(*options)

type options struct {
	logger  Logger
	observe ObservabilityHandler
	metrics *Metrics
	plat    platform
}

// WithLogger supplies a Logger; the default discards all log output.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObservability registers a handler for sharedevent's own internal
// lifecycle events (join/leave/evict/emit), distinct from the transported
// payload. See events.go.
func WithObservability(h ObservabilityHandler) Option {
	return func(o *options) { o.observe = h }
}

// WithMetrics attaches a Metrics collector. See metrics.go.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// withPlatform overrides the OS primitive implementation; used by tests to
// run the full protocol against an in-memory fake instead of real flock/mmap.
func withPlatform(p platform) Option {
	return func(o *options) { o.plat = p }
}

// Open joins channelName using the reference TransactionEvent payload
// schema (§6), creating the shared infrastructure if this is the first
// participant to open it.
func Open(channelName string, cfg ChannelConfig, opts ...Option) (*Channel[TransactionEvent], error) {
	return OpenWithCodec[TransactionEvent](channelName, cfg, BinaryCodec{}, opts...)
}

// OpenWithCodec joins channelName using a custom Codec, per the §9
// polymorphism design note: the rest of the protocol is unchanged, only
// the Payload Segment's interpretation differs.
func OpenWithCodec[T any](channelName string, cfg ChannelConfig, codec Codec[T], opts ...Option) (*Channel[T], error) {
	if channelName == "" {
		return nil, fmt.Errorf("%w: channel name must not be empty", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	resolved := options{logger: noopLogger{}, plat: defaultPlatform}
	for _, opt := range opts {
		opt(&resolved)
	}

	prefix := namePrefix(channelName)

	lock, err := resolved.plat.OpenGlobalMutex(cfg.RuntimeDir, registrationLockName(prefix))
	if err != nil {
		return nil, err
	}
	roster, err := resolved.plat.OpenSharedRegion(cfg.RuntimeDir, rosterSegmentName(prefix), rosterSize(cfg.MaxListeners))
	if err != nil {
		lock.Close() //nolint:errcheck
		return nil, err
	}
	payloadRegion, err := resolved.plat.OpenSharedRegion(cfg.RuntimeDir, payloadSegmentName(prefix), codec.FixedSize())
	if err != nil {
		lock.Close()   //nolint:errcheck
		roster.Close() //nolint:errcheck
		return nil, err
	}
	slotMeta, err := resolved.plat.OpenSharedRegion(cfg.RuntimeDir, slotMetaSegmentName(prefix), 4*cfg.MaxListeners)
	if err != nil {
		lock.Close()          //nolint:errcheck
		roster.Close()        //nolint:errcheck
		payloadRegion.Close() //nolint:errcheck
		return nil, err
	}

	c := &Channel[T]{
		name:     channelName,
		prefix:   prefix,
		cfg:      cfg,
		codec:    codec,
		logger:   resolved.logger,
		plat:     resolved.plat,
		metrics:  resolved.metrics,
		observe:  resolved.observe,
		lock:     lock,
		roster:   roster,
		payload:  payloadRegion,
		slotMeta: slotMeta,
		slotID:   -1,
	}

	if err := c.join(); err != nil {
		c.releaseInfrastructure()
		return nil, err
	}

	return c, nil
}

// RegisterCallback installs a callback that fires, on the reader goroutine,
// for every message this participant receives (§4.2 "RegisterCallback").
func (c *Channel[T]) RegisterCallback(handler EventHandler[T]) {
	c.callbacksMu.Lock()
	defer c.callbacksMu.Unlock()
	c.callbacks = append(c.callbacks, handler)
}

// dispatch invokes every installed callback in insertion order, recovering
// panics so one misbehaving callback never prevents later callbacks or
// crashes the reader loop (§4.7 step 3).
func (c *Channel[T]) dispatch(value T) {
	c.callbacksMu.Lock()
	callbacks := make([]EventHandler[T], len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.callbacksMu.Unlock()

	for _, cb := range callbacks {
		c.invokeOne(cb, value)
	}
}

func (c *Channel[T]) invokeOne(cb EventHandler[T], value T) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("event callback panicked", "channel", c.name, "recovered", r)
			c.emitObservability(EventTypeCallbackPanicCaught, map[string]interface{}{
				"recovered": fmt.Sprintf("%v", r),
			})
		}
	}()
	cb(value)
}

// releaseInfrastructure closes the shared handles this Channel opened.
// Safe to call more than once.
func (c *Channel[T]) releaseInfrastructure() {
	if c.lock != nil {
		c.lock.Close() //nolint:errcheck
		c.lock = nil
	}
	if c.roster != nil {
		c.roster.Close() //nolint:errcheck
		c.roster = nil
	}
	if c.payload != nil {
		c.payload.Close() //nolint:errcheck
		c.payload = nil
	}
	if c.slotMeta != nil {
		c.slotMeta.Close() //nolint:errcheck
		c.slotMeta = nil
	}
}
