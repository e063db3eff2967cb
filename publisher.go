package sharedevent

import (
	"context"
	"errors"
	"time"
)

// Emit performs §4.6 with suppressSelf=false: every registered participant,
// including the caller, is woken and processes the message through its own
// reader loop and callbacks. This matches the original implementation's
// default (SharedEvent.h's Emit(message, suppressSelfHandler = false)) and
// §8's round-trip law that a single-participant channel invokes its own
// callback exactly once for what it emits. Use EmitSuppressingSelf for the
// suppressSelf=true variant §4.6 also names.
func (c *Channel[T]) Emit(value T) error {
	return c.emit(value, false)
}

// EmitSuppressingSelf performs §4.6 with suppressSelf=true: the caller's
// own SlotId is skipped, so its reader loop never processes the message it
// just published.
func (c *Channel[T]) EmitSuppressingSelf(value T) error {
	return c.emit(value, true)
}

type emitTarget struct {
	slotID  int
	read    waitObject
	publish waitObject
}

// emit is §4.6's Emit protocol: under the Registration Lock, wait for
// every live listener to have finished consuming the previous payload
// (the backpressure hinge of step 3), overwrite the payload, wake every
// listener except a suppressed self, then prune whoever turned out to be
// dead or unresponsive.
func (c *Channel[T]) emit(value T, suppressSelf bool) error {
	c.stateMu.Lock()
	if c.disposed {
		c.stateMu.Unlock()
		return ErrChannelDisposed
	}
	if !c.registered {
		c.stateMu.Unlock()
		return ErrNotRegistered
	}
	selfSlot := c.slotID
	c.stateMu.Unlock()

	encoded, err := c.codec.Serialize(value)
	if err != nil {
		return err
	}

	started := clockNow()
	var evicted int

	err = withLock(c.lock, func() error {
		ids, err := readRoster(c.roster, c.cfg.MaxListeners)
		if err != nil {
			return err
		}

		dead := make(map[int]bool)
		targets := make(map[int]*emitTarget, len(ids))

		// Steps 2-3: open every live listener's read-complete-signal and
		// wait for it to be signaled before the payload is overwritten, so
		// no listener ever loses an unread message to a new one.
		waitCtx, cancel := c.waitContext()
		for _, id := range ids {
			read, ok, err := c.plat.OpenWaitObject(c.cfg.RuntimeDir, readCompleteSignalName(c.prefix, id), manualReset)
			if err != nil {
				cancel()
				return err
			}
			if !ok {
				dead[id] = true
				continue
			}
			targets[id] = &emitTarget{slotID: id, read: read}

			if suppressSelf && id == selfSlot {
				// Only a suppressed self is never reset (§4.6 step 5), so
				// only then is waiting on it a formality that never blocks.
				// When self is not suppressed it is woken and must consume
				// the previous payload like any other live listener, or a
				// second back-to-back Emit would overwrite a message self
				// never read.
				continue
			}
			if err := read.Wait(waitCtx, c.cfg.PollInterval); err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					dead[id] = true
					delete(targets, id)
					read.Release() //nolint:errcheck
					continue
				}
				cancel()
				return err
			}
		}
		cancel()

		// Step 4: overwrite the payload now that every live, non-suppressed
		// listener has finished with the previous one.
		if err := c.payload.WriteAt(encoded); err != nil {
			for _, t := range targets {
				t.read.Release() //nolint:errcheck
			}
			return err
		}

		// Step 5: wake every listener except a suppressed self.
		for _, id := range ids {
			t, ok := targets[id]
			if !ok {
				continue // already marked dead above
			}
			if suppressSelf && id == selfSlot {
				t.read.Release() //nolint:errcheck
				continue
			}

			publish, ok, err := c.plat.OpenWaitObject(c.cfg.RuntimeDir, publishSignalName(c.prefix, id), autoReset)
			if err != nil {
				t.read.Release() //nolint:errcheck
				return err
			}
			if !ok {
				dead[id] = true
				t.read.Release() //nolint:errcheck
				continue
			}
			if err := t.read.Reset(); err != nil {
				t.read.Release()    //nolint:errcheck
				publish.Release()   //nolint:errcheck
				return err
			}
			if err := publish.Set(); err != nil {
				t.read.Release()    //nolint:errcheck
				publish.Release()   //nolint:errcheck
				return err
			}
			t.read.Release() //nolint:errcheck
			publish.Release() //nolint:errcheck
		}

		// Step 6: write back a pruned roster.
		if len(dead) > 0 {
			pruned := removeIDs(ids, dead)
			if err := writeRoster(c.roster, pruned); err != nil {
				return err
			}
			for id := range dead {
				if err := c.clearSlotPID(id); err != nil {
					c.logger.Warn("clearing PID for evicted slot failed", "channel", c.name, "slot", id, "error", err)
				}
			}
			evicted = len(dead)
		}
		return nil
	})
	if err != nil {
		// Failures of the lock, shared-memory and wait-object primitives are
		// logged, not returned; the emit stops at the step that failed.
		c.logger.Error("emit failed", "channel", c.name, "error", err)
		return nil
	}

	c.metrics.observeEmit(c.name, clockSince(started).Seconds())
	if evicted > 0 {
		c.metrics.observeEvictions(c.name, evicted)
		c.emitObservability(EventTypeParticipantEvicted, map[string]interface{}{
			"channel": c.name,
			"count":   evicted,
		})
	}
	c.emitObservability(EventTypeMessageEmitted, map[string]interface{}{
		"channel": c.name,
	})

	return nil
}

// waitContext bounds how long Emit waits for a single listener's
// read-complete-signal. A zero ReadCompleteWaitTimeout preserves the
// original implementation's indefinite wait (§9 open question); any
// positive value bounds it so one stuck-but-alive listener cannot stall
// every publisher forever.
func (c *Channel[T]) waitContext() (context.Context, context.CancelFunc) {
	if c.cfg.ReadCompleteWaitTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.cfg.ReadCompleteWaitTimeout)
}

func clockNow() time.Time { return time.Now() }

func clockSince(t time.Time) time.Duration { return time.Since(t) }
