package sharedevent

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// join performs §4.8 "Join": under the Registration Lock, allocate a free
// slot id from the roster, claim that slot's publish-signal and
// read-complete-signal wait objects, record the slot in the roster and the
// diagnostic PID sidecar, then start the reader goroutine. Makes up to
// cfg.RegisterRetryAttempts attempts in total, each against a freshly
// re-read roster, while another process wins the race for the same slot
// id (§9 "Races on Register").
func (c *Channel[T]) join() error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.RegisterRetryAttempts; attempt++ {
		ok, err := c.tryJoinOnce()
		if err == nil && ok {
			return nil
		}
		if err != nil && !errors.Is(err, ErrSlotCollision) {
			return err
		}
		lastErr = ErrSlotCollision
	}
	c.metrics.observeRegisterFailure(c.name)
	c.emitObservability(EventTypeRegistrationFailed, map[string]interface{}{
		"channel": c.name,
		"reason":  "slot collision retry budget exhausted",
	})
	if lastErr == nil {
		lastErr = ErrSlotCollision
	}
	return fmt.Errorf("sharedevent: joining channel %q: %w", c.name, lastErr)
}

func (c *Channel[T]) tryJoinOnce() (bool, error) {
	var (
		slotID        int
		publishSignal waitObject
		readSignal    waitObject
	)

	err := withLock(c.lock, func() error {
		ids, err := readRoster(c.roster, c.cfg.MaxListeners)
		if err != nil {
			return err
		}
		slotID = allocateSlotID(ids)
		if slotID >= c.cfg.MaxListeners {
			return ErrCapacityExhausted
		}

		publishSignal, _, err = c.plat.AcquireWaitObject(c.cfg.RuntimeDir, publishSignalName(c.prefix, slotID), autoReset)
		if err != nil {
			return err
		}
		if publishSignal == nil {
			return ErrSlotCollision
		}

		readSignal, _, err = c.plat.AcquireWaitObject(c.cfg.RuntimeDir, readCompleteSignalName(c.prefix, slotID), manualReset)
		if err != nil {
			publishSignal.CloseOwned() //nolint:errcheck
			return err
		}
		if readSignal == nil {
			publishSignal.CloseOwned() //nolint:errcheck
			return ErrSlotCollision
		}
		// No emit is pending yet; a manual-reset signal starts signaled so a
		// concurrent Emit never blocks waiting on a listener that simply
		// hasn't had a chance to read anything yet (§4.8 step 4).
		if err := readSignal.Set(); err != nil {
			publishSignal.CloseOwned() //nolint:errcheck
			readSignal.CloseOwned()    //nolint:errcheck
			return err
		}

		ids = insertSorted(ids, slotID)
		if err := writeRoster(c.roster, ids); err != nil {
			publishSignal.CloseOwned() //nolint:errcheck
			readSignal.CloseOwned()    //nolint:errcheck
			return err
		}

		if err := c.writeSlotPID(slotID); err != nil {
			c.logger.Warn("recording slot PID failed, continuing without diagnostic liveness", "channel", c.name, "slot", slotID, "error", err)
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrSlotCollision) {
			return false, nil
		}
		return false, err
	}

	c.stateMu.Lock()
	c.slotID = slotID
	c.publishSignal = publishSignal
	c.readSignal = readSignal
	c.registered = true
	c.stateMu.Unlock()

	c.metrics.observeJoin(c.name)
	c.emitObservability(EventTypeParticipantJoined, map[string]interface{}{
		"channel": c.name,
		"slot":    slotID,
	})

	c.startReader()
	return true, nil
}

// writeSlotPID records this process's PID in the diagnostic sidecar
// segment so liveness.go can corroborate the wait-object-absence heuristic
// with an independent PID check (§3 "Supplemented Features").
func (c *Channel[T]) writeSlotPID(slotID int) error {
	raw, err := c.slotMeta.ReadAt()
	if err != nil {
		return err
	}
	offset := slotID * 4
	if offset+4 > len(raw) {
		return fmt.Errorf("sharedevent: slot %d out of range for PID sidecar", slotID)
	}
	binary.LittleEndian.PutUint32(raw[offset:offset+4], uint32(currentPID()))
	return c.slotMeta.WriteAt(raw)
}

func (c *Channel[T]) clearSlotPID(slotID int) error {
	raw, err := c.slotMeta.ReadAt()
	if err != nil {
		return err
	}
	offset := slotID * 4
	if offset+4 > len(raw) {
		return nil
	}
	binary.LittleEndian.PutUint32(raw[offset:offset+4], 0)
	return c.slotMeta.WriteAt(raw)
}

// Close performs §4.8 "Leave": stops the reader goroutine, removes this
// participant's slot from the roster under the Registration Lock, and
// releases every handle this Channel opened. Close is idempotent.
func (c *Channel[T]) Close() error {
	c.stateMu.Lock()
	if c.disposed {
		c.stateMu.Unlock()
		return nil
	}
	c.disposed = true
	wasRegistered := c.registered
	slotID := c.slotID
	publishSignal := c.publishSignal
	readSignal := c.readSignal
	c.stateMu.Unlock()

	c.stopReader()

	if wasRegistered {
		err := withLock(c.lock, func() error {
			ids, err := readRoster(c.roster, c.cfg.MaxListeners)
			if err != nil {
				return err
			}
			ids = removeID(ids, slotID)
			if err := writeRoster(c.roster, ids); err != nil {
				return err
			}
			return c.clearSlotPID(slotID)
		})
		if err != nil {
			c.logger.Warn("leaving channel: pruning roster failed", "channel", c.name, "error", err)
		}
		if publishSignal != nil {
			publishSignal.CloseOwned() //nolint:errcheck
		}
		if readSignal != nil {
			readSignal.CloseOwned() //nolint:errcheck
		}
		c.metrics.observeLeave(c.name)
		c.emitObservability(EventTypeParticipantLeft, map[string]interface{}{
			"channel": c.name,
			"slot":    slotID,
		})
	}

	c.releaseInfrastructure()
	return nil
}

// Name reports the channel name this Channel was opened with.
func (c *Channel[T]) Name() string { return c.name }
