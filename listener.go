package sharedevent

import (
	"context"
	"time"
)

// startReader launches the reader goroutine of §4.7: it waits on this
// slot's publish-signal, snapshots the Payload Segment, dispatches to every
// registered callback, then signals read-complete so Emit can move on. The
// goroutine runs until stopReader cancels it.
func (c *Channel[T]) startReader() {
	c.stateMu.Lock()
	if c.running.Load() {
		c.stateMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.readerCancel = cancel
	c.readerDone = make(chan struct{})
	done := c.readerDone
	publishSignal := c.publishSignal
	c.running.Store(true)
	c.stateMu.Unlock()

	go c.readLoop(ctx, publishSignal, done)
}

func (c *Channel[T]) readLoop(ctx context.Context, publishSignal waitObject, done chan struct{}) {
	defer close(done)

	for {
		err := publishSignal.Wait(ctx, c.cfg.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// A transient error reading the flag file; back off via the
			// next poll rather than spinning.
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.PollInterval):
			}
			continue
		}
		c.readOne()
	}
}

// readOne performs §4.7 steps 2-5: snapshot the payload, decode it,
// dispatch it to every registered callback (panics recovered), then mark
// this slot's read-complete-signal so a waiting Emit can proceed.
func (c *Channel[T]) readOne() {
	raw, err := c.payload.ReadAt()
	if err != nil {
		c.logger.Warn("reading payload segment failed", "channel", c.name, "error", err)
		return
	}

	value, err := c.codec.Deserialize(raw)
	if err != nil {
		c.logger.Warn("decoding payload failed", "channel", c.name, "error", err)
		return
	}

	c.dispatch(value)

	c.stateMu.Lock()
	readSignal := c.readSignal
	c.stateMu.Unlock()
	if readSignal != nil {
		if err := readSignal.Set(); err != nil {
			c.logger.Warn("signaling read-complete failed", "channel", c.name, "error", err)
		}
	}
}

// stopReader cancels the reader goroutine's context and waits for it to
// exit.
func (c *Channel[T]) stopReader() {
	c.stateMu.Lock()
	if !c.running.Load() {
		c.stateMu.Unlock()
		return
	}
	c.running.Store(false)
	cancel := c.readerCancel
	done := c.readerDone
	c.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
