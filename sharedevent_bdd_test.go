package sharedevent

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"
)

// sharedEventBDDTestContext carries scenario state across steps. Each
// scenario gets its own fresh context via resetContext.
type sharedEventBDDTestContext struct {
	plat         *fakePlatform
	channels     map[string]*Channel[TransactionEvent]
	maxListeners int
	lastErr      error
	receivedMu   sync.Mutex
	received     map[string][]TransactionEvent
	mutex        sync.Mutex
}

func (tc *sharedEventBDDTestContext) resetContext() {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	tc.plat = newFakePlatform()
	tc.channels = make(map[string]*Channel[TransactionEvent])
	tc.maxListeners = 8
	tc.lastErr = nil
	tc.received = make(map[string][]TransactionEvent)
}

func (tc *sharedEventBDDTestContext) channelForScenario(name string) *Channel[TransactionEvent] {
	return tc.channels[name]
}

func (tc *sharedEventBDDTestContext) aChannelWithCapacityForListeners(channelName string, capacity int) error {
	tc.resetContext()
	tc.maxListeners = capacity
	return nil
}

func (tc *sharedEventBDDTestContext) participantHasJoined(participant, channelName string) error {
	cfg := DefaultConfig()
	cfg.MaxListeners = tc.maxListeners
	cfg.PollInterval = time.Millisecond
	cfg.RuntimeDir = "/fake"
	cfg.ReadCompleteWaitTimeout = 2 * time.Second

	ch, err := OpenWithCodec[TransactionEvent](channelName, cfg, BinaryCodec{}, withPlatform(tc.plat))
	if err != nil {
		tc.lastErr = err
		return nil
	}
	tc.channels[participant] = ch
	return nil
}

func (tc *sharedEventBDDTestContext) participantAttemptsToJoin(participant, channelName string) error {
	return tc.participantHasJoined(participant, channelName)
}

func (tc *sharedEventBDDTestContext) participantHasRegisteredACallback(participant string) error {
	ch := tc.channelForScenario(participant)
	if ch == nil {
		return fmt.Errorf("participant %q has not joined any channel", participant)
	}
	ch.RegisterCallback(func(e TransactionEvent) {
		tc.receivedMu.Lock()
		tc.received[participant] = append(tc.received[participant], e)
		tc.receivedMu.Unlock()
	})
	return nil
}

func (tc *sharedEventBDDTestContext) participantEmitsATransactionEventStartingAtAndEndingAt(participant string, start, end int64) error {
	ch := tc.channelForScenario(participant)
	if ch == nil {
		return fmt.Errorf("participant %q has not joined any channel", participant)
	}
	tc.lastErr = ch.Emit(TransactionEvent{Type: TransactionsAdded, StartDate: start, EndDate: end})
	time.Sleep(20 * time.Millisecond) // let reader goroutines drain
	return nil
}

func (tc *sharedEventBDDTestContext) participantEmitsATransactionEventSuppressingSelfStartingAtAndEndingAt(participant string, start, end int64) error {
	ch := tc.channelForScenario(participant)
	if ch == nil {
		return fmt.Errorf("participant %q has not joined any channel", participant)
	}
	tc.lastErr = ch.EmitSuppressingSelf(TransactionEvent{Type: TransactionsAdded, StartDate: start, EndDate: end})
	time.Sleep(20 * time.Millisecond) // let reader goroutines drain
	return nil
}

func (tc *sharedEventBDDTestContext) participantCrashesWithoutLeaving(participant string) error {
	ch := tc.channelForScenario(participant)
	if ch == nil {
		return fmt.Errorf("participant %q has not joined any channel", participant)
	}
	crashedKeys := map[string]bool{}
	crashedKeys[tc.plat.key(ch.cfg.RuntimeDir, publishSignalName(ch.prefix, ch.slotID))] = true
	crashedKeys[tc.plat.key(ch.cfg.RuntimeDir, readCompleteSignalName(ch.prefix, ch.slotID))] = true
	tc.plat.mu.Lock()
	for key, st := range tc.plat.waits {
		if !crashedKeys[key] {
			continue
		}
		st.mu.Lock()
		st.owned = false
		st.mu.Unlock()
	}
	tc.plat.mu.Unlock()
	ch.stopReader()
	return nil
}

func (tc *sharedEventBDDTestContext) participantShouldNotReceiveItsOwnEmittedEvent(participant string) error {
	tc.receivedMu.Lock()
	defer tc.receivedMu.Unlock()
	if len(tc.received[participant]) != 0 {
		return fmt.Errorf("participant %q received %d events, want 0", participant, len(tc.received[participant]))
	}
	return nil
}

func (tc *sharedEventBDDTestContext) participantShouldReceiveExactlyEventMatchingStartAndEnd(participant string, count int, start, end int64) error {
	tc.receivedMu.Lock()
	defer tc.receivedMu.Unlock()
	got := tc.received[participant]
	if len(got) != count {
		return fmt.Errorf("participant %q received %d events, want %d", participant, len(got), count)
	}
	last := got[len(got)-1]
	if last.StartDate != start || last.EndDate != end {
		return fmt.Errorf("participant %q received event %+v, want start=%d end=%d", participant, last, start, end)
	}
	return nil
}

func (tc *sharedEventBDDTestContext) rosterForShouldNoLongerContain(channelName, participant string) error {
	return tc.rosterContains(channelName, participant, false)
}

func (tc *sharedEventBDDTestContext) rosterForShouldStillContain(channelName, participant string) error {
	return tc.rosterContains(channelName, participant, true)
}

func (tc *sharedEventBDDTestContext) rosterContains(channelName, participant string, want bool) error {
	var reference *Channel[TransactionEvent]
	for _, ch := range tc.channels {
		if ch.name == channelName {
			reference = ch
			break
		}
	}
	if reference == nil {
		return fmt.Errorf("no open channel found for %q", channelName)
	}
	target := tc.channelForScenario(participant)
	if target == nil {
		return fmt.Errorf("participant %q has not joined any channel", participant)
	}
	ids, err := readRoster(reference.roster, reference.cfg.MaxListeners)
	if err != nil {
		return err
	}
	present := false
	for _, id := range ids {
		if id == target.slotID {
			present = true
			break
		}
	}
	if present != want {
		return fmt.Errorf("roster membership for %q: got present=%v, want %v", participant, present, want)
	}
	return nil
}

func (tc *sharedEventBDDTestContext) theJoinShouldFailWithACapacityExhaustedError() error {
	if !errors.Is(tc.lastErr, ErrCapacityExhausted) {
		return fmt.Errorf("expected a capacity exhausted error, got %v", tc.lastErr)
	}
	return nil
}

func (tc *sharedEventBDDTestContext) participantShouldObserveTheEventsInEmissionOrder(participant string) error {
	tc.receivedMu.Lock()
	defer tc.receivedMu.Unlock()
	got := tc.received[participant]
	if len(got) != 2 {
		return fmt.Errorf("participant %q received %d events, want 2", participant, len(got))
	}
	if got[0].StartDate >= got[1].StartDate {
		return fmt.Errorf("events out of order: %+v then %+v", got[0], got[1])
	}
	return nil
}

func TestSharedEventBDD(t *testing.T) {
	testCtx := &sharedEventBDDTestContext{}

	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			ctx.Given(`^a channel "([^"]*)" with capacity for (\d+) listeners$`, testCtx.aChannelWithCapacityForListeners)
			ctx.Given(`^participant "([^"]*)" has joined "([^"]*)"$`, testCtx.participantHasJoined)
			ctx.Given(`^"([^"]*)" has registered a callback$`, testCtx.participantHasRegisteredACallback)
			ctx.And(`^"([^"]*)" has registered a callback$`, testCtx.participantHasRegisteredACallback)

			ctx.When(`^"([^"]*)" emits a transaction event starting at (\d+) and ending at (\d+)$`, testCtx.participantEmitsATransactionEventStartingAtAndEndingAt)
			ctx.When(`^"([^"]*)" emits a transaction event suppressing self starting at (\d+) and ending at (\d+)$`, testCtx.participantEmitsATransactionEventSuppressingSelfStartingAtAndEndingAt)
			ctx.When(`^"([^"]*)" crashes without leaving$`, testCtx.participantCrashesWithoutLeaving)
			ctx.When(`^participant "([^"]*)" attempts to join "([^"]*)"$`, testCtx.participantAttemptsToJoin)

			ctx.Then(`^"([^"]*)" should not receive its own emitted event$`, testCtx.participantShouldNotReceiveItsOwnEmittedEvent)
			ctx.Then(`^"([^"]*)" should receive exactly (\d+) event matching start (\d+) and end (\d+)$`, testCtx.participantShouldReceiveExactlyEventMatchingStartAndEnd)
			ctx.Then(`^the roster for "([^"]*)" should no longer contain "([^"]*)"$`, testCtx.rosterForShouldNoLongerContain)
			ctx.Then(`^the roster for "([^"]*)" should still contain "([^"]*)"$`, testCtx.rosterForShouldStillContain)
			ctx.Then(`^the join should fail with a capacity exhausted error$`, testCtx.theJoinShouldFailWithACapacityExhaustedError)
			ctx.Then(`^"([^"]*)" should observe the events in emission order$`, testCtx.participantShouldObserveTheEventsInEmissionOrder)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
