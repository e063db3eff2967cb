package sharedevent

import (
	"github.com/robfig/cron/v3"
)

// Supervisor periodically re-emits a heartbeat value on a Channel so
// crashed peers get reaped even if nobody calls Emit for a while — a
// channel that only ever has one slow publisher would otherwise carry
// stale roster entries for dead listeners indefinitely, since eviction is
// a side effect of Emit (§4.6), not a background process. This is a
// supplemented feature (SPEC_FULL.md §3); the original implementation has
// no equivalent and relies entirely on application traffic to trigger
// eviction.
type Supervisor[T any] struct {
	channel   *Channel[T]
	heartbeat func() T
	logger    Logger
	cronRun   *cron.Cron
	entryID   cron.EntryID
}

// NewSupervisor builds a Supervisor that emits heartbeat() on ch according
// to schedule, a standard cron expression or a "@every" shorthand (e.g.
// "@every 30s"), the way robfig/cron parses both.
func NewSupervisor[T any](ch *Channel[T], heartbeat func() T, schedule string, logger Logger) (*Supervisor[T], error) {
	if logger == nil {
		logger = noopLogger{}
	}
	s := &Supervisor[T]{channel: ch, heartbeat: heartbeat, logger: logger, cronRun: cron.New()}

	entryID, err := s.cronRun.AddFunc(schedule, s.tick)
	if err != nil {
		return nil, err
	}
	s.entryID = entryID
	return s, nil
}

func (s *Supervisor[T]) tick() {
	if err := s.channel.Emit(s.heartbeat()); err != nil {
		s.logger.Warn("supervisor heartbeat emit failed", "channel", s.channel.Name(), "error", err)
	}
}

// Start begins the periodic heartbeat in the background.
func (s *Supervisor[T]) Start() {
	s.cronRun.Start()
}

// Stop halts the periodic heartbeat and waits for any in-flight tick to
// finish.
func (s *Supervisor[T]) Stop() {
	<-s.cronRun.Stop().Done()
}
