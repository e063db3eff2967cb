package sharedevent

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event type constants for sharedevent's own internal observability
// events. These are distinct from the transported TransactionEvent payload
// (§6): they describe the protocol's own lifecycle (joins, evictions,
// emits) for applications that want to observe the bus itself, following
// CloudEvents reverse-domain notation the way the teacher's eventbus
// module does for its module-level events.
const (
	EventTypeParticipantJoined   = "com.sharedevent.participant.joined"
	EventTypeParticipantLeft     = "com.sharedevent.participant.left"
	EventTypeParticipantEvicted  = "com.sharedevent.participant.evicted"
	EventTypeMessageEmitted      = "com.sharedevent.message.emitted"
	EventTypeRegistrationFailed  = "com.sharedevent.registration.failed"
	EventTypeCallbackPanicCaught = "com.sharedevent.callback.panic_caught"
)

// ObservabilityHandler receives sharedevent's internal lifecycle events.
// Unlike EventHandler (which receives transported payloads), these are
// diagnostic only and never participate in the cross-process protocol.
type ObservabilityHandler func(ctx context.Context, event cloudevents.Event)

// newInternalEvent builds a CloudEvent the way modular.NewCloudEvent does
// for the teacher's own module events: a source, a type, and a data map.
func newInternalEvent(eventType, source string, data map[string]interface{}) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	_ = event.SetData(cloudevents.ApplicationJSON, data)
	return event
}

// emitObservability invokes the channel's observability handler, if any,
// on its own goroutine so a slow or misbehaving observer can never delay
// the emit/join/leave protocol it is describing.
func (c *Channel[T]) emitObservability(eventType string, data map[string]interface{}) {
	if c.observe == nil {
		return
	}
	event := newInternalEvent(eventType, "sharedevent:"+c.name, data)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Warn("observability handler panicked", "event_type", eventType, "recovered", r)
			}
		}()
		c.observe(context.Background(), event)
	}()
}
