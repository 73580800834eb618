package paxos

import (
	"time"

	"github.com/tarlanmammadov/paxos-council/pkg/observability/metrics"
)

// Behavior is a per-peer fault profile applied to every outbound message.
// It is deliberate test instrumentation, not a transport feature, and is
// never coupled to real socket timeouts.
type Behavior string

const (
	ImmediateResponse Behavior = "IMMEDIATE_RESPONSE"
	SmallDelay        Behavior = "SMALL_DELAY"
	LargeDelay        Behavior = "LARGE_DELAY"
	NoResponse        Behavior = "NO_RESPONSE"
)

const (
	smallDelayDuration = 1 * time.Second
	largeDelayDuration = 5 * time.Second
)

// Sender delivers a single message to a peer. Implementations are transports
// (see pkg/transport/grpc) or test doubles.
type Sender interface {
	Send(toID int, msg Message) error
}

// BehaviorGate intercepts every outbound message on behalf of one member and
// applies that member's Behavior before handing it to a Sender. Delay is
// synchronous from the caller's perspective: the goroutine driving the send
// blocks for the delay's duration.
type BehaviorGate struct {
	behavior Behavior
	sender   Sender
	events   *eventBus
	sleep    func(time.Duration)
}

// NewBehaviorGate wraps sender with behavior's fault profile. events, if
// non-nil, receives an EventMessageDropped for every NO_RESPONSE send.
func NewBehaviorGate(behavior Behavior, sender Sender, events *eventBus) *BehaviorGate {
	return &BehaviorGate{behavior: behavior, sender: sender, events: events, sleep: time.Sleep}
}

// Send applies the gate's fault profile, then delivers via the wrapped
// Sender. NO_RESPONSE reports no error: a dropped send is indistinguishable
// from ordinary network loss from the caller's point of view.
func (g *BehaviorGate) Send(toID int, msg Message) error {
	outcome := "delivered"
	switch g.behavior {
	case SmallDelay:
		outcome = "small_delay"
		g.sleep(smallDelayDuration)
	case LargeDelay:
		outcome = "large_delay"
		g.sleep(largeDelayDuration)
	case NoResponse:
		metrics.MessagesSent.WithLabelValues(string(msg.Type), "dropped").Inc()
		if g.events != nil {
			g.events.publish(Event{Type: EventMessageDropped, ProposalNumber: msg.ProposalNumber, PeerID: toID})
		}
		return nil
	}
	metrics.MessagesSent.WithLabelValues(string(msg.Type), outcome).Inc()
	err := g.sender.Send(toID, msg)
	if err != nil {
		metrics.SendFailures.WithLabelValues(string(msg.Type)).Inc()
	}
	return err
}
