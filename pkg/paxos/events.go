package paxos

import "sync"

// EventType classifies a state-machine or election transition worth
// surfacing to an observer (CLI, demo runner, test).
type EventType string

const (
	EventElectionStarted  EventType = "election_started"
	EventPromiseReceived  EventType = "promise_received"
	EventMajorityPromised EventType = "majority_promised"
	EventPromiseTimedOut  EventType = "promise_timed_out"
	EventAcceptedReceived EventType = "accepted_received"
	EventConsensusReached EventType = "consensus_reached"
	EventAcceptTimedOut   EventType = "accept_timed_out"
	EventNackReceived     EventType = "nack_received"
	EventMessageDropped   EventType = "message_dropped"
)

// Event is an application-consumable notification describing a Paxos state
// transition. Only fields relevant to Type are populated.
type Event struct {
	Type           EventType
	ProposalNumber int
	Value          string
	PeerID         int
}

// eventBus is a best-effort fan-out of Events to subscribed channels; a slow
// subscriber never blocks the state machine or the driver.
type eventBus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func (e *eventBus) add(ch chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs == nil {
		e.subs = make(map[chan Event]struct{})
	}
	e.subs[ch] = struct{}{}
}

func (e *eventBus) remove(ch chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subs, ch)
}

func (e *eventBus) publish(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subs {
		select {
		case ch <- ev:
		default:
			// drop if the receiver is slow; delivery is best-effort
		}
	}
}
