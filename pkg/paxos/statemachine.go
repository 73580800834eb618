package paxos

import (
	"log"
	"sync"

	"github.com/tarlanmammadov/paxos-council/pkg/internal/logutil"
	"github.com/tarlanmammadov/paxos-council/pkg/observability/metrics"
)

// pendingSend is a message computed while holding the state-machine lock but
// dispatched only after it is released, so a slow or delayed Sender never
// blocks concurrent handler or driver access to shared state.
type pendingSend struct {
	toID int
	msg  Message
}

// StateMachine holds one council member's acceptor state (promised number,
// accepted number, accepted value), proposer state (current proposal number,
// promise and accept tallies) and the handlers for the five message kinds.
// Every read/modify/write of that state is serialized by mu, since handlers
// and the election driver both touch it concurrently.
type StateMachine struct {
	mu sync.Mutex

	id          int
	peerIDs     []int // every other council member, fixed for the member's lifetime
	councilSize int   // N, including self

	gate   Sender
	events *eventBus
	logger *log.Logger

	proposalNumber         int
	promisedProposalNumber int
	acceptedProposalNumber int
	acceptedValue          string
	hasAcceptedValue       bool
	promisedBy             map[int]struct{}
	acceptedBy             map[int]struct{}
}

// NewStateMachine constructs a StateMachine in its initial state: no
// proposal promised, nothing accepted, no value held.
func NewStateMachine(id int, peerIDs []int, councilSize int, gate Sender, events *eventBus, logger *log.Logger) *StateMachine {
	if logger == nil {
		logger = log.Default()
	}
	sm := &StateMachine{
		id:          id,
		peerIDs:     append([]int(nil), peerIDs...),
		councilSize: councilSize,
		gate:        gate,
		events:      events,
		logger:      logger,
	}
	sm.resetLocked()
	return sm
}

func (sm *StateMachine) resetLocked() {
	sm.proposalNumber = 0
	sm.promisedProposalNumber = -1
	sm.acceptedProposalNumber = -1
	sm.acceptedValue = ""
	sm.hasAcceptedValue = false
	sm.promisedBy = make(map[int]struct{})
	sm.acceptedBy = make(map[int]struct{})
	metrics.AcceptedProposalNumber.Set(-1)
}

// Reset clears all proposer and acceptor state to initial, including
// promisedProposalNumber and any accepted value. It is a harness operation
// for starting a fresh decree between independent runs, never something to
// call mid-election: an acceptor that forgets what it promised can accept a
// lower-numbered proposal than one it already promised to reject.
func (sm *StateMachine) Reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.resetLocked()
}

// Handle routes an inbound message to its handler and dispatches any
// resulting replies/broadcasts through the behavior gate. It is safe to call
// from many goroutines (e.g. one per inbound connection) concurrently.
func (sm *StateMachine) Handle(msg Message) {
	metrics.MessagesReceived.WithLabelValues(string(msg.Type)).Inc()
	sm.mu.Lock()
	var sends []pendingSend
	switch msg.Type {
	case Prepare:
		sends = sm.handlePrepareLocked(msg)
	case Promise:
		sends = sm.handlePromiseLocked(msg)
	case AcceptRequest:
		sends = sm.handleAcceptRequestLocked(msg)
	case Accepted:
		sends = sm.handleAcceptedLocked(msg)
	case Nack:
		sends = sm.handleNackLocked(msg)
	default:
		logutil.Warnf(sm.logger, logutil.Fields{"member": sm.id, "peer": msg.From, "type": msg.Type}, "[member %d] ignoring unknown message type %q from %d", sm.id, msg.Type, msg.From)
	}
	sm.mu.Unlock()

	sm.dispatch(sends)
}

func (sm *StateMachine) handlePrepareLocked(msg Message) []pendingSend {
	if msg.ProposalNumber > sm.promisedProposalNumber {
		sm.promisedProposalNumber = msg.ProposalNumber
		var reply Message
		if sm.hasAcceptedValue {
			reply = NewValueMessage(Promise, sm.promisedProposalNumber, sm.acceptedValue, sm.id)
		} else {
			reply = NewMessage(Promise, sm.promisedProposalNumber, sm.id)
		}
		return []pendingSend{{toID: msg.From, msg: reply}}
	}
	nack := NewMessage(Nack, sm.promisedProposalNumber, sm.id)
	return []pendingSend{{toID: msg.From, msg: nack}}
}

func (sm *StateMachine) handlePromiseLocked(msg Message) []pendingSend {
	sm.promisedBy[msg.From] = struct{}{}
	sm.publishLocked(Event{Type: EventPromiseReceived, ProposalNumber: msg.ProposalNumber, PeerID: msg.From})
	if msg.HasValue && msg.ProposalNumber > sm.acceptedProposalNumber {
		sm.acceptedProposalNumber = msg.ProposalNumber
		sm.acceptedValue = msg.Value
		sm.hasAcceptedValue = true
	}
	if sm.hasMajorityLocked(sm.promisedBy) {
		sm.publishLocked(Event{Type: EventMajorityPromised, ProposalNumber: sm.proposalNumber})
	}
	return nil
}

func (sm *StateMachine) handleAcceptRequestLocked(msg Message) []pendingSend {
	if msg.ProposalNumber >= sm.promisedProposalNumber {
		sm.promisedProposalNumber = msg.ProposalNumber
		sm.acceptedProposalNumber = msg.ProposalNumber
		sm.acceptedValue = msg.Value
		sm.hasAcceptedValue = true
		metrics.AcceptedProposalNumber.Set(float64(sm.acceptedProposalNumber))
		accepted := NewValueMessage(Accepted, sm.acceptedProposalNumber, sm.acceptedValue, sm.id)
		return []pendingSend{{toID: msg.From, msg: accepted}}
	}
	nack := NewMessage(Nack, sm.promisedProposalNumber, sm.id)
	return []pendingSend{{toID: msg.From, msg: nack}}
}

func (sm *StateMachine) handleAcceptedLocked(msg Message) []pendingSend {
	sm.acceptedBy[msg.From] = struct{}{}
	sm.publishLocked(Event{Type: EventAcceptedReceived, ProposalNumber: msg.ProposalNumber, PeerID: msg.From, Value: msg.Value})
	if sm.hasMajorityLocked(sm.acceptedBy) && (!sm.hasAcceptedValue || msg.Value != sm.acceptedValue) {
		sm.publishLocked(Event{Type: EventConsensusReached, ProposalNumber: msg.ProposalNumber, Value: msg.Value})
		return sm.propagateLocked(msg.ProposalNumber, msg.Value)
	}
	return nil
}

func (sm *StateMachine) handleNackLocked(msg Message) []pendingSend {
	sm.publishLocked(Event{Type: EventNackReceived, ProposalNumber: msg.ProposalNumber, PeerID: msg.From})
	return nil
}

// propagateLocked guards against re-flooding peers that already hold v, then
// broadcasts an ACCEPT_REQUEST that rides the ordinary accept-request handler
// on every other peer to disseminate the chosen value. It deliberately
// leaves promisedProposalNumber untouched: propagation is dissemination of an
// already-chosen value, not a new round a peer could promise against.
func (sm *StateMachine) propagateLocked(n int, v string) []pendingSend {
	if sm.hasAcceptedValue && v == sm.acceptedValue {
		return nil
	}
	sm.acceptedValue = v
	sm.acceptedProposalNumber = n
	sm.hasAcceptedValue = true
	metrics.AcceptedProposalNumber.Set(float64(n))
	sends := make([]pendingSend, 0, len(sm.peerIDs))
	for _, peer := range sm.peerIDs {
		sends = append(sends, pendingSend{toID: peer, msg: NewValueMessage(AcceptRequest, n, v, sm.id)})
	}
	return sends
}

// Propagate is the driver-facing entry point used once a proposer's own
// election reaches a majority, sharing the same guard and broadcast logic as
// the internal call from handleAcceptedLocked.
func (sm *StateMachine) Propagate(n int, v string) {
	sm.mu.Lock()
	sends := sm.propagateLocked(n, v)
	sm.mu.Unlock()
	sm.dispatch(sends)
}

func (sm *StateMachine) hasMajorityLocked(set map[int]struct{}) bool {
	return len(set)+1 > sm.councilSize/2
}

func (sm *StateMachine) publishLocked(ev Event) {
	if sm.events != nil {
		sm.events.publish(ev)
	}
}

func (sm *StateMachine) dispatch(sends []pendingSend) {
	for _, s := range sends {
		if err := sm.gate.Send(s.toID, s.msg); err != nil {
			logutil.Warnf(sm.logger, logutil.Fields{"member": sm.id, "peer": s.toID, "type": s.msg.Type}, "[member %d] send %s to %d failed: %v", sm.id, s.msg.Type, s.toID, err)
		}
	}
}

// --- Proposer-side accessors used by ElectionDriver ---

// BeginProposal increments and returns the next proposal number, and resets
// this round's tallies. Proposal numbers are a per-proposer counter: two
// proposers can independently produce the same number. Handlers compare
// plain numbers only; the proposer id is never used as a tiebreaker, so
// equal numbers do not imply the same round.
func (sm *StateMachine) BeginProposal() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.proposalNumber++
	sm.promisedBy = make(map[int]struct{})
	sm.acceptedBy = make(map[int]struct{})
	return sm.proposalNumber
}

// PromiseCount returns the number of PROMISE senders recorded for the
// current proposal round.
func (sm *StateMachine) PromiseCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.promisedBy)
}

// AcceptCount returns the number of ACCEPTED senders recorded for the
// current proposal round.
func (sm *StateMachine) AcceptCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.acceptedBy)
}

// HasMajority reports whether count (plus the proposer itself) exceeds N/2.
func (sm *StateMachine) HasMajority(count int) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return count+1 > sm.councilSize/2
}

// AdoptedValue returns the value the proposer should carry into Phase 2:
// whatever it has adopted from a PROMISE (or already held), and whether one
// is present at all.
func (sm *StateMachine) AdoptedValue() (string, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.acceptedValue, sm.hasAcceptedValue
}

// Peers returns every council member id other than self.
func (sm *StateMachine) Peers() []int {
	return append([]int(nil), sm.peerIDs...)
}

// ID returns this member's stable identifier.
func (sm *StateMachine) ID() int { return sm.id }

// --- Observers ---

// AcceptedValue returns the value bound to AcceptedProposalNumber, if any.
func (sm *StateMachine) AcceptedValue() (string, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.acceptedValue, sm.hasAcceptedValue
}

// AcceptedProposalNumber returns the highest proposal number accepted so
// far, or -1 if none.
func (sm *StateMachine) AcceptedProposalNumber() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.acceptedProposalNumber
}

// PromisedProposalNumber returns the highest proposal number promised to so
// far, or -1 if none.
func (sm *StateMachine) PromisedProposalNumber() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.promisedProposalNumber
}

// PromisedBy returns a copy of the set of peer ids that promised the
// current proposal.
func (sm *StateMachine) PromisedBy() []int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return setToSlice(sm.promisedBy)
}

// AcceptedBy returns a copy of the set of peer ids that accepted the
// current proposal.
func (sm *StateMachine) AcceptedBy() []int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return setToSlice(sm.acceptedBy)
}

func setToSlice(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
