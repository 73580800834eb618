package paxos

import (
	"log"
	"sort"
	"sync"
)

// Listener binds a member's endpoint and delivers each inbound Message to
// handle as it arrives. Listen must return once bound; accepting continues
// in the background until Close is called.
type Listener interface {
	Listen(handle func(Message)) error
	Close() error
}

// CouncilMember is the control surface for one member: construct, listen,
// startElection, reset, shutdown, and the observer getters. It wires one
// peer's StateMachine, BehaviorGate and ElectionDriver together and owns the
// running flag that gates the listener lifecycle.
type CouncilMember struct {
	mu sync.Mutex

	id          int
	behavior    Behavior
	addressBook map[int]string
	running     bool

	sm       *StateMachine
	gate     *BehaviorGate
	driver   *ElectionDriver
	listener Listener
	events   *eventBus
	logger   *log.Logger
}

// NewCouncilMember constructs a member with (id, behavior, addressBook) and
// injected Sender/Listener implementations for the transport (see
// pkg/transport/grpc). It performs no network activity; call Listen to begin
// accepting inbound connections.
func NewCouncilMember(id int, behavior Behavior, addressBook map[int]string, sender Sender, listener Listener, logger *log.Logger) *CouncilMember {
	if logger == nil {
		logger = log.Default()
	}
	peers := make([]int, 0, len(addressBook))
	for peerID := range addressBook {
		if peerID != id {
			peers = append(peers, peerID)
		}
	}
	sort.Ints(peers)

	events := &eventBus{}
	gate := NewBehaviorGate(behavior, sender, events)
	sm := NewStateMachine(id, peers, len(addressBook), gate, events, logger)
	driver := NewElectionDriver(sm, gate, events, logger)

	book := make(map[int]string, len(addressBook))
	for k, v := range addressBook {
		book[k] = v
	}

	return &CouncilMember{
		id:          id,
		behavior:    behavior,
		addressBook: book,
		sm:          sm,
		gate:        gate,
		driver:      driver,
		listener:    listener,
		events:      events,
		logger:      logger,
	}
}

// Listen binds the member's endpoint and begins accepting connections in the
// background. Calling Listen twice is a no-op.
func (m *CouncilMember) Listen() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	if err := m.listener.Listen(m.sm.Handle); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return err
	}
	return nil
}

// StartElection drives a proposal for value on the calling goroutine,
// returning once a majority is reached or either phase times out.
func (m *CouncilMember) StartElection(value string) bool {
	return m.driver.StartElection(value)
}

// Reset clears all proposer and acceptor state to initial, promised number
// included. It is a harness operation for moving on to an independent
// decree, never something to call mid-election.
func (m *CouncilMember) Reset() {
	m.sm.Reset()
}

// Shutdown stops accepting inbound connections. Idempotent.
func (m *CouncilMember) Shutdown() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()
	return m.listener.Close()
}

// Subscribe returns a channel of Events for this member, closed automatically
// when done is closed. Delivery is best-effort: a slow subscriber may miss
// events rather than block the state machine.
func (m *CouncilMember) Subscribe(done <-chan struct{}) <-chan Event {
	ch := make(chan Event, 64)
	m.events.add(ch)
	go func() {
		<-done
		m.events.remove(ch)
		close(ch)
	}()
	return ch
}

// ID returns this member's stable identifier.
func (m *CouncilMember) ID() int { return m.id }

// Behavior returns this member's fault profile.
func (m *CouncilMember) Behavior() Behavior { return m.behavior }

// AddressBook returns a copy of the peer id -> endpoint map.
func (m *CouncilMember) AddressBook() map[int]string {
	book := make(map[int]string, len(m.addressBook))
	for k, v := range m.addressBook {
		book[k] = v
	}
	return book
}

// Running reports whether the member is currently listening.
func (m *CouncilMember) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// AcceptedValue returns the value bound to AcceptedProposalNumber, if any.
func (m *CouncilMember) AcceptedValue() (string, bool) { return m.sm.AcceptedValue() }

// AcceptedProposalNumber returns the highest proposal number accepted so
// far, or -1 if none.
func (m *CouncilMember) AcceptedProposalNumber() int { return m.sm.AcceptedProposalNumber() }

// PromisedProposalNumber returns the highest proposal number promised to so
// far, or -1 if none.
func (m *CouncilMember) PromisedProposalNumber() int { return m.sm.PromisedProposalNumber() }

// PromisedBy returns a copy of the set of peer ids that promised the current
// proposal.
func (m *CouncilMember) PromisedBy() []int { return m.sm.PromisedBy() }

// AcceptedBy returns a copy of the set of peer ids that accepted the current
// proposal.
func (m *CouncilMember) AcceptedBy() []int { return m.sm.AcceptedBy() }

// Status returns a JSON-serializable snapshot of the member's observable
// state, suitable for the admin status endpoint and for tests.
func (m *CouncilMember) Status() Status {
	value, hasValue := m.AcceptedValue()
	return Status{
		ID:                     m.id,
		Behavior:               m.behavior,
		Running:                m.Running(),
		PromisedProposalNumber: m.PromisedProposalNumber(),
		AcceptedProposalNumber: m.AcceptedProposalNumber(),
		AcceptedValue:          value,
		HasAcceptedValue:       hasValue,
		PromisedBy:             m.PromisedBy(),
		AcceptedBy:             m.AcceptedBy(),
	}
}
