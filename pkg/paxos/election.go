package paxos

import (
	"log"
	"time"

	"github.com/tarlanmammadov/paxos-council/pkg/internal/logutil"
	"github.com/tarlanmammadov/paxos-council/pkg/observability/metrics"
)

// Phase timeouts must strictly exceed LargeDelay (5s) so a slow-but-present
// peer is never mistaken for a dead one. They are fixed constants; tests
// shorten an election by injecting the driver's clock and sleep instead.
const (
	PromisePhaseTimeout = 10 * time.Second
	AcceptPhaseTimeout  = 10 * time.Second
	pollInterval        = 100 * time.Millisecond
)

// ElectionDriver drives Phase 1 and Phase 2 of a local proposal: it writes
// to the StateMachine's proposer fields (via BeginProposal) and polls its
// tallies to detect a majority, running on a goroutine independent of the
// listener that dispatches inbound messages.
type ElectionDriver struct {
	sm     *StateMachine
	gate   Sender
	events *eventBus
	logger *log.Logger
	clock  func() time.Time
	sleep  func(time.Duration)
}

// NewElectionDriver builds a driver for one member's StateMachine.
func NewElectionDriver(sm *StateMachine, gate Sender, events *eventBus, logger *log.Logger) *ElectionDriver {
	if logger == nil {
		logger = log.Default()
	}
	return &ElectionDriver{sm: sm, gate: gate, events: events, logger: logger, clock: time.Now, sleep: time.Sleep}
}

// StartElection runs a full election to completion: Phase 1 (prepare/promise),
// Phase 2 (accept-request/accepted) and, on success, propagation. It
// reports whether the proposed (or adopted) value was chosen by a majority
// before either phase timed out.
func (d *ElectionDriver) StartElection(value string) bool {
	n := d.sm.BeginProposal()
	metrics.ElectionsStarted.Inc()
	d.publish(Event{Type: EventElectionStarted, ProposalNumber: n, Value: value, PeerID: d.sm.ID()})
	logutil.Infof(d.logger, logutil.Fields{"member": d.sm.ID(), "proposal": n}, "[member %d] starting election n=%d value=%q", d.sm.ID(), n, value)

	d.broadcast(NewMessage(Prepare, n, d.sm.ID()))

	if !d.waitForMajority(PromisePhaseTimeout, d.sm.PromiseCount) {
		metrics.ElectionsTimedOut.WithLabelValues("promise").Inc()
		d.publish(Event{Type: EventPromiseTimedOut, ProposalNumber: n})
		logutil.Warnf(d.logger, logutil.Fields{"member": d.sm.ID(), "proposal": n, "phase": "promise"}, "[member %d] promise phase timed out for n=%d", d.sm.ID(), n)
		return false
	}

	proposed := value
	if adopted, ok := d.sm.AdoptedValue(); ok {
		proposed = adopted
	}

	d.broadcast(NewValueMessage(AcceptRequest, n, proposed, d.sm.ID()))

	if !d.waitForMajority(AcceptPhaseTimeout, d.sm.AcceptCount) {
		metrics.ElectionsTimedOut.WithLabelValues("accept").Inc()
		d.publish(Event{Type: EventAcceptTimedOut, ProposalNumber: n})
		logutil.Warnf(d.logger, logutil.Fields{"member": d.sm.ID(), "proposal": n, "phase": "accept"}, "[member %d] accept phase timed out for n=%d", d.sm.ID(), n)
		return false
	}

	metrics.ElectionsSucceeded.Inc()
	logutil.Infof(d.logger, logutil.Fields{"member": d.sm.ID(), "proposal": n}, "[member %d] election successful, value chosen: %s", d.sm.ID(), proposed)
	d.sm.Propagate(n, proposed)
	return true
}

// waitForMajority polls count at pollInterval granularity until it (plus the
// proposer itself) exceeds N/2, or timeout elapses.
func (d *ElectionDriver) waitForMajority(timeout time.Duration, count func() int) bool {
	deadline := d.clock().Add(timeout)
	for {
		if d.sm.HasMajority(count()) {
			return true
		}
		if d.clock().After(deadline) {
			return d.sm.HasMajority(count())
		}
		d.sleep(pollInterval)
	}
}

func (d *ElectionDriver) broadcast(msg Message) {
	for _, peer := range d.sm.Peers() {
		if err := d.gate.Send(peer, msg); err != nil {
			logutil.Warnf(d.logger, logutil.Fields{"member": d.sm.ID(), "peer": peer, "type": msg.Type}, "[member %d] send %s to %d failed: %v", d.sm.ID(), msg.Type, peer, err)
		}
	}
}

func (d *ElectionDriver) publish(ev Event) {
	if d.events != nil {
		d.events.publish(ev)
	}
}
