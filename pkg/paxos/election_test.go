package paxos

import (
	"sync"
	"testing"
	"time"
)

// immediateSender simulates a fully responsive council: every PREPARE it
// carries is answered with a PROMISE from the same peer, and every
// ACCEPT_REQUEST with an ACCEPTED, both delivered synchronously into sm.
type immediateSender struct {
	sm *StateMachine
}

func (s *immediateSender) Send(toID int, msg Message) error {
	switch msg.Type {
	case Prepare:
		s.sm.Handle(NewMessage(Promise, msg.ProposalNumber, toID))
	case AcceptRequest:
		s.sm.Handle(NewValueMessage(Accepted, msg.ProposalNumber, msg.Value, toID))
	}
	return nil
}

// silentSender drops every message, simulating a council that never replies.
type silentSender struct{}

func (silentSender) Send(toID int, msg Message) error { return nil }

// fakeTime lets a test fast-forward an ElectionDriver's timeout logic without
// a real multi-second wait.
type fakeTime struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Sleep(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestStartElectionSucceedsWithFullyResponsiveCouncil(t *testing.T) {
	events := &eventBus{}
	sm := NewStateMachine(1, []int{2, 3, 4}, 4, nil, events, nil)
	sender := &immediateSender{sm: sm}
	sm.gate = sender

	driver := NewElectionDriver(sm, sender, events, nil)
	if ok := driver.StartElection("chosen"); !ok {
		t.Fatalf("expected election to succeed with a fully responsive council")
	}
	if v, has := sm.AcceptedValue(); !has || v != "chosen" {
		t.Fatalf("expected accepted value 'chosen', got %q (has=%v)", v, has)
	}
}

func TestStartElectionAdoptsPriorAcceptedValue(t *testing.T) {
	events := &eventBus{}
	sm := NewStateMachine(1, []int{2, 3, 4}, 4, nil, events, nil)
	sender := &immediateSender{sm: sm}
	sm.gate = sender

	// This member already accepted "earlier" from peer 2's ACCEPT_REQUEST
	// at proposal 1; the driver must carry that held value into Phase 2
	// instead of proposing its own.
	sm.Handle(NewValueMessage(AcceptRequest, 1, "earlier", 2))

	driver := NewElectionDriver(sm, sender, events, nil)
	driver.StartElection("mine")

	if v, has := sm.AcceptedValue(); !has || v != "earlier" {
		t.Fatalf("expected adopted value 'earlier' to win, got %q (has=%v)", v, has)
	}
}

func TestStartElectionTimesOutOnPromisePhaseWithNoResponders(t *testing.T) {
	events := &eventBus{}
	sm := NewStateMachine(1, []int{2, 3, 4}, 4, silentSender{}, events, nil)
	driver := NewElectionDriver(sm, silentSender{}, events, nil)

	ft := &fakeTime{now: time.Now()}
	driver.clock = ft.Now
	driver.sleep = ft.Sleep

	if ok := driver.StartElection("value"); ok {
		t.Fatalf("expected election to fail when no peer ever promises")
	}
}

// promiseOnlySender answers PREPARE with PROMISE but drops ACCEPT_REQUEST,
// so phase 1 succeeds and phase 2 must time out on its own.
type promiseOnlySender struct {
	sm *StateMachine
}

func (s *promiseOnlySender) Send(toID int, msg Message) error {
	if msg.Type == Prepare {
		s.sm.Handle(NewMessage(Promise, msg.ProposalNumber, toID))
	}
	return nil
}

func TestStartElectionTimesOutOnAcceptPhaseAfterPromisesButNoAccepts(t *testing.T) {
	events := &eventBus{}
	sm := NewStateMachine(1, []int{2, 3}, 3, nil, events, nil)
	sender := &promiseOnlySender{sm: sm}
	sm.gate = sender
	driver := NewElectionDriver(sm, sender, events, nil)

	ft := &fakeTime{now: time.Now()}
	driver.clock = ft.Now
	driver.sleep = ft.Sleep

	if ok := driver.StartElection("value"); ok {
		t.Fatalf("expected election to fail when phase 2 never reaches majority")
	}
}
