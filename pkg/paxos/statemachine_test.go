package paxos

import (
	"sync"
	"testing"
)

// fakeSender records every Send call and lets tests script per-peer replies.
type fakeSender struct {
	mu    sync.Mutex
	sent  []sentMsg
	reply func(toID int, msg Message) []Message
}

type sentMsg struct {
	toID int
	msg  Message
}

func (f *fakeSender) Send(toID int, msg Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentMsg{toID, msg})
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newSM(id int, peers []int, size int) (*StateMachine, *fakeSender) {
	fs := &fakeSender{}
	sm := NewStateMachine(id, peers, size, fs, &eventBus{}, nil)
	return sm, fs
}

func TestStateMachineInitialState(t *testing.T) {
	sm, _ := newSM(1, []int{2, 3}, 3)
	if v, has := sm.AcceptedValue(); has || v != "" {
		t.Fatalf("expected no accepted value initially, got %q (has=%v)", v, has)
	}
	if n := sm.AcceptedProposalNumber(); n != -1 {
		t.Fatalf("expected accepted proposal number -1, got %d", n)
	}
	if n := sm.PromisedProposalNumber(); n != -1 {
		t.Fatalf("expected promised proposal number -1, got %d", n)
	}
}

func TestHandlePrepareGrantsPromise(t *testing.T) {
	sm, fs := newSM(1, []int{2, 3}, 3)
	sm.Handle(NewMessage(Prepare, 5, 2))

	if n := sm.PromisedProposalNumber(); n != 5 {
		t.Fatalf("expected promised number 5, got %d", n)
	}
	if fs.sentCount() != 1 {
		t.Fatalf("expected 1 reply, got %d", fs.sentCount())
	}
	reply := fs.sent[0]
	if reply.toID != 2 || reply.msg.Type != Promise || reply.msg.HasValue {
		t.Fatalf("unexpected reply: %#v", reply)
	}
}

func TestHandlePrepareRejectsLowerNumber(t *testing.T) {
	sm, fs := newSM(1, []int{2, 3}, 3)
	sm.Handle(NewMessage(Prepare, 5, 2))
	sm.Handle(NewMessage(Prepare, 3, 3))

	if fs.sentCount() != 2 {
		t.Fatalf("expected 2 replies, got %d", fs.sentCount())
	}
	nack := fs.sent[1]
	if nack.toID != 3 || nack.msg.Type != Nack || nack.msg.ProposalNumber != 5 {
		t.Fatalf("expected NACK carrying promised number 5, got %#v", nack.msg)
	}
}

func TestHandlePrepareReturnsPriorAcceptedValue(t *testing.T) {
	sm, fs := newSM(1, []int{2, 3}, 3)
	sm.Handle(NewValueMessage(AcceptRequest, 1, "x", 2))
	fs.mu.Lock()
	fs.sent = nil
	fs.mu.Unlock()

	sm.Handle(NewMessage(Prepare, 2, 3))
	if fs.sentCount() != 1 {
		t.Fatalf("expected 1 reply, got %d", fs.sentCount())
	}
	reply := fs.sent[0]
	if !reply.msg.HasValue || reply.msg.Value != "x" {
		t.Fatalf("expected promise carrying prior value x, got %#v", reply.msg)
	}
}

func TestHandleAcceptRequestAcceptsAtOrAbovePromised(t *testing.T) {
	sm, fs := newSM(1, []int{2, 3}, 3)
	sm.Handle(NewMessage(Prepare, 5, 2))
	sm.Handle(NewValueMessage(AcceptRequest, 5, "value", 2))

	if fs.sentCount() != 2 {
		t.Fatalf("expected 2 replies, got %d", fs.sentCount())
	}
	accepted := fs.sent[1]
	if accepted.msg.Type != Accepted || accepted.msg.Value != "value" {
		t.Fatalf("expected ACCEPTED carrying value, got %#v", accepted.msg)
	}
	if v, has := sm.AcceptedValue(); !has || v != "value" {
		t.Fatalf("expected accepted value 'value', got %q (has=%v)", v, has)
	}
}

func TestHandleAcceptRequestRejectsBelowPromised(t *testing.T) {
	sm, fs := newSM(1, []int{2, 3}, 3)
	sm.Handle(NewMessage(Prepare, 5, 2))
	sm.Handle(NewValueMessage(AcceptRequest, 3, "stale", 3))

	nack := fs.sent[len(fs.sent)-1]
	if nack.msg.Type != Nack {
		t.Fatalf("expected NACK, got %#v", nack.msg)
	}
	if v, has := sm.AcceptedValue(); has || v != "" {
		t.Fatalf("expected no accepted value after rejected ACCEPT_REQUEST, got %q", v)
	}
}

func TestHasMajority(t *testing.T) {
	sm, _ := newSM(1, []int{2, 3, 4, 5}, 5)
	// N=5: need count+1 > 2 (self counts as one), i.e. count >= 2
	if sm.HasMajority(0) {
		t.Fatalf("0 other votes should not be a majority of 5")
	}
	if sm.HasMajority(1) {
		t.Fatalf("1 other vote should not be a majority of 5")
	}
	if !sm.HasMajority(2) {
		t.Fatalf("2 other votes plus self should be a majority of 5")
	}
}

func TestHandleAcceptedReachesMajorityAndPropagates(t *testing.T) {
	sm, fs := newSM(1, []int{2, 3, 4, 5}, 5)
	n := sm.BeginProposal()

	sm.Handle(NewValueMessage(Accepted, n, "win", 2))
	sm.Handle(NewValueMessage(Accepted, n, "win", 3))

	if fs.sentCount() == 0 {
		t.Fatalf("expected propagation broadcasts once majority reached")
	}
	for _, s := range fs.sent {
		if s.msg.Type != AcceptRequest || s.msg.Value != "win" {
			t.Fatalf("expected only ACCEPT_REQUEST(win) broadcasts, got %#v", s.msg)
		}
	}
	if len(fs.sent) != 4 {
		t.Fatalf("expected a broadcast to every peer (4), got %d", len(fs.sent))
	}
}

func TestPropagateIsIdempotentForSameValue(t *testing.T) {
	sm, fs := newSM(1, []int{2, 3}, 3)
	sm.Propagate(1, "x")
	first := fs.sentCount()
	sm.Propagate(1, "x")
	if fs.sentCount() != first {
		t.Fatalf("re-propagating the same value should not re-broadcast: before=%d after=%d", first, fs.sentCount())
	}
}

func TestPropagateDoesNotTouchPromisedProposalNumber(t *testing.T) {
	sm, _ := newSM(1, []int{2, 3}, 3)
	sm.Handle(NewMessage(Prepare, 9, 2))
	sm.Propagate(1, "later-decree-value")
	if n := sm.PromisedProposalNumber(); n != 9 {
		t.Fatalf("expected promisedProposalNumber untouched at 9, got %d", n)
	}
}

func TestResetClearsEverything(t *testing.T) {
	sm, _ := newSM(1, []int{2, 3}, 3)
	sm.Handle(NewMessage(Prepare, 9, 2))
	sm.Handle(NewValueMessage(AcceptRequest, 9, "value", 2))
	sm.Reset()

	if n := sm.PromisedProposalNumber(); n != -1 {
		t.Fatalf("expected promisedProposalNumber reset to -1, got %d", n)
	}
	if n := sm.AcceptedProposalNumber(); n != -1 {
		t.Fatalf("expected acceptedProposalNumber reset to -1, got %d", n)
	}
	if v, has := sm.AcceptedValue(); has || v != "" {
		t.Fatalf("expected no accepted value after reset, got %q", v)
	}
}

func TestBeginProposalIncrementsAndResetsTallies(t *testing.T) {
	sm, _ := newSM(1, []int{2, 3}, 3)
	n1 := sm.BeginProposal()
	sm.Handle(NewMessage(Promise, n1, 2))
	if sm.PromiseCount() != 1 {
		t.Fatalf("expected 1 promise recorded, got %d", sm.PromiseCount())
	}
	n2 := sm.BeginProposal()
	if n2 <= n1 {
		t.Fatalf("expected increasing proposal numbers, got %d then %d", n1, n2)
	}
	if sm.PromiseCount() != 0 {
		t.Fatalf("expected tallies reset on new proposal, got %d", sm.PromiseCount())
	}
}
