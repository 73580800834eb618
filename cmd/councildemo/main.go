// Command councildemo reproduces the reference scenarios for a nine-member
// council entirely in one process, each member listening on its own
// loopback port. It exercises the six behavior/timing scenarios in sequence
// and prints the resulting acceptedValue on every member after each one.
package main

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/tarlanmammadov/paxos-council/pkg/paxos"
	transportgrpc "github.com/tarlanmammadov/paxos-council/pkg/transport/grpc"
)

const (
	memberCount = 9
	basePort    = 8001
)

func addressBook() map[int]string {
	book := make(map[int]string, memberCount)
	for i := 1; i <= memberCount; i++ {
		book[i] = fmt.Sprintf("127.0.0.1:%d", basePort+i-1)
	}
	return book
}

// council is one running demo member plus the pieces needed to tear it down.
type council struct {
	member *paxos.CouncilMember
	server *transportgrpc.Server
}

func spawn(behaviors map[int]paxos.Behavior) map[int]*council {
	book := addressBook()
	out := make(map[int]*council, memberCount)
	for id, addr := range book {
		behavior := behaviors[id]
		if behavior == "" {
			behavior = paxos.ImmediateResponse
		}
		client := transportgrpc.NewClient(book, 3*time.Second)
		server := transportgrpc.NewServer(addr)
		m := paxos.NewCouncilMember(id, behavior, book, client, server, log.Default())
		if err := m.Listen(); err != nil {
			log.Fatalf("member %d listen: %v", id, err)
		}
		out[id] = &council{member: m, server: server}
	}
	return out
}

func teardown(members map[int]*council) {
	for _, c := range members {
		_ = c.member.Shutdown()
	}
}

func randomBehavior(biasAwayFromNoResponse bool) paxos.Behavior {
	choices := []paxos.Behavior{paxos.ImmediateResponse, paxos.SmallDelay, paxos.LargeDelay, paxos.NoResponse}
	if biasAwayFromNoResponse {
		choices = []paxos.Behavior{paxos.ImmediateResponse, paxos.ImmediateResponse, paxos.SmallDelay, paxos.LargeDelay}
	}
	return choices[rand.Intn(len(choices))]
}

func printValues(label string, members map[int]*council) {
	fmt.Printf("--- %s ---\n", label)
	for id := 1; id <= memberCount; id++ {
		c, ok := members[id]
		if !ok {
			continue
		}
		value, has := c.member.AcceptedValue()
		fmt.Printf("member %d: accepted=%v value=%q\n", id, has, value)
	}
}

func scenario1AllImmediateSingleProposer() map[int]*council {
	behaviors := map[int]paxos.Behavior{}
	for i := 1; i <= memberCount; i++ {
		behaviors[i] = paxos.ImmediateResponse
	}
	members := spawn(behaviors)
	members[9].member.StartElection("Member 9")
	time.Sleep(2 * time.Second)
	printValues("scenario 1: all immediate, single proposer", members)
	return members
}

func scenario2SequentialProposals(members map[int]*council) {
	members[5].member.StartElection("Member 5")
	time.Sleep(2 * time.Second)
	printValues("scenario 2: all immediate, sequential proposals", members)
	teardown(members)
}

func scenario3SimultaneousProposals() {
	behaviors := map[int]paxos.Behavior{1: paxos.ImmediateResponse, 2: paxos.LargeDelay}
	for i := 3; i <= memberCount; i++ {
		behaviors[i] = randomBehavior(true)
	}
	members := spawn(behaviors)
	defer teardown(members)

	done := make(chan struct{}, 2)
	go func() { members[1].member.StartElection("Member 1"); done <- struct{}{} }()
	go func() { members[2].member.StartElection("Member 2"); done <- struct{}{} }()
	<-done
	<-done
	time.Sleep(2 * time.Second)
	printValues("scenario 3: simultaneous proposals", members)
}

func scenario4MixedBehaviorsProposerDropsOut() {
	behaviors := map[int]paxos.Behavior{1: paxos.ImmediateResponse, 2: paxos.SmallDelay, 3: paxos.LargeDelay}
	for i := 4; i <= memberCount; i++ {
		behaviors[i] = randomBehavior(true)
	}
	members := spawn(behaviors)
	defer teardown(members)

	members[2].member.StartElection("Member 2")
	time.Sleep(2 * time.Second)
	printValues("scenario 4: after peer 2's election", members)

	_ = members[2].member.Shutdown()
	delete(members, 2)

	members[3].member.StartElection("Member 3")
	time.Sleep(7 * time.Second)
	printValues("scenario 4: after peer 2 dropped out and peer 3 proposed", members)
}

func scenario5MinoritySilent() {
	behaviors := map[int]paxos.Behavior{}
	for i := 1; i <= 4; i++ {
		behaviors[i] = paxos.NoResponse
	}
	for i := 5; i <= memberCount; i++ {
		behaviors[i] = paxos.ImmediateResponse
	}
	members := spawn(behaviors)
	defer teardown(members)

	ok := members[5].member.StartElection("Member 5")
	fmt.Printf("scenario 5: minority silent, election success=%v\n", ok)
	printValues("scenario 5: minority silent", members)
}

func scenario6MajoritySilent() {
	behaviors := map[int]paxos.Behavior{}
	for i := 1; i <= 5; i++ {
		behaviors[i] = paxos.NoResponse
	}
	for i := 6; i <= memberCount; i++ {
		behaviors[i] = paxos.ImmediateResponse
	}
	members := spawn(behaviors)
	defer teardown(members)

	ok := members[6].member.StartElection("Member 6")
	fmt.Printf("scenario 6: majority silent, election success=%v (expect false)\n", ok)
	printValues("scenario 6: majority silent", members)
}

func main() {
	members := scenario1AllImmediateSingleProposer()
	scenario2SequentialProposals(members)
	scenario3SimultaneousProposals()
	scenario4MixedBehaviorsProposerDropsOut()
	scenario5MinoritySilent()
	scenario6MajoritySilent()
}
