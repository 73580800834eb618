package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// MessagesSent counts every outbound Paxos message, labeled by message
	// type and the behavior gate's outcome (delivered, small_delay,
	// large_delay, dropped).
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "council",
		Subsystem: "paxos",
		Name:      "messages_sent_total",
		Help:      "Total outbound Paxos messages, by type and behavior outcome",
	}, []string{"type", "outcome"})

	// MessagesReceived counts every inbound Paxos message the state machine
	// routed to a handler, labeled by message type.
	MessagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "council",
		Subsystem: "paxos",
		Name:      "messages_received_total",
		Help:      "Total inbound Paxos messages handled, by type",
	}, []string{"type"})

	// SendFailures counts outbound sends that returned an error (excluding
	// the deliberate silent drop of NO_RESPONSE).
	SendFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "council",
		Subsystem: "paxos",
		Name:      "send_failures_total",
		Help:      "Total outbound Paxos sends that returned an error, by type",
	}, []string{"type"})

	// ElectionsStarted counts every StartElection call, per member.
	ElectionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "council",
		Subsystem: "election",
		Name:      "started_total",
		Help:      "Total elections started by this member",
	})

	// ElectionsSucceeded counts elections that reached a majority in both
	// phases before their timeouts elapsed.
	ElectionsSucceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "council",
		Subsystem: "election",
		Name:      "succeeded_total",
		Help:      "Total elections that reached consensus",
	})

	// ElectionsTimedOut counts elections abandoned because a phase failed
	// to reach a majority before its deadline, labeled by which phase.
	ElectionsTimedOut = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "council",
		Subsystem: "election",
		Name:      "timed_out_total",
		Help:      "Total elections abandoned on phase timeout, by phase",
	}, []string{"phase"})

	// AcceptedProposalNumber tracks this member's highest accepted proposal
	// number, or -1 before anything has been accepted.
	AcceptedProposalNumber = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "council",
		Subsystem: "paxos",
		Name:      "accepted_proposal_number",
		Help:      "Highest proposal number this member has accepted",
	})

	// AdminRequests counts inbound admin surface calls (status/propose/reset)
	// by transport and endpoint.
	AdminRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "council",
		Subsystem: "admin",
		Name:      "requests_total",
		Help:      "Total admin requests handled, by transport and endpoint",
	}, []string{"transport", "endpoint"})

	// TLSReloads counts certificate reloads from disk, labeled by the
	// member/listener the config belongs to and whether it served a server
	// or client handshake. A reload here means the on-disk cert was actually
	// re-read, not that a cached certificate was reused.
	TLSReloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "council",
		Subsystem: "tls",
		Name:      "reloads_total",
		Help:      "Total certificate reloads from disk, by label and role",
	}, []string{"label", "role"})
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(MessagesSent)
		prometheus.MustRegister(MessagesReceived)
		prometheus.MustRegister(SendFailures)
		prometheus.MustRegister(ElectionsStarted)
		prometheus.MustRegister(ElectionsSucceeded)
		prometheus.MustRegister(ElectionsTimedOut)
		prometheus.MustRegister(AcceptedProposalNumber)
		prometheus.MustRegister(AdminRequests)
		prometheus.MustRegister(TLSReloads)
	})
}
