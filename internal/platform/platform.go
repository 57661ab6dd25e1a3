// Package platform defines the boundary between the GVCP engine and the
// outside world: the monotonic clock, UDP send, network identity, and
// logging sink spec.md §9 calls out as external collaborators. The engine
// constructor takes a Platform value once; there is no process-wide function
// pointer or singleton (spec §9 "Global mutable state").
package platform

import (
	"log"
	"net"
)

// NetInfo carries the device's network identity, every field already in the
// byte order it will be stored in inside the bootstrap block (network
// order) — the caller of NetInfo must not byte-swap these.
type NetInfo struct {
	MAC        [6]byte
	IPv4       [4]byte
	SubnetMask [4]byte
	Gateway    [4]byte
}

// Platform is the abstraction the GVCP engine is built against. Production
// code uses UDPPlatform; tests use SimulatedPlatform.
type Platform interface {
	// NowMillis returns a monotonic millisecond timestamp, used for
	// discovery-broadcast timing and the GigE Vision timestamp-latch registers.
	NowMillis() int64

	// Send transmits payload to dest. Failures are TransportErrors from the
	// caller's point of view; Send itself just reports them.
	Send(payload []byte, dest *net.UDPAddr) error

	// BroadcastAddr is the address unsolicited discovery replies are sent
	// to, resolved once from the live interface at construction (spec §9
	// "Discovery broadcast destination").
	BroadcastAddr() *net.UDPAddr

	// CurrentNetInfo returns the network identity at construction time.
	CurrentNetInfo() NetInfo

	// NetInfoUpdates is the single-writer queue spec §5 describes:
	// asynchronous network-info changes from the platform arrive here and
	// are drained once per control-loop iteration. A platform with no such
	// source returns a nil channel, which is safe to range/select on (it
	// simply never fires).
	NetInfoUpdates() <-chan NetInfo

	// Logger returns the platform's own log sink. The engine and the other
	// subsystems log through the *log.Logger they are constructed with.
	Logger() *log.Logger

	// Close releases any OS resources (sockets) the platform holds.
	Close() error
}
