package platform

import (
	"fmt"
	"log"
	"net"
	"sync"
)

// SentDatagram records one Send call, for assertions in engine tests.
type SentDatagram struct {
	Payload []byte
	Dest    *net.UDPAddr
}

// SimulatedPlatform is an in-memory Platform used by every engine, register,
// and discovery test — deterministic clock, captured sends, no sockets: a
// small mutex-guarded struct with no goroutines unless explicitly started.
type SimulatedPlatform struct {
	mu sync.Mutex

	nowMs         int64
	netInfo       NetInfo
	broadcastAddr *net.UDPAddr
	sent          []SentDatagram
	failNextSend  bool
	updates       chan NetInfo
	logger        *log.Logger
}

// NewSimulatedPlatform builds a SimulatedPlatform seeded with netInfo.
func NewSimulatedPlatform(netInfo NetInfo) *SimulatedPlatform {
	return &SimulatedPlatform{
		netInfo:       netInfo,
		broadcastAddr: &net.UDPAddr{IP: net.IPv4bcast, Port: 3956},
		updates:       make(chan NetInfo, 4),
		logger:        log.New(log.Writer(), "[gvcp-sim] ", log.LstdFlags),
	}
}

func (p *SimulatedPlatform) NowMillis() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nowMs
}

// Advance moves the simulated clock forward, for discovery-broadcast timer
// tests.
func (p *SimulatedPlatform) Advance(ms int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nowMs += ms
}

func (p *SimulatedPlatform) Send(payload []byte, dest *net.UDPAddr) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNextSend {
		p.failNextSend = false
		return fmt.Errorf("simulated send failure")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	p.sent = append(p.sent, SentDatagram{Payload: cp, Dest: dest})
	return nil
}

// FailNextSend arranges for the next Send call to return an error.
func (p *SimulatedPlatform) FailNextSend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNextSend = true
}

// Sent returns every datagram sent so far, in order.
func (p *SimulatedPlatform) Sent() []SentDatagram {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SentDatagram, len(p.sent))
	copy(out, p.sent)
	return out
}

func (p *SimulatedPlatform) BroadcastAddr() *net.UDPAddr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.broadcastAddr
}

func (p *SimulatedPlatform) CurrentNetInfo() NetInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.netInfo
}

// PushNetInfoUpdate enqueues a network-info change for the next control-loop
// iteration to pick up, exercising the single-writer queue from spec §5.
func (p *SimulatedPlatform) PushNetInfoUpdate(info NetInfo) {
	p.updates <- info
}

func (p *SimulatedPlatform) NetInfoUpdates() <-chan NetInfo { return p.updates }

func (p *SimulatedPlatform) Logger() *log.Logger { return p.logger }

func (p *SimulatedPlatform) Close() error { return nil }
