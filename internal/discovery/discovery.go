// Package discovery implements the GVCP discovery handshake and its
// optional periodic broadcast (spec §4.3).
package discovery

import (
	"github.com/asgard/gvcam/internal/platform"
	"github.com/asgard/gvcam/internal/wire"
)

// discoveryDataLen is the length of the discovery data appended to a
// discovery reply: the first 0xF8 bytes of the bootstrap block (spec §4.3).
const discoveryDataLen = 0xF8

// Config mirrors spec §3's DiscoveryConfig.
type Config struct {
	Enabled    bool
	IntervalMs uint32
	Retries    uint32
}

// Stats mirrors spec §3's DiscoveryStats.
type Stats struct {
	BroadcastsSent      uint64
	BroadcastFailures   uint64
	SequenceNumber      uint16
	LastBroadcastTimeMs int64
}

// Service owns discovery configuration, statistics, and the legacy raw
// broadcast header option (spec §4.3).
type Service struct {
	cfg         Config
	stats       Stats
	legacyRaw   bool
	lastTickMs  int64
	hasTicked   bool
	plat        platform.Platform
}

// NewService builds a discovery service. legacyRaw selects the hand-
// assembled "BE"-prefixed header for unsolicited broadcasts (emit-only,
// spec §4.3); solicited replies always use the structured header.
func NewService(cfg Config, plat platform.Platform, legacyRaw bool) *Service {
	return &Service{cfg: cfg, plat: plat, legacyRaw: legacyRaw}
}

func (s *Service) SetEnabled(v bool)       { s.cfg.Enabled = v }
func (s *Service) SetIntervalMs(v uint32)  { s.cfg.IntervalMs = v }
func (s *Service) SetRetries(v uint32)     { s.cfg.Retries = v }
func (s *Service) Config() Config          { return s.cfg }
func (s *Service) Stats() Stats            { return s.stats }

// BuildSolicitedReply synthesizes the discovery ACK for a solicited request:
// an 8-byte structured header (flags=ACK required, id echoed) followed by
// the first 0xF8 bytes of the bootstrap block.
func BuildSolicitedReply(requestID uint16, bootstrap []byte) []byte {
	hdr := wire.Header{
		PacketType:  wire.PacketTypeAck,
		PacketFlags: wire.FlagAckRequired,
		Command:     wire.AckDiscovery,
		Size:        discoveryDataLen / 4,
		ID:          requestID,
	}
	out := make([]byte, 0, wire.HeaderSize+discoveryDataLen)
	out = append(out, hdr.Encode()...)
	out = append(out, bootstrap[:discoveryDataLen]...)
	return out
}

// buildUnsolicitedStructured mirrors BuildSolicitedReply but with flags=0
// (unsolicited, spec §4.3) and the wrapped sequence number as id.
func buildUnsolicitedStructured(seq uint16, bootstrap []byte) []byte {
	hdr := wire.Header{
		PacketType:  wire.PacketTypeAck,
		PacketFlags: 0,
		Command:     wire.AckDiscovery,
		Size:        discoveryDataLen / 4,
		ID:          seq,
	}
	out := make([]byte, 0, wire.HeaderSize+discoveryDataLen)
	out = append(out, hdr.Encode()...)
	out = append(out, bootstrap[:discoveryDataLen]...)
	return out
}

// buildUnsolicitedLegacy builds the hand-assembled "BE"-prefixed broadcast
// header spec §4.3 calls out as an emit-only compatibility option.
func buildUnsolicitedLegacy(seq uint16, bootstrap []byte) []byte {
	out := make([]byte, 0, wire.HeaderSize+discoveryDataLen)
	out = append(out, 'B', 'E', byte(wire.AckDiscovery>>8), byte(wire.AckDiscovery))
	out = append(out, byte(discoveryDataLen/4>>8), byte(discoveryDataLen/4), byte(seq>>8), byte(seq))
	out = append(out, bootstrap[:discoveryDataLen]...)
	return out
}

// Tick emits at most one unsolicited broadcast per IntervalMs. Within this
// single tick it makes up to Retries send attempts (always at least one),
// stopping at the first success (spec §4.3).
// It is polled once per control-loop iteration (spec §5); it never starts a
// goroutine of its own.
func (s *Service) Tick(nowMs int64, bootstrap []byte) {
	if !s.cfg.Enabled {
		return
	}
	if s.hasTicked && nowMs-s.lastTickMs < int64(s.cfg.IntervalMs) {
		return
	}
	s.hasTicked = true
	s.lastTickMs = nowMs

	s.stats.SequenceNumber++
	seq := s.stats.SequenceNumber

	var payload []byte
	if s.legacyRaw {
		payload = buildUnsolicitedLegacy(seq, bootstrap)
	} else {
		payload = buildUnsolicitedStructured(seq, bootstrap)
	}

	dest := s.plat.BroadcastAddr()
	var err error
	attempts := uint32(0)
	for {
		err = s.plat.Send(payload, dest)
		s.stats.LastBroadcastTimeMs = nowMs
		if err == nil {
			s.stats.BroadcastsSent++
			return
		}
		s.stats.BroadcastFailures++
		attempts++
		if attempts >= s.cfg.Retries {
			return
		}
	}
}
