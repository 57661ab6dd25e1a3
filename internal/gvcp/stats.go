package gvcp

import "sync/atomic"

// Connection-status bits (spec §3).
const (
	ConnStatusGVCPSocket = 1 << 0
	ConnStatusGVSPSocket = 1 << 1
	ConnStatusClient     = 1 << 2
	ConnStatusStreaming  = 1 << 3
)

// Statistics holds the monotonically non-decreasing counters from spec §3.
// Every field is an atomic counter: the control-plane thread is the only
// writer for most of them, but frame/packet counters may also be bumped by a
// streaming collaborator running on its own goroutine (spec §5), so every
// field uses atomic add uniformly rather than splitting locking strategies
// per-field.
type Statistics struct {
	TotalCommands     atomic.Uint64
	TotalErrors       atomic.Uint64
	UnknownCommands   atomic.Uint64
	PacketsSent       atomic.Uint64
	PacketErrors      atomic.Uint64
	FramesSent        atomic.Uint64
	FrameErrors       atomic.Uint64
	OutOfOrderFrames  atomic.Uint64
	LostFrames        atomic.Uint64
	DuplicateFrames   atomic.Uint64
	ConnectionFailures atomic.Uint64

	connectionStatus atomic.Uint32
}

// Snapshot is a point-in-time, plain copy of Statistics suitable for JSON
// encoding or Prometheus export.
type Snapshot struct {
	TotalCommands      uint64 `json:"total_commands"`
	TotalErrors        uint64 `json:"total_errors"`
	UnknownCommands    uint64 `json:"unknown_commands"`
	PacketsSent        uint64 `json:"packets_sent"`
	PacketErrors       uint64 `json:"packet_errors"`
	FramesSent         uint64 `json:"frames_sent"`
	FrameErrors        uint64 `json:"frame_errors"`
	OutOfOrderFrames   uint64 `json:"out_of_order_frames"`
	LostFrames         uint64 `json:"lost_frames"`
	DuplicateFrames    uint64 `json:"duplicate_frames"`
	ConnectionFailures uint64 `json:"connection_failures"`
	ConnectionStatus   uint32 `json:"connection_status"`
}

func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		TotalCommands:      s.TotalCommands.Load(),
		TotalErrors:        s.TotalErrors.Load(),
		UnknownCommands:    s.UnknownCommands.Load(),
		PacketsSent:        s.PacketsSent.Load(),
		PacketErrors:       s.PacketErrors.Load(),
		FramesSent:         s.FramesSent.Load(),
		FrameErrors:        s.FrameErrors.Load(),
		OutOfOrderFrames:   s.OutOfOrderFrames.Load(),
		LostFrames:         s.LostFrames.Load(),
		DuplicateFrames:    s.DuplicateFrames.Load(),
		ConnectionFailures: s.ConnectionFailures.Load(),
		ConnectionStatus:   s.connectionStatus.Load(),
	}
}

// SetConnectionStatusBit sets or clears one bit of connection_status. It
// reports whether the bit actually flipped, so callers can distinguish a
// transition from a no-op repeat of the same state.
func (s *Statistics) SetConnectionStatusBit(bit uint32, on bool) bool {
	for {
		old := s.connectionStatus.Load()
		next := old
		if on {
			next |= bit
		} else {
			next &^= bit
		}
		if next == old {
			return false
		}
		if s.connectionStatus.CompareAndSwap(old, next) {
			return true
		}
	}
}

func (s *Statistics) ConnectionStatus() uint32 {
	return s.connectionStatus.Load()
}
