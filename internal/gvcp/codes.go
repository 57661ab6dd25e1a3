package gvcp

import "github.com/asgard/gvcam/internal/wire"

// ackFor maps a command code to the ack code sent in reply.
var ackFor = map[uint16]uint16{
	wire.CmdDiscovery:    wire.AckDiscovery,
	wire.CmdPacketResend: wire.AckPacketResend,
	wire.CmdReadReg:      wire.AckReadReg,
	wire.CmdWriteReg:     wire.AckWriteReg,
	wire.CmdReadMemory:   wire.AckReadMemory,
	wire.CmdWriteMemory:  wire.AckWriteMemory,
}

const maxReadMemoryLength = 536
