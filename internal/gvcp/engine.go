// Package gvcp implements the GVCP protocol engine: datagram validation,
// command dispatch, ACK/NACK construction, and per-command statistics
// (spec §4.1).
package gvcp

import (
	"context"
	"errors"
	"log"
	"net"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/asgard/gvcam/internal/discovery"
	"github.com/asgard/gvcam/internal/platform"
	"github.com/asgard/gvcam/internal/registers"
	"github.com/asgard/gvcam/internal/wire"
)

const defaultMaxSocketErrors = 3

// EventPublisher fire-and-forgets a notable engine-level event, satisfied
// implicitly by *eventbus.Bus. This package never imports eventbus directly;
// wiring happens by structural typing from cmd/gvcamd/main.go.
type EventPublisher interface {
	Publish(eventType string, payload map[string]interface{})
}

// Engine ties the register store and the discovery service to the wire
// protocol. It is single-threaded by design (spec §5): ProcessDatagram is
// meant to be called from one control loop, never concurrently.
type Engine struct {
	store        *registers.Store
	disc         *discovery.Service
	collaborator registers.Collaborator
	plat         platform.Platform
	logger       *log.Logger
	tracer       trace.Tracer

	stats Statistics

	maxSocketErrors      int
	socketErrors         int
	shouldRecreateSocket atomic.Bool

	events EventPublisher
}

// NewEngine builds an Engine over an already-populated Store and Service.
// tracer may be nil, in which case spans are created against a no-op
// provider — OpenTelemetry wiring is optional, never load-bearing.
func NewEngine(store *registers.Store, disc *discovery.Service, collaborator registers.Collaborator, plat platform.Platform, logger *log.Logger, tracer trace.Tracer, maxSocketErrors int) *Engine {
	if maxSocketErrors <= 0 {
		maxSocketErrors = defaultMaxSocketErrors
	}
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("gvcp")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		store:           store,
		disc:            disc,
		collaborator:    collaborator,
		plat:            plat,
		logger:          logger,
		tracer:          tracer,
		maxSocketErrors: maxSocketErrors,
	}
}

// SetEventPublisher wires an optional event sink for connection-status
// changes. Left nil, the engine behaves exactly as before.
func (e *Engine) SetEventPublisher(p EventPublisher) { e.events = p }

// Statistics returns the engine's live counters (spec §3).
func (e *Engine) Statistics() *Statistics { return &e.stats }

// Store returns the underlying register store, for admin read-only surfaces.
func (e *Engine) Store() *registers.Store { return e.store }

// Discovery returns the discovery service, for admin surfaces and the
// control loop's per-iteration Tick call (spec §5).
func (e *Engine) Discovery() *discovery.Service { return e.disc }

// ShouldRecreateSocket reports whether consecutive send failures have
// latched the socket-recreation signal (spec §5, §7). It clears on the next
// successful send.
func (e *Engine) ShouldRecreateSocket() bool { return e.shouldRecreateSocket.Load() }

// ProcessDatagram validates, dispatches, and replies to a single received
// datagram. It returns the reply it built and handed to the platform (nil
// if the datagram was dropped without a reply), mirroring spec §4.1's
// "either no reply, a single ACK, or a single NACK." A reply whose send
// failed is still returned.
func (e *Engine) ProcessDatagram(ctx context.Context, data []byte, src *net.UDPAddr) []byte {
	ctx, span := e.tracer.Start(ctx, "gvcp.process_datagram")
	defer span.End()
	corrID := uuid.NewString()
	span.SetAttributes(attribute.String("gvcp.correlation_id", corrID))

	if len(data) < wire.HeaderSize {
		e.logger.Printf("gvcp[%s]: dropping short datagram (%d bytes) from %s", corrID, len(data), src)
		return nil
	}
	hdr, err := wire.ParseHeader(data)
	if err != nil {
		e.logger.Printf("gvcp[%s]: %v", corrID, err)
		return nil
	}
	if len(data) != wire.HeaderSize+4*int(hdr.Size) {
		e.logger.Printf("gvcp[%s]: framing mismatch from %s: declared %d words, got %d bytes", corrID, src, hdr.Size, len(data))
		return nil
	}

	span.SetAttributes(
		attribute.Int("gvcp.command", int(hdr.Command)),
		attribute.Int("gvcp.id", int(hdr.ID)),
	)

	if hdr.PacketType != wire.PacketTypeCommand && hdr.PacketType != wire.PacketTypeAck && hdr.PacketType != wire.PacketTypeError {
		e.stats.TotalErrors.Add(1)
		return e.reply(wrapNack(hdr, registers.StatusInvalidHeader), src)
	}

	e.stats.TotalCommands.Add(1)
	payload := data[wire.HeaderSize:]

	if hdr.Command == wire.CmdDiscovery {
		out := discovery.BuildSolicitedReply(hdr.ID, e.store.Bootstrap.Bytes())
		e.store.NotifyDiscoverySuccess(sourceIPv4(src))
		if e.stats.SetConnectionStatusBit(ConnStatusClient, true) && e.events != nil {
			e.events.Publish("connection_status_changed", map[string]interface{}{
				"bit":    "client",
				"status": e.stats.ConnectionStatus(),
			})
		}
		return e.reply(out, src)
	}

	ackCode := ackFor[hdr.Command]
	var ackPayload []byte
	var cerr *CommandError

	switch hdr.Command {
	case wire.CmdReadReg:
		ackPayload, cerr = e.handleReadReg(payload)
	case wire.CmdWriteReg:
		ackPayload, cerr = e.handleWriteReg(payload)
	case wire.CmdReadMemory:
		ackPayload, cerr = e.handleReadMemory(payload)
	case wire.CmdWriteMemory:
		ackPayload, cerr = e.handleWriteMemory(payload)
	case wire.CmdPacketResend:
		ackPayload, cerr = e.handlePacketResend(payload)
	default:
		e.stats.UnknownCommands.Add(1)
		cerr = newCommandError(registers.StatusNotImplemented, "unknown command")
	}

	if cerr != nil {
		e.stats.TotalErrors.Add(1)
		return e.reply(wrapNack(hdr, cerr.Status), src)
	}
	return e.reply(wrapAck(hdr, ackCode, ackPayload), src)
}

// reply sends out via the platform, updating transport statistics and the
// socket-recreation latch (spec §5 "escalate if threshold reached").
func (e *Engine) reply(out []byte, dest *net.UDPAddr) []byte {
	if err := e.plat.Send(out, dest); err != nil {
		e.stats.PacketErrors.Add(1)
		e.socketErrors++
		if e.socketErrors >= e.maxSocketErrors {
			e.shouldRecreateSocket.Store(true)
		}
		e.logger.Printf("gvcp: transport error sending to %s: %v", dest, &TransportError{Err: err})
		return out
	}
	e.stats.PacketsSent.Add(1)
	e.socketErrors = 0
	e.shouldRecreateSocket.Store(false)
	return out
}

func (e *Engine) handleReadReg(payload []byte) ([]byte, *CommandError) {
	if len(payload) == 0 || len(payload)%4 != 0 {
		return nil, newCommandError(registers.StatusInvalidParameter, "readreg payload must be a sequence of u32 addresses")
	}
	out := make([]byte, len(payload))
	for off := 0; off < len(payload); off += 4 {
		v, err := e.store.ReadU32(wire.GetU32(payload, off))
		if err != nil {
			return nil, commandErrorFromAccess(err)
		}
		wire.PutU32(out, off, v)
	}
	return out, nil
}

func (e *Engine) handleWriteReg(payload []byte) ([]byte, *CommandError) {
	if len(payload) == 0 || len(payload)%8 != 0 {
		return nil, newCommandError(registers.StatusInvalidParameter, "writereg payload must be a sequence of (address, value) pairs")
	}
	n := len(payload) / 8
	addrs := make([]uint32, n)
	values := make([]uint32, n)
	for i := 0; i < n; i++ {
		addrs[i] = wire.GetU32(payload, i*8)
		values[i] = wire.GetU32(payload, i*8+4)
	}
	for i := range addrs {
		if err := e.store.ValidateWriteU32(addrs[i], values[i]); err != nil {
			return nil, commandErrorFromAccess(err)
		}
	}
	for i := range addrs {
		if err := e.store.WriteU32(addrs[i], values[i]); err != nil {
			return nil, commandErrorFromAccess(err)
		}
	}
	return make([]byte, 4), nil
}

func (e *Engine) handleReadMemory(payload []byte) ([]byte, *CommandError) {
	if len(payload) != 8 {
		return nil, newCommandError(registers.StatusInvalidParameter, "read_memory payload must be (address, length, reserved)")
	}
	addr := wire.GetU32(payload, 0)
	length := int(wire.GetU16(payload, 4))
	if length == 0 || length%4 != 0 || length > maxReadMemoryLength {
		return nil, newCommandError(registers.StatusBadAlignment, "read_memory length must be a positive multiple of 4, <= 536")
	}
	data, err := e.store.ReadMemory(addr, length)
	if err != nil {
		return nil, commandErrorFromAccess(err)
	}
	out := make([]byte, 4+len(data))
	wire.PutU32(out, 0, addr)
	copy(out[4:], data)
	return out, nil
}

func (e *Engine) handleWriteMemory(payload []byte) ([]byte, *CommandError) {
	if len(payload) < 8 || (len(payload)-4)%4 != 0 {
		return nil, newCommandError(registers.StatusInvalidParameter, "write_memory payload must be (address, data...)")
	}
	addr := wire.GetU32(payload, 0)
	data := payload[4:]
	if err := e.store.WriteMemory(addr, data); err != nil {
		return nil, commandErrorFromAccess(err)
	}
	out := make([]byte, 8)
	wire.PutU32(out, 0, addr)
	wire.PutU32(out, 4, uint32(len(data)))
	return out, nil
}

func (e *Engine) handlePacketResend(payload []byte) ([]byte, *CommandError) {
	if e.collaborator == nil {
		return nil, newCommandError(registers.StatusNotImplemented, "no streaming collaborator configured")
	}
	var channel uint32
	if len(payload) >= 4 {
		channel = wire.GetU32(payload, 0)
	}
	if err := e.collaborator.PacketResend(channel); err != nil {
		return nil, newCommandError(registers.StatusNotImplemented, err.Error())
	}
	return []byte{}, nil
}

func commandErrorFromAccess(err error) *CommandError {
	var ae *registers.AccessError
	if errors.As(err, &ae) {
		return newCommandError(ae.Status, ae.Reason)
	}
	return newCommandError(registers.StatusInvalidParameter, err.Error())
}

func wrapAck(hdr wire.Header, ackCode uint16, payload []byte) []byte {
	h := wire.Header{
		PacketType:  wire.PacketTypeAck,
		PacketFlags: 0,
		Command:     ackCode,
		Size:        uint16(len(payload) / 4),
		ID:          hdr.ID,
	}
	out := make([]byte, 0, wire.HeaderSize+len(payload))
	out = append(out, h.Encode()...)
	out = append(out, payload...)
	return out
}

// wrapNack builds a NACK carrying the original command's ACK code (falling
// back to the request's own command code when it is unmapped) and a 4-byte
// payload: 2 reserved bytes followed by the big-endian status (spec §6).
func wrapNack(hdr wire.Header, status uint16) []byte {
	ackCode, ok := ackFor[hdr.Command]
	if !ok {
		ackCode = hdr.Command
	}
	payload := make([]byte, 4)
	wire.PutU16(payload, 2, status)
	h := wire.Header{
		PacketType:  wire.PacketTypeError,
		PacketFlags: 0,
		Command:     ackCode,
		Size:        1,
		ID:          hdr.ID,
	}
	out := make([]byte, 0, wire.HeaderSize+len(payload))
	out = append(out, h.Encode()...)
	out = append(out, payload...)
	return out
}

func sourceIPv4(src *net.UDPAddr) [4]byte {
	var ip [4]byte
	if src == nil {
		return ip
	}
	if v4 := src.IP.To4(); v4 != nil {
		copy(ip[:], v4)
	}
	return ip
}
