package gvcp

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/asgard/gvcam/internal/discovery"
	"github.com/asgard/gvcam/internal/platform"
	"github.com/asgard/gvcam/internal/registers"
	"github.com/asgard/gvcam/internal/wire"
)

type fakeCollaborator struct {
	destIP      [4]byte
	destPort    uint16
	started     int
	stopped     int
	resendErr   error
	resendCalls []uint32
}

func (f *fakeCollaborator) SetStreamDestination(ip [4]byte) { f.destIP = ip }
func (f *fakeCollaborator) SetStreamPort(port uint16)        { f.destPort = port }
func (f *fakeCollaborator) AcquisitionStart()                { f.started++ }
func (f *fakeCollaborator) AcquisitionStop()                 { f.stopped++ }
func (f *fakeCollaborator) PacketResend(channel uint32) error {
	f.resendCalls = append(f.resendCalls, channel)
	return f.resendErr
}

func newTestEngine(t *testing.T) (*Engine, *platform.SimulatedPlatform, *fakeCollaborator) {
	t.Helper()
	info := platform.NetInfo{
		MAC:        [6]byte{0x00, 0x1A, 0x2B, 0x3C, 0x4D, 0x5E},
		IPv4:       [4]byte{192, 168, 1, 50},
		SubnetMask: [4]byte{255, 255, 255, 0},
	}
	sim := platform.NewSimulatedPlatform(info)
	id := registers.Identity{
		Manufacturer:  "Asgard",
		Model:         "GVCAM-1",
		Version:       "1.0",
		Serial:        "SN0001",
		UserName:      "",
		LinkSpeedMbps: 1000,
	}
	bs := registers.NewBootstrap(id, info)
	vb := registers.NewVendorBank()
	xml := registers.BuildXMLBlob(id.Manufacturer, id.Model)
	collab := &fakeCollaborator{}
	disc := discovery.NewService(discovery.Config{}, sim, false)
	store := registers.NewStore(bs, vb, xml, sim, collab, disc)
	eng := NewEngine(store, disc, collab, sim, nil, nil, 3)
	return eng, sim, collab
}

func udpAddr() *net.UDPAddr { return &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 3956} }

func TestDiscoveryReply(t *testing.T) {
	eng, _, collab := newTestEngine(t)
	req := []byte{0x42, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x01}
	reply := eng.ProcessDatagram(context.Background(), req, udpAddr())
	if len(reply) != 256 {
		t.Fatalf("expected 256-byte discovery reply, got %d", len(reply))
	}
	wantPrefix := []byte{0x00, 0x01, 0x00, 0x03, 0x00, 0x3E, 0x00, 0x01}
	if !bytes.Equal(reply[:8], wantPrefix) {
		t.Fatalf("unexpected discovery header: % x", reply[:8])
	}
	if !bytes.Equal(reply[8:], eng.Store().Bootstrap.Bytes()[:0xF8]) {
		t.Fatal("discovery data does not match the first 0xF8 bootstrap bytes")
	}
	if collab.destIP != [4]byte{10, 0, 0, 5} {
		t.Fatalf("collaborator was not notified of the requester address, got %v", collab.destIP)
	}
	if eng.Statistics().ConnectionStatus()&ConnStatusClient == 0 {
		t.Fatal("connection_status client bit not set after discovery")
	}
}

func TestReadRegVersion(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	req := []byte{0x42, 0x00, 0x00, 0x80, 0x00, 0x01, 0x00, 0x05, 0x00, 0x00, 0x00, 0x00}
	reply := eng.ProcessDatagram(context.Background(), req, udpAddr())
	want := []byte{0x00, 0x00, 0x00, 0x81, 0x00, 0x01, 0x00, 0x05, 0x00, 0x01, 0x00, 0x00}
	if !bytes.Equal(reply, want) {
		t.Fatalf("got % x, want % x", reply, want)
	}
}

func TestWriteRegCCPValid(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	payload := make([]byte, 8)
	wire.PutU32(payload, 0, registers.OffCCP)
	wire.PutU32(payload, 4, registers.CCPPrimary)
	hdr := wire.Header{PacketType: wire.PacketTypeCommand, PacketFlags: wire.FlagAckRequired, Command: wire.CmdWriteReg, Size: uint16(len(payload) / 4), ID: 9}
	full := append(hdr.Encode(), payload...)

	reply := eng.ProcessDatagram(context.Background(), full, udpAddr())
	h, err := wire.ParseHeader(reply)
	if err != nil {
		t.Fatal(err)
	}
	if h.PacketType != wire.PacketTypeAck || h.Command != wire.AckWriteReg {
		t.Fatalf("expected WRITEREG ack, got %+v", h)
	}
	v, err := eng.Store().ReadU32(registers.OffCCP)
	if err != nil {
		t.Fatal(err)
	}
	if v != registers.CCPPrimary {
		t.Fatalf("CCP not applied, got 0x%x", v)
	}
}

func TestWriteRegCCPInvalid(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	payload := make([]byte, 8)
	wire.PutU32(payload, 0, registers.OffCCP)
	wire.PutU32(payload, 4, 0x00000002) // not a valid CCP value
	hdr := wire.Header{PacketType: wire.PacketTypeCommand, PacketFlags: wire.FlagAckRequired, Command: wire.CmdWriteReg, Size: uint16(len(payload) / 4), ID: 4}
	full := append(hdr.Encode(), payload...)

	reply := eng.ProcessDatagram(context.Background(), full, udpAddr())
	h, err := wire.ParseHeader(reply)
	if err != nil {
		t.Fatal(err)
	}
	if h.PacketType != wire.PacketTypeError {
		t.Fatalf("expected NACK, got packet_type 0x%02x", h.PacketType)
	}
	status := wire.GetU16(reply, 10)
	if status != registers.StatusInvalidParameter {
		t.Fatalf("expected status 0x8002, got 0x%04x", status)
	}
	v, _ := eng.Store().ReadU32(registers.OffCCP)
	if v != registers.CCPNoAccess {
		t.Fatalf("CCP must be unchanged after a rejected write, got 0x%x", v)
	}
}

func TestReadMemoryXML(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	payload := make([]byte, 8)
	wire.PutU32(payload, 0, registers.XMLBase)
	wire.PutU16(payload, 4, 256)
	hdr := wire.Header{PacketType: wire.PacketTypeCommand, PacketFlags: wire.FlagAckRequired, Command: wire.CmdReadMemory, Size: uint16(len(payload) / 4), ID: 7}
	full := append(hdr.Encode(), payload...)

	reply := eng.ProcessDatagram(context.Background(), full, udpAddr())
	h, err := wire.ParseHeader(reply)
	if err != nil {
		t.Fatal(err)
	}
	if h.PacketType != wire.PacketTypeAck {
		t.Fatalf("expected ACK, got packet_type 0x%02x", h.PacketType)
	}
	gotAddr := wire.GetU32(reply, 8)
	if gotAddr != registers.XMLBase {
		t.Fatalf("echoed address mismatch: got 0x%x", gotAddr)
	}
	xml := registers.BuildXMLBlob("Asgard", "GVCAM-1")
	if !bytes.Equal(reply[12:12+256], xml[:256]) {
		t.Fatal("read_memory payload does not match the XML blob")
	}
}

func TestUnknownCommandNacks(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	req := []byte{0x42, 0x00, 0x00, 0x99, 0x00, 0x00, 0x00, 0x03}
	reply := eng.ProcessDatagram(context.Background(), req, udpAddr())
	h, err := wire.ParseHeader(reply)
	if err != nil {
		t.Fatal(err)
	}
	if h.PacketType != wire.PacketTypeError {
		t.Fatal("expected NACK for an unknown command")
	}
	status := wire.GetU16(reply, 10)
	if status != registers.StatusNotImplemented {
		t.Fatalf("expected 0x8001, got 0x%04x", status)
	}
	if eng.Statistics().Snapshot().UnknownCommands != 1 {
		t.Fatal("unknown_commands not incremented")
	}
}

func TestMalformedFramingProducesNoReply(t *testing.T) {
	eng, sim, _ := newTestEngine(t)
	// Header claims 1 word of payload but only 2 bytes follow.
	req := []byte{0x42, 0x00, 0x00, 0x80, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00}
	reply := eng.ProcessDatagram(context.Background(), req, udpAddr())
	if reply != nil {
		t.Fatalf("expected no reply for a malformed packet, got %d bytes", len(reply))
	}
	if len(sim.Sent()) != 0 {
		t.Fatal("malformed packet must not reach platform.Send")
	}
}

func TestWriteRegDeniedUnderNoAccess(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	payload := make([]byte, 8)
	wire.PutU32(payload, 0, registers.RegExposureTimeUs)
	wire.PutU32(payload, 4, 20000)
	hdr := wire.Header{PacketType: wire.PacketTypeCommand, PacketFlags: wire.FlagAckRequired, Command: wire.CmdWriteReg, Size: uint16(len(payload) / 4), ID: 11}
	full := append(hdr.Encode(), payload...)

	reply := eng.ProcessDatagram(context.Background(), full, udpAddr())
	status := wire.GetU16(reply, 10)
	if status != registers.StatusAccessDenied {
		t.Fatalf("expected ACCESS_DENIED under CCP=NoAccess, got 0x%04x", status)
	}
	v, _ := eng.Store().ReadU32(registers.RegExposureTimeUs)
	if v != 10000 {
		t.Fatalf("exposure register must be unchanged, got %d", v)
	}
}
