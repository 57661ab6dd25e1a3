package registers

import (
	"encoding/binary"

	"github.com/asgard/gvcam/internal/platform"
)

// Class classifies a RegisterAddress (spec §3).
type Class int

const (
	ClassInvalid Class = iota
	ClassBootstrap
	ClassVendor
	ClassXML
)

// Classify returns the register class an address belongs to.
func Classify(addr uint32, xmlSize int) Class {
	switch {
	case addr < BootstrapSize:
		return ClassBootstrap
	case addr >= XMLBase && addr < XMLBase+uint32(xmlSize):
		return ClassXML
	case addr >= VendorBase && addr <= VendorTop:
		return ClassVendor
	default:
		return ClassInvalid
	}
}

// Collaborator is the external GVSP streaming component spec.md §1 treats
// as out of core scope. The router forwards stream-destination and
// acquisition-edge writes to it; it never holds streaming state itself.
type Collaborator interface {
	SetStreamDestination(ip [4]byte)
	SetStreamPort(port uint16)
	AcquisitionStart()
	AcquisitionStop()
	PacketResend(streamChannel uint32) error
}

// DiscoveryControl lets register writes toggle the discovery service
// (spec §4.2 "Writing DISCOVERY_BROADCAST_ENABLE toggles the discovery
// service").
type DiscoveryControl interface {
	SetEnabled(bool)
	SetIntervalMs(uint32)
	SetRetries(uint32)
}

// EventPublisher fire-and-forgets a notable register-level event, satisfied
// implicitly by *eventbus.Bus (Go structural typing — this package never
// imports eventbus, avoiding a dependency from the register file onto the
// transport used to report changes in it).
type EventPublisher interface {
	Publish(eventType string, payload map[string]interface{})
}

// Store is the exclusive read/write path to the register file (spec §4.2).
type Store struct {
	Bootstrap *Bootstrap
	Vendor    *VendorBank
	CCP       CCP
	xmlBlob   []byte

	platform     platform.Platform
	collaborator Collaborator
	discovery    DiscoveryControl
	events       EventPublisher
}

// NewStore builds a Store over a populated bootstrap block, a fresh vendor
// bank, and the rendered XML blob.
func NewStore(bs *Bootstrap, vb *VendorBank, xmlBlob []byte, plat platform.Platform, collab Collaborator, disc DiscoveryControl) *Store {
	return &Store{
		Bootstrap:    bs,
		Vendor:       vb,
		xmlBlob:      xmlBlob,
		platform:     plat,
		collaborator: collab,
		discovery:    disc,
	}
}

// SetEventPublisher wires an optional event sink for CCP transitions. Left
// nil, the Store behaves exactly as before — publishing is never load-bearing
// for protocol correctness.
func (s *Store) SetEventPublisher(p EventPublisher) { s.events = p }

func (s *Store) xmlSize() int { return len(s.xmlBlob) }

func aligned4(addr uint32) bool { return addr%4 == 0 }

// ReadU32 returns addr's value in host byte order.
func (s *Store) ReadU32(addr uint32) (uint32, error) {
	if !aligned4(addr) {
		return 0, errAlign("unaligned register read")
	}
	switch Classify(addr, s.xmlSize()) {
	case ClassBootstrap:
		if addr == OffCCP {
			return s.CCP.Privilege(), nil
		}
		if addr == OffCCPKey {
			return s.CCP.Key(), nil
		}
		return binary.BigEndian.Uint32(s.Bootstrap.field(int(addr), 4)), nil
	case ClassVendor:
		v, ok := s.Vendor.Get(addr)
		if !ok {
			return 0, errAddr("unknown vendor register")
		}
		return v, nil
	case ClassXML:
		off := addr - XMLBase
		return binary.BigEndian.Uint32(s.xmlBlob[off : off+4]), nil
	default:
		return 0, errAddr("address out of range")
	}
}

// WriteU32 writes value to addr, honoring write protection, CCP gating, and
// the side effects listed in spec §4.2.
func (s *Store) WriteU32(addr, value uint32) error {
	if !aligned4(addr) {
		return errAlign("unaligned register write")
	}
	class := Classify(addr, s.xmlSize())
	if class == ClassInvalid {
		return errAddr("address out of range")
	}
	if class == ClassXML {
		return errProtect("xml region is read-only")
	}

	if addr != OffCCP && addr != OffCCPKey && !s.CCP.HasAccess() {
		return errDenied("no control channel privilege")
	}

	switch class {
	case ClassBootstrap:
		return s.writeBootstrap(addr, value)
	case ClassVendor:
		return s.writeVendor(addr, value)
	}
	return errAddr("address out of range")
}

func (s *Store) writeBootstrap(addr, value uint32) error {
	switch addr {
	case OffCCP:
		prior := s.CCP.Privilege()
		if !s.CCP.SetPrivilege(value) {
			return errParam("invalid CCP privilege value")
		}
		if s.events != nil && prior != value {
			s.events.Publish("ccp_privilege_changed", map[string]interface{}{
				"prior_privilege": prior,
				"new_privilege":   value,
			})
		}
		return nil
	case OffCCPKey:
		s.CCP.SetKey(value)
		return nil
	case OffHeartbeatTimeout:
		binary.BigEndian.PutUint32(s.Bootstrap.field(OffHeartbeatTimeout, 4), value)
		return nil
	default:
		return errProtect("bootstrap register is read-only")
	}
}

func (s *Store) writeVendor(addr, value uint32) error {
	if _, known := knownVendorOffset(addr); !known {
		return errAddr("unknown vendor register")
	}
	if IsReadOnly(addr) {
		return errProtect("vendor register is read-only")
	}

	s.Vendor.Set(addr, value)

	switch addr {
	case RegTimestampControlLatch:
		now := uint64(s.platform.NowMillis())
		s.Vendor.Set(RegTimestampValueHigh, uint32(now>>32))
		s.Vendor.Set(RegTimestampValueLow, uint32(now))
	case RegStreamDestAddr:
		if s.collaborator != nil {
			var ip [4]byte
			binary.BigEndian.PutUint32(ip[:], value)
			s.collaborator.SetStreamDestination(ip)
		}
	case RegStreamDestPort:
		if s.collaborator != nil {
			s.collaborator.SetStreamPort(uint16(value))
		}
	case RegAcquisitionStart:
		if value == 1 {
			s.Vendor.Set(RegAcquisitionStatus, 1)
			if s.collaborator != nil {
				s.collaborator.AcquisitionStart()
			}
		}
	case RegAcquisitionStop:
		if value == 1 {
			s.Vendor.Set(RegAcquisitionStatus, 0)
			if s.collaborator != nil {
				s.collaborator.AcquisitionStop()
			}
		}
	case RegDiscoveryBroadcastEnable:
		if s.discovery != nil {
			s.discovery.SetEnabled(value != 0)
		}
	case RegDiscoveryBroadcastIntervalMs:
		if s.discovery != nil {
			s.discovery.SetIntervalMs(value)
		}
	case RegDiscoveryBroadcastRetries:
		if s.discovery != nil {
			s.discovery.SetRetries(value)
		}
	}
	return nil
}

// ReadMemory returns length bytes starting at addr, wire-serialized (big
// endian per u32 cell for vendor registers; raw bytes for bootstrap/xml,
// which are already stored in network order, with the CCP and CCP key
// cells filled from the live CCP state as ReadU32 reports them).
func (s *Store) ReadMemory(addr uint32, length int) ([]byte, error) {
	if !aligned4(addr) || length%4 != 0 || length <= 0 {
		return nil, errAlign("memory access must be 4-byte aligned")
	}
	class := Classify(addr, s.xmlSize())
	end := addr + uint32(length) - 4
	if Classify(end, s.xmlSize()) != class {
		return nil, errAddr("memory span crosses a classification boundary")
	}

	switch class {
	case ClassBootstrap:
		out := append([]byte(nil), s.Bootstrap.field(int(addr), length)...)
		for _, reg := range []uint32{OffCCP, OffCCPKey} {
			if reg >= addr && reg < addr+uint32(length) {
				v, _ := s.ReadU32(reg)
				binary.BigEndian.PutUint32(out[reg-addr:], v)
			}
		}
		return out, nil
	case ClassXML:
		off := addr - XMLBase
		return append([]byte(nil), s.xmlBlob[off:off+uint32(length)]...), nil
	case ClassVendor:
		out := make([]byte, 0, length)
		for a := addr; a < addr+uint32(length); a += 4 {
			v, err := s.ReadU32(a)
			if err != nil {
				return nil, err
			}
			var cell [4]byte
			binary.BigEndian.PutUint32(cell[:], v)
			out = append(out, cell[:]...)
		}
		return out, nil
	default:
		return nil, errAddr("address out of range")
	}
}

// WriteMemory writes data (whose length must be a positive multiple of 4)
// starting at addr, honoring the same protections as WriteU32, applied
// atomically: every cell is validated before any is written.
func (s *Store) WriteMemory(addr uint32, data []byte) error {
	if !aligned4(addr) || len(data)%4 != 0 || len(data) == 0 {
		return errAlign("memory write must be 4-byte aligned, non-empty")
	}
	class := Classify(addr, s.xmlSize())
	end := addr + uint32(len(data)) - 4
	if Classify(end, s.xmlSize()) != class {
		return errAddr("memory span crosses a classification boundary")
	}
	if class == ClassXML {
		return errProtect("xml region is read-only")
	}
	if addr != OffCCP && !s.CCP.HasAccess() {
		return errDenied("no control channel privilege")
	}

	// Validate every cell before writing any (spec §4.1 "apply atomically").
	for off := 0; off < len(data); off += 4 {
		a := addr + uint32(off)
		if err := s.checkWritable(a, class); err != nil {
			return err
		}
	}
	for off := 0; off < len(data); off += 4 {
		a := addr + uint32(off)
		v := binary.BigEndian.Uint32(data[off : off+4])
		if err := s.WriteU32(a, v); err != nil {
			return err
		}
	}
	return nil
}

// ValidateWriteU32 runs every check WriteU32 would, without mutating state.
// The engine uses it to validate a whole WRITEREG batch before applying any
// of it (spec §4.1 "validate all addresses and write-permission first, then
// apply in order").
func (s *Store) ValidateWriteU32(addr, value uint32) error {
	if !aligned4(addr) {
		return errAlign("unaligned register write")
	}
	class := Classify(addr, s.xmlSize())
	if class == ClassInvalid {
		return errAddr("address out of range")
	}
	if class == ClassXML {
		return errProtect("xml region is read-only")
	}
	if addr != OffCCP && addr != OffCCPKey && !s.CCP.HasAccess() {
		return errDenied("no control channel privilege")
	}
	if err := s.checkWritable(addr, class); err != nil {
		return err
	}
	if addr == OffCCP && !isValidCCP(value) {
		return errParam("invalid CCP privilege value")
	}
	return nil
}

// NotifyDiscoverySuccess forwards the requester's address to the streaming
// collaborator as the default stream destination (spec §4.3 "register the
// requester as the default streaming destination").
func (s *Store) NotifyDiscoverySuccess(ip [4]byte) {
	if s.collaborator != nil {
		s.collaborator.SetStreamDestination(ip)
	}
}

func (s *Store) checkWritable(addr uint32, class Class) error {
	switch class {
	case ClassBootstrap:
		switch addr {
		case OffCCP, OffCCPKey, OffHeartbeatTimeout:
			return nil
		default:
			return errProtect("bootstrap register is read-only")
		}
	case ClassVendor:
		if _, known := knownVendorOffset(addr); !known {
			return errAddr("unknown vendor register")
		}
		if IsReadOnly(addr) {
			return errProtect("vendor register is read-only")
		}
		return nil
	default:
		return errAddr("address out of range")
	}
}
