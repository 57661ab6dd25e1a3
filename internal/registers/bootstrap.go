// Package registers implements the GVCP register file: the bootstrap block,
// the vendor register bank, the XML descriptor region, and the router that
// ties them together (spec §3, §4.2, §4.4, §4.5).
package registers

import (
	"encoding/binary"

	"github.com/asgard/gvcam/internal/platform"
)

// BootstrapSize is the fixed size of the GVBS register block (spec §3, §6).
const BootstrapSize = 0x938

// Bootstrap register offsets (spec §6).
const (
	OffVersion             = 0x0000
	OffDeviceMode          = 0x0004
	OffMACHigh             = 0x0008
	OffMACLow              = 0x000C
	OffDeviceCapabilities  = 0x0010
	OffSubnetMask          = 0x0014
	OffUUID                = 0x0018 // standard GVBS layout — see the Open Questions note below.
	OffCurrentIPConfig     = 0x001C
	OffSupportedIPConfig   = 0x0020
	OffCurrentIP           = 0x0024
	OffLinkSpeed           = 0x002C
	OffManufacturerName    = 0x0048
	ManufacturerNameLen    = 32
	OffModelName           = 0x0068
	ModelNameLen           = 32
	OffDeviceVersion       = 0x0088
	DeviceVersionLen       = 32
	OffSerialNumber        = 0x00D8
	SerialNumberLen        = 16
	OffUserDefinedName     = 0x00E8
	UserDefinedNameLen     = 16
	OffCCP                 = 0x0200
	OffCCPKey              = 0x0204
	OffXMLURL              = 0x0220
	XMLURLMaxLen           = 0x200
	OffHeartbeatTimeout    = 0x0934
)

// Per spec §9's "Open questions": the source's UUID slot collides with the
// gateway slot. This implementation puts the UUID at 0x0018 and has no
// gateway register — gateway is carried in NetInfo only, not in the
// bootstrap block. The UUID's 16-byte slot also overlaps the IP config,
// supported IP config and current IP registers (0x001C-0x0027); those
// registers hold their own values, so only the UUID's first 32-bit word is
// present in the block.

const (
	ipConfigDHCP   = 0x00000002
	defaultHeartbeatTimeoutMs = 3000
	gvbsVersion    = 0x00010000
	deviceModeBits = 0x80000000
	capGigEVision  = 1 << 0
)

// Identity is the compile-time device identity baked into the bootstrap
// block at init (spec §3 "compile-time device identity").
type Identity struct {
	Manufacturer string
	Model        string
	Version      string
	Serial       string
	UserName     string
	LinkSpeedMbps uint32
}

// Bootstrap is the fixed-size GVBS register block.
type Bootstrap struct {
	buf [BootstrapSize]byte
}

// NewBootstrap allocates and populates a bootstrap block from identity and
// net info, per spec §3's lifecycle ("Populated once at init").
func NewBootstrap(id Identity, info platform.NetInfo) *Bootstrap {
	b := &Bootstrap{}
	b.Populate(id, info)
	return b
}

// Populate (re)writes every bootstrap field. It is called once at
// construction and again whenever the platform supplies new network info
// (spec §3 "repopulated if the platform provides new network info").
func (b *Bootstrap) Populate(id Identity, info platform.NetInfo) {
	binary.BigEndian.PutUint32(b.field(OffVersion, 4), gvbsVersion)
	binary.BigEndian.PutUint32(b.field(OffDeviceMode, 4), deviceModeBits)

	copy(b.field(OffMACHigh, 4)[2:4], info.MAC[0:2])
	copy(b.field(OffMACLow, 4), info.MAC[2:6])

	binary.BigEndian.PutUint32(b.field(OffDeviceCapabilities, 4), capGigEVision)

	// The UUID is written before the IP fields: its 16-byte slot overlaps
	// 0x001C-0x0027, and the IP registers written below take those bytes.
	writeUUID(b.field(OffUUID, 16), info.MAC, id.Model, id.Version, id.Serial)

	copy(b.field(OffSubnetMask, 4), info.SubnetMask[:])
	copy(b.field(OffCurrentIP, 4), info.IPv4[:])

	binary.BigEndian.PutUint32(b.field(OffCurrentIPConfig, 4), ipConfigDHCP)
	binary.BigEndian.PutUint32(b.field(OffSupportedIPConfig, 4), 0x00000007) // manual | DHCP | autoIP
	binary.BigEndian.PutUint32(b.field(OffLinkSpeed, 4), id.LinkSpeedMbps*1_000_000) // Mbps -> bps

	writeCString(b.field(OffManufacturerName, ManufacturerNameLen), id.Manufacturer)
	writeCString(b.field(OffModelName, ModelNameLen), id.Model)
	writeCString(b.field(OffDeviceVersion, DeviceVersionLen), id.Version)
	writeCString(b.field(OffSerialNumber, SerialNumberLen), id.Serial)
	writeCString(b.field(OffUserDefinedName, UserDefinedNameLen), id.UserName)

	// CCP and CCP key start at NoAccess/0 and are left alone on a re-populate
	// triggered by a network-info change — only identity/network fields are
	// touched here, privilege state survives (spec §3 "CCP ... mutated by
	// protocol actions", not by a repopulate).

	url := "Local:camera.xml;0x10000;0x3A00"
	writeCString(b.field(OffXMLURL, XMLURLMaxLen), url)

	// Heartbeat timeout defaults to 3000ms; a prior WRITEREG to it must
	// survive a repopulate the same way CCP does.
	if binary.BigEndian.Uint32(b.field(OffHeartbeatTimeout, 4)) == 0 {
		binary.BigEndian.PutUint32(b.field(OffHeartbeatTimeout, 4), defaultHeartbeatTimeoutMs)
	}
}

func (b *Bootstrap) field(off, length int) []byte { return b.buf[off : off+length] }

// Bytes returns the full raw bootstrap block, for discovery replies and
// READ_MEMORY.
func (b *Bootstrap) Bytes() []byte { return b.buf[:] }

func writeCString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := len(s)
	if n > len(dst)-1 {
		n = len(dst) - 1
	}
	copy(dst, s[:n])
}
