package registers

// Vendor register offsets. spec §3/§6 describe the categories (acquisition,
// pixel format, exposure, statistics, discovery-broadcast control) without
// pinning numeric offsets; this is the enumeration this implementation
// commits to (recorded as an Open Question resolution in DESIGN.md). Every
// offset is 4-byte aligned, within [0x1000, 0x10C4].
const (
	VendorBase = 0x1000
	VendorTop  = 0x10C4

	RegTimestampControlLatch = 0x1000
	RegTimestampValueHigh    = 0x1004
	RegTimestampValueLow     = 0x1008
	RegStreamDestAddr        = 0x100C // GEVSCDA / GEV_SCDA
	RegStreamDestPort        = 0x1010
	RegAcquisitionStart      = 0x1014
	RegAcquisitionStop       = 0x1018
	RegAcquisitionStatus     = 0x101C
	RegPixelFormat           = 0x1020
	RegWidth                 = 0x1024
	RegHeight                = 0x1028
	RegOffsetX               = 0x102C
	RegOffsetY               = 0x1030
	RegExposureTimeUs        = 0x1034
	RegGainMilliDB           = 0x1038
	RegFrameRateFp1000       = 0x103C
	RegDiscoveryBroadcastEnable  = 0x1040
	RegDiscoveryBroadcastIntervalMs = 0x1044
	RegDiscoveryBroadcastRetries   = 0x1048
	RegStatFramesSent        = 0x104C
	RegStatFrameErrors       = 0x1050
	RegStatPacketsSent       = 0x1054
	RegStatPacketErrors      = 0x1058
	RegStatLostFrames        = 0x105C
	RegStatDuplicateFrames   = 0x1060
	RegStatOutOfOrderFrames  = 0x1064
	RegConnectionStatus      = 0x1068
	RegDiscoverySequenceNumber     = 0x106C
	RegDiscoveryBroadcastsSent     = 0x1070
	RegDiscoveryBroadcastFailures  = 0x1074
	RegDiscoveryLastBroadcastTimeMs = 0x1078
)

var vendorReadOnly = map[uint32]bool{
	RegTimestampValueHigh:          true,
	RegTimestampValueLow:           true,
	RegAcquisitionStatus:           true,
	RegStatFramesSent:              true,
	RegStatFrameErrors:             true,
	RegStatPacketsSent:             true,
	RegStatPacketErrors:            true,
	RegStatLostFrames:              true,
	RegStatDuplicateFrames:         true,
	RegStatOutOfOrderFrames:        true,
	RegConnectionStatus:            true,
	RegDiscoverySequenceNumber:     true,
	RegDiscoveryBroadcastsSent:     true,
	RegDiscoveryBroadcastFailures:  true,
	RegDiscoveryLastBroadcastTimeMs: true,
}

var vendorDefaults = map[uint32]uint32{
	RegPixelFormat:     0x01080001, // Mono8
	RegWidth:           640,
	RegHeight:          480,
	RegExposureTimeUs:  10000,
	RegGainMilliDB:     0,
	RegFrameRateFp1000: 30000,
}

// VendorBank is the sparse address -> cell mapping for the device-specific
// registers in the 0x1000 range. Cells are stored in host byte order; the
// router converts at the wire boundary (spec §9 "Endian handling").
type VendorBank struct {
	cells map[uint32]uint32
}

// NewVendorBank builds a bank with every enumerated offset present, defaults
// applied (spec §3 "Lifecycle: all data structures are initialized once
// during init").
func NewVendorBank() *VendorBank {
	vb := &VendorBank{cells: make(map[uint32]uint32)}
	for off := uint32(VendorBase); off <= VendorTop; off += 4 {
		if _, known := knownVendorOffset(off); known {
			vb.cells[off] = vendorDefaults[off]
		}
	}
	return vb
}

func knownVendorOffset(addr uint32) (uint32, bool) {
	switch addr {
	case RegTimestampControlLatch, RegTimestampValueHigh, RegTimestampValueLow,
		RegStreamDestAddr, RegStreamDestPort,
		RegAcquisitionStart, RegAcquisitionStop, RegAcquisitionStatus,
		RegPixelFormat, RegWidth, RegHeight, RegOffsetX, RegOffsetY,
		RegExposureTimeUs, RegGainMilliDB, RegFrameRateFp1000,
		RegDiscoveryBroadcastEnable, RegDiscoveryBroadcastIntervalMs, RegDiscoveryBroadcastRetries,
		RegStatFramesSent, RegStatFrameErrors, RegStatPacketsSent, RegStatPacketErrors,
		RegStatLostFrames, RegStatDuplicateFrames, RegStatOutOfOrderFrames,
		RegConnectionStatus, RegDiscoverySequenceNumber, RegDiscoveryBroadcastsSent,
		RegDiscoveryBroadcastFailures, RegDiscoveryLastBroadcastTimeMs:
		return addr, true
	default:
		return 0, false
	}
}

// Get returns the cell value in host order and whether the offset is a
// known vendor register.
func (vb *VendorBank) Get(addr uint32) (uint32, bool) {
	v, ok := vb.cells[addr]
	return v, ok
}

// Set overwrites a cell, regardless of its read-only-from-the-wire status —
// callers enforcing wire write-protection (the router) check IsReadOnly
// themselves. The router also uses Set directly for the cells its own side
// effects update (timestamp latch values, acquisition status). Nothing
// copies engine or discovery statistics into the RegStat*, connection-status
// or discovery-statistics cells; they keep their initial value of 0.
func (vb *VendorBank) Set(addr, value uint32) {
	vb.cells[addr] = value
}

// IsReadOnly reports whether a wire WRITEREG/WRITE_MEMORY to addr must be
// rejected with WRITE_PROTECT.
func IsReadOnly(addr uint32) bool { return vendorReadOnly[addr] }
