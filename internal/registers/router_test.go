package registers

import (
	"errors"
	"testing"

	"github.com/asgard/gvcam/internal/platform"
)

type fakeCollaborator struct {
	destIP       [4]byte
	destPort     uint16
	started      int
	stopped      int
	resendCalls  []uint32
}

func (f *fakeCollaborator) SetStreamDestination(ip [4]byte) { f.destIP = ip }
func (f *fakeCollaborator) SetStreamPort(port uint16)        { f.destPort = port }
func (f *fakeCollaborator) AcquisitionStart()                { f.started++ }
func (f *fakeCollaborator) AcquisitionStop()                 { f.stopped++ }
func (f *fakeCollaborator) PacketResend(channel uint32) error {
	f.resendCalls = append(f.resendCalls, channel)
	return nil
}

type fakeDiscoveryControl struct {
	enabled    bool
	intervalMs uint32
	retries    uint32
}

func (f *fakeDiscoveryControl) SetEnabled(v bool)      { f.enabled = v }
func (f *fakeDiscoveryControl) SetIntervalMs(v uint32) { f.intervalMs = v }
func (f *fakeDiscoveryControl) SetRetries(v uint32)    { f.retries = v }

func newTestStore(t *testing.T) (*Store, *fakeCollaborator, *fakeDiscoveryControl) {
	t.Helper()
	sim := platform.NewSimulatedPlatform(testNetInfo())
	bs := NewBootstrap(testIdentity(), testNetInfo())
	vb := NewVendorBank()
	xml := []byte("<xml>fake</xml>")
	collab := &fakeCollaborator{}
	disc := &fakeDiscoveryControl{}
	return NewStore(bs, vb, xml, sim, collab, disc), collab, disc
}

func TestReadU32UnalignedFails(t *testing.T) {
	store, _, _ := newTestStore(t)
	if _, err := store.ReadU32(1); err == nil {
		t.Fatalf("unaligned read should fail")
	}
}

func TestReadU32OutOfRangeFails(t *testing.T) {
	store, _, _ := newTestStore(t)
	var ae *AccessError
	_, err := store.ReadU32(0xFFFFFFF0)
	if !errors.As(err, &ae) {
		t.Fatalf("expected AccessError, got %v", err)
	}
	if ae.Status != StatusInvalidAddress {
		t.Fatalf("status = %#x, want StatusInvalidAddress", ae.Status)
	}
}

func TestWriteRegDeniedUnderNoAccess(t *testing.T) {
	store, _, _ := newTestStore(t)
	err := store.WriteU32(RegExposureTimeUs, 5000)
	var ae *AccessError
	if !errors.As(err, &ae) || ae.Status != StatusAccessDenied {
		t.Fatalf("expected StatusAccessDenied, got %v", err)
	}
}

func TestWriteRegCCPAlwaysAllowed(t *testing.T) {
	store, _, _ := newTestStore(t)
	if err := store.WriteU32(OffCCP, CCPPrimary); err != nil {
		t.Fatalf("CCP write under NoAccess should succeed: %v", err)
	}
	if store.CCP.Privilege() != CCPPrimary {
		t.Fatalf("CCP privilege = %#x, want CCPPrimary", store.CCP.Privilege())
	}
}

func TestWriteRegVendorSucceedsUnderAccess(t *testing.T) {
	store, _, _ := newTestStore(t)
	store.WriteU32(OffCCP, CCPExclusive)

	if err := store.WriteU32(RegExposureTimeUs, 20000); err != nil {
		t.Fatalf("vendor write under access should succeed: %v", err)
	}
	v, _ := store.ReadU32(RegExposureTimeUs)
	if v != 20000 {
		t.Fatalf("exposure = %d, want 20000", v)
	}
}

func TestWriteRegReadOnlyVendorRejected(t *testing.T) {
	store, _, _ := newTestStore(t)
	store.WriteU32(OffCCP, CCPExclusive)

	err := store.WriteU32(RegAcquisitionStatus, 1)
	var ae *AccessError
	if !errors.As(err, &ae) || ae.Status != StatusWriteProtect {
		t.Fatalf("expected StatusWriteProtect, got %v", err)
	}
}

func TestWriteRegStreamDestForwardsToCollaborator(t *testing.T) {
	store, collab, _ := newTestStore(t)
	store.WriteU32(OffCCP, CCPExclusive)

	store.WriteU32(RegStreamDestAddr, 0x0A000005)
	want := [4]byte{10, 0, 0, 5}
	if collab.destIP != want {
		t.Fatalf("collaborator destIP = %v, want %v", collab.destIP, want)
	}

	store.WriteU32(RegStreamDestPort, 5000)
	if collab.destPort != 5000 {
		t.Fatalf("collaborator destPort = %d, want 5000", collab.destPort)
	}
}

func TestWriteRegAcquisitionStartStopForwardsToCollaborator(t *testing.T) {
	store, collab, _ := newTestStore(t)
	store.WriteU32(OffCCP, CCPExclusive)

	store.WriteU32(RegAcquisitionStart, 1)
	if collab.started != 1 {
		t.Fatalf("AcquisitionStart calls = %d, want 1", collab.started)
	}
	v, _ := store.ReadU32(RegAcquisitionStatus)
	if v != 1 {
		t.Fatalf("acquisition status = %d, want 1", v)
	}

	store.WriteU32(RegAcquisitionStop, 1)
	if collab.stopped != 1 {
		t.Fatalf("AcquisitionStop calls = %d, want 1", collab.stopped)
	}
	v, _ = store.ReadU32(RegAcquisitionStatus)
	if v != 0 {
		t.Fatalf("acquisition status after stop = %d, want 0", v)
	}
}

func TestWriteRegDiscoveryTogglesForwarded(t *testing.T) {
	store, _, disc := newTestStore(t)
	store.WriteU32(OffCCP, CCPExclusive)

	store.WriteU32(RegDiscoveryBroadcastEnable, 1)
	if !disc.enabled {
		t.Fatalf("discovery enable not forwarded")
	}
	store.WriteU32(RegDiscoveryBroadcastIntervalMs, 2000)
	if disc.intervalMs != 2000 {
		t.Fatalf("discovery interval = %d, want 2000", disc.intervalMs)
	}
	store.WriteU32(RegDiscoveryBroadcastRetries, 5)
	if disc.retries != 5 {
		t.Fatalf("discovery retries = %d, want 5", disc.retries)
	}
}

func TestValidateWriteU32MatchesWriteU32Rejections(t *testing.T) {
	store, _, _ := newTestStore(t)

	if err := store.ValidateWriteU32(RegExposureTimeUs, 1); err == nil {
		t.Fatalf("ValidateWriteU32 should reject under NoAccess")
	}

	store.WriteU32(OffCCP, CCPExclusive)
	if err := store.ValidateWriteU32(RegAcquisitionStatus, 1); err == nil {
		t.Fatalf("ValidateWriteU32 should reject a read-only vendor register")
	}
	if err := store.ValidateWriteU32(RegExposureTimeUs, 1); err != nil {
		t.Fatalf("ValidateWriteU32 should accept a writable vendor register: %v", err)
	}
	if v, _ := store.ReadU32(RegExposureTimeUs); v == 1 {
		t.Fatalf("ValidateWriteU32 must not mutate state")
	}
}

func TestWriteMemoryAppliesAtomically(t *testing.T) {
	store, _, _ := newTestStore(t)
	store.WriteU32(OffCCP, CCPExclusive)

	// RegTimestampControlLatch (writable) is immediately followed by
	// RegTimestampValueHigh (read-only): a two-cell WriteMemory spanning both
	// must be rejected in full, leaving the writable cell untouched.
	mixed := make([]byte, 8)
	putU32BE(mixed, 0, 7)
	putU32BE(mixed, 4, 1)
	if err := store.WriteMemory(RegTimestampControlLatch, mixed); err == nil {
		t.Fatalf("write spanning a read-only cell should fail")
	}
	v, _ := store.ReadU32(RegTimestampControlLatch)
	if v == 7 {
		t.Fatalf("rejected WriteMemory must not have partially applied, got %d", v)
	}
}

func putU32BE(b []byte, off int, v uint32) {
	b[off] = byte(v >> 24)
	b[off+1] = byte(v >> 16)
	b[off+2] = byte(v >> 8)
	b[off+3] = byte(v)
}
