package discovery

import (
	"bytes"
	"testing"

	"github.com/asgard/gvcam/internal/platform"
	"github.com/asgard/gvcam/internal/wire"
)

func fakeBootstrap() []byte {
	b := make([]byte, 0x938)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestBuildSolicitedReplyHeader(t *testing.T) {
	bootstrap := fakeBootstrap()
	out := BuildSolicitedReply(0x1234, bootstrap)

	hdr, err := wire.ParseHeader(out)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if hdr.PacketType != wire.PacketTypeAck {
		t.Fatalf("packet type = %#x, want PacketTypeAck", hdr.PacketType)
	}
	if hdr.Command != wire.AckDiscovery {
		t.Fatalf("command = %#x, want AckDiscovery", hdr.Command)
	}
	if hdr.ID != 0x1234 {
		t.Fatalf("id = %#x, want 0x1234", hdr.ID)
	}
	if hdr.Size != discoveryDataLen/4 {
		t.Fatalf("size = %d, want %d", hdr.Size, discoveryDataLen/4)
	}
	if !bytes.Equal(out[wire.HeaderSize:], bootstrap[:discoveryDataLen]) {
		t.Fatalf("discovery payload does not match the bootstrap prefix")
	}
}

func TestTickDisabledByDefault(t *testing.T) {
	sim := platform.NewSimulatedPlatform(platform.NetInfo{})
	svc := NewService(Config{}, sim, false)

	svc.Tick(1000, fakeBootstrap())

	if len(sim.Sent()) != 0 {
		t.Fatalf("disabled service must not broadcast")
	}
}

func TestTickRespectsInterval(t *testing.T) {
	sim := platform.NewSimulatedPlatform(platform.NetInfo{})
	svc := NewService(Config{Enabled: true, IntervalMs: 1000, Retries: 1}, sim, false)

	svc.Tick(0, fakeBootstrap())
	if len(sim.Sent()) != 1 {
		t.Fatalf("first tick should broadcast once, got %d sends", len(sim.Sent()))
	}

	svc.Tick(500, fakeBootstrap())
	if len(sim.Sent()) != 1 {
		t.Fatalf("tick within the interval must not broadcast again, got %d sends", len(sim.Sent()))
	}

	svc.Tick(1000, fakeBootstrap())
	if len(sim.Sent()) != 2 {
		t.Fatalf("tick at the interval boundary should broadcast, got %d sends", len(sim.Sent()))
	}
}

func TestTickRetriesOnSendFailure(t *testing.T) {
	sim := platform.NewSimulatedPlatform(platform.NetInfo{})
	svc := NewService(Config{Enabled: true, IntervalMs: 1000, Retries: 3}, sim, false)

	sim.FailNextSend()
	svc.Tick(0, fakeBootstrap())

	stats := svc.Stats()
	if stats.BroadcastsSent != 1 {
		t.Fatalf("BroadcastsSent = %d, want 1 after a retry succeeds", stats.BroadcastsSent)
	}
	if stats.BroadcastFailures != 1 {
		t.Fatalf("BroadcastFailures = %d, want 1", stats.BroadcastFailures)
	}
	if len(sim.Sent()) != 1 {
		t.Fatalf("exactly one datagram should have reached the platform, got %d", len(sim.Sent()))
	}
}

func TestTickSequenceNumberIncrements(t *testing.T) {
	sim := platform.NewSimulatedPlatform(platform.NetInfo{})
	svc := NewService(Config{Enabled: true, IntervalMs: 10, Retries: 1}, sim, false)

	svc.Tick(0, fakeBootstrap())
	svc.Tick(10, fakeBootstrap())

	if svc.Stats().SequenceNumber != 2 {
		t.Fatalf("SequenceNumber = %d, want 2", svc.Stats().SequenceNumber)
	}
}

func TestTickLegacyRawUsesBEPrefix(t *testing.T) {
	sim := platform.NewSimulatedPlatform(platform.NetInfo{})
	svc := NewService(Config{Enabled: true, IntervalMs: 10, Retries: 1}, sim, true)

	svc.Tick(0, fakeBootstrap())

	sent := sim.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(sent))
	}
	if sent[0].Payload[0] != 'B' || sent[0].Payload[1] != 'E' {
		t.Fatalf("legacy raw broadcast must start with 'BE', got %q", sent[0].Payload[:2])
	}
}

func TestSetEnabledIntervalRetries(t *testing.T) {
	sim := platform.NewSimulatedPlatform(platform.NetInfo{})
	svc := NewService(Config{}, sim, false)

	svc.SetEnabled(true)
	svc.SetIntervalMs(2500)
	svc.SetRetries(9)

	cfg := svc.Config()
	if !cfg.Enabled || cfg.IntervalMs != 2500 || cfg.Retries != 9 {
		t.Fatalf("Config() = %+v, want Enabled=true IntervalMs=2500 Retries=9", cfg)
	}
}
