// Package streaming is the GVSP-facing collaborator core/registers treats as
// external (spec §1 "the streaming data protocol (GVSP) itself ... the core
// only stores/retrieves the streaming destination and configuration
// registers; the packetizer is elsewhere"). It implements
// registers.Collaborator by packetizing frames from a FrameSource over RTP
// and sending them through the platform's transport.
package streaming

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/pion/rtp"

	"github.com/asgard/gvcam/internal/gvcp"
	"github.com/asgard/gvcam/internal/platform"
)

// FrameSource produces raw frame bytes on demand. It is the streaming
// analogue of CameraController, trimmed to the one capability this
// collaborator actually drives.
type FrameSource interface {
	CaptureFrame(ctx context.Context) ([]byte, error)
}

const (
	rtpMTU       = 1400
	rtpClockRate = 90000
	payloadType  = 96 // dynamic payload type, negotiated out of band
	resendRing   = 64
)

// chunkPayloader is a minimal rtp.Payloader that splits an opaque frame into
// MTU-sized chunks. GVSP's own payload format is out of scope (spec §1); this
// exists only so AcquisitionStart has something concrete to pump over RTP.
type chunkPayloader struct{}

func (chunkPayloader) Payload(mtu uint16, payload []byte) [][]byte {
	if mtu == 0 {
		return nil
	}
	var out [][]byte
	for len(payload) > 0 {
		n := int(mtu)
		if n > len(payload) {
			n = len(payload)
		}
		chunk := make([]byte, n)
		copy(chunk, payload[:n])
		out = append(out, chunk)
		payload = payload[n:]
	}
	return out
}

// Collaborator is the streaming.Collaborator implementation wired into
// internal/registers as the stream-destination and acquisition-edge target
// (spec §4.2 "forwarded to the streaming collaborator").
type Collaborator struct {
	mu     sync.Mutex
	plat   platform.Platform
	source FrameSource
	stats  *gvcp.Statistics
	logger *log.Logger

	destIP   [4]byte
	destPort uint16
	ssrc     uint32
	seq      uint16

	cancel context.CancelFunc
	resend [][]byte
}

// NewCollaborator builds a Collaborator. ssrc identifies this stream's RTP
// source; a fixed value is fine for a single-camera device.
func NewCollaborator(plat platform.Platform, source FrameSource, stats *gvcp.Statistics, logger *log.Logger, ssrc uint32) *Collaborator {
	if logger == nil {
		logger = log.Default()
	}
	return &Collaborator{plat: plat, source: source, stats: stats, logger: logger, ssrc: ssrc}
}

// SetStreamDestination implements registers.Collaborator.
func (c *Collaborator) SetStreamDestination(ip [4]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destIP = ip
}

// SetStreamPort implements registers.Collaborator.
func (c *Collaborator) SetStreamPort(port uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destPort = port
}

// AcquisitionStart implements registers.Collaborator: it begins pulling
// frames from the source and packetizing them over RTP until
// AcquisitionStop. A start while already streaming is a no-op.
func (c *Collaborator) AcquisitionStart() {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	dest := c.currentDest()
	c.mu.Unlock()

	packetizer := rtp.NewPacketizer(rtpMTU, payloadType, c.ssrc, chunkPayloader{}, rtp.NewRandomSequencer(), rtpClockRate)
	go c.acquisitionLoop(ctx, packetizer, dest)
}

// AcquisitionStop implements registers.Collaborator.
func (c *Collaborator) AcquisitionStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// PacketResend implements registers.Collaborator by replaying the last
// resendRing RTP packets sent on the given channel. Only channel 0 is
// supported; anything else is NOT_IMPLEMENTED, matching spec §4.1's fallback.
func (c *Collaborator) PacketResend(streamChannel uint32) error {
	if streamChannel != 0 {
		return fmt.Errorf("streaming: no such stream channel %d", streamChannel)
	}
	c.mu.Lock()
	dest := c.currentDest()
	buffered := make([][]byte, len(c.resend))
	copy(buffered, c.resend)
	c.mu.Unlock()

	if len(buffered) == 0 {
		return fmt.Errorf("streaming: no buffered packets to resend")
	}
	for _, pkt := range buffered {
		if err := c.plat.Send(pkt, dest); err != nil {
			c.stats.PacketErrors.Add(1)
			return err
		}
		c.stats.PacketsSent.Add(1)
	}
	return nil
}

func (c *Collaborator) currentDest() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(c.destIP[0], c.destIP[1], c.destIP[2], c.destIP[3]), Port: int(c.destPort)}
}

func (c *Collaborator) acquisitionLoop(ctx context.Context, packetizer rtp.Packetizer, dest *net.UDPAddr) {
	c.stats.SetConnectionStatusBit(gvcp.ConnStatusStreaming, true)
	defer c.stats.SetConnectionStatusBit(gvcp.ConnStatusStreaming, false)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := c.source.CaptureFrame(ctx)
		if err != nil {
			c.stats.FrameErrors.Add(1)
			continue
		}

		packets := packetizer.Packetize(frame, rtpClockRate/30)
		for _, pkt := range packets {
			raw, err := pkt.Marshal()
			if err != nil {
				c.stats.PacketErrors.Add(1)
				continue
			}
			if err := c.plat.Send(raw, dest); err != nil {
				c.stats.PacketErrors.Add(1)
				continue
			}
			c.stats.PacketsSent.Add(1)
			c.bufferForResend(raw)
		}
		c.stats.FramesSent.Add(1)
	}
}

func (c *Collaborator) bufferForResend(pkt []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(pkt))
	copy(cp, pkt)
	c.resend = append(c.resend, cp)
	if len(c.resend) > resendRing {
		c.resend = c.resend[len(c.resend)-resendRing:]
	}
}
