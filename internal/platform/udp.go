package platform

import (
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/vishvananda/netlink"
)

// UDPPlatform is the production Platform: a real UDP socket bound to
// port 3956, network identity resolved from a live Linux interface via
// netlink, and a monotonic clock derived from time.Now(). The interface
// enumeration this performs is explicitly the kind of platform glue spec.md
// §1 places outside the GVCP core — UDPPlatform exists so cmd/gvcamd has a
// runnable default, not because the core depends on netlink.
type UDPPlatform struct {
	conn          *net.UDPConn
	broadcastAddr *net.UDPAddr
	netInfo       NetInfo
	updates       chan NetInfo
	logger        *log.Logger
	start         time.Time
}

// NewUDPPlatform binds a UDP socket on bindAddr (e.g. ":3956") and resolves
// the device's network identity from ifaceName.
func NewUDPPlatform(bindAddr, ifaceName string) (*UDPPlatform, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("platform: resolve bind address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("platform: listen udp: %w", err)
	}

	info, err := resolveNetInfo(ifaceName)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("platform: resolve network info for %s: %w", ifaceName, err)
	}

	// Directed broadcast of the interface's subnet; an all-zero mask gives
	// 255.255.255.255.
	var bcast [4]byte
	for i := range bcast {
		bcast[i] = info.IPv4[i] | ^info.SubnetMask[i]
	}

	return &UDPPlatform{
		conn:          conn,
		broadcastAddr: &net.UDPAddr{IP: net.IPv4(bcast[0], bcast[1], bcast[2], bcast[3]), Port: 3956},
		netInfo:       info,
		updates:       make(chan NetInfo, 4),
		logger:        log.New(os.Stderr, "[gvcamd] ", log.LstdFlags),
		start:         time.Now(),
	}, nil
}

// ReceiveFrom reads the next datagram off the socket, blocking the caller —
// spec §5 models this as the single receive point of the cooperative loop.
func (p *UDPPlatform) ReceiveFrom(buf []byte, deadline time.Time) (int, *net.UDPAddr, error) {
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return 0, nil, err
	}
	return p.conn.ReadFromUDP(buf)
}

func (p *UDPPlatform) NowMillis() int64 { return time.Since(p.start).Milliseconds() }

func (p *UDPPlatform) Send(payload []byte, dest *net.UDPAddr) error {
	_, err := p.conn.WriteToUDP(payload, dest)
	return err
}

func (p *UDPPlatform) BroadcastAddr() *net.UDPAddr { return p.broadcastAddr }

func (p *UDPPlatform) CurrentNetInfo() NetInfo { return p.netInfo }

func (p *UDPPlatform) NetInfoUpdates() <-chan NetInfo { return p.updates }

func (p *UDPPlatform) Logger() *log.Logger { return p.logger }

func (p *UDPPlatform) Close() error { return p.conn.Close() }

// Refresh re-resolves network info from the interface and, if it changed,
// pushes it onto the single-writer update queue for the control loop to
// pick up (spec §5). Callers run this on their own schedule (e.g. whenever
// DHCP might have renewed a lease) — UDPPlatform itself runs no goroutines.
func (p *UDPPlatform) Refresh(ifaceName string) error {
	info, err := resolveNetInfo(ifaceName)
	if err != nil {
		return err
	}
	if info != p.netInfo {
		select {
		case p.updates <- info:
		default:
			// queue full: drop, a later refresh will catch up.
		}
	}
	return nil
}

func resolveNetInfo(ifaceName string) (NetInfo, error) {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return NetInfo{}, fmt.Errorf("netlink: link %s: %w", ifaceName, err)
	}

	var info NetInfo
	hw := link.Attrs().HardwareAddr
	if len(hw) == 6 {
		copy(info.MAC[:], hw)
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return NetInfo{}, fmt.Errorf("netlink: addrs for %s: %w", ifaceName, err)
	}
	if len(addrs) == 0 {
		return NetInfo{}, fmt.Errorf("netlink: no IPv4 address on %s", ifaceName)
	}
	ip4 := addrs[0].IPNet.IP.To4()
	if ip4 == nil {
		return NetInfo{}, fmt.Errorf("netlink: non-IPv4 address on %s", ifaceName)
	}
	copy(info.IPv4[:], ip4)

	maskBytes := addrs[0].IPNet.Mask
	if len(maskBytes) == 4 {
		copy(info.SubnetMask[:], maskBytes)
	}

	routes, err := netlink.RouteList(link, netlink.FAMILY_V4)
	if err == nil {
		for _, r := range routes {
			if r.Gw != nil {
				gw4 := r.Gw.To4()
				if gw4 != nil {
					copy(info.Gateway[:], gw4)
					break
				}
			}
		}
	}

	return info, nil
}
