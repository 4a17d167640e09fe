package discovery

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/k0ucp/ucpbridge/internal/device"
	"github.com/k0ucp/ucpbridge/internal/frame"
)

// queryNetwork sends a DQ broadcast and collects DA responses for
// cfg.queryWindow(), same socket-setup shape as the teacher's
// net.ListenUDP/net.ResolveUDPAddr UDP capture branch in audio.go,
// generalized from "receive audio samples" to "receive discovery
// advertisements" (§4.2).
func queryNetwork(cfg Config) ([]*device.Descriptor, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("discovery: open UDP socket: %w", err)
	}
	defer conn.Close()

	if err := enableBroadcast(conn); err != nil {
		return nil, fmt.Errorf("discovery: enable broadcast: %w", err)
	}

	broadcastAddr := cfg.BroadcastAddr
	if broadcastAddr == "" {
		broadcastAddr = fmt.Sprintf("255.255.255.255:%d", cfg.broadcastPort())
	}
	dest, err := net.ResolveUDPAddr("udp4", broadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolve broadcast address: %w", err)
	}

	query := frame.Encode(frame.TypeDiscQuery, encodeQuery(cfg.ClientIdentity))
	if _, err := conn.WriteToUDP(query, dest); err != nil {
		// A failed send is reported but yields zero results, not a
		// crash (§4.2 "Failure semantics").
		return nil, fmt.Errorf("discovery: send query: %w", err)
	}

	deadline := time.Now().Add(cfg.queryWindow())
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("discovery: set read deadline: %w", err)
	}

	var found []*device.Descriptor
	buf := make([]byte, 2048)
	for {
		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Timeout ends collection; it is not an error (§4.2).
			break
		}
		d, ok := decodeAdvertisement(buf[:n], peer, cfg)
		if ok {
			found = append(found, d)
		}
	}
	return found, nil
}

// enableBroadcast sets SO_BROADCAST on conn's underlying file
// descriptor, required before a UDP socket may send to a broadcast
// address (§4.2 "Bind a UDP socket, enable broadcast").
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}

func decodeAdvertisement(b []byte, peer *net.UDPAddr, cfg Config) (*device.Descriptor, bool) {
	fr, _, err := frame.DecodeOne(b)
	if err != nil || fr.Type != frame.TypeDiscAdv {
		return nil, false
	}

	identifier, model, firmware, ok := parseAdvertisement(fr.Payload)
	if !ok {
		return nil, false
	}
	if cfg.ignoresModel(model) {
		return nil, false
	}

	d := device.NewDescriptor(identifier, device.Network)
	d.Model = model
	d.Firmware = firmware
	d.Addr = peer.String()
	return d, true
}
