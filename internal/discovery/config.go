package discovery

import "time"

// DefaultBroadcastPort is the UDP port network discovery queries
// (§6 "Discovery query (UDP broadcast 47809)").
const DefaultBroadcastPort = 47809

// DefaultQueryWindow is how long the network branch waits for DA
// responses after sending its DQ (§4.2, default 2 s).
const DefaultQueryWindow = 2 * time.Second

// Config holds discovery's tunables. Zero values fall back to the
// spec's defaults.
type Config struct {
	// ClientIdentity is carried in the DQ query payload.
	ClientIdentity string

	// BroadcastAddr is the destination for the UDP query, normally
	// 255.255.255.255:<BroadcastPort>. Overridable for tests, which
	// point it at a loopback responder instead of the subnet broadcast
	// address.
	BroadcastAddr string
	BroadcastPort int
	QueryWindow   time.Duration

	// IgnoreModelPrefixes filters out DA responses from well-known
	// MIDI-controller products that happen to share the mixer vendor's
	// advertisement format but aren't mixers (§4.2).
	IgnoreModelPrefixes []string

	// USBVendorID and USBProductAllowList gate the USB enumeration
	// branch (§4.2 "known audio vendor" / "known-mixer allow-list").
	// Values are lowercase hex, no "0x" prefix, matching udev's
	// ID_VENDOR_ID/ID_MODEL_ID property format.
	USBVendorID         string
	USBProductAllowList []string
}

func (c Config) broadcastPort() int {
	if c.BroadcastPort != 0 {
		return c.BroadcastPort
	}
	return DefaultBroadcastPort
}

func (c Config) queryWindow() time.Duration {
	if c.QueryWindow > 0 {
		return c.QueryWindow
	}
	return DefaultQueryWindow
}

func (c Config) ignoresModel(model string) bool {
	for _, prefix := range c.IgnoreModelPrefixes {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func (c Config) productAllowed(productID string) bool {
	for _, p := range c.USBProductAllowList {
		if p == productID {
			return true
		}
	}
	return false
}
