package discovery

import (
	"fmt"
	"strconv"

	"github.com/jochenvg/go-udev"

	"github.com/k0ucp/ucpbridge/internal/device"
)

// enumerateUSB lists USB devices belonging to the known audio vendor
// whose product ID is in the mixer allow-list (§4.2 "USB"), using udev
// the way the teacher's own (unwired) USB-HID discussion in cm108.go
// names as the intended mechanism but never implements.
func enumerateUSB(cfg Config) ([]*device.Descriptor, error) {
	if cfg.USBVendorID == "" {
		return nil, nil
	}

	u := udev.Udev{}
	enum := u.NewEnumerate()
	if err := enum.AddMatchSubsystem("usb"); err != nil {
		return nil, fmt.Errorf("discovery: udev match subsystem: %w", err)
	}
	if err := enum.AddMatchProperty("ID_VENDOR_ID", cfg.USBVendorID); err != nil {
		return nil, fmt.Errorf("discovery: udev match vendor: %w", err)
	}

	devices, err := enum.Devices()
	if err != nil {
		// Enumeration failures are reported, not fatal (§4.2 "Failure
		// semantics": "a failed query may simply yield zero results").
		return nil, fmt.Errorf("discovery: udev enumerate: %w", err)
	}

	var found []*device.Descriptor
	for _, ud := range devices {
		productID := ud.PropertyValue("ID_MODEL_ID")
		if !cfg.productAllowed(productID) {
			continue
		}

		bus, _ := strconv.Atoi(ud.SysattrValue("busnum"))
		dev, _ := strconv.Atoi(ud.SysattrValue("devnum"))

		identifier := ud.PropertyValue("ID_SERIAL_SHORT")
		if identifier == "" {
			identifier = fmt.Sprintf("usb-%d-%d", bus, dev)
		}

		d := device.NewDescriptor(identifier, device.USB)
		d.Model = ud.PropertyValue("ID_MODEL")
		d.BusNumber = bus
		d.DeviceNumber = dev
		found = append(found, d)
	}
	return found, nil
}
