package core

import (
	"fmt"

	"github.com/k0ucp/ucpbridge/internal/device"
	"github.com/k0ucp/ucpbridge/internal/mapping"
	"github.com/k0ucp/ucpbridge/internal/taper"
)

// SupportedProjectVersion is the only Project.Version ApplyMappingSet
// accepts. A mismatch is rejected outright rather than guessed at.
const SupportedProjectVersion = 1

// Project is the persisted-project DTO spec.md §6 "Persisted state
// layout" names: a versioned `{version, name, devices[], mappings[]}`
// object. It exists purely so ApplyMappingSet has something concrete to
// validate against — the core never reads or writes one itself; loading
// a file and decoding it into a Project is the caller's job.
type Project struct {
	Version  int              `json:"version"`
	Name     string           `json:"name"`
	Devices  []ProjectDevice  `json:"devices"`
	Mappings []ProjectMapping `json:"mappings"`
}

// ProjectDevice is one of a project's stable device entries. Mappings
// reference a device by Key rather than a live discovery Identifier, so
// a project can be authored and validated before its devices are ever
// discovered (§6 "devices carry stable keys; mappings reference devices
// by those keys").
type ProjectDevice struct {
	Key       string `json:"key"`
	Transport string `json:"transport"` // "network" | "usb"
}

// ProjectMapping is one persisted mapping record. Enums are carried as
// strings rather than mapping.Record's internal int constants, since
// the constants' numeric values are an implementation detail that
// should not leak into an on-disk format.
type ProjectMapping struct {
	ID            int64   `json:"id"`
	DeviceKey     string  `json:"device_key"`
	Address       string  `json:"address"`
	ParamKind     string  `json:"param_kind"`  // "continuous" | "toggle"
	SourceKind    string  `json:"source_kind"` // "control_change" | "note" | "pitch_bend" | "high_resolution"
	Channel       int     `json:"channel"`
	CC            int     `json:"cc,omitempty"`
	NoteNumber    int     `json:"note_number,omitempty"`
	CCMSB         int     `json:"cc_msb,omitempty"`
	CCLSB         int     `json:"cc_lsb,omitempty"`
	Taper         string  `json:"taper"`
	MinNorm       float64 `json:"min_norm"`
	MaxNorm       float64 `json:"max_norm"`
	Invert        bool    `json:"invert"`
	Bidirectional bool    `json:"bidirectional"`
	Label         string  `json:"label,omitempty"`
}

func parseProjectTransport(s string) (device.Transport, error) {
	switch s {
	case "network":
		return device.Network, nil
	case "usb":
		return device.USB, nil
	default:
		return 0, fmt.Errorf("core: unknown device transport %q", s)
	}
}

func parseProjectParamKind(s string) (mapping.ParamKind, error) {
	switch s {
	case "continuous", "":
		return mapping.Continuous, nil
	case "toggle":
		return mapping.Toggle, nil
	default:
		return 0, fmt.Errorf("core: unknown param kind %q", s)
	}
}

func parseProjectSourceKind(s string) (mapping.SourceKind, error) {
	switch s {
	case "control_change":
		return mapping.ControlChange, nil
	case "note":
		return mapping.Note, nil
	case "pitch_bend":
		return mapping.PitchBend, nil
	case "high_resolution":
		return mapping.HighResolution, nil
	default:
		return 0, fmt.Errorf("core: unknown source kind %q", s)
	}
}

func parseProjectTaper(s string) (taper.Curve, error) {
	switch s {
	case "linear", "":
		return taper.Linear, nil
	case "logarithmic":
		return taper.Logarithmic, nil
	case "audio":
		return taper.AudioTaper, nil
	case "s_curve":
		return taper.SCurve, nil
	default:
		return 0, fmt.Errorf("core: unknown taper %q", s)
	}
}

// toRecord converts a persisted mapping to the live mapping.Record
// shape, resolving its DeviceKey to deviceID (the two are the same
// value space — see ApplyMappingSet).
func (pm ProjectMapping) toRecord(deviceID string) (mapping.Record, error) {
	sourceKind, err := parseProjectSourceKind(pm.SourceKind)
	if err != nil {
		return mapping.Record{}, err
	}
	paramKind, err := parseProjectParamKind(pm.ParamKind)
	if err != nil {
		return mapping.Record{}, err
	}
	curve, err := parseProjectTaper(pm.Taper)
	if err != nil {
		return mapping.Record{}, err
	}

	return mapping.Record{
		ID: pm.ID,
		Source: mapping.Source{
			Kind:       sourceKind,
			Channel:    pm.Channel,
			CC:         pm.CC,
			NoteNumber: pm.NoteNumber,
			CCMSB:      pm.CCMSB,
			CCLSB:      pm.CCLSB,
		},
		Target: mapping.Target{
			DeviceID: deviceID,
			Address:  pm.Address,
			Kind:     paramKind,
		},
		Taper:         curve,
		MinNorm:       pm.MinNorm,
		MaxNorm:       pm.MaxNorm,
		Invert:        pm.Invert,
		Bidirectional: pm.Bidirectional,
		Label:         pm.Label,
	}, nil
}

// ApplyMappingSet loads a persisted project (§6 "Persisted state
// layout", "The core loads a project by receiving an ApplyMappingSet
// command; it never touches files"): every project device is
// registered as known — creating a placeholder descriptor for one
// discovery hasn't seen yet, so mappings targeting it still validate —
// then the mapping store's entire contents are atomically replaced
// with the project's mappings. The whole project is validated before
// any of it is applied; a single bad device or mapping leaves the core
// untouched.
func (c *Core) ApplyMappingSet(p Project) error {
	if p.Version != SupportedProjectVersion {
		return fmt.Errorf("core: unsupported project version %d", p.Version)
	}

	deviceKeys := make(map[string]device.Transport, len(p.Devices))
	for _, d := range p.Devices {
		if d.Key == "" {
			return fmt.Errorf("core: project device has an empty key")
		}
		transport, err := parseProjectTransport(d.Transport)
		if err != nil {
			return err
		}
		deviceKeys[d.Key] = transport
	}

	records := make([]mapping.Record, 0, len(p.Mappings))
	for _, pm := range p.Mappings {
		if _, known := deviceKeys[pm.DeviceKey]; !known {
			return fmt.Errorf("core: mapping %d references a device key %q not present in this project", pm.ID, pm.DeviceKey)
		}
		record, err := pm.toRecord(pm.DeviceKey)
		if err != nil {
			return fmt.Errorf("core: mapping %d: %w", pm.ID, err)
		}
		records = append(records, record)
	}

	c.mu.Lock()
	for key, transport := range deviceKeys {
		if _, known := c.devices[key]; !known {
			c.devices[key] = device.NewDescriptor(key, transport)
		}
	}
	c.mu.Unlock()

	if err := c.mappings.ReplaceAll(records); err != nil {
		return err
	}
	c.engine.MappingsChanged()
	return nil
}
