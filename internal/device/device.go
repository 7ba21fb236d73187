package device

import (
	"encoding/hex"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/syncwave/syncwave/internal/errors"
)

// Kind selects capture or playback devices.
type Kind int

const (
	KindCapture Kind = iota
	KindPlayback
)

func (k Kind) String() string {
	if k == KindPlayback {
		return "playback"
	}
	return "capture"
}

func (k Kind) malgoType() malgo.DeviceType {
	if k == KindPlayback {
		return malgo.Playback
	}
	return malgo.Capture
}

// Info describes an audio device.
type Info struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
	Kind      Kind

	id malgo.DeviceID
}

// defaultAliases select the system default device.
var defaultAliases = []string{"", "default", "sysdefault"}

func isDefaultAlias(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, a := range defaultAliases {
		if name == a {
			return true
		}
	}
	return false
}

// SelectDevice finds the device matching name. The empty name and the
// aliases "default" and "sysdefault" select the system default device, or
// the first one when none is flagged default. Otherwise an exact name match
// wins, then an exact ID match, then a case-insensitive name substring.
func SelectDevice(devices []Info, name string) (Info, error) {
	if isDefaultAlias(name) {
		for i := range devices {
			if devices[i].IsDefault {
				return devices[i], nil
			}
		}
		if len(devices) > 0 {
			return devices[0], nil
		}
		return Info{}, errors.Newf("no audio devices found").
			Component("device").
			Category(errors.CategoryNotFound).
			Build()
	}

	for i := range devices {
		if devices[i].Name == name {
			return devices[i], nil
		}
	}

	for i := range devices {
		if devices[i].ID == name {
			return devices[i], nil
		}
	}

	lower := strings.ToLower(name)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), lower) {
			return devices[i], nil
		}
	}

	return Info{}, errors.Newf("no audio device matches %q", name).
		Component("device").
		Category(errors.CategoryNotFound).
		Context("device_name", name).
		Context("available_devices", len(devices)).
		Build()
}

// infoFromMalgo converts a malgo device description. Device IDs are hex
// encoded by malgo; they decode to the backend's identifier, e.g. an ALSA
// hw string, and fall back to the hex form otherwise.
func infoFromMalgo(index int, kind Kind, d *malgo.DeviceInfo) Info {
	id := d.ID.String()
	if decoded, err := hexToASCII(id); err == nil {
		id = strings.TrimRight(decoded, "\x00")
	}
	return Info{
		Index:     index,
		Name:      d.Name(),
		ID:        id,
		IsDefault: d.IsDefault == 1,
		Kind:      kind,
		id:        d.ID,
	}
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
