package bluez

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/openbadge/bridge/internal/transport"
)

// oFono interfaces that only produce diagnostics.
const (
	callVolumeIface  = "org.ofono.CallVolume"
	callManagerIface = "org.ofono.VoiceCallManager"
)

// infoRules are the match rules for informational signals. Device1 and
// MediaControl1 changes already arrive through the PropertiesChanged rule.
var infoRules = []string{
	"type='signal',interface='" + handsfreeIface + "',member='PropertyChanged'",
	"type='signal',interface='" + callVolumeIface + "',member='PropertyChanged'",
	"type='signal',interface='" + callManagerIface + "',member='CallAdded'",
	"type='signal',interface='" + callManagerIface + "',member='CallRemoved'",
}

func diag(source, format string, args ...any) transport.DiagnosticEvent {
	return transport.DiagnosticEvent{Source: source, Message: fmt.Sprintf(format, args...)}
}

// deviceInfo reports pairing results carried by Device1 property changes.
func deviceInfo(adapter, path dbus.ObjectPath, changed map[string]dbus.Variant) []transport.Event {
	paired, ok := boolProp(changed, "Paired")
	if !ok {
		return nil
	}
	addr, ok := addressFromPath(adapter, path)
	if !ok {
		return nil
	}
	if paired {
		return []transport.Event{diag("pairing", "paired with %s", addr)}
	}
	return []transport.Event{diag("pairing", "pairing removed for %s", addr)}
}

// mediaControlInfo reports the AVRCP control channel coming and going.
func mediaControlInfo(changed map[string]dbus.Variant) []transport.Event {
	c, ok := boolProp(changed, "Connected")
	if !ok {
		return nil
	}
	if c {
		return []transport.Event{diag("avrcp", "AVRCP connected")}
	}
	return []transport.Event{diag("avrcp", "AVRCP disconnected")}
}

// ofonoInfo maps oFono indications on the peer's modem.
func ofonoInfo(sig *dbus.Signal) []transport.Event {
	switch sig.Name {
	case handsfreeIface + ".PropertyChanged":
		name, v, ok := propertyChanged(sig)
		if !ok {
			return nil
		}
		switch name {
		case "VoiceRecognition":
			if on, ok := v.Value().(bool); ok {
				if on {
					return []transport.Event{diag("handsfree", "voice recognition on")}
				}
				return []transport.Event{diag("handsfree", "voice recognition off")}
			}
		case "BatteryChargeLevel":
			return []transport.Event{diag("handsfree", "phone battery %v", v.Value())}
		}

	case callVolumeIface + ".PropertyChanged":
		name, v, ok := propertyChanged(sig)
		if !ok {
			return nil
		}
		switch name {
		case "SpeakerVolume":
			return []transport.Event{diag("volume", "speaker volume %v", v.Value())}
		case "MicrophoneVolume":
			return []transport.Event{diag("volume", "microphone volume %v", v.Value())}
		}

	case callManagerIface + ".CallAdded":
		if len(sig.Body) < 2 {
			return nil
		}
		props, _ := sig.Body[1].(map[string]dbus.Variant)
		state, _ := props["State"].Value().(string)
		line, _ := props["LineIdentification"].Value().(string)
		if state == "incoming" {
			if line == "" {
				line = "unknown"
			}
			return []transport.Event{diag("call", "ring from %s", line)}
		}
		return []transport.Event{diag("call", "call %s", state)}

	case callManagerIface + ".CallRemoved":
		return []transport.Event{diag("call", "call ended")}
	}
	return nil
}

func propertyChanged(sig *dbus.Signal) (string, dbus.Variant, bool) {
	if len(sig.Body) < 2 {
		return "", dbus.Variant{}, false
	}
	name, ok := sig.Body[0].(string)
	if !ok {
		return "", dbus.Variant{}, false
	}
	v, ok := sig.Body[1].(dbus.Variant)
	return name, v, ok
}
