package bluez

import (
	"path"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/openbadge/bridge/internal/hfp"
	"github.com/openbadge/bridge/internal/transport"
)

// tracker folds BlueZ device properties and oFono card lifecycle into link
// events for a single peer. It is not safe for concurrent use; the signal
// loop owns it.
type tracker struct {
	adapter dbus.ObjectPath

	peerPath  dbus.ObjectPath
	peer      hfp.Address
	connected bool
	resolved  bool
	announced bool // LinkConnected sent for this ACL link

	card dbus.ObjectPath // oFono card of the peer while the SLC is up
}

func newTracker(adapter dbus.ObjectPath) *tracker {
	return &tracker{adapter: adapter}
}

// deviceChanged handles Device1 property updates for devicePath.
func (t *tracker) deviceChanged(devicePath dbus.ObjectPath, changed map[string]dbus.Variant) []transport.Event {
	addr, ok := addressFromPath(t.adapter, devicePath)
	if !ok {
		return nil
	}
	if t.peerPath != "" && t.peerPath != devicePath {
		if c, ok := boolProp(changed, "Connected"); ok && c {
			return []transport.Event{transport.DiagnosticEvent{
				Source:  "bluez",
				Message: "ignoring second device " + addr.String(),
			}}
		}
		return nil
	}

	var out []transport.Event
	if c, ok := boolProp(changed, "Connected"); ok && c != t.connected {
		t.connected = c
		if !c {
			t.resolved = false
			t.announced = false
			t.card = ""
			t.peerPath = ""
			return append(out, transport.LinkStateEvent{State: hfp.LinkDisconnected, Peer: addr})
		}
		t.peerPath = devicePath
		t.peer = addr
		if r, ok := boolProp(changed, "ServicesResolved"); ok {
			t.resolved = r
		}
		if !t.resolved {
			return append(out, transport.LinkStateEvent{State: hfp.LinkConnecting, Peer: addr})
		}
		return t.announce(out)
	}

	if r, ok := boolProp(changed, "ServicesResolved"); ok && r != t.resolved && t.connected {
		t.resolved = r
		if r && !t.announced {
			out = t.announce(out)
		}
	}
	return out
}

// cardAdded handles a new oFono handsfree card.
func (t *tracker) cardAdded(card dbus.ObjectPath, props map[string]dbus.Variant) []transport.Event {
	remote, _ := props["RemoteAddress"].Value().(string)
	addr, err := hfp.ParseAddress(remote)
	if err != nil {
		return []transport.Event{transport.DiagnosticEvent{
			Source:  "ofono",
			Message: "card without remote address " + string(card),
		}}
	}
	if t.peerPath != "" && addr != t.peer {
		return nil
	}
	if t.peerPath == "" {
		// Card can race ahead of the Device1 signal.
		t.peerPath = devicePath(t.adapter, addr)
		t.peer = addr
		t.connected = true
	}
	t.card = card
	var out []transport.Event
	if !t.announced {
		out = t.announce(out)
	}
	return append(out, transport.LinkStateEvent{State: hfp.LinkServiceLevelConnected, Peer: addr})
}

// announce appends LinkConnected for the current peer. The session only
// adopts a new peer address from it, so it precedes every SLC.
func (t *tracker) announce(out []transport.Event) []transport.Event {
	t.announced = true
	return append(out, transport.LinkStateEvent{State: hfp.LinkConnected, Peer: t.peer})
}

// cardRemoved handles removal of the peer's card. If the ACL link is still
// up the session drops back to connected.
func (t *tracker) cardRemoved(card dbus.ObjectPath) []transport.Event {
	if card != t.card || t.card == "" {
		return nil
	}
	t.card = ""
	if t.connected {
		return []transport.Event{transport.LinkStateEvent{State: hfp.LinkConnected, Peer: t.peer}}
	}
	return []transport.Event{transport.LinkStateEvent{State: hfp.LinkDisconnected, Peer: t.peer}}
}

func (t *tracker) peerDevice() (dbus.ObjectPath, bool) {
	return t.peerPath, t.peerPath != "" && t.connected
}

func (t *tracker) peerCard() (dbus.ObjectPath, bool) {
	return t.card, t.card != ""
}

func boolProp(props map[string]dbus.Variant, name string) (bool, bool) {
	v, ok := props[name]
	if !ok {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}

// devicePath converts an address to "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func devicePath(adapter dbus.ObjectPath, addr hfp.Address) dbus.ObjectPath {
	return dbus.ObjectPath(string(adapter) + "/dev_" + strings.ReplaceAll(addr.String(), ":", "_"))
}

// addressFromPath extracts the device address from a BlueZ device path on
// adapter. Paths below the device (services, transports) are rejected.
func addressFromPath(adapter, p dbus.ObjectPath) (hfp.Address, bool) {
	prefix := string(adapter) + "/dev_"
	s := string(p)
	if !strings.HasPrefix(s, prefix) {
		return hfp.Address{}, false
	}
	addr, err := hfp.ParseAddress(s[len(prefix):])
	if err != nil {
		return hfp.Address{}, false
	}
	return addr, true
}

// modemForCard returns the oFono modem that owns card. oFono publishes
// handsfree cards as children of the modem ("/hfp/.../dev_X/card_1"); a card
// that is not nested is treated as its own modem.
func modemForCard(card dbus.ObjectPath) dbus.ObjectPath {
	s := string(card)
	if strings.HasPrefix(path.Base(s), "card") {
		if dir := path.Dir(s); dir != "/" && dir != "." {
			return dbus.ObjectPath(dir)
		}
	}
	return card
}

// codecFromOfono maps oFono's codec byte to the voice codec.
func codecFromOfono(b byte) (hfp.Codec, bool) {
	switch b {
	case ofonoCodecCVSD:
		return hfp.CodecNarrowband, true
	case ofonoCodecMSBC:
		return hfp.CodecWideband, true
	}
	return 0, false
}
