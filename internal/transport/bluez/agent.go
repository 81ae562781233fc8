package bluez

import (
	"fmt"
	"strconv"

	"github.com/godbus/dbus/v5"

	"github.com/openbadge/bridge/internal/transport"
)

// pairingAgent implements org.bluez.Agent1 for a headset with no keypad or
// display. Every request is accepted and reported as a diagnostic.
type pairingAgent struct {
	pin  string
	emit func(transport.Event)
}

func (a *pairingAgent) note(device dbus.ObjectPath, msg string) {
	a.emit(transport.DiagnosticEvent{Source: "pairing", Message: fmt.Sprintf("%s (%s)", msg, device)})
}

func (a *pairingAgent) Release() *dbus.Error {
	a.emit(transport.DiagnosticEvent{Source: "pairing", Message: "agent released"})
	return nil
}

func (a *pairingAgent) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	a.note(device, "PIN requested")
	return a.pin, nil
}

func (a *pairingAgent) DisplayPinCode(device dbus.ObjectPath, pincode string) *dbus.Error {
	a.note(device, "PIN "+pincode)
	return nil
}

func (a *pairingAgent) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	a.note(device, "passkey requested")
	n, err := strconv.ParseUint(a.pin, 10, 32)
	if err != nil {
		return 0, dbus.NewError(errRejected, []interface{}{"PIN is not numeric"})
	}
	return uint32(n), nil
}

func (a *pairingAgent) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	a.note(device, fmt.Sprintf("passkey %06d", passkey))
	return nil
}

func (a *pairingAgent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	a.note(device, fmt.Sprintf("confirmed passkey %06d", passkey))
	return nil
}

func (a *pairingAgent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	a.note(device, "authorized")
	return nil
}

func (a *pairingAgent) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	a.note(device, "authorized service "+uuid)
	return nil
}

func (a *pairingAgent) Cancel() *dbus.Error {
	a.emit(transport.DiagnosticEvent{Source: "pairing", Message: "request cancelled"})
	return nil
}

// audioAgent implements org.ofono.HandsfreeAudioAgent. oFono hands it the
// SCO socket once the phone opens the voice link.
type audioAgent struct {
	onConnection func(card dbus.ObjectPath, fd int, codec byte) error
	onRelease    func()
}

func (a *audioAgent) NewConnection(card dbus.ObjectPath, fd dbus.UnixFD, codec byte) *dbus.Error {
	if err := a.onConnection(card, int(fd), codec); err != nil {
		return dbus.NewError(errRejected, []interface{}{err.Error()})
	}
	return nil
}

func (a *audioAgent) Release() *dbus.Error {
	if a.onRelease != nil {
		a.onRelease()
	}
	return nil
}
