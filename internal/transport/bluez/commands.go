package bluez

import (
	"context"

	"github.com/godbus/dbus/v5"

	apperrors "github.com/openbadge/bridge/internal/errors"
	"github.com/openbadge/bridge/internal/hfp"
	"github.com/openbadge/bridge/internal/transport"
)

// SendPassthrough forwards the press edge to BlueZ. bluetoothd sends the
// matching release itself, so the release edge is acknowledged locally.
func (t *Transport) SendPassthrough(cmd hfp.PassthroughCommand, pressed bool) error {
	if !pressed {
		return nil
	}
	t.mu.Lock()
	dev, ok := t.tracker.peerDevice()
	t.mu.Unlock()
	if !ok || t.conn == nil {
		return apperrors.New(apperrors.CodeNotConnected, "no peer for passthrough")
	}

	err := t.avrcp.Execute(func() error {
		return t.call(bluezService, dev, mediaControlIface+"."+cmd.String())
	})
	if err != nil {
		t.emit(transport.DiagnosticEvent{Source: "avrcp", Message: cmd.String() + " rejected", Err: err})
		return apperrors.Wrapf(err, apperrors.CodeCommandRejected, "passthrough %s", cmd)
	}
	t.emit(diag("avrcp", "%s accepted", cmd))
	return nil
}

// SendVoiceRecognition toggles the phone's voice assistant through the
// oFono modem that owns the peer's handsfree card.
func (t *Transport) SendVoiceRecognition(active bool) error {
	t.mu.Lock()
	card, ok := t.tracker.peerCard()
	t.mu.Unlock()
	if !ok || t.conn == nil {
		return apperrors.New(apperrors.CodeNotConnected, "no handsfree card")
	}

	modem := modemForCard(card)
	err := t.hf.Execute(func() error {
		return t.call(ofonoService, modem, handsfreeIface+".SetProperty", "VoiceRecognition", dbus.MakeVariant(active))
	})
	if err != nil {
		t.emit(transport.DiagnosticEvent{Source: "handsfree", Message: "voice recognition rejected", Err: err})
		return apperrors.Wrapf(err, apperrors.CodeCommandRejected, "voice recognition %t", active)
	}
	return nil
}

func (t *Transport) call(service string, path dbus.ObjectPath, method string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), CallTimeout)
	defer cancel()
	return t.conn.Object(service, path).CallWithContext(ctx, method, 0, args...).Err
}
