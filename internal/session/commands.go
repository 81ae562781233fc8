package session

import (
	apperrors "github.com/openbadge/bridge/internal/errors"
	"github.com/openbadge/bridge/internal/hfp"
)

// SendMediaButton taps Play on the phone: press, wait the press delay,
// release. It does nothing without a service level connection. A failed
// press skips the release. Failures are logged and returned; the session is
// never changed.
func (m *Machine) SendMediaButton() error {
	if !m.IsServiceLevelConnected() {
		m.log.Info("media button ignored", "reason", ErrNotReady.Message)
		return ErrNotReady
	}

	if err := m.cmd.SendPassthrough(hfp.PassthroughPlay, true); err != nil {
		m.log.Warn("media button press failed", "error", err)
		return apperrors.Wrap(err, apperrors.CodeCommandRejected, "passthrough press")
	}
	m.sleep(m.pressDelay)
	if err := m.cmd.SendPassthrough(hfp.PassthroughPlay, false); err != nil {
		m.log.Warn("media button release failed", "error", err)
		return apperrors.Wrap(err, apperrors.CodeCommandRejected, "passthrough release")
	}
	m.log.Debug("media button sent", "delay", m.pressDelay)
	return nil
}

// SendVoiceRecognitionStart asks the phone to open its voice assistant.
func (m *Machine) SendVoiceRecognitionStart() error {
	if !m.IsServiceLevelConnected() {
		m.log.Info("voice recognition start ignored", "reason", ErrNotReady.Message)
		return ErrNotReady
	}
	if err := m.cmd.SendVoiceRecognition(true); err != nil {
		m.log.Warn("voice recognition start failed", "error", err)
		return apperrors.Wrap(err, apperrors.CodeCommandRejected, "voice recognition start")
	}
	m.log.Info("voice recognition requested")
	return nil
}

// SendVoiceRecognitionStop closes the voice assistant. It is safe to call in
// any state and only sends while audio is active.
func (m *Machine) SendVoiceRecognitionStop() error {
	if !m.IsAudioActive() {
		m.log.Debug("voice recognition stop skipped, audio not active")
		return nil
	}
	if err := m.cmd.SendVoiceRecognition(false); err != nil {
		m.log.Warn("voice recognition stop failed", "error", err)
		return apperrors.Wrap(err, apperrors.CodeCommandRejected, "voice recognition stop")
	}
	m.log.Info("voice recognition stopped")
	return nil
}
