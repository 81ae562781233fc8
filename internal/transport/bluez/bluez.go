// Package bluez is the Linux transport. It speaks to bluetoothd for the
// ACL link, pairing and AVRCP, and to ofonod for the hands-free service
// level connection, voice recognition and the SCO socket.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	apperrors "github.com/openbadge/bridge/internal/errors"
	"github.com/openbadge/bridge/internal/hfp"
	"github.com/openbadge/bridge/internal/resilience"
	"github.com/openbadge/bridge/internal/transport"
)

// D-Bus names
const (
	bluezService      = "org.bluez"
	ofonoService      = "org.ofono"
	adapterIface      = "org.bluez.Adapter1"
	deviceIface       = "org.bluez.Device1"
	agentIface        = "org.bluez.Agent1"
	agentManagerIface = "org.bluez.AgentManager1"
	mediaControlIface = "org.bluez.MediaControl1"
	hfAudioMgrIface   = "org.ofono.HandsfreeAudioManager"
	hfAudioAgentIface = "org.ofono.HandsfreeAudioAgent"
	handsfreeIface    = "org.ofono.Handsfree"
	propsIface        = "org.freedesktop.DBus.Properties"
	objManagerIface   = "org.freedesktop.DBus.ObjectManager"

	errRejected = "org.bluez.Error.Rejected"

	agentPath      = dbus.ObjectPath("/org/openbadge/agent")
	audioAgentPath = dbus.ObjectPath("/org/openbadge/hfagent")

	agentCapability = "NoInputNoOutput"
)

// oFono codec identifiers for HandsfreeAudioManager.Register and
// NewConnection.
const (
	ofonoCodecCVSD byte = 1
	ofonoCodecMSBC byte = 2
)

// Defaults
const (
	DefaultEventBuffer = 128
	CallTimeout        = 2 * time.Second
	signalBuffer       = 32
)

// Config selects the adapter and how the headset presents itself.
type Config struct {
	Adapter     string // "hci0"
	DeviceName  string // adapter alias shown to phones
	PIN         string // legacy pairing PIN
	EventBuffer int
}

// Transport implements transport.Transport over the system bus.
type Transport struct {
	cfg     Config
	adapter dbus.ObjectPath
	log     *slog.Logger

	conn *dbus.Conn

	events  chan transport.Event
	sendMu  sync.RWMutex
	closed  atomic.Bool
	dropped atomic.Uint64

	mu       sync.Mutex
	outbound transport.OutboundAudioFunc
	tracker  *tracker
	link     *scoLink

	avrcp *resilience.Breaker
	hf    *resilience.Breaker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

// New creates an unstarted transport.
func New(cfg Config, log *slog.Logger) *Transport {
	if cfg.Adapter == "" {
		cfg.Adapter = "hci0"
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	adapter := dbus.ObjectPath("/org/bluez/" + cfg.Adapter)
	return &Transport{
		cfg:     cfg,
		adapter: adapter,
		log:     log.With("component", "bluez"),
		events:  make(chan transport.Event, cfg.EventBuffer),
		tracker: newTracker(adapter),
		avrcp:   resilience.New(resilience.CommandConfig("avrcp")),
		hf:      resilience.New(resilience.CommandConfig("handsfree")),
	}
}

func (t *Transport) Events() <-chan transport.Event { return t.events }

func (t *Transport) RegisterOutboundAudio(fn transport.OutboundAudioFunc) {
	t.mu.Lock()
	t.outbound = fn
	t.mu.Unlock()
}

// Start connects to the system bus, waits for bluetoothd and ofonod, and
// registers the agents. Failures are reported as diagnostics; the session
// simply never leaves Disconnected.
func (t *Transport) Start(ctx context.Context) error {
	err := resilience.Retry(ctx, resilience.BringUpRetryConfig(), func() error {
		return t.bringUp(ctx)
	})
	if err != nil {
		t.emit(transport.DiagnosticEvent{Source: "bluez", Message: "bring-up failed", Err: err})
		return apperrors.Wrap(err, apperrors.CodeTransportInit, "bluez bring-up")
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	sigCh := make(chan *dbus.Signal, signalBuffer)
	t.conn.Signal(sigCh)
	t.wg.Add(1)
	go t.signalLoop(ctx, sigCh)

	t.log.Info("bluetooth stack ready", "adapter", t.cfg.Adapter, "alias", t.cfg.DeviceName)
	return nil
}

func (t *Transport) bringUp(ctx context.Context) error {
	if t.conn == nil {
		conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("connect system bus: %w", err)
		}
		t.conn = conn
	}

	var names []string
	if err := t.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return fmt.Errorf("list bus names: %w", err)
	}
	for _, svc := range []string{bluezService, ofonoService} {
		if !slices.Contains(names, svc) {
			return dbus.Error{
				Name: "org.freedesktop.DBus.Error.ServiceUnknown",
				Body: []interface{}{svc + " is not on the system bus"},
			}
		}
	}

	if err := t.configureAdapter(ctx); err != nil {
		return err
	}
	if err := t.registerAgents(ctx); err != nil {
		return err
	}
	if err := t.subscribe(ctx); err != nil {
		return err
	}
	return t.syncExisting(ctx)
}

func (t *Transport) configureAdapter(ctx context.Context) error {
	obj := t.conn.Object(bluezService, t.adapter)
	props := []struct {
		name string
		val  interface{}
	}{
		{"Alias", t.cfg.DeviceName},
		{"Powered", true},
		{"Pairable", true},
		{"Discoverable", true},
	}
	for _, p := range props {
		if err := obj.CallWithContext(ctx, propsIface+".Set", 0, adapterIface, p.name, dbus.MakeVariant(p.val)).Err; err != nil {
			return fmt.Errorf("set adapter %s: %w", p.name, err)
		}
	}
	return nil
}

func (t *Transport) registerAgents(ctx context.Context) error {
	pair := &pairingAgent{pin: t.cfg.PIN, emit: t.emit}
	if err := t.conn.Export(pair, agentPath, agentIface); err != nil {
		return fmt.Errorf("export pairing agent: %w", err)
	}
	mgr := t.conn.Object(bluezService, "/org/bluez")
	if err := mgr.CallWithContext(ctx, agentManagerIface+".RegisterAgent", 0, agentPath, agentCapability).Err; err != nil {
		if errorName(err) != "org.bluez.Error.AlreadyExists" {
			return fmt.Errorf("register pairing agent: %w", err)
		}
	}
	if err := mgr.CallWithContext(ctx, agentManagerIface+".RequestDefaultAgent", 0, agentPath).Err; err != nil {
		return fmt.Errorf("default pairing agent: %w", err)
	}

	hfa := &audioAgent{onConnection: t.onAudioConnection, onRelease: t.onAudioAgentReleased}
	if err := t.conn.Export(hfa, audioAgentPath, hfAudioAgentIface); err != nil {
		return fmt.Errorf("export audio agent: %w", err)
	}
	ofono := t.conn.Object(ofonoService, "/")
	codecs := []byte{ofonoCodecCVSD, ofonoCodecMSBC}
	if err := ofono.CallWithContext(ctx, hfAudioMgrIface+".Register", 0, audioAgentPath, codecs).Err; err != nil {
		if errorName(err) != "org.ofono.Error.InUse" {
			return fmt.Errorf("register audio agent: %w", err)
		}
	}
	return nil
}

func (t *Transport) subscribe(ctx context.Context) error {
	rules := []string{
		"type='signal',interface='" + propsIface + "',member='PropertiesChanged',path_namespace='/org/bluez'",
		"type='signal',interface='" + hfAudioMgrIface + "',member='CardAdded'",
		"type='signal',interface='" + hfAudioMgrIface + "',member='CardRemoved'",
	}
	rules = append(rules, infoRules...)
	for _, rule := range rules {
		if err := t.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
			return fmt.Errorf("add match: %w", err)
		}
	}
	return nil
}

// syncExisting replays devices and cards that were up before we started.
func (t *Transport) syncExisting(ctx context.Context) error {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := t.conn.Object(bluezService, "/").CallWithContext(ctx, objManagerIface+".GetManagedObjects", 0).Store(&objects)
	if err != nil {
		return fmt.Errorf("managed objects: %w", err)
	}
	for path, ifaces := range objects {
		if props, ok := ifaces[deviceIface]; ok {
			t.dispatch(t.trackDevice(path, props))
		}
	}

	var cards []struct {
		Path  dbus.ObjectPath
		Props map[string]dbus.Variant
	}
	err = t.conn.Object(ofonoService, "/").CallWithContext(ctx, hfAudioMgrIface+".GetCards", 0).Store(&cards)
	if err != nil {
		return fmt.Errorf("handsfree cards: %w", err)
	}
	for _, c := range cards {
		t.dispatch(t.trackCardAdded(c.Path, c.Props))
	}
	return nil
}

func (t *Transport) signalLoop(ctx context.Context, sigCh <-chan *dbus.Signal) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			t.dispatch(t.handleSignal(sig))
		}
	}
}

func (t *Transport) handleSignal(sig *dbus.Signal) []transport.Event {
	switch sig.Name {
	case propsIface + ".PropertiesChanged":
		if len(sig.Body) < 2 {
			return nil
		}
		iface, _ := sig.Body[0].(string)
		changed, _ := sig.Body[1].(map[string]dbus.Variant)
		if changed == nil {
			return nil
		}
		switch iface {
		case deviceIface:
			evs := deviceInfo(t.adapter, sig.Path, changed)
			return append(evs, t.trackDevice(sig.Path, changed)...)
		case mediaControlIface:
			if !t.isPeerDevice(sig.Path) {
				return nil
			}
			return mediaControlInfo(changed)
		}
		return nil
	case hfAudioMgrIface + ".CardAdded":
		if len(sig.Body) < 2 {
			return nil
		}
		card, _ := sig.Body[0].(dbus.ObjectPath)
		props, _ := sig.Body[1].(map[string]dbus.Variant)
		return t.trackCardAdded(card, props)
	case hfAudioMgrIface + ".CardRemoved":
		if len(sig.Body) < 1 {
			return nil
		}
		card, _ := sig.Body[0].(dbus.ObjectPath)
		return t.trackCardRemoved(card)
	}
	if t.isPeerModem(sig.Path) {
		return ofonoInfo(sig)
	}
	return nil
}

func (t *Transport) isPeerDevice(p dbus.ObjectPath) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	dev, ok := t.tracker.peerDevice()
	return ok && dev == p
}

// isPeerModem reports whether p is the oFono modem behind the peer's card.
func (t *Transport) isPeerModem(p dbus.ObjectPath) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	card, ok := t.tracker.peerCard()
	return ok && modemForCard(card) == p
}

func (t *Transport) trackDevice(path dbus.ObjectPath, props map[string]dbus.Variant) []transport.Event {
	t.mu.Lock()
	evs := t.tracker.deviceChanged(path, props)
	t.mu.Unlock()
	if linkDropped(evs) {
		t.closeLink()
	}
	return evs
}

func (t *Transport) trackCardAdded(card dbus.ObjectPath, props map[string]dbus.Variant) []transport.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracker.cardAdded(card, props)
}

func (t *Transport) trackCardRemoved(card dbus.ObjectPath) []transport.Event {
	t.mu.Lock()
	evs := t.tracker.cardRemoved(card)
	t.mu.Unlock()
	if len(evs) > 0 {
		t.closeLink()
	}
	return evs
}

func linkDropped(evs []transport.Event) bool {
	for _, ev := range evs {
		if e, ok := ev.(transport.LinkStateEvent); ok && e.State == hfp.LinkDisconnected {
			return true
		}
	}
	return false
}

// onAudioConnection takes ownership of the SCO socket oFono passes in.
func (t *Transport) onAudioConnection(card dbus.ObjectPath, fd int, codecID byte) error {
	codec, ok := codecFromOfono(codecID)
	if !ok {
		_ = closeFD(fd)
		return fmt.Errorf("unsupported codec %d", codecID)
	}

	t.emit(transport.AudioStateEvent{State: hfp.AudioConnecting})

	l := newSCOLink(fd, codec)
	l.pull = t.outboundFunc
	l.inbound = t.emitInbound
	l.onEnd = t.onLinkEnded

	t.mu.Lock()
	old := t.link
	t.link = l
	t.mu.Unlock()
	if old != nil {
		old.stop()
	}

	t.log.Info("voice link opened", "card", card, "codec", codec)
	t.emit(transport.AudioStateEvent{State: hfp.AudioActive, Codec: codec})
	go l.run()
	return nil
}

func (t *Transport) onAudioAgentReleased() {
	t.emit(transport.DiagnosticEvent{Source: "ofono", Message: "audio agent released"})
	t.closeLink()
}

// onLinkEnded runs on the pump goroutine. Only the current link reports
// the voice path going idle; a replaced link ends silently.
func (t *Transport) onLinkEnded(l *scoLink, err error) {
	t.mu.Lock()
	current := t.link == l
	if current {
		t.link = nil
	}
	t.mu.Unlock()
	if !current {
		return
	}
	if err != nil {
		t.log.Debug("voice link read ended", "error", err)
	}
	t.emit(transport.AudioStateEvent{State: hfp.AudioIdle})
}

// closeLink stops the current link. Its pump reports AudioIdle.
func (t *Transport) closeLink() {
	t.mu.Lock()
	l := t.link
	t.mu.Unlock()
	if l != nil {
		l.stop()
	}
}

func (t *Transport) outboundFunc() transport.OutboundAudioFunc {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outbound
}

func (t *Transport) dispatch(evs []transport.Event) {
	for _, ev := range evs {
		if ls, ok := ev.(transport.LinkStateEvent); ok && ls.State == hfp.LinkServiceLevelConnected {
			t.avrcp.Reset()
			t.hf.Reset()
		}
		t.emit(ev)
	}
}

// emit delivers a state or diagnostic event, blocking while the consumer
// catches up. Events after Close are discarded.
func (t *Transport) emit(ev transport.Event) {
	t.sendMu.RLock()
	defer t.sendMu.RUnlock()
	if t.closed.Load() {
		return
	}
	t.events <- ev
}

// emitInbound never blocks the SCO pump; audio is dropped instead.
func (t *Transport) emitInbound(p []byte) {
	t.sendMu.RLock()
	defer t.sendMu.RUnlock()
	if t.closed.Load() {
		return
	}
	select {
	case t.events <- transport.InboundAudioEvent{Data: p}:
	default:
		t.dropped.Add(1)
	}
}

// DroppedInbound returns the number of inbound packets lost to a full
// event channel.
func (t *Transport) DroppedInbound() uint64 { return t.dropped.Load() }

// Close unregisters from the daemons and closes the event channel.
func (t *Transport) Close() error {
	if t.cancel != nil {
		t.cancel()
	}
	t.closeLink()
	t.wg.Wait()

	if t.conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), CallTimeout)
		defer cancel()
		_ = t.conn.Object(ofonoService, "/").CallWithContext(ctx, hfAudioMgrIface+".Unregister", 0, audioAgentPath).Err
		_ = t.conn.Object(bluezService, "/org/bluez").CallWithContext(ctx, agentManagerIface+".UnregisterAgent", 0, agentPath).Err
		_ = t.conn.Close()
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if t.closed.CompareAndSwap(false, true) {
		close(t.events)
	}
	return nil
}

// errorName returns the D-Bus error name carried by err, if any.
func errorName(err error) string {
	var de dbus.Error
	if errors.As(err, &de) {
		return de.Name
	}
	var dp *dbus.Error
	if errors.As(err, &dp) && dp != nil {
		return dp.Name
	}
	return ""
}
