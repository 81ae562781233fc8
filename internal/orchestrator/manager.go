package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openbadge/bridge/internal/board"
	"github.com/openbadge/bridge/internal/config"
	"github.com/openbadge/bridge/internal/orchestrator/audio"
	"github.com/openbadge/bridge/internal/orchestrator/logbook"
	"github.com/openbadge/bridge/internal/orchestrator/trigger"
	"github.com/openbadge/bridge/internal/session"
	"github.com/openbadge/bridge/internal/trace"
	"github.com/openbadge/bridge/internal/transport"
)

// Manager coordinates the transport, session, router and board.
type Manager struct {
	cfg *config.Config
	log *slog.Logger

	tr      transport.Transport
	board   board.Board
	ui      *presenter
	book    logbook.Book
	session *session.Machine
	router  *audio.Router

	debouncer trigger.Debouncer // owned by the poll loop
	injected  atomic.Bool
	triggers  atomic.Uint64

	mu          sync.RWMutex
	audioActive bool // audio state seen on the previous tick
	voiceID     string
	voiceStart  time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New wires a manager. The manager owns tr from Start onward and closes it
// in Stop.
func New(tr transport.Transport, b board.Board, book logbook.Book, cfg *config.Config) *Manager {
	log := slog.Default().With("component", "orchestrator")
	ui := &presenter{next: b, status: board.StatusDisconnected}

	router := audio.NewRouter(b.Audio(), audio.WithLogger(slog.Default()))
	sess := session.New(tr, router, ui,
		session.WithPressDelay(cfg.ButtonPressDelay),
		session.WithLogger(slog.Default()),
	)

	return &Manager{
		cfg:     cfg,
		log:     log,
		tr:      tr,
		board:   b,
		ui:      ui,
		book:    book,
		session: sess,
		router:  router,
		stopCh:  make(chan struct{}),
	}
}

// Start registers the outbound audio pull, starts the event pump and the
// poll loop, then brings the transport up. A transport that fails to start
// is returned but the loops keep running; the badge stays disconnected.
func (m *Manager) Start(ctx context.Context) error {
	m.tr.RegisterOutboundAudio(m.router.OnOutboundAudioRequest)

	m.wg.Add(2)
	go m.eventLoop()
	go m.pollLoop(ctx)

	m.ui.SetStatus(board.StatusDisconnected)
	m.ui.Log("Ready to pair!")
	m.ui.Log(fmt.Sprintf("Scan for '%s'", m.cfg.DeviceName))

	if err := m.tr.Start(ctx); err != nil {
		m.log.Error("transport start failed", "error", err)
		m.ui.Log("Bluetooth unavailable")
		return err
	}
	return nil
}

// eventLoop runs until the transport closes its event channel.
func (m *Manager) eventLoop() {
	defer m.wg.Done()
	for ev := range m.tr.Events() {
		m.handleEvent(ev)
	}
}

func (m *Manager) handleEvent(ev transport.Event) {
	if in, ok := ev.(transport.InboundAudioEvent); ok {
		m.router.OnInboundAudio(in.Data)
		return
	}
	m.session.Handle(ev)
}

func (m *Manager) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	interval := m.cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick is one pass of the main loop. Audio state is sampled once so the
// trigger decision and the edge tracking agree.
func (m *Manager) tick(ctx context.Context) {
	active := m.session.IsAudioActive()

	pressed := m.debouncer.Poll(m.board.PollTrigger())
	if m.injected.Swap(false) {
		pressed = true
	}
	if pressed {
		m.handleTrigger(ctx, active)
	}

	m.trackAudio(active)
}

// handleTrigger toggles the voice session: an open voice link is closed,
// otherwise the phone is asked to start its assistant.
func (m *Manager) handleTrigger(ctx context.Context, active bool) {
	ctx, span := trace.StartSpan(ctx, "voice_trigger")
	var err error
	defer func() { span.Finish(err) }()
	log := trace.Logger(ctx)

	m.triggers.Add(1)

	if active {
		span.SetAttr("action", "stop")
		m.ui.Log(">>> Stopping voice...")
		m.ui.SetStatus(board.StatusIdle)
		err = m.session.SendVoiceRecognitionStop()
		return
	}

	if !m.session.CanTrigger() {
		span.SetAttr("action", "blocked")
		return
	}

	id := uuid.NewString()
	m.mu.Lock()
	m.voiceID = id
	m.mu.Unlock()
	span.SetAttr("action", "start")
	span.SetAttr("voice_session", id)

	m.ui.SetStatus(board.StatusListening)
	// AVRCP may be missing on some phones; voice recognition over the
	// hands-free link works regardless, so both are sent.
	buttonErr := m.session.SendMediaButton()
	vrErr := m.session.SendVoiceRecognitionStart()
	err = errors.Join(buttonErr, vrErr)
	if err != nil {
		log.Warn("voice trigger incomplete", "voice_session", id, "error", err)
	}
}

// trackAudio updates the board on voice link edges.
func (m *Manager) trackAudio(active bool) {
	m.mu.Lock()
	if active == m.audioActive {
		m.mu.Unlock()
		return
	}
	m.audioActive = active

	var id string
	var took time.Duration
	if active {
		if m.voiceID == "" {
			// Opened from the phone side.
			m.voiceID = uuid.NewString()
		}
		m.voiceStart = time.Now()
		id = m.voiceID
	} else {
		id = m.voiceID
		took = time.Since(m.voiceStart)
		m.voiceID = ""
	}
	m.mu.Unlock()

	if active {
		m.log.Info("voice session started", "voice_session", id, "sample_rate", m.router.SampleRate())
		m.ui.SetStatus(board.StatusListening)
		m.ui.Log("Voice session started")
		return
	}

	m.log.Info("voice session ended", "voice_session", id, "duration", took)
	if m.session.IsServiceLevelConnected() {
		m.ui.SetStatus(board.StatusIdle)
		m.ui.Log("Voice session ended")
	} else {
		m.ui.SetStatus(board.StatusDisconnected)
	}
}

// InjectTrigger queues a remote press for the next tick. It fails fast when
// the press could neither start nor stop a voice session.
func (m *Manager) InjectTrigger() error {
	if !m.session.IsAudioActive() {
		if err := m.session.TriggerBlocker(); err != nil {
			return err
		}
	}
	m.injected.Store(true)
	return nil
}

// Stop halts the poll loop, closes the transport and waits for the event
// pump to drain.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if err := m.tr.Close(); err != nil {
			m.log.Warn("transport close failed", "error", err)
		}
		m.wg.Wait()
	})
}
